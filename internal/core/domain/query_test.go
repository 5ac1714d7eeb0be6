package domain

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock Session ---

// mockSession tracks registrations by name, mirroring the engine's
// replace-by-name procedure namespace.
type mockSession struct {
	registered map[string]Registration
	calls      []string // "register:<name>" / "call:<name>" / "query"
	queryRows  []map[string]any
	queryErr   error
	regErr     error
	lastSQL    string
}

func newMockSession() *mockSession {
	return &mockSession{registered: make(map[string]Registration)}
}

func (m *mockSession) Query(_ context.Context, sql string) ([]map[string]any, error) {
	m.calls = append(m.calls, "query")
	m.lastSQL = sql
	return m.queryRows, m.queryErr
}

func (m *mockSession) Register(_ context.Context, reg Registration) (StoredProcedure, error) {
	if m.regErr != nil {
		return nil, m.regErr
	}
	m.calls = append(m.calls, "register:"+reg.Name)
	m.registered[reg.Name] = reg
	return &mockProc{session: m, reg: reg}, nil
}

type mockProc struct {
	session *mockSession
	reg     Registration
}

func (p *mockProc) Call(ctx context.Context) ([]map[string]any, error) {
	p.session.calls = append(p.session.calls, "call:"+p.reg.Name)
	return p.reg.Handler(ctx, p.session)
}

// --- fixtures ---

func fixtureFS() fstest.MapFS {
	return fstest.MapFS{
		"queries/login_history.sql": &fstest.MapFile{
			Data: []byte("select * from {_SCHEMA}.login_history;"),
		},
	}
}

func loginSchema() Schema {
	return Schema{
		{Name: "user_name", Type: "string"},
		{Name: "error_message", Type: "string"},
		{Name: "num_of_failures", Type: "integer"},
	}
}

// --- SimpleQuery ---

func TestSimpleQuery_ResolvesPlaceholder(t *testing.T) {
	t.Parallel()
	q, err := NewSimpleQuery(fixtureFS(), "queries/login_history.sql", "LOGIN_HISTORY", loginSchema())
	require.NoError(t, err)

	text, err := q.Text()
	require.NoError(t, err)
	assert.Equal(t, "select * from SNOWFLAKE.ACCOUNT_USAGE.login_history;", text)
	assert.NotContains(t, text, "{_SCHEMA}")
}

func TestSimpleQuery_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewSimpleQuery(fixtureFS(), "queries/nope.sql", "NOPE", loginSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queries/nope.sql")
}

func TestSimpleQuery_RegistrationShape(t *testing.T) {
	t.Parallel()
	schema := loginSchema()
	q, err := NewSimpleQuery(fixtureFS(), "queries/login_history.sql", "LOGIN_HISTORY", schema)
	require.NoError(t, err)

	reg := q.Registration()
	assert.Equal(t, "LOGIN_HISTORY", reg.Name)
	require.Len(t, reg.Returns, len(schema))
	for i, col := range schema {
		assert.Equal(t, col.Name, reg.Returns[i].Name)
		assert.Equal(t, col.Type, reg.Returns[i].Type)
	}
	assert.Empty(t, reg.Args)
	assert.True(t, reg.Replace)
	assert.True(t, reg.ExecuteAsCaller)
	assert.NotEmpty(t, reg.Body)
	assert.NotNil(t, reg.Handler)
}

func TestSimpleQuery_HandlerRunsResolvedText(t *testing.T) {
	t.Parallel()
	q, err := NewSimpleQuery(fixtureFS(), "queries/login_history.sql", "LOGIN_HISTORY", loginSchema())
	require.NoError(t, err)

	s := newMockSession()
	s.queryRows = []map[string]any{{"user_name": "alice"}}

	rows, err := q.Registration().Handler(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "select * from SNOWFLAKE.ACCOUNT_USAGE.login_history;", s.lastSQL)
}

// --- SprocOnlyQuery ---

func TestSprocOnlyQuery_TextAlwaysFails(t *testing.T) {
	t.Parallel()
	q := NewSprocOnlyQuery("OWNERSHIP", loginSchema(), func(ctx context.Context, s Session) ([]map[string]any, error) {
		return s.Query(ctx, "SHOW GRANTS TO ROLE accountadmin")
	})

	_, err := q.Text()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTextForm)
}

func TestSprocOnlyQuery_RegistrationShape(t *testing.T) {
	t.Parallel()
	schema := Schema{{Name: "GRANTED_ON", Type: "string"}, {Name: "NAME", Type: "string"}}
	q := NewSprocOnlyQuery("OWNERSHIP", schema, func(context.Context, Session) ([]map[string]any, error) {
		return nil, nil
	})

	reg := q.Registration()
	assert.Equal(t, "OWNERSHIP", reg.Name)
	assert.Equal(t, schema, reg.Returns)
	assert.Empty(t, reg.Args)
	assert.Empty(t, reg.Body, "handler-only queries carry no SQL body")
	assert.True(t, reg.Replace)
}

// --- RegisterAndRun ---

func TestRegisterAndRun_OneRegisterThenOneCall(t *testing.T) {
	t.Parallel()
	s := newMockSession()
	s.queryRows = []map[string]any{{"n": 1}}

	q := NewSprocOnlyQuery("PROBE", Schema{{Name: "n", Type: "integer"}},
		func(ctx context.Context, sess Session) ([]map[string]any, error) {
			return sess.Query(ctx, "SELECT 1")
		})

	rows, err := q.RegisterAndRun(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"register:PROBE", "call:PROBE", "query"}, s.calls)
}

func TestRegisterAndRun_ReplaceIsIdempotentByName(t *testing.T) {
	t.Parallel()
	s := newMockSession()

	q := NewSprocOnlyQuery("PROBE", Schema{}, func(context.Context, Session) ([]map[string]any, error) {
		return nil, nil
	})

	_, err := q.RegisterAndRun(context.Background(), s)
	require.NoError(t, err)
	_, err = q.RegisterAndRun(context.Background(), s)
	require.NoError(t, err)

	assert.Len(t, s.registered, 1, "second registration replaces, never duplicates")
}

func TestRegisterAndRun_RegistrationErrorPropagates(t *testing.T) {
	t.Parallel()
	s := newMockSession()
	s.regErr = fmt.Errorf("insufficient privileges")

	q := NewSprocOnlyQuery("PROBE", Schema{}, func(context.Context, Session) ([]map[string]any, error) {
		return nil, nil
	})

	_, err := q.RegisterAndRun(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient privileges")
	assert.Contains(t, err.Error(), "PROBE")
}

func TestRegisterAndRun_RemoteErrorPropagatesVerbatim(t *testing.T) {
	t.Parallel()
	s := newMockSession()
	s.queryErr = fmt.Errorf("SQL compilation error: object does not exist")

	q, err := NewSimpleQuery(fixtureFS(), "queries/login_history.sql", "LOGIN_HISTORY", loginSchema())
	require.NoError(t, err)

	_, err = q.RegisterAndRun(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQL compilation error")
}

// --- ResolveNamespace ---

func TestResolveNamespace(t *testing.T) {
	t.Parallel()
	out := ResolveNamespace("select 1 from {_SCHEMA}.users join {_SCHEMA}.roles")
	assert.Equal(t, "select 1 from SNOWFLAKE.ACCOUNT_USAGE.users join SNOWFLAKE.ACCOUNT_USAGE.roles", out)
	assert.False(t, strings.Contains(out, "{_SCHEMA}"))
}
