package domain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// SchemaNamespace is the two-part namespace every catalog query runs against.
const SchemaNamespace = "SNOWFLAKE.ACCOUNT_USAGE"

// schemaToken is the placeholder in query source files resolved at load time.
const schemaToken = "{_SCHEMA}"

var (
	// ErrNoTextForm is returned by Text on queries that exist only as a
	// stored-procedure handler and have no literal SQL representation.
	ErrNoTextForm = errors.New("query has no text form")

	// ErrNotFound is returned when a check name matches no catalog entry.
	ErrNotFound = errors.New("check not found")
)

// Column is one (name, type) pair of a query's declared output shape.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the ordered output shape a registered procedure declares.
// It must match what the underlying SQL actually returns; nothing checks
// this locally, mismatches surface as engine errors at execution time.
type Schema []Column

// Handler is the server-side body of a check: it receives a live session
// and returns the tabular result.
type Handler func(ctx context.Context, s Session) ([]map[string]any, error)

// StoredProcedure is the invocable handle returned by a registration.
type StoredProcedure interface {
	Call(ctx context.Context) ([]map[string]any, error)
}

// Session is the remote engine collaborator the domain depends on. It runs
// raw SQL and registers named permanent stored procedures. Implementations
// own authentication, transport, and result materialization.
type Session interface {
	Query(ctx context.Context, sql string) ([]map[string]any, error)
	Register(ctx context.Context, reg Registration) (StoredProcedure, error)
}

// Registration describes a stored-procedure registration request. Args is
// empty for every current check; Body carries the SQL text when the check
// has one, letting the engine persist the procedure server-side.
type Registration struct {
	Name            string
	Handler         Handler
	Returns         Schema
	Args            Schema
	Body            string
	ExecuteAsCaller bool
	Replace         bool
}

// Query is a unit of auditing work that can be rendered as SQL text and/or
// registered on the engine as a named stored procedure.
type Query interface {
	// Name is the technical name used for remote registration; unique
	// within the catalog.
	Name() string

	// OutputSchema is the declared return shape of the registered procedure.
	OutputSchema() Schema

	// Registration builds the registration request for this query. It is
	// deterministic and always succeeds on a well-formed variant.
	Registration() Registration

	// Text returns the literal SQL for text-backed queries, or a wrapped
	// ErrNoTextForm for handler-only ones.
	Text() (string, error)

	// RegisterAndRun registers the query under its technical name (replacing
	// any prior registration with that name) and invokes it once with no
	// arguments. Engine failures propagate verbatim.
	RegisterAndRun(ctx context.Context, s Session) ([]map[string]any, error)
}

// SimpleQuery is a check backed by a literal SQL file. The file is read once
// at construction and the schema-namespace token substituted; the resolved
// text never changes afterwards.
type SimpleQuery struct {
	name   string
	schema Schema
	text   string
}

// NewSimpleQuery reads path from fsys and resolves the {_SCHEMA} token.
// It fails if the file cannot be read.
func NewSimpleQuery(fsys fs.FS, path, name string, schema Schema) (*SimpleQuery, error) {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading query file %s: %w", path, err)
	}
	return &SimpleQuery{
		name:   name,
		schema: schema,
		text:   ResolveNamespace(string(raw)),
	}, nil
}

func (q *SimpleQuery) Name() string         { return q.name }
func (q *SimpleQuery) OutputSchema() Schema { return q.schema }

// Text returns the resolved SQL text.
func (q *SimpleQuery) Text() (string, error) { return q.text, nil }

func (q *SimpleQuery) Registration() Registration {
	text := q.text
	return Registration{
		Name: q.name,
		Handler: func(ctx context.Context, s Session) ([]map[string]any, error) {
			return s.Query(ctx, text)
		},
		Returns:         q.schema,
		Args:            Schema{},
		Body:            text,
		ExecuteAsCaller: true,
		Replace:         true,
	}
}

func (q *SimpleQuery) RegisterAndRun(ctx context.Context, s Session) ([]map[string]any, error) {
	return registerAndRun(ctx, s, q)
}

// SprocOnlyQuery is a check whose logic is a Go handler composing session
// calls (filter/project over SHOW output and the like). It has no literal
// SQL form.
type SprocOnlyQuery struct {
	name    string
	schema  Schema
	handler Handler
}

func NewSprocOnlyQuery(name string, schema Schema, handler Handler) *SprocOnlyQuery {
	return &SprocOnlyQuery{name: name, schema: schema, handler: handler}
}

func (q *SprocOnlyQuery) Name() string         { return q.name }
func (q *SprocOnlyQuery) OutputSchema() Schema { return q.schema }

// Text always fails: there is no literal SQL to return.
func (q *SprocOnlyQuery) Text() (string, error) {
	return "", fmt.Errorf("%w: %s is registrable only", ErrNoTextForm, q.name)
}

func (q *SprocOnlyQuery) Registration() Registration {
	return Registration{
		Name:            q.name,
		Handler:         q.handler,
		Returns:         q.schema,
		Args:            Schema{},
		ExecuteAsCaller: true,
		Replace:         true,
	}
}

func (q *SprocOnlyQuery) RegisterAndRun(ctx context.Context, s Session) ([]map[string]any, error) {
	return registerAndRun(ctx, s, q)
}

// registerAndRun is the shared register-then-invoke flow: one registration
// call, one invocation, no retries.
func registerAndRun(ctx context.Context, s Session, q Query) ([]map[string]any, error) {
	sp, err := s.Register(ctx, q.Registration())
	if err != nil {
		return nil, fmt.Errorf("registering %s: %w", q.Name(), err)
	}
	return sp.Call(ctx)
}

// ResolveNamespace substitutes the schema-namespace placeholder in raw query
// text with the fixed account-usage namespace.
func ResolveNamespace(text string) string {
	return strings.ReplaceAll(text, schemaToken, SchemaNamespace)
}
