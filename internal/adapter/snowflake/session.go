// Package snowflake implements the domain Session over database/sql with the
// gosnowflake driver.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"github.com/snowsentry/snowsentry/internal/core/domain"
)

// Config holds the connection parameters for a Snowflake session.
type Config struct {
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string

	QueryTimeout time.Duration
	MaxRows      int // client-side row cap; <= 0 means unlimited
}

// Session runs raw SQL and registers stored procedures on a Snowflake
// account. Handler-only registrations have no server-side representation
// and live in a per-session named registry with the same replace-by-name
// semantics.
type Session struct {
	db           *sql.DB
	queryTimeout time.Duration
	maxRows      int
	logger       *slog.Logger

	mu       sync.Mutex
	handlers map[string]domain.Registration
}

// Open connects to Snowflake and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Role:      cfg.Role,
		Warehouse: cfg.Warehouse,
	})
	if err != nil {
		return nil, fmt.Errorf("building DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging snowflake (10s timeout): %w", err)
	}

	return &Session{
		db:           db,
		queryTimeout: cfg.QueryTimeout,
		maxRows:      cfg.MaxRows,
		logger:       logger,
		handlers:     make(map[string]domain.Registration),
	}, nil
}

// Query runs raw SQL and materializes the result as maps keyed by column
// name. Engine errors are returned untranslated.
func (s *Session) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return rowsToMaps(rows, s.maxRows)
}

// Register creates or replaces the named procedure. Text-backed
// registrations become permanent SQL procedures on the account; invoking
// the returned handle runs CALL <name>(). Handler-only registrations are
// recorded locally and invoked in-process.
func (s *Session) Register(ctx context.Context, reg domain.Registration) (domain.StoredProcedure, error) {
	if reg.Body == "" {
		s.mu.Lock()
		s.handlers[reg.Name] = reg
		s.mu.Unlock()
		s.logger.Warn("check has no SQL body, registration is session-local",
			slog.String("check", reg.Name),
		)
		return &localProcedure{session: s, reg: reg}, nil
	}

	ddl := procedureDDL(reg)
	if _, err := s.Query(ctx, ddl); err != nil {
		return nil, err
	}

	s.logger.Info("stored procedure registered",
		slog.String("check", reg.Name),
		slog.Bool("replace", reg.Replace),
	)
	return &remoteProcedure{session: s, name: reg.Name}, nil
}

// Registered reports whether the named handler-only registration exists.
func (s *Session) Registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handlers[name]
	return ok
}

func (s *Session) Close() error {
	return s.db.Close()
}

// remoteProcedure invokes a server-side procedure by name.
type remoteProcedure struct {
	session *Session
	name    string
}

func (p *remoteProcedure) Call(ctx context.Context) ([]map[string]any, error) {
	return p.session.Query(ctx, fmt.Sprintf("CALL %s();", p.name))
}

// localProcedure invokes a handler-only registration in-process.
type localProcedure struct {
	session *Session
	reg     domain.Registration
}

func (p *localProcedure) Call(ctx context.Context) ([]map[string]any, error) {
	return p.reg.Handler(ctx, p.session)
}
