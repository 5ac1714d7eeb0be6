package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snowsentry/snowsentry/internal/catalog"
	"github.com/snowsentry/snowsentry/internal/core/domain"
	"github.com/snowsentry/snowsentry/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// AuditService orchestrates catalog lookup and check execution against the
// engine session, recording every execution in the audit log.
type AuditService struct {
	catalog *catalog.Catalog
	session domain.Session
	auditor port.CheckAuditor
	logger  *slog.Logger
	tracer  trace.Tracer
	inst    port.Instrumentation
}

func NewAuditService(cat *catalog.Catalog, session domain.Session, auditor port.CheckAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *AuditService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &AuditService{
		catalog: cat,
		session: session,
		auditor: auditor,
		logger:  logger,
		tracer:  tracer,
		inst:    inst,
	}
}

// List returns all catalog entries.
func (s *AuditService) List() []catalog.CheckInfo {
	return s.catalog.List()
}

// Text returns the SQL text of the named check.
func (s *AuditService) Text(name string) (string, error) {
	return s.catalog.Text(name)
}

// Run executes the named check once without registering anything remotely:
// text-backed checks run as raw SQL, handler-only checks run their handler
// against the session.
func (s *AuditService) Run(ctx context.Context, name string) ([]map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "AuditService.Run",
		trace.WithAttributes(
			attribute.String("db.system", "snowflake"),
			attribute.String("check.name", name),
		),
	)
	defer span.End()

	sqlText, textErr := s.catalog.Text(name)

	var run func(context.Context) ([]map[string]any, error)
	switch {
	case textErr == nil:
		run = func(ctx context.Context) ([]map[string]any, error) {
			return s.session.Query(ctx, sqlText)
		}
	default:
		q, ok := s.catalog.Registrable(name)
		if !ok {
			err := fmt.Errorf("%w: %s", domain.ErrNotFound, name)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		run = func(ctx context.Context) ([]map[string]any, error) {
			return q.Registration().Handler(ctx, s.session)
		}
	}

	return s.execute(ctx, span, name, sqlText, false, run)
}

// Register registers the named check as a stored procedure on the session
// (replace semantics) and invokes it once. Text-only checks are not
// registrable.
func (s *AuditService) Register(ctx context.Context, name string) ([]map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, "AuditService.Register",
		trace.WithAttributes(
			attribute.String("db.system", "snowflake"),
			attribute.String("check.name", name),
		),
	)
	defer span.End()

	q, ok := s.catalog.Registrable(name)
	if !ok {
		var err error
		if s.catalog.Has(name) {
			err = fmt.Errorf("check %s is text-only and cannot be registered", name)
		} else {
			err = fmt.Errorf("%w: %s", domain.ErrNotFound, name)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sqlText, _ := q.Text() // empty for handler-only checks

	return s.execute(ctx, span, name, sqlText, true, func(ctx context.Context) ([]map[string]any, error) {
		return q.RegisterAndRun(ctx, s.session)
	})
}

// execute wraps a check invocation with timing, auditing, and metrics.
func (s *AuditService) execute(ctx context.Context, span trace.Span, name, sqlText string, registered bool, run func(context.Context) ([]map[string]any, error)) ([]map[string]any, error) {
	start := time.Now()
	rows, err := run(ctx)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordCheckDuration(ctx, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		Check:      name,
		SQL:        sqlText,
		Registered: registered,
		Rows:       len(rows),
		DurationMS: durationMS,
		Err:        err,
	})

	if err != nil {
		s.logger.WarnContext(ctx, "check failed",
			slog.String("check.name", name),
			slog.String("tool", toolNameFromCtx(ctx)),
			slog.String("error.message", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementCheckErrors(ctx)
		return rows, err
	}

	s.inst.IncrementCheckCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", len(rows)))

	s.logger.InfoContext(ctx, "check completed",
		slog.String("check.name", name),
		slog.Bool("registered", registered),
		slog.Int("rows", len(rows)),
		slog.Int64("duration_ms", durationMS),
	)

	return rows, nil
}
