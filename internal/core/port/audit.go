package port

import "context"

// AuditEntry represents a single auditable check execution.
type AuditEntry struct {
	Check      string
	SQL        string // empty for handler-only checks
	Registered bool   // true when the check was registered as a stored procedure
	Rows       int
	DurationMS int64
	Err        error
}

// CheckAuditor records check execution events.
type CheckAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
