package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// AuditLevel defines the level of audit logging.
type AuditLevel int

const (
	// AuditNone disables audit logging.
	AuditNone AuditLevel = iota
	// AuditWrites logs only write operations (INSERT, UPDATE, DELETE).
	AuditWrites
	// AuditReads logs read operations (SELECT) in addition to writes.
	AuditReads
	// AuditAll logs all database operations including utility commands.
	AuditAll
)

// Auditor handles audit logging of executed statements. Statement text is
// recorded as a SHA-256 digest rather than verbatim because the execution
// layer inlines values as literals.
type Auditor struct {
	logger *slog.Logger
	level  AuditLevel
}

// NewAuditor creates a new audit logger.
func NewAuditor(logger *slog.Logger, level AuditLevel) *Auditor {
	return &Auditor{logger: logger, level: level}
}

// Record logs one executed statement according to the configured level.
func (a *Auditor) Record(ctx context.Context, operation, sqlText string, affectedRows int64, duration time.Duration, err error) {
	if a == nil || a.logger == nil || !a.shouldLog(operation) {
		return
	}

	attrs := []any{
		"operation", operation,
		"sql_digest", digest(sqlText),
		"affected_rows", affectedRows,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		a.logger.ErrorContext(ctx, "audit", attrs...)
		return
	}
	a.logger.InfoContext(ctx, "audit", attrs...)
}

func (a *Auditor) shouldLog(operation string) bool {
	switch a.level {
	case AuditNone:
		return false
	case AuditWrites:
		return operation == "INSERT" || operation == "UPDATE" || operation == "DELETE"
	case AuditReads:
		return operation == "SELECT" || operation == "INSERT" ||
			operation == "UPDATE" || operation == "DELETE"
	default:
		return true
	}
}

func digest(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:8])
}
