package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"pipemedic/internal/domain"
)

// MaxSandboxRows caps diagnostic query results; larger result sets are
// truncated and flagged.
const MaxSandboxRows = 100

// Leading clause keywords a diagnostic statement may start with.
var readOnlyPrefixes = []string{"SELECT", "WITH", "EXPLAIN"}

// Keywords whose presence anywhere in the statement rejects it. This is a
// whole-word scan over the normalized text, not a parser: a keyword inside a
// string literal is a false positive, accepted in exchange for a fail-closed
// guarantee.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE",
	"ATTACH", "COPY", "GRANT", "REVOKE",
}

var wordSplit = regexp.MustCompile(`[^A-Z0-9_]+`)

// SandboxService executes ad-hoc diagnostic queries under a read-only
// filter. Execution errors degrade to structured errors, never a crash.
type SandboxService struct {
	warehouse domain.Warehouse
	audit     *AuditService
	logger    *slog.Logger
}

// NewSandboxService creates a new SandboxService.
func NewSandboxService(warehouse domain.Warehouse, audit *AuditService, logger *slog.Logger) *SandboxService {
	return &SandboxService{
		warehouse: warehouse,
		audit:     audit,
		logger:    logger.With("component", "sandbox"),
	}
}

// ValidateQuery applies the two-stage allow/deny filter: the normalized
// statement must begin with a read-only clause keyword, and must not contain
// any mutation keyword anywhere in its text.
func ValidateQuery(sqlText string) error {
	normalized := strings.ToUpper(strings.TrimSpace(sqlText))
	if normalized == "" {
		return domain.ErrForbiddenQuery("empty query")
	}

	allowed := false
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.ErrForbiddenQuery("only SELECT, WITH, or EXPLAIN statements are allowed")
	}

	for _, word := range wordSplit.Split(normalized, -1) {
		for _, kw := range forbiddenKeywords {
			if word == kw {
				return domain.ErrForbiddenQuery("query contains forbidden keyword %s", kw)
			}
		}
	}
	return nil
}

// Execute validates and runs a diagnostic query, returning at most
// MaxSandboxRows rows. Every accepted query is journaled.
func (s *SandboxService) Execute(ctx context.Context, actor, sqlText string) (*domain.QueryResult, error) {
	if err := ValidateQuery(sqlText); err != nil {
		s.logger.Warn("diagnostic query rejected", "actor", actor, "error", err)
		return nil, err
	}

	result, err := s.warehouse.Query(ctx, sqlText, MaxSandboxRows)
	if err != nil {
		return nil, err
	}

	if _, auditErr := s.audit.Record(ctx, &domain.AgentAction{
		Actor:      actor,
		ActionType: domain.ActionQuery,
		Summary:    "diagnostic query executed",
		Details:    fmt.Sprintf(`{"sql":%q,"rows":%d}`, truncateForAudit(sqlText), result.RowCount),
		Confidence: 1,
	}); auditErr != nil {
		return nil, auditErr
	}
	return result, nil
}

func truncateForAudit(sqlText string) string {
	const max = 500
	if len(sqlText) <= max {
		return sqlText
	}
	return sqlText[:max] + "…"
}
