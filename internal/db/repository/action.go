package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.ActionRepository = (*ActionRepo)(nil)

// ActionRepo is the append-only ledger of agent actions.
type ActionRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewActionRepo creates a new ActionRepo.
func NewActionRepo(writeDB, readDB *sql.DB) *ActionRepo {
	return &ActionRepo{write: writeDB, read: readDB}
}

// Insert appends an action to the ledger. Unlike most writes this is called
// from hot paths, so the caller decides whether a failure is fatal.
func (r *ActionRepo) Insert(ctx context.Context, a *domain.AgentAction) (*domain.AgentAction, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	id := domain.NewID()
	status := a.Status
	if status == "" {
		status = "completed"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.write.ExecContext(ctx, `
		INSERT INTO agent_actions (id, actor, action_type, pipeline_id, summary, details, confidence, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.Actor, a.ActionType, nullString(a.PipelineID), a.Summary, a.Details,
		a.Confidence, status, createdAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}

	out := *a
	out.ID = id
	out.Status = status
	out.CreatedAt = createdAt
	return &out, nil
}

// Recent returns actions newest first, optionally filtered by actor, action
// type, and a lower time bound. Pipeline names are resolved at read time so
// the ledger survives pipeline deactivation.
func (r *ActionRepo) Recent(ctx context.Context, filter domain.ActionFilter) ([]domain.AgentAction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	var where []string
	var args []interface{}
	if filter.Actor != "" {
		where = append(where, "a.actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.ActionType != "" {
		where = append(where, "a.action_type = ?")
		args = append(args, filter.ActionType)
	}
	if filter.Since != nil {
		where = append(where, "a.created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `
		SELECT a.id, a.actor, a.action_type, a.pipeline_id, p.name, a.summary, a.details, a.confidence, a.status, a.created_at
		FROM agent_actions a
		LEFT JOIN pipelines p ON p.id = a.pipeline_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.AgentAction
	for rows.Next() {
		var a domain.AgentAction
		var pipelineID, pipelineName sql.NullString
		if err := rows.Scan(&a.ID, &a.Actor, &a.ActionType, &pipelineID, &pipelineName,
			&a.Summary, &a.Details, &a.Confidence, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.PipelineID = stringPtr(pipelineID)
		a.PipelineName = stringPtr(pipelineName)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Patterns aggregates alert and escalation actions per pipeline and action
// type, surfacing pipelines that fail the same way repeatedly.
func (r *ActionRepo) Patterns(ctx context.Context) ([]domain.FailurePattern, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT p.name, a.action_type, COUNT(*), MAX(a.created_at)
		FROM agent_actions a
		JOIN pipelines p ON p.id = a.pipeline_id
		WHERE a.action_type IN (?, ?, ?)
		GROUP BY p.name, a.action_type
		HAVING COUNT(*) >= 2
		ORDER BY COUNT(*) DESC, p.name`,
		domain.ActionAlert, domain.ActionEscalation, domain.ActionRollback)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.FailurePattern
	for rows.Next() {
		var fp domain.FailurePattern
		var lastSeen string
		if err := rows.Scan(&fp.PipelineName, &fp.ActionType, &fp.Occurrences, &lastSeen); err != nil {
			return nil, err
		}
		// MAX() strips the column's TIMESTAMP affinity, so the driver hands
		// back the raw string; parse it ourselves.
		fp.LastSeen, err = parseTimestamp(lastSeen)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// Clear truncates the ledger and returns the number of rows removed.
func (r *ActionRepo) Clear(ctx context.Context) (int64, error) {
	res, err := r.write.ExecContext(ctx, `DELETE FROM agent_actions`)
	if err != nil {
		return 0, mapDBError(err)
	}
	return res.RowsAffected()
}
