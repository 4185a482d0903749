package repository

import (
	"context"
	"database/sql"
	"time"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.PipelineRepository = (*PipelineRepo)(nil)

// PipelineRepo stores pipelines and the dependency graph in SQLite.
// Reads go through the read pool; inserts, updates, and the cycle-checked
// edge transaction go through the serialized write pool.
type PipelineRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewPipelineRepo creates a new PipelineRepo.
func NewPipelineRepo(writeDB, readDB *sql.DB) *PipelineRepo {
	return &PipelineRepo{write: writeDB, read: readDB}
}

const pipelineColumns = "id, name, description, schedule, sla_minutes, owner, is_active, created_at"

func scanPipeline(row interface{ Scan(...interface{}) error }) (*domain.Pipeline, error) {
	var p domain.Pipeline
	var active int64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Schedule, &p.SLAMinutes, &p.Owner, &active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.IsActive = active != 0
	return &p, nil
}

// Register inserts a new pipeline.
func (r *PipelineRepo) Register(ctx context.Context, p *domain.Pipeline) (*domain.Pipeline, error) {
	id := domain.NewID()
	now := time.Now().UTC()
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO pipelines (`+pipelineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Name, p.Description, p.Schedule, p.SLAMinutes, p.Owner, boolToInt(true), now,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, id)
}

// Deactivate clears the active flag. Pipelines are never deleted.
func (r *PipelineRepo) Deactivate(ctx context.Context, name string) error {
	res, err := r.write.ExecContext(ctx, `UPDATE pipelines SET is_active = 0 WHERE name = ?`, name)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("pipeline %q not found", name)
	}
	return nil
}

// GetByName returns a pipeline by its unique name.
func (r *PipelineRepo) GetByName(ctx context.Context, name string) (*domain.Pipeline, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE name = ?`, name)
	p, err := scanPipeline(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("pipeline %q not found", name)
		}
		return nil, mapDBError(err)
	}
	return p, nil
}

// GetByID returns a pipeline by ID.
func (r *PipelineRepo) GetByID(ctx context.Context, id string) (*domain.Pipeline, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`, id)
	p, err := scanPipeline(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("pipeline %s not found", id)
		}
		return nil, mapDBError(err)
	}
	return p, nil
}

// ListActive returns active pipelines ordered by name for deterministic listing.
func (r *PipelineRepo) ListActive(ctx context.Context) ([]domain.Pipeline, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AddDependency inserts the edge (pipeline → dependsOn) after proving that
// dependsOn cannot already reach pipeline through existing edges. The
// reachability check and the insert share one write transaction, so a failed
// check leaves the graph unchanged.
func (r *PipelineRepo) AddDependency(ctx context.Context, pipeline, dependsOn string) error {
	from, err := r.GetByName(ctx, pipeline)
	if err != nil {
		return err
	}
	to, err := r.GetByName(ctx, dependsOn)
	if err != nil {
		return err
	}
	if from.ID == to.ID {
		return domain.ErrCycle("pipeline %q cannot depend on itself", pipeline)
	}

	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return mapDBError(err)
	}
	defer tx.Rollback()

	edges, err := loadEdges(ctx, tx)
	if err != nil {
		return err
	}
	if reachable(edges, to.ID, from.ID) {
		return domain.ErrCycle("dependency %s -> %s would create a cycle", pipeline, dependsOn)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dependencies (pipeline_id, depends_on_id) VALUES (?, ?)`,
		from.ID, to.ID,
	); err != nil {
		return mapDBError(err)
	}
	return tx.Commit()
}

func loadEdges(ctx context.Context, tx *sql.Tx) (map[string][]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT pipeline_id, depends_on_id FROM dependencies`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		edges[from] = append(edges[from], to)
	}
	return edges, rows.Err()
}

// reachable walks depends-on edges breadth-first from start looking for target.
func reachable(edges map[string][]string, start, target string) bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == target {
			return true
		}
		for _, next := range edges[node] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Upstream returns the pipelines that name directly depends on, ordered by name.
func (r *PipelineRepo) Upstream(ctx context.Context, name string) ([]domain.Pipeline, error) {
	return r.neighbors(ctx, name, `
		SELECT p2.id, p2.name, p2.description, p2.schedule, p2.sla_minutes, p2.owner, p2.is_active, p2.created_at
		FROM dependencies d
		JOIN pipelines p ON p.id = d.pipeline_id
		JOIN pipelines p2 ON p2.id = d.depends_on_id
		WHERE p.name = ?
		ORDER BY p2.name`)
}

// Downstream returns the pipelines that directly depend on name, ordered by name.
func (r *PipelineRepo) Downstream(ctx context.Context, name string) ([]domain.Pipeline, error) {
	return r.neighbors(ctx, name, `
		SELECT p2.id, p2.name, p2.description, p2.schedule, p2.sla_minutes, p2.owner, p2.is_active, p2.created_at
		FROM dependencies d
		JOIN pipelines p ON p.id = d.depends_on_id
		JOIN pipelines p2 ON p2.id = d.pipeline_id
		WHERE p.name = ?
		ORDER BY p2.name`)
}

func (r *PipelineRepo) neighbors(ctx context.Context, name, query string) ([]domain.Pipeline, error) {
	// Verify the pipeline exists so unknown names surface as NotFound rather
	// than an empty set.
	if _, err := r.GetByName(ctx, name); err != nil {
		return nil, err
	}

	rows, err := r.read.QueryContext(ctx, query, name)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
