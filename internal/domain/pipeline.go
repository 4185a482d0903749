package domain

import "time"

// Pipeline run status constants.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Pipeline is a registered scheduled transformation pipeline. Pipelines are
// created by configuration load and never deleted, only deactivated.
type Pipeline struct {
	ID          string
	Name        string
	Description string
	Schedule    string // cron-style schedule expression, informational
	SLAMinutes  int
	Owner       string
	IsActive    bool
	CreatedAt   time.Time
}

// SLA returns the pipeline's SLA as a duration.
func (p *Pipeline) SLA() time.Duration {
	return time.Duration(p.SLAMinutes) * time.Minute
}

// Dependency is a directed edge: PipelineID depends on DependsOnID.
// The set of dependencies must remain acyclic.
type Dependency struct {
	PipelineID  string
	DependsOnID string
}

// PipelineRun is one execution of a pipeline. Runs form an append-only
// sequence per pipeline ordered by StartedAt; the latest run is the one
// with the greatest StartedAt.
type PipelineRun struct {
	ID              string
	PipelineID      string
	Status          string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds *int64
	RowCount        *int64
	ErrorMessage    *string
}

// Completed reports whether the run has finished (success or failed).
func (r *PipelineRun) Completed() bool {
	return r.Status != RunStatusRunning
}

// RegisterPipelineRequest holds parameters for registering a pipeline.
type RegisterPipelineRequest struct {
	Name        string
	Description string
	Schedule    string
	SLAMinutes  int
	Owner       string
}

// Validate checks that the request is well-formed.
func (r *RegisterPipelineRequest) Validate() error {
	if r.Name == "" {
		return ErrValidation("name is required")
	}
	if r.Schedule == "" {
		return ErrValidation("schedule is required")
	}
	if r.SLAMinutes <= 0 {
		return ErrValidation("sla_minutes must be positive")
	}
	return nil
}

// PipelineStatus is a pipeline joined with its latest run and derived health,
// produced for status listings.
type PipelineStatus struct {
	Pipeline Pipeline
	Latest   *PipelineRun
	Health   HealthStatus
}
