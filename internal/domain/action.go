package domain

import "time"

// Actor names for the audit trail.
const (
	ActorMonitor      = "monitor"
	ActorDiagnostics  = "diagnostics"
	ActorRepair       = "repair"
	ActorVerification = "verification"
	ActorScheduler    = "scheduler"
	ActorOperator     = "operator"
)

// Action types recorded in the audit trail.
const (
	ActionAlert        = "alert"
	ActionHealthCheck  = "health_check"
	ActionDiagnosis    = "diagnosis"
	ActionFixProposed  = "fix_proposed"
	ActionFixApplied   = "fix_applied"
	ActionFixVerified  = "fix_verified"
	ActionFixRejected  = "fix_verification_failed"
	ActionRollback     = "rollback"
	ActionEscalation   = "escalation"
	ActionStateChange  = "state_change"
	ActionQuery        = "diagnostic_query"
)

// AgentAction is an immutable audit record of one action taken by any actor,
// automated or human-approved. Entries are never mutated or deleted in normal
// operation.
type AgentAction struct {
	ID           string
	Actor        string
	ActionType   string
	PipelineID   *string
	PipelineName *string // resolved on read, not stored
	Summary      string
	Details      string // structured JSON detail payload
	Confidence   float64
	Status       string
	CreatedAt    time.Time
}

// Validate checks that the record is well-formed before appending.
func (a *AgentAction) Validate() error {
	if a.Actor == "" {
		return ErrValidation("actor is required")
	}
	if a.ActionType == "" {
		return ErrValidation("action_type is required")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return ErrValidation("confidence must be in [0,1]")
	}
	return nil
}

// FailurePattern aggregates failure-type actions per pipeline/alert-type pair
// to surface chronic issues.
type FailurePattern struct {
	PipelineName string
	ActionType   string
	Occurrences  int64
	LastSeen     time.Time
}
