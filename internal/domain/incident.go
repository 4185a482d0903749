package domain

import "time"

// Alert severities.
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
	SeverityInfo     = "INFO"
)

// Alert types raised by detection.
const (
	AlertPipelineFailure = "pipeline_failure"
	AlertSLABreach       = "sla_breach"
	AlertSchemaDrift     = "schema_drift"
	AlertDataQuality     = "data_quality"
)

// Incident states. The canonical workflow is
// Idle → Alerted → Diagnosing → Proposing → AwaitingApproval → Applying →
// Verifying → Resolved, with Logged terminating non-critical incidents and
// RolledBack recording a failed verification before re-diagnosis.
type IncidentState string

const (
	StateIdle             IncidentState = "Idle"
	StateAlerted          IncidentState = "Alerted"
	StateDiagnosing       IncidentState = "Diagnosing"
	StateProposing        IncidentState = "Proposing"
	StateAwaitingApproval IncidentState = "AwaitingApproval"
	StateApplying         IncidentState = "Applying"
	StateVerifying        IncidentState = "Verifying"
	StateResolved         IncidentState = "Resolved"
	StateRolledBack       IncidentState = "RolledBack"
	StateLogged           IncidentState = "Logged"
)

// Alert describes a detected issue feeding the incident workflow.
type Alert struct {
	PipelineName string // empty for table-level alerts (schema drift)
	TableName    string // set for schema drift alerts
	AlertType    string
	Severity     string
	Description  string
}

// Validate checks that the alert is well-formed.
func (a *Alert) Validate() error {
	switch a.Severity {
	case SeverityCritical, SeverityWarning, SeverityInfo:
	default:
		return ErrValidation("severity must be CRITICAL, WARNING, or INFO")
	}
	if a.AlertType == "" {
		return ErrValidation("alert_type is required")
	}
	return nil
}

// Diagnosis is the deterministic root-cause analysis of an alert.
// In a dependency chain the earliest-failing upstream pipeline is the root
// cause; later failures in dependents are symptoms.
type Diagnosis struct {
	RootCause      string   // pipeline name identified as the root cause
	Symptoms       []string // downstream pipelines failing as a consequence
	Evidence       []string
	Confidence     float64
	Narrative      string // collaborator-authored explanation, optional
	RecommendedFix string
}

// FixProposal is a concrete change to a transformation definition.
type FixProposal struct {
	Target     string // transformation definition name
	NewContent string
	Summary    string
	Risk       string // LOW, MEDIUM, HIGH
	Confidence float64
}

// VerificationReport is the outcome of deterministic post-fix checks.
type VerificationReport struct {
	PipelineName string
	Health       HealthStatus
	ChecksPassed []string
	ChecksFailed []string
	Downstream   map[string]HealthStatus
	Verified     bool
}

// Incident tracks one alert through the workflow state machine.
type Incident struct {
	ID        string
	Alert     Alert
	State     IncidentState
	Diagnosis *Diagnosis
	Proposal  *FixProposal
	Report    *VerificationReport
	// FailingChecks captures the check IDs failing when the incident was
	// raised; Resolved requires each of them to pass at verification.
	FailingChecks []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
