package api

import (
	"time"

	"pipemedic/internal/domain"
)

// Wire shapes. Domain types carry no JSON tags; the API layer owns the
// payload contract.

type pipelineStatusDTO struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Schedule    string  `json:"schedule"`
	SLAMinutes  int     `json:"sla_minutes"`
	Owner       string  `json:"owner,omitempty"`
	Health      string  `json:"health"`
	LatestRun   *runDTO `json:"latest_run,omitempty"`
}

type runDTO struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	RowCount        *int64     `json:"row_count,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

type pipelineDetailDTO struct {
	pipelineStatusDTO

	Upstream   []string         `json:"upstream"`
	Downstream []string         `json:"downstream"`
	RecentRuns []runDTO         `json:"recent_runs"`
	Quality    []checkResultDTO `json:"quality_checks"`
}

type checkResultDTO struct {
	Name           string     `json:"name"`
	CheckType      string     `json:"check_type"`
	TargetTable    string     `json:"target_table"`
	TargetColumn   *string    `json:"target_column,omitempty"`
	ThresholdType  string     `json:"threshold_type"`
	ThresholdValue float64    `json:"threshold_value"`
	Status         string     `json:"status"`
	ActualValue    *float64   `json:"actual_value,omitempty"`
	CheckedAt      *time.Time `json:"checked_at,omitempty"`
}

type diagnosisDTO struct {
	RootCause      string   `json:"root_cause"`
	Symptoms       []string `json:"symptoms"`
	Evidence       []string `json:"evidence"`
	Confidence     float64  `json:"confidence"`
	Narrative      string   `json:"narrative,omitempty"`
	RecommendedFix string   `json:"recommended_fix,omitempty"`
}

type proposalDTO struct {
	Target     string  `json:"target"`
	NewContent string  `json:"new_content"`
	Summary    string  `json:"summary"`
	Risk       string  `json:"risk"`
	Confidence float64 `json:"confidence"`
}

type verificationDTO struct {
	PipelineName string            `json:"pipeline_name"`
	Health       string            `json:"health"`
	ChecksPassed []string          `json:"checks_passed"`
	ChecksFailed []string          `json:"checks_failed"`
	Downstream   map[string]string `json:"downstream"`
	Verified     bool              `json:"verified"`
}

type incidentDTO struct {
	ID          string           `json:"id"`
	State       string           `json:"state"`
	Pipeline    string           `json:"pipeline_name,omitempty"`
	Table       string           `json:"table_name,omitempty"`
	AlertType   string           `json:"alert_type"`
	Severity    string           `json:"severity"`
	Description string           `json:"description"`
	Diagnosis   *diagnosisDTO    `json:"diagnosis,omitempty"`
	Proposal    *proposalDTO     `json:"proposal,omitempty"`
	Report      *verificationDTO `json:"verification,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type actionDTO struct {
	ID           string    `json:"id"`
	Actor        string    `json:"actor"`
	ActionType   string    `json:"action_type"`
	PipelineName *string   `json:"pipeline_name,omitempty"`
	Summary      string    `json:"summary"`
	Details      string    `json:"details"`
	Confidence   float64   `json:"confidence"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type patternDTO struct {
	PipelineName string    `json:"pipeline_name"`
	ActionType   string    `json:"action_type"`
	Occurrences  int64     `json:"occurrences"`
	LastSeen     time.Time `json:"last_seen"`
}

func toRunDTO(r *domain.PipelineRun) *runDTO {
	if r == nil {
		return nil
	}
	return &runDTO{
		ID:              r.ID,
		Status:          r.Status,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		DurationSeconds: r.DurationSeconds,
		RowCount:        r.RowCount,
		ErrorMessage:    r.ErrorMessage,
	}
}

func toPipelineStatusDTO(s *domain.PipelineStatus) pipelineStatusDTO {
	return pipelineStatusDTO{
		Name:        s.Pipeline.Name,
		Description: s.Pipeline.Description,
		Schedule:    s.Pipeline.Schedule,
		SLAMinutes:  s.Pipeline.SLAMinutes,
		Owner:       s.Pipeline.Owner,
		Health:      string(s.Health),
		LatestRun:   toRunDTO(s.Latest),
	}
}

func toCheckResultDTO(cr *domain.CheckWithResult) checkResultDTO {
	dto := checkResultDTO{
		Name:           cr.Check.Name,
		CheckType:      cr.Check.CheckType,
		TargetTable:    cr.Check.TargetTable,
		TargetColumn:   cr.Check.TargetColumn,
		ThresholdType:  cr.Check.ThresholdType,
		ThresholdValue: cr.Check.ThresholdValue,
		Status:         "never_evaluated",
	}
	if cr.Result != nil {
		dto.Status = cr.Result.Status
		actual := cr.Result.ActualValue
		dto.ActualValue = &actual
		checked := cr.Result.CheckedAt
		dto.CheckedAt = &checked
	}
	return dto
}

func toDiagnosisDTO(d *domain.Diagnosis) *diagnosisDTO {
	if d == nil {
		return nil
	}
	return &diagnosisDTO{
		RootCause:      d.RootCause,
		Symptoms:       d.Symptoms,
		Evidence:       d.Evidence,
		Confidence:     d.Confidence,
		Narrative:      d.Narrative,
		RecommendedFix: d.RecommendedFix,
	}
}

func toProposalDTO(p *domain.FixProposal) *proposalDTO {
	if p == nil {
		return nil
	}
	return &proposalDTO{
		Target:     p.Target,
		NewContent: p.NewContent,
		Summary:    p.Summary,
		Risk:       p.Risk,
		Confidence: p.Confidence,
	}
}

func toVerificationDTO(v *domain.VerificationReport) *verificationDTO {
	if v == nil {
		return nil
	}
	downstream := make(map[string]string, len(v.Downstream))
	for name, health := range v.Downstream {
		downstream[name] = string(health)
	}
	return &verificationDTO{
		PipelineName: v.PipelineName,
		Health:       string(v.Health),
		ChecksPassed: v.ChecksPassed,
		ChecksFailed: v.ChecksFailed,
		Downstream:   downstream,
		Verified:     v.Verified,
	}
}

func toIncidentDTO(inc *domain.Incident) incidentDTO {
	return incidentDTO{
		ID:          inc.ID,
		State:       string(inc.State),
		Pipeline:    inc.Alert.PipelineName,
		Table:       inc.Alert.TableName,
		AlertType:   inc.Alert.AlertType,
		Severity:    inc.Alert.Severity,
		Description: inc.Alert.Description,
		Diagnosis:   toDiagnosisDTO(inc.Diagnosis),
		Proposal:    toProposalDTO(inc.Proposal),
		Report:      toVerificationDTO(inc.Report),
		CreatedAt:   inc.CreatedAt,
		UpdatedAt:   inc.UpdatedAt,
	}
}

func toActionDTO(a *domain.AgentAction) actionDTO {
	return actionDTO{
		ID:           a.ID,
		Actor:        a.Actor,
		ActionType:   a.ActionType,
		PipelineName: a.PipelineName,
		Summary:      a.Summary,
		Details:      a.Details,
		Confidence:   a.Confidence,
		Status:       a.Status,
		CreatedAt:    a.CreatedAt,
	}
}
