package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"pipemedic/internal/domain"
)

// IncidentService drives the detect → diagnose → propose → approve → apply →
// verify → rollback workflow. The entry points are serialized under one
// mutex so the scheduler and API-triggered paths never interleave partial
// transitions.
type IncidentService struct {
	registry *RegistryService
	runs     domain.RunRepository
	drift    *DriftService
	quality  *QualityService
	fix      *FixService
	audit    *AuditService
	models   domain.ModelStore
	reasoner domain.Reasoner
	logger   *slog.Logger

	mu        sync.Mutex
	incidents map[string]*domain.Incident
}

// NewIncidentService creates a new IncidentService.
func NewIncidentService(
	registry *RegistryService,
	runs domain.RunRepository,
	drift *DriftService,
	quality *QualityService,
	fix *FixService,
	audit *AuditService,
	models domain.ModelStore,
	reasoner domain.Reasoner,
	logger *slog.Logger,
) *IncidentService {
	return &IncidentService{
		registry:  registry,
		runs:      runs,
		drift:     drift,
		quality:   quality,
		fix:       fix,
		audit:     audit,
		models:    models,
		reasoner:  reasoner,
		logger:    logger.With("component", "incident"),
		incidents: make(map[string]*domain.Incident),
	}
}

// Get returns an incident by ID.
func (s *IncidentService) Get(id string) (*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, domain.ErrNotFound("incident %s not found", id)
	}
	copied := *inc
	return &copied, nil
}

// List returns all incidents, newest first.
func (s *IncidentService) List() []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// HandleAlert consumes one alert and advances it through the workflow as far
// as its severity allows: INFO is journaled directly, WARNING stops after a
// fix proposal, CRITICAL pauses at AwaitingApproval.
func (s *IncidentService) HandleAlert(ctx context.Context, alert *domain.Alert) (*domain.Incident, error) {
	if err := alert.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	inc := &domain.Incident{
		ID:        domain.NewID(),
		Alert:     *alert,
		State:     domain.StateAlerted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.incidents[inc.ID] = inc

	if err := s.recordTransition(ctx, inc, domain.ActorMonitor, domain.ActionAlert,
		fmt.Sprintf("%s alert: %s", alert.Severity, alert.Description)); err != nil {
		return nil, err
	}

	if alert.Severity == domain.SeverityInfo {
		s.transition(ctx, inc, domain.StateLogged)
		return inc, nil
	}

	// Diagnose.
	s.transition(ctx, inc, domain.StateDiagnosing)
	diagnosis, err := s.diagnose(ctx, alert)
	if err != nil {
		return nil, err
	}
	inc.Diagnosis = diagnosis
	inc.FailingChecks = s.failingCheckIDs(ctx, diagnosis.RootCause)
	if err := s.recordTransition(ctx, inc, domain.ActorDiagnostics, domain.ActionDiagnosis,
		fmt.Sprintf("root cause %s, %d symptom(s)", diagnosis.RootCause, len(diagnosis.Symptoms))); err != nil {
		return nil, err
	}

	// Propose.
	s.transition(ctx, inc, domain.StateProposing)
	proposal := s.propose(ctx, inc)
	if proposal == nil {
		s.transition(ctx, inc, domain.StateLogged)
		return inc, nil
	}
	inc.Proposal = proposal
	if err := s.recordTransition(ctx, inc, domain.ActorRepair, domain.ActionFixProposed,
		fmt.Sprintf("fix proposed for %s: %s", proposal.Target, proposal.Summary)); err != nil {
		return nil, err
	}

	if alert.Severity == domain.SeverityWarning {
		s.transition(ctx, inc, domain.StateLogged)
		return inc, nil
	}

	// CRITICAL always pauses for explicit approval.
	s.transition(ctx, inc, domain.StateAwaitingApproval)
	return inc, nil
}

// Approve applies the proposed fix of a CRITICAL incident, validates the
// build, verifies health and quality, and commits or rolls back. Failed
// verification re-enters diagnosis.
func (s *IncidentService) Approve(ctx context.Context, incidentID string) (*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[incidentID]
	if !ok {
		return nil, domain.ErrNotFound("incident %s not found", incidentID)
	}
	if inc.State != domain.StateAwaitingApproval {
		return nil, domain.ErrInvalidTransition("incident %s is %s, not awaiting approval", incidentID, inc.State)
	}
	if inc.Proposal == nil {
		return nil, domain.ErrInvalidTransition("incident %s has no fix proposal", incidentID)
	}

	if err := s.recordTransition(ctx, inc, domain.ActorOperator, domain.ActionStateChange,
		fmt.Sprintf("fix approved for %s", inc.Proposal.Target)); err != nil {
		return nil, err
	}

	s.transition(ctx, inc, domain.StateApplying)
	target := inc.Proposal.Target
	if err := s.fix.Apply(ctx, target, inc.Proposal.NewContent); err != nil {
		// Keep the approval open so the operator can retry once the
		// target is free again.
		s.transition(ctx, inc, domain.StateAwaitingApproval)
		return nil, err
	}

	build, err := s.fix.Validate(ctx, target)
	if err != nil || !build.Success {
		return s.rollbackAndRediagnose(ctx, inc, buildFailureReason(build, err))
	}

	s.transition(ctx, inc, domain.StateVerifying)
	report, err := s.Verify(ctx, inc.Diagnosis.RootCause, inc.FailingChecks)
	if err != nil {
		return s.rollbackAndRediagnose(ctx, inc, err.Error())
	}
	inc.Report = report

	if !report.Verified {
		return s.rollbackAndRediagnose(ctx, inc,
			fmt.Sprintf("health %s, failing checks: %s", report.Health, strings.Join(report.ChecksFailed, ", ")))
	}

	if err := s.fix.Commit(ctx, target); err != nil {
		return nil, err
	}
	s.transition(ctx, inc, domain.StateResolved)
	return inc, nil
}

// Verify re-runs the health classifier and quality evaluator for the
// pipeline and its direct downstream dependents. Verified requires health
// other than FAILED and every previously-failing check passing.
func (s *IncidentService) Verify(ctx context.Context, pipelineName string, previouslyFailing []string) (*domain.VerificationReport, error) {
	status, err := s.registry.Status(ctx, pipelineName)
	if err != nil {
		return nil, err
	}

	report := &domain.VerificationReport{
		PipelineName: pipelineName,
		Health:       status.Health,
		Downstream:   make(map[string]domain.HealthStatus),
	}

	results, err := s.quality.EvaluatePipeline(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	pass := make(map[string]bool)
	for _, r := range results {
		pass[r.Check.ID] = r.Result != nil && r.Result.Status == domain.QualityPass
		if pass[r.Check.ID] {
			report.ChecksPassed = append(report.ChecksPassed, r.Check.Name)
		} else {
			report.ChecksFailed = append(report.ChecksFailed, r.Check.Name)
		}
	}

	downstream, err := s.registry.Downstream(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	for i := range downstream {
		d := downstream[i]
		latest, err := s.runs.Latest(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		report.Downstream[d.Name] = domain.ClassifyHealth(&d, latest, time.Now().UTC())
		if _, err := s.quality.EvaluatePipeline(ctx, d.Name); err != nil {
			return nil, err
		}
	}

	verified := report.Health != domain.HealthFailed
	for _, id := range previouslyFailing {
		if !pass[id] {
			verified = false
			break
		}
	}
	report.Verified = verified
	return report, nil
}

// RunDetection classifies every active pipeline, checks monitored tables for
// drift and pipelines for failing quality checks, and returns the raised
// alerts. Each alert is also fed through HandleAlert by the caller.
func (s *IncidentService) RunDetection(ctx context.Context) ([]domain.Alert, error) {
	statuses, err := s.registry.Statuses(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []domain.Alert
	for _, st := range statuses {
		switch st.Health {
		case domain.HealthFailed:
			desc := fmt.Sprintf("pipeline %s failed", st.Pipeline.Name)
			if st.Latest != nil && st.Latest.ErrorMessage != nil {
				desc = fmt.Sprintf("pipeline %s failed: %s", st.Pipeline.Name, *st.Latest.ErrorMessage)
			}
			alerts = append(alerts, domain.Alert{
				PipelineName: st.Pipeline.Name,
				AlertType:    domain.AlertPipelineFailure,
				Severity:     domain.SeverityCritical,
				Description:  desc,
			})
		case domain.HealthSLABreach:
			alerts = append(alerts, domain.Alert{
				PipelineName: st.Pipeline.Name,
				AlertType:    domain.AlertSLABreach,
				Severity:     domain.SeverityWarning,
				Description:  fmt.Sprintf("pipeline %s breached its %d-minute SLA", st.Pipeline.Name, st.Pipeline.SLAMinutes),
			})
		}

		failing := s.failingCheckIDs(ctx, st.Pipeline.Name)
		if len(failing) > 0 {
			alerts = append(alerts, domain.Alert{
				PipelineName: st.Pipeline.Name,
				AlertType:    domain.AlertDataQuality,
				Severity:     domain.SeverityWarning,
				Description:  fmt.Sprintf("%d quality check(s) failing for %s", len(failing), st.Pipeline.Name),
			})
		}
	}

	tables, err := s.drift.MonitoredTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		d, err := s.drift.Drift(ctx, table)
		if err != nil {
			s.logger.Warn("drift check failed", "table", table, "error", err)
			continue
		}
		if d.DriftDetected {
			alerts = append(alerts, domain.Alert{
				TableName:   table,
				AlertType:   domain.AlertSchemaDrift,
				Severity:    domain.SeverityWarning,
				Description: fmt.Sprintf("schema drift on %s: added %v, removed %v", table, d.ColumnsAdded, d.ColumnsRemoved),
			})
		}
	}

	if _, err := s.audit.Record(ctx, &domain.AgentAction{
		Actor:      domain.ActorMonitor,
		ActionType: domain.ActionHealthCheck,
		Summary:    fmt.Sprintf("detection scan: %d pipeline(s), %d alert(s)", len(statuses), len(alerts)),
		Details:    fmt.Sprintf(`{"pipelines":%d,"alerts":%d}`, len(statuses), len(alerts)),
		Confidence: 1,
	}); err != nil {
		return nil, err
	}
	return alerts, nil
}

// diagnose reads the dependency graph to separate root cause from cascading
// symptoms: if an upstream pipeline's latest run failed earlier, the target's
// failure is a symptom of it. The earliest-failing upstream wins.
func (s *IncidentService) diagnose(ctx context.Context, alert *domain.Alert) (*domain.Diagnosis, error) {
	d := &domain.Diagnosis{
		RootCause:  alert.PipelineName,
		Confidence: 0.6,
	}
	if alert.PipelineName == "" {
		// Table-level alert (schema drift), no graph to walk.
		d.RootCause = alert.TableName
		d.Evidence = append(d.Evidence, alert.Description)
		d.RecommendedFix = "re-snapshot the table after confirming the layout change is intentional"
		return s.narrate(ctx, d, alert), nil
	}

	target, err := s.registry.Status(ctx, alert.PipelineName)
	if err != nil {
		return nil, err
	}
	if target.Latest != nil && target.Latest.ErrorMessage != nil {
		d.Evidence = append(d.Evidence, fmt.Sprintf("%s error: %s", alert.PipelineName, *target.Latest.ErrorMessage))
	}

	// Walk upstream for an earlier failure.
	upstream, err := s.registry.Upstream(ctx, alert.PipelineName)
	if err != nil {
		return nil, err
	}
	rootName := alert.PipelineName
	rootFailedAt := failedAt(target.Latest)
	for i := range upstream {
		u := upstream[i]
		latest, err := s.runs.Latest(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil || latest.Status != domain.RunStatusFailed {
			continue
		}
		if rootFailedAt == nil || latest.StartedAt.Before(*rootFailedAt) {
			rootName = u.Name
			t := latest.StartedAt
			rootFailedAt = &t
			if latest.ErrorMessage != nil {
				d.Evidence = append(d.Evidence, fmt.Sprintf("upstream %s failed first: %s", u.Name, *latest.ErrorMessage))
			} else {
				d.Evidence = append(d.Evidence, fmt.Sprintf("upstream %s failed first", u.Name))
			}
		}
	}
	d.RootCause = rootName
	if rootName != alert.PipelineName {
		d.Symptoms = append(d.Symptoms, alert.PipelineName)
		d.Confidence = 0.85
	}

	// Later downstream failures are cascading symptoms of the root cause.
	downstream, err := s.registry.Downstream(ctx, rootName)
	if err != nil {
		return nil, err
	}
	for i := range downstream {
		dn := downstream[i]
		if dn.Name == alert.PipelineName {
			continue
		}
		latest, err := s.runs.Latest(ctx, dn.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.Status == domain.RunStatusFailed &&
			(rootFailedAt == nil || !latest.StartedAt.Before(*rootFailedAt)) {
			d.Symptoms = append(d.Symptoms, dn.Name)
			d.Evidence = append(d.Evidence, fmt.Sprintf("downstream %s failed after %s", dn.Name, rootName))
			d.Confidence = 0.85
		}
	}

	// Drift evidence for the root cause's own table, when monitored.
	if drift, err := s.drift.Drift(ctx, rootName); err == nil && drift.DriftDetected {
		d.Evidence = append(d.Evidence, fmt.Sprintf("schema drift on %s: added %v, removed %v",
			rootName, drift.ColumnsAdded, drift.ColumnsRemoved))
		d.Confidence = 0.9
	}

	d.RecommendedFix = fmt.Sprintf("repair the %s transformation and re-run it before its dependents", rootName)
	return s.narrate(ctx, d, alert), nil
}

// narrate asks the collaborator for a free-form explanation. Best effort:
// the deterministic diagnosis stands on its own.
func (s *IncidentService) narrate(ctx context.Context, d *domain.Diagnosis, alert *domain.Alert) *domain.Diagnosis {
	if s.reasoner == nil {
		return d
	}
	narrative, err := s.reasoner.Narrate(ctx, d, alert)
	if err != nil {
		s.logger.Warn("narration unavailable", "error", err)
		return d
	}
	d.Narrative = narrative
	return d
}

// propose asks the collaborator for a concrete fix. A failed proposal is
// journaled as an escalation and the incident degrades to Logged.
func (s *IncidentService) propose(ctx context.Context, inc *domain.Incident) *domain.FixProposal {
	if s.reasoner == nil {
		return nil
	}
	source, err := s.models.Read(inc.Diagnosis.RootCause)
	if err != nil {
		s.logger.Warn("no transformation source for root cause",
			"target", inc.Diagnosis.RootCause, "error", err)
	}
	proposal, err := s.reasoner.ProposeFix(ctx, inc.Diagnosis, inc.Diagnosis.RootCause, source)
	if err != nil {
		s.logger.Warn("fix proposal unavailable", "error", err)
		if _, auditErr := s.audit.Record(ctx, &domain.AgentAction{
			Actor:      domain.ActorRepair,
			ActionType: domain.ActionEscalation,
			Summary:    fmt.Sprintf("no fix proposal for %s, operator attention required", inc.Diagnosis.RootCause),
			Details:    fmt.Sprintf(`{"error":%q}`, err.Error()),
			Confidence: 1,
		}); auditErr != nil {
			s.logger.Error("audit write failed", "error", auditErr)
		}
		return nil
	}
	return proposal
}

func (s *IncidentService) rollbackAndRediagnose(ctx context.Context, inc *domain.Incident, reason string) (*domain.Incident, error) {
	target := inc.Proposal.Target
	if err := s.fix.Rollback(ctx, target); err != nil {
		return nil, err
	}
	s.transition(ctx, inc, domain.StateRolledBack)
	if err := s.recordTransition(ctx, inc, domain.ActorVerification, domain.ActionFixRejected,
		fmt.Sprintf("fix on %s rolled back: %s", target, reason)); err != nil {
		return nil, err
	}

	// Re-enter diagnosis with the post-rollback state of the world.
	s.transition(ctx, inc, domain.StateDiagnosing)
	diagnosis, err := s.diagnose(ctx, &inc.Alert)
	if err != nil {
		return nil, err
	}
	inc.Diagnosis = diagnosis
	return inc, nil
}

// failingCheckIDs returns the IDs of currently-failing checks for a
// pipeline. A pipeline without checks (or an unknown name, for table-level
// targets) simply has none.
func (s *IncidentService) failingCheckIDs(ctx context.Context, pipelineName string) []string {
	results, err := s.quality.CurrentResults(ctx, pipelineName)
	if err != nil {
		return nil
	}
	var out []string
	for _, r := range results {
		if r.Result != nil && r.Result.Status == domain.QualityFail {
			out = append(out, r.Check.ID)
		}
	}
	return out
}

// transition moves the incident to the next state and journals it. Audit
// failures on pure state bookkeeping are logged, not fatal.
func (s *IncidentService) transition(ctx context.Context, inc *domain.Incident, next domain.IncidentState) {
	prev := inc.State
	inc.State = next
	inc.UpdatedAt = time.Now().UTC()
	if err := s.recordTransition(ctx, inc, domain.ActorScheduler, domain.ActionStateChange,
		fmt.Sprintf("incident %s → %s", prev, next)); err != nil {
		s.logger.Error("audit write failed", "incident", inc.ID, "error", err)
	}
}

func (s *IncidentService) recordTransition(ctx context.Context, inc *domain.Incident, actor, actionType, summary string) error {
	action := &domain.AgentAction{
		Actor:      actor,
		ActionType: actionType,
		Summary:    summary,
		Details:    fmt.Sprintf(`{"incident_id":%q,"state":%q}`, inc.ID, inc.State),
		Confidence: 1,
	}
	if inc.Alert.PipelineName != "" {
		if p, err := s.registry.pipelines.GetByName(ctx, inc.Alert.PipelineName); err == nil {
			action.PipelineID = &p.ID
		}
	}
	_, err := s.audit.Record(ctx, action)
	return err
}

func failedAt(run *domain.PipelineRun) *time.Time {
	if run == nil || run.Status != domain.RunStatusFailed {
		return nil
	}
	t := run.StartedAt
	return &t
}

func buildFailureReason(build *domain.BuildResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if build != nil {
		return fmt.Sprintf("build failed: %s", build.Output)
	}
	return "build failed"
}
