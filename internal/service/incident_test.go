package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipemedic/internal/domain"
)

func failedRun(t *testing.T, h *harness, pipelineID string, startedAt time.Time, errText string) {
	t.Helper()
	completed := startedAt.Add(time.Minute)
	_, err := h.runs.InsertRun(context.Background(), &domain.PipelineRun{
		PipelineID:   pipelineID,
		Status:       domain.RunStatusFailed,
		StartedAt:    startedAt,
		CompletedAt:  &completed,
		ErrorMessage: &errText,
	})
	require.NoError(t, err)
}

func successRun(t *testing.T, h *harness, pipelineID string, startedAt time.Time) {
	t.Helper()
	completed := startedAt.Add(time.Minute)
	duration := int64(60)
	_, err := h.runs.InsertRun(context.Background(), &domain.PipelineRun{
		PipelineID:      pipelineID,
		Status:          domain.RunStatusSuccess,
		StartedAt:       startedAt,
		CompletedAt:     &completed,
		DurationSeconds: &duration,
	})
	require.NoError(t, err)
}

func TestIncident_InfoAlertLoggedDirectly(t *testing.T) {
	h := newHarness(t)
	h.registerPipeline(t, "stg_orders", 30)

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertDataQuality,
		Severity:     domain.SeverityInfo,
		Description:  "minor anomaly",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateLogged, inc.State)
	assert.Nil(t, inc.Diagnosis)
	assert.Nil(t, inc.Proposal)
}

func TestIncident_WarningStopsAtLogged(t *testing.T) {
	h := newHarness(t)
	p := h.registerPipeline(t, "stg_orders", 30)
	failedRun(t, h, p.ID, time.Now().UTC().Add(-time.Hour), "timeout reading raw.orders")

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertSLABreach,
		Severity:     domain.SeverityWarning,
		Description:  "stg_orders breached its SLA",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateLogged, inc.State)
	require.NotNil(t, inc.Diagnosis)
	require.NotNil(t, inc.Proposal)

	// Proposal recorded but never applied.
	src, err := h.models.Read("stg_orders")
	require.NoError(t, err)
	assert.Equal(t, "select order_id, amount from raw.orders", src)
	assert.False(t, h.models.HasBackup("stg_orders"))
}

func TestIncident_CriticalRootCauseAndSymptom(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	mart := h.registerPipeline(t, "mart_revenue_daily", 60)
	require.NoError(t, h.registry.AddDependency(context.Background(), "mart_revenue_daily", "stg_orders"))

	// stg_orders fails first with a missing-column error; its dependent
	// fails later on the same cycle.
	base := time.Now().UTC().Add(-time.Hour)
	failedRun(t, h, stg.ID, base, "Binder Error: column discount_amount does not exist")
	failedRun(t, h, mart.ID, base.Add(10*time.Minute), "upstream model stg_orders is stale")

	// The live table gained a column the snapshot has not seen.
	h.warehouse.setColumns("stg_orders", "order_id", "amount")
	_, err := h.drift.Snapshot(context.Background(), "stg_orders")
	require.NoError(t, err)
	h.warehouse.setColumns("stg_orders", "order_id", "amount", "discount_amount")

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline stg_orders failed",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateAwaitingApproval, inc.State)
	require.NotNil(t, inc.Diagnosis)
	assert.Equal(t, "stg_orders", inc.Diagnosis.RootCause)
	assert.Contains(t, inc.Diagnosis.Symptoms, "mart_revenue_daily")
	assert.NotEmpty(t, inc.Diagnosis.Evidence)
	require.NotNil(t, inc.Proposal)
	assert.Equal(t, "stg_orders", inc.Proposal.Target)
	assert.Equal(t, "the projection references a column missing upstream", inc.Diagnosis.Narrative)
}

func TestIncident_SymptomAlertTracesToUpstreamRootCause(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	mart := h.registerPipeline(t, "mart_revenue_daily", 60)
	require.NoError(t, h.registry.AddDependency(context.Background(), "mart_revenue_daily", "stg_orders"))

	base := time.Now().UTC().Add(-time.Hour)
	failedRun(t, h, stg.ID, base, "Binder Error: column discount_amount does not exist")
	failedRun(t, h, mart.ID, base.Add(10*time.Minute), "upstream model stg_orders is stale")

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "mart_revenue_daily",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline mart_revenue_daily failed",
	})
	require.NoError(t, err)

	require.NotNil(t, inc.Diagnosis)
	assert.Equal(t, "stg_orders", inc.Diagnosis.RootCause)
	assert.Contains(t, inc.Diagnosis.Symptoms, "mart_revenue_daily")
}

func TestIncident_ApproveResolvesWhenVerificationPasses(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)

	base := time.Now().UTC().Add(-time.Hour)
	failedRun(t, h, stg.ID, base, "Binder Error: column discount_amount does not exist")

	// A failing quality check captured with the incident.
	h.warehouse.measures["stg_orders_customer_id_nulls"] = 12
	column := "customer_id"
	check, err := h.quality.CreateCheck(context.Background(), "stg_orders", &domain.QualityCheck{
		Name: "stg_orders_customer_id_nulls", CheckType: domain.CheckTypeNullPercent,
		TargetTable: "stg_orders", TargetColumn: &column,
		ThresholdType: domain.ThresholdMaxPercent, ThresholdValue: 5,
	})
	require.NoError(t, err)
	_, err = h.quality.EvaluateCheck(context.Background(), check, nil)
	require.NoError(t, err)

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline stg_orders failed",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingApproval, inc.State)
	require.Len(t, inc.FailingChecks, 1)

	// The world heals before approval: a fresh successful run and the
	// check measurement back under threshold.
	successRun(t, h, stg.ID, time.Now().UTC().Add(-time.Minute))
	h.warehouse.measures["stg_orders_customer_id_nulls"] = 1

	resolved, err := h.incident.Approve(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, resolved.State)
	require.NotNil(t, resolved.Report)
	assert.True(t, resolved.Report.Verified)
	assert.Contains(t, resolved.Report.ChecksPassed, "stg_orders_customer_id_nulls")

	// The fix is committed: new content in place, no backup left.
	src, err := h.models.Read("stg_orders")
	require.NoError(t, err)
	assert.Contains(t, src, "discount_amount")
	assert.False(t, h.models.HasBackup("stg_orders"))
	assert.Equal(t, 1, h.builder.calls)
}

func TestIncident_ApproveRollsBackOnFailedVerification(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	failedRun(t, h, stg.ID, time.Now().UTC().Add(-time.Hour), "Binder Error: column discount_amount does not exist")

	original, err := h.models.Read("stg_orders")
	require.NoError(t, err)

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline stg_orders failed",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingApproval, inc.State)

	// The pipeline is still failing at verification time, so the fix is
	// rolled back and diagnosis re-entered.
	after, err := h.incident.Approve(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDiagnosing, after.State)

	restored, err := h.models.Read("stg_orders")
	require.NoError(t, err)
	assert.Equal(t, original, restored)
	assert.False(t, h.models.HasBackup("stg_orders"))
}

func TestIncident_ApproveRollsBackOnFailedBuild(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	failedRun(t, h, stg.ID, time.Now().UTC().Add(-time.Hour), "Binder Error: column discount_amount does not exist")
	h.builder.success = false
	h.builder.output = "compilation failed: syntax error"

	original, err := h.models.Read("stg_orders")
	require.NoError(t, err)

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline stg_orders failed",
	})
	require.NoError(t, err)

	after, err := h.incident.Approve(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDiagnosing, after.State)

	restored, err := h.models.Read("stg_orders")
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestIncident_ApproveRetriesAfterApplyConflict(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	failedRun(t, h, stg.ID, time.Now().UTC().Add(-time.Hour), "Binder Error: column discount_amount does not exist")

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline stg_orders failed",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingApproval, inc.State)

	// Another fix is already applied to the same target; the approval must
	// fail fast but stay open.
	require.NoError(t, h.models.Backup("stg_orders"))

	var inProgress *domain.FixInProgressError
	_, err = h.incident.Approve(context.Background(), inc.ID)
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, domain.StateAwaitingApproval, inc.State)

	// The conflict clears and the world heals; the same approval now runs
	// to resolution.
	require.NoError(t, h.models.Restore("stg_orders"))
	successRun(t, h, stg.ID, time.Now().UTC().Add(-time.Minute))

	resolved, err := h.incident.Approve(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, resolved.State)
}

func TestIncident_ApproveRequiresAwaitingApproval(t *testing.T) {
	h := newHarness(t)
	h.registerPipeline(t, "stg_orders", 30)

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertDataQuality,
		Severity:     domain.SeverityInfo,
		Description:  "minor anomaly",
	})
	require.NoError(t, err)

	var transition *domain.InvalidTransitionError
	_, err = h.incident.Approve(context.Background(), inc.ID)
	assert.ErrorAs(t, err, &transition)

	var notFound *domain.NotFoundError
	_, err = h.incident.Approve(context.Background(), "ghost")
	assert.ErrorAs(t, err, &notFound)
}

func TestIncident_ProposalFailureDegradesToLogged(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	failedRun(t, h, stg.ID, time.Now().UTC().Add(-time.Hour), "disk full")
	h.reasoner.proposeErr = context.DeadlineExceeded

	inc, err := h.incident.HandleAlert(context.Background(), &domain.Alert{
		PipelineName: "stg_orders",
		AlertType:    domain.AlertPipelineFailure,
		Severity:     domain.SeverityCritical,
		Description:  "pipeline stg_orders failed",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateLogged, inc.State)
	assert.Nil(t, inc.Proposal)

	// The escalation is journaled.
	actions, err := h.audit.Recent(context.Background(), domain.ActionFilter{
		ActionType: domain.ActionEscalation, Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestIncident_DetectionRaisesAlerts(t *testing.T) {
	h := newHarness(t)
	stg := h.registerPipeline(t, "stg_orders", 30)
	h.registerPipeline(t, "dim_customers", 30)
	failedRun(t, h, stg.ID, time.Now().UTC().Add(-time.Hour), "Binder Error")

	// Drift on a monitored table.
	h.warehouse.setColumns("stg_orders", "order_id", "amount")
	_, err := h.drift.Snapshot(context.Background(), "stg_orders")
	require.NoError(t, err)
	h.warehouse.setColumns("stg_orders", "order_id", "amount", "discount_amount")

	alerts, err := h.incident.RunDetection(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	types := map[string]string{}
	for _, a := range alerts {
		types[a.AlertType] = a.Severity
	}
	assert.Equal(t, domain.SeverityCritical, types[domain.AlertPipelineFailure])
	assert.Equal(t, domain.SeverityWarning, types[domain.AlertSchemaDrift])
}
