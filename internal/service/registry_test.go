package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipemedic/internal/domain"
)

func TestRegistry_StatusesFailuresFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	healthy := h.registerPipeline(t, "dim_customers", 30)
	failed := h.registerPipeline(t, "stg_orders", 30)
	breached := h.registerPipeline(t, "mart_revenue_daily", 30)

	now := time.Now().UTC()
	successRun(t, h, healthy.ID, now.Add(-time.Hour))
	failedRun(t, h, failed.ID, now.Add(-time.Hour), "boom")
	// Still running well past its 30-minute SLA.
	_, err := h.runs.StartRun(ctx, breached.ID, now.Add(-45*time.Minute))
	require.NoError(t, err)

	statuses, err := h.registry.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "stg_orders", statuses[0].Pipeline.Name)
	assert.Equal(t, domain.HealthFailed, statuses[0].Health)
	assert.Equal(t, "mart_revenue_daily", statuses[1].Pipeline.Name)
	assert.Equal(t, domain.HealthSLABreach, statuses[1].Health)
	assert.Equal(t, "dim_customers", statuses[2].Pipeline.Name)
	assert.Equal(t, domain.HealthHealthy, statuses[2].Health)
}

func TestRegistry_StatusesEqualHealthSortsByName(t *testing.T) {
	h := newHarness(t)

	h.registerPipeline(t, "zeta", 30)
	h.registerPipeline(t, "alpha", 30)

	statuses, err := h.registry.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "alpha", statuses[0].Pipeline.Name)
	assert.Equal(t, "zeta", statuses[1].Pipeline.Name)
}

func TestRegistry_RegisterValidates(t *testing.T) {
	h := newHarness(t)

	var validation *domain.ValidationError
	_, err := h.registry.Register(context.Background(), &domain.RegisterPipelineRequest{
		Name: "x", Schedule: "0 2 * * *", SLAMinutes: 0,
	})
	assert.ErrorAs(t, err, &validation)
}

func TestLedger_HistoryDefaultsLimit(t *testing.T) {
	h := newHarness(t)
	p := h.registerPipeline(t, "stg_orders", 30)

	base := time.Now().UTC().Add(-24 * time.Hour)
	for i := 0; i < 15; i++ {
		successRun(t, h, p.ID, base.Add(time.Duration(i)*time.Hour))
	}

	runs, err := h.ledger.History(context.Background(), "stg_orders", 0)
	require.NoError(t, err)
	assert.Len(t, runs, DefaultHistoryLimit)

	runs, err = h.ledger.History(context.Background(), "stg_orders", 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestDrift_SnapshotRoundTripHasNoDrift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.warehouse.setColumns("stg_orders", "order_id", "amount")
	_, err := h.drift.Snapshot(ctx, "stg_orders")
	require.NoError(t, err)

	d, err := h.drift.Drift(ctx, "stg_orders")
	require.NoError(t, err)
	assert.False(t, d.DriftDetected)
	assert.Empty(t, d.ColumnsAdded)
	assert.Empty(t, d.ColumnsRemoved)
}

func TestDrift_DetectsAddedAndRemoved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.warehouse.setColumns("stg_orders", "order_id", "amount", "status")
	_, err := h.drift.Snapshot(ctx, "stg_orders")
	require.NoError(t, err)

	h.warehouse.setColumns("stg_orders", "order_id", "amount", "discount_amount")
	d, err := h.drift.Drift(ctx, "stg_orders")
	require.NoError(t, err)
	assert.True(t, d.DriftDetected)
	assert.Equal(t, []string{"discount_amount"}, d.ColumnsAdded)
	assert.Equal(t, []string{"status"}, d.ColumnsRemoved)
}

func TestQuality_EvaluatePipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.registerPipeline(t, "stg_orders", 30)

	column := "customer_id"
	_, err := h.quality.CreateCheck(ctx, "stg_orders", &domain.QualityCheck{
		Name: "nulls", CheckType: domain.CheckTypeNullPercent,
		TargetTable: "stg_orders", TargetColumn: &column,
		ThresholdType: domain.ThresholdMaxPercent, ThresholdValue: 5,
	})
	require.NoError(t, err)
	_, err = h.quality.CreateCheck(ctx, "stg_orders", &domain.QualityCheck{
		Name: "rows", CheckType: domain.CheckTypeRowCount,
		TargetTable: "stg_orders", ThresholdType: domain.ThresholdMinCount, ThresholdValue: 100,
	})
	require.NoError(t, err)

	h.warehouse.measures["nulls"] = 7.5
	h.warehouse.measures["rows"] = 250

	results, err := h.quality.EvaluatePipeline(ctx, "stg_orders")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]*domain.QualityResult{}
	for _, r := range results {
		byName[r.Check.Name] = r.Result
	}
	assert.Equal(t, domain.QualityFail, byName["nulls"].Status)
	assert.Contains(t, byName["nulls"].Details, "exceeds")
	assert.Equal(t, domain.QualityPass, byName["rows"].Status)

	// Stored current results agree with the fresh evaluation.
	current, err := h.quality.CurrentResults(ctx, "stg_orders")
	require.NoError(t, err)
	require.Len(t, current, 2)
}
