package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipemedic/internal/db"
	"pipemedic/internal/domain"
)

func setupActionRepo(t *testing.T) (*ActionRepo, *domain.Pipeline) {
	t.Helper()
	writeDB, readDB := db.OpenTestSQLite(t)
	p := mustRegister(t, NewPipelineRepo(writeDB, readDB), "stg_orders")
	return NewActionRepo(writeDB, readDB), p
}

func TestActionRepo_InsertDefaults(t *testing.T) {
	repo, p := setupActionRepo(t)

	a, err := repo.Insert(context.Background(), &domain.AgentAction{
		Actor:      domain.ActorMonitor,
		ActionType: domain.ActionAlert,
		PipelineID: &p.ID,
		Summary:    "stg_orders failed",
		Confidence: 1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "completed", a.Status)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestActionRepo_InsertRejectsInvalid(t *testing.T) {
	repo, _ := setupActionRepo(t)

	var validation *domain.ValidationError
	_, err := repo.Insert(context.Background(), &domain.AgentAction{
		ActionType: domain.ActionAlert,
	})
	assert.ErrorAs(t, err, &validation)

	_, err = repo.Insert(context.Background(), &domain.AgentAction{
		Actor:      domain.ActorMonitor,
		ActionType: domain.ActionAlert,
		Confidence: 1.5,
	})
	assert.ErrorAs(t, err, &validation)
}

func TestActionRepo_RecentFilterAndOrder(t *testing.T) {
	repo, p := setupActionRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	seed := []domain.AgentAction{
		{Actor: domain.ActorMonitor, ActionType: domain.ActionAlert, PipelineID: &p.ID, Summary: "failure detected", CreatedAt: base},
		{Actor: domain.ActorDiagnostics, ActionType: domain.ActionDiagnosis, PipelineID: &p.ID, Summary: "root cause found", CreatedAt: base.Add(time.Minute)},
		{Actor: domain.ActorOperator, ActionType: domain.ActionStateChange, Summary: "fix approved", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		_, err := repo.Insert(ctx, &seed[i])
		require.NoError(t, err)
	}

	all, err := repo.Recent(ctx, domain.ActionFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "fix approved", all[0].Summary)
	assert.Equal(t, "failure detected", all[2].Summary)
	// Pipeline name resolved on read.
	require.NotNil(t, all[2].PipelineName)
	assert.Equal(t, "stg_orders", *all[2].PipelineName)
	assert.Nil(t, all[0].PipelineName)

	byActor, err := repo.Recent(ctx, domain.ActionFilter{Actor: domain.ActorDiagnostics, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, domain.ActionDiagnosis, byActor[0].ActionType)

	since := base.Add(90 * time.Second)
	recent, err := repo.Recent(ctx, domain.ActionFilter{Since: &since, Limit: 10})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fix approved", recent[0].Summary)

	capped, err := repo.Recent(ctx, domain.ActionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestActionRepo_Patterns(t *testing.T) {
	repo, p := setupActionRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := repo.Insert(ctx, &domain.AgentAction{
			Actor:      domain.ActorMonitor,
			ActionType: domain.ActionAlert,
			PipelineID: &p.ID,
			Summary:    "stg_orders failed",
			CreatedAt:  base.Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}
	// One-off actions never form a pattern.
	_, err := repo.Insert(ctx, &domain.AgentAction{
		Actor:      domain.ActorRepair,
		ActionType: domain.ActionRollback,
		PipelineID: &p.ID,
		Summary:    "rolled back",
		CreatedAt:  base,
	})
	require.NoError(t, err)

	patterns, err := repo.Patterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "stg_orders", patterns[0].PipelineName)
	assert.Equal(t, domain.ActionAlert, patterns[0].ActionType)
	assert.Equal(t, int64(3), patterns[0].Occurrences)
	assert.Equal(t, base.Add(48*time.Hour), patterns[0].LastSeen.UTC())
}

func TestActionRepo_Clear(t *testing.T) {
	repo, p := setupActionRepo(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.Insert(ctx, &domain.AgentAction{
			Actor: domain.ActorMonitor, ActionType: domain.ActionHealthCheck, PipelineID: &p.ID,
		})
		require.NoError(t, err)
	}

	removed, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	left, err := repo.Recent(ctx, domain.ActionFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, left)
}
