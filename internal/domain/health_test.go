package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPipeline(slaMinutes int) *Pipeline {
	return &Pipeline{
		ID:         NewID(),
		Name:       "stg_orders",
		Schedule:   "0 * * * *",
		SLAMinutes: slaMinutes,
		IsActive:   true,
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestClassifyHealth_NoRun(t *testing.T) {
	p := testPipeline(30)
	assert.Equal(t, HealthHealthy, ClassifyHealth(p, nil, time.Now()))
}

func TestClassifyHealth_Failed(t *testing.T) {
	p := testPipeline(30)
	run := &PipelineRun{Status: RunStatusFailed, StartedAt: time.Now().Add(-time.Hour)}
	assert.Equal(t, HealthFailed, ClassifyHealth(p, run, time.Now()))
}

func TestClassifyHealth_RunningWithinSLA(t *testing.T) {
	p := testPipeline(30)
	now := time.Now()
	run := &PipelineRun{Status: RunStatusRunning, StartedAt: now.Add(-29 * time.Minute)}
	assert.Equal(t, HealthRunning, ClassifyHealth(p, run, now))
}

func TestClassifyHealth_RunningOverSLA(t *testing.T) {
	p := testPipeline(30)
	now := time.Now()
	run := &PipelineRun{Status: RunStatusRunning, StartedAt: now.Add(-31 * time.Minute)}
	assert.Equal(t, HealthSLABreach, ClassifyHealth(p, run, now))
}

func TestClassifyHealth_SuccessOverSLA(t *testing.T) {
	p := testPipeline(20)
	now := time.Now()
	run := &PipelineRun{
		Status:          RunStatusSuccess,
		StartedAt:       now.Add(-2 * time.Hour),
		DurationSeconds: int64Ptr(21 * 60),
	}
	assert.Equal(t, HealthSLABreach, ClassifyHealth(p, run, now))
}

func TestClassifyHealth_SuccessWithinSLA(t *testing.T) {
	p := testPipeline(20)
	now := time.Now()
	run := &PipelineRun{
		Status:          RunStatusSuccess,
		StartedAt:       now.Add(-time.Hour),
		DurationSeconds: int64Ptr(5 * 60),
	}
	assert.Equal(t, HealthHealthy, ClassifyHealth(p, run, now))
}

func TestHealthRank_FailuresFirst(t *testing.T) {
	assert.Less(t, HealthFailed.Rank(), HealthSLABreach.Rank())
	assert.Less(t, HealthSLABreach.Rank(), HealthRunning.Rank())
	assert.Less(t, HealthRunning.Rank(), HealthHealthy.Rank())
}
