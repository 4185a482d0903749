package domain

import "time"

// HealthStatus is the derived health of a pipeline. It is a pure function of
// the latest run and the pipeline's SLA — never stored, always recomputed.
type HealthStatus string

const (
	HealthFailed    HealthStatus = "FAILED"
	HealthSLABreach HealthStatus = "SLA_BREACHED"
	HealthRunning   HealthStatus = "RUNNING"
	HealthHealthy   HealthStatus = "HEALTHY"
)

// healthRank orders statuses for display: failures surface first.
var healthRank = map[HealthStatus]int{
	HealthFailed:    0,
	HealthSLABreach: 1,
	HealthRunning:   2,
	HealthHealthy:   3,
}

// Rank returns the display rank of the status (lower sorts first).
func (h HealthStatus) Rank() int { return healthRank[h] }

// ClassifyHealth derives the health of a pipeline from its latest run at the
// given instant. A pipeline with no recorded run is HEALTHY: absence of
// evidence is not failure.
func ClassifyHealth(p *Pipeline, latest *PipelineRun, now time.Time) HealthStatus {
	if latest == nil {
		return HealthHealthy
	}

	switch latest.Status {
	case RunStatusFailed:
		return HealthFailed
	case RunStatusRunning:
		if now.Sub(latest.StartedAt) > p.SLA() {
			return HealthSLABreach
		}
		return HealthRunning
	case RunStatusSuccess:
		if latest.DurationSeconds != nil &&
			time.Duration(*latest.DurationSeconds)*time.Second > p.SLA() {
			return HealthSLABreach
		}
	}
	return HealthHealthy
}
