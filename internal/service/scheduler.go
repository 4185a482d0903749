package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pipemedic/internal/domain"
)

// DefaultCheckInterval is the detection cadence when none is configured.
const DefaultCheckInterval = 5 * time.Minute

// SchedulerStatus is the monitoring payload of the background scheduler.
type SchedulerStatus struct {
	Running         bool       `json:"running"`
	IntervalMinutes float64    `json:"interval_minutes"`
	ChecksRun       int64      `json:"checks_run"`
	LastCheck       *time.Time `json:"last_check,omitempty"`
	LastAlertCount  int        `json:"last_alert_count"`
}

// Scheduler periodically drives the detect phase of the incident workflow.
// It holds its own lifecycle and injected dependencies; there is no shared
// global scheduler state.
type Scheduler struct {
	incidents *IncidentService
	audit     *AuditService
	logger    *slog.Logger

	mu         sync.Mutex
	cron       *cron.Cron
	entry      cron.EntryID
	interval   time.Duration
	running    bool
	checksRun  int64
	lastCheck  *time.Time
	lastAlerts int
}

// NewScheduler creates a stopped scheduler with the given default interval.
func NewScheduler(incidents *IncidentService, audit *AuditService, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Scheduler{
		incidents: incidents,
		audit:     audit,
		interval:  interval,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start begins periodic detection. A positive interval overrides the
// configured one. Starting a running scheduler is a conflict.
func (s *Scheduler) Start(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrConflict("scheduler is already running")
	}
	if interval > 0 {
		s.interval = interval
	}

	s.cron = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %s", s.interval)
	entry, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return fmt.Errorf("schedule detection: %w", err)
	}
	s.entry = entry
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the loop. cron.Stop does not fire new ticks after return, so
// shutdown latency is bounded by the in-flight tick, not the interval.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return domain.ErrConflict("scheduler is not running")
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
	s.running = false
	s.logger.Info("scheduler stopped")
	return nil
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStatus{
		Running:         s.running,
		IntervalMinutes: s.interval.Minutes(),
		ChecksRun:       s.checksRun,
		LastCheck:       s.lastCheck,
		LastAlertCount:  s.lastAlerts,
	}
}

// RunOnce performs one detection pass and feeds every raised alert into the
// incident workflow. Used by the cron tick and the API-triggered check.
func (s *Scheduler) RunOnce(ctx context.Context) ([]domain.Alert, error) {
	alerts, err := s.incidents.RunDetection(ctx)
	if err != nil {
		return nil, err
	}
	for i := range alerts {
		if _, err := s.incidents.HandleAlert(ctx, &alerts[i]); err != nil {
			s.logger.Error("alert handling failed",
				"pipeline", alerts[i].PipelineName,
				"type", alerts[i].AlertType,
				"error", err,
			)
		}
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.checksRun++
	s.lastCheck = &now
	s.lastAlerts = len(alerts)
	s.mu.Unlock()
	return alerts, nil
}

// tick is the cron entry point. Failures are caught per tick and journaled;
// they never terminate the loop.
func (s *Scheduler) tick() {
	ctx := context.Background()
	alerts, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled detection failed", "error", err)
		if _, auditErr := s.audit.Record(ctx, &domain.AgentAction{
			Actor:      domain.ActorScheduler,
			ActionType: domain.ActionHealthCheck,
			Summary:    "scheduled detection failed",
			Details:    fmt.Sprintf(`{"error":%q}`, err.Error()),
			Confidence: 1,
			Status:     "failed",
		}); auditErr != nil {
			s.logger.Error("audit write failed", "error", auditErr)
		}
		return
	}
	if len(alerts) > 0 {
		s.logger.Warn("detection raised alerts", "count", len(alerts))
	}
}
