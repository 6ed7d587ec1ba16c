// Package schedule converts cron-style SCHEDULE triggers into dispatch
// events at due time.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fixl-developer/tma-automation/internal/dispatch"
	"github.com/fixl-developer/tma-automation/internal/metrics"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// DefaultTickInterval is the minimum schedule resolution: 5-field cron
// expressions cannot be finer than one minute.
const DefaultTickInterval = time.Minute

// Scheduler scans SCHEDULE-triggered rules on a fixed tick and fires the
// ones whose next-due time has passed. Fire times are recorded as schedule
// marks in the store, so a restart resumes from the last mark: any ticks
// missed during downtime collapse into at most one fire (no backlog replay).
type Scheduler struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	parser     cron.Parser

	// now is replaceable in tests to simulate downtime.
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. A zero interval falls back to one minute.
func New(st store.Store, d *dispatch.Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      st,
		dispatcher: d,
		logger:     logger,
		interval:   interval,
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:        time.Now,
	}
}

// Start begins the scheduler background loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started", "interval", s.interval)
}

// Stop signals the scheduler to stop and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scans every SCHEDULE rule once. Exported so tests can drive the
// scheduler without the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		s.logger.Error("scheduler: failed to list rules", "error", err)
		return
	}
	for _, rule := range rules {
		if ctx.Err() != nil {
			return
		}
		if rule.Trigger.Kind != types.TriggerSchedule || rule.Status != types.RuleActive {
			continue
		}
		s.checkRule(ctx, rule)
	}
}

func (s *Scheduler) checkRule(ctx context.Context, rule types.Rule) {
	sched, err := s.parser.Parse(rule.Trigger.CronExpr)
	if err != nil {
		s.logger.Warn("scheduler: invalid cron expression, rule skipped",
			"rule", rule.ID, "expression", rule.Trigger.CronExpr, "error", err)
		return
	}

	now := s.now()
	mark, err := s.store.GetScheduleMark(ctx, rule.ID)
	if err != nil {
		s.logger.Error("scheduler: failed to load schedule mark", "rule", rule.ID, "error", err)
		return
	}
	if mark == nil {
		// First observation: anchor the mark so the rule fires from its
		// next due time, not immediately.
		if err := s.store.PutScheduleMark(ctx, rule.ID, now); err != nil {
			s.logger.Error("scheduler: failed to store schedule mark", "rule", rule.ID, "error", err)
		}
		return
	}

	due := sched.Next(*mark)
	if due.After(now) {
		return
	}

	// Count ticks beyond the first as missed; they collapse into this one
	// fire instead of replaying.
	missed := 0
	for next := sched.Next(due); !next.After(now); next = sched.Next(next) {
		missed++
	}
	if missed > 0 {
		metrics.SchedulesMissed.Add(int64(missed))
		s.logger.Warn("scheduler: missed ticks collapsed into single fire",
			"rule", rule.ID, "missed", missed)
	}

	s.fire(ctx, rule, due, now)

	if err := s.store.PutScheduleMark(ctx, rule.ID, now); err != nil {
		s.logger.Error("scheduler: failed to store schedule mark", "rule", rule.ID, "error", err)
	}
}

// fire runs the rule synchronously with a synthetic event carrying the
// schedule metadata as payload.
func (s *Scheduler) fire(ctx context.Context, rule types.Rule, due, now time.Time) {
	ev := types.Event{
		TenantID: rule.TenantID,
		Entity:   "schedule",
		Name:     "schedule.fired",
		Payload: map[string]any{
			"ruleId":         rule.ID,
			"cronExpression": rule.Trigger.CronExpr,
			"dueAt":          due,
			"firedAt":        now,
		},
		OccurredAt: now,
	}
	exec, err := s.dispatcher.FireRule(ctx, rule.ID, ev)
	if err != nil {
		s.logger.Error("scheduler: failed to fire rule", "rule", rule.ID, "error", err)
		return
	}
	metrics.SchedulesFired.Add(1)
	s.logger.Info("schedule fired", "rule", rule.ID, "execution", exec.ID, "status", exec.Status)
}
