// Package health rolls execution outcomes up into rule stats, pack-level
// health, and SLA status. Everything here is derived from the execution log
// and recomputable; the store's stats and health fields are caches.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fixl-developer/tma-automation/internal/metrics"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

const (
	// DefaultTrailingWindow is how many recent executions feed the failure
	// rate behind pack health.
	DefaultTrailingWindow = 20

	// DefaultReviewThreshold flags a rule for operator review when its
	// trailing failure rate crosses it. Flagging never disables the rule.
	DefaultReviewThreshold = 0.5

	defaultInterval = 30 * time.Second

	errorRate   = 0.20
	warningRate = 0.05
)

// Aggregator periodically recomputes rule stats and pack health from the
// execution log.
type Aggregator struct {
	store           store.Store
	logger          *slog.Logger
	interval        time.Duration
	trailingWindow  int
	reviewThreshold float64
	policies        []types.SLAPolicy

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aggregator. Zero config values fall back to defaults.
func New(st store.Store, cfg *types.HealthConfig, policies []types.SLAPolicy, logger *slog.Logger) *Aggregator {
	interval := defaultInterval
	window := DefaultTrailingWindow
	threshold := DefaultReviewThreshold
	if cfg != nil {
		if d, err := time.ParseDuration(cfg.Interval); err == nil && d > 0 {
			interval = d
		}
		if cfg.TrailingWindow > 0 {
			window = cfg.TrailingWindow
		}
		if cfg.ReviewThreshold > 0 {
			threshold = cfg.ReviewThreshold
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:           st,
		logger:          logger,
		interval:        interval,
		trailingWindow:  window,
		reviewThreshold: threshold,
		policies:        policies,
	}
}

// Start begins the aggregation background loop.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("health aggregator started", "interval", a.interval, "window", a.trailingWindow)
}

// Stop signals the aggregator to stop and waits for it to finish.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("health aggregator stopped")
}

func (a *Aggregator) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately on start
	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick recomputes stats and health for every pack once. Exported so the
// HTTP surface and tests can force a recompute.
func (a *Aggregator) Tick(ctx context.Context) {
	packs, err := a.store.ListPacks(ctx)
	if err != nil {
		a.logger.Error("health: failed to list packs", "error", err)
		return
	}
	for _, pack := range packs {
		if ctx.Err() != nil {
			return
		}
		a.recomputePack(ctx, pack)
	}
}

func (a *Aggregator) recomputePack(ctx context.Context, pack types.Pack) {
	worst := types.HealthOK
	for _, ruleID := range pack.RuleIDs {
		rule, err := a.store.GetRule(ctx, ruleID)
		if err != nil {
			continue
		}
		execs, err := a.store.ListExecutions(ctx, ruleID, a.trailingWindow)
		if err != nil {
			a.logger.Error("health: failed to list executions", "rule", ruleID, "error", err)
			continue
		}

		stats := ComputeStats(execs)
		if !statsEqual(stats, rule.Stats) {
			updated := *rule
			updated.Stats = stats
			if err := a.store.PutRule(ctx, updated); err != nil {
				a.logger.Error("health: failed to store rule stats", "rule", ruleID, "error", err)
			}
		}

		rate := FailureRate(execs)
		if rate >= a.reviewThreshold {
			a.logger.Warn("rule flagged for review: trailing failure rate over threshold",
				"rule", ruleID, "pack", pack.ID, "rate", rate, "threshold", a.reviewThreshold)
		}
		if h := Grade(execs); severity(h) > severity(worst) {
			worst = h
		}
	}

	if worst != pack.Health {
		updated := pack
		updated.Health = worst
		if err := a.store.PutPack(ctx, updated); err != nil {
			a.logger.Error("health: failed to store pack health", "pack", pack.ID, "error", err)
			return
		}
		a.logger.Info("pack health changed", "pack", pack.ID, "from", pack.Health, "to", worst)
	}
}

// ComputeStats derives a rule's stats snapshot from its recent executions
// (most-recent-first).
func ComputeStats(execs []types.Execution) types.RuleStats {
	stats := types.RuleStats{ExecutionCount: len(execs)}
	var totalMs int64
	for _, exec := range execs {
		switch exec.Status {
		case types.ExecutionSuccess:
			stats.SuccessCount++
		case types.ExecutionFailed:
			stats.FailureCount++
		}
		totalMs += exec.DurationMs
	}
	if len(execs) > 0 {
		stats.AvgDurationMs = float64(totalMs) / float64(len(execs))
		last := execs[0].StartedAt
		stats.LastRunAt = &last
	}
	return stats
}

// FailureRate returns the fraction of failed executions in the window.
// Zero executions means zero rate.
func FailureRate(execs []types.Execution) float64 {
	if len(execs) == 0 {
		return 0
	}
	failed := 0
	for _, exec := range execs {
		if exec.Status == types.ExecutionFailed {
			failed++
		}
	}
	return float64(failed) / float64(len(execs))
}

// Grade maps a trailing execution window to a health level: over 20%
// failures is error, 5-20% is warning, below that ok. An empty window is ok.
func Grade(execs []types.Execution) types.PackHealth {
	rate := FailureRate(execs)
	switch {
	case rate > errorRate:
		return types.HealthError
	case rate >= warningRate:
		return types.HealthWarning
	default:
		return types.HealthOK
	}
}

func statsEqual(a, b types.RuleStats) bool {
	if a.ExecutionCount != b.ExecutionCount || a.SuccessCount != b.SuccessCount ||
		a.FailureCount != b.FailureCount || a.AvgDurationMs != b.AvgDurationMs {
		return false
	}
	switch {
	case a.LastRunAt == nil && b.LastRunAt == nil:
		return true
	case a.LastRunAt == nil || b.LastRunAt == nil:
		return false
	default:
		return a.LastRunAt.Equal(*b.LastRunAt)
	}
}

func severity(h types.PackHealth) int {
	switch h {
	case types.HealthError:
		return 2
	case types.HealthWarning:
		return 1
	default:
		return 0
	}
}

// PackHealth grades one pack on demand from the trailing window of each of
// its rules, without touching the stored cache.
func (a *Aggregator) PackHealth(ctx context.Context, pack types.Pack) (types.PackHealth, error) {
	worst := types.HealthOK
	for _, ruleID := range pack.RuleIDs {
		execs, err := a.store.ListExecutions(ctx, ruleID, a.trailingWindow)
		if err != nil {
			return worst, err
		}
		if h := Grade(execs); severity(h) > severity(worst) {
			worst = h
		}
	}
	return worst, nil
}

// SLAStatuses derives the current SLA standing for every configured policy
// from the rolling average duration of recent executions. metrics counts a
// breach each time a policy is observed over target.
func (a *Aggregator) SLAStatuses(ctx context.Context) ([]types.SLAStatusEntry, error) {
	if len(a.policies) == 0 {
		return nil, nil
	}
	execs, err := a.store.ListRecentExecutions(ctx, a.trailingWindow*len(a.policies))
	if err != nil {
		return nil, err
	}

	var totalMs int64
	for _, exec := range execs {
		totalMs += exec.DurationMs
	}
	var currentMs int64
	if len(execs) > 0 {
		currentMs = totalMs / int64(len(execs))
	}

	out := make([]types.SLAStatusEntry, 0, len(a.policies))
	for _, p := range a.policies {
		entry := types.SLAStatusEntry{
			Module:    p.Module,
			Tier:      p.Tier,
			TargetMs:  p.TargetMs,
			CurrentMs: currentMs,
			Status:    types.SLAMet,
		}
		if currentMs > p.TargetMs {
			entry.Status = types.SLABreached
			metrics.SLABreaches.Add(1)
			a.logger.Warn("sla breached", "module", p.Module, "tier", p.Tier,
				"targetMs", p.TargetMs, "currentMs", currentMs)
		}
		out = append(out, entry)
	}
	return out, nil
}
