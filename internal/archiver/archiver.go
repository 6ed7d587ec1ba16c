// Package archiver provides a background process that copies execution
// records out of the hot store into Postgres for durable long-term storage.
package archiver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

const (
	defaultInterval = 5 * time.Minute
	batchLimit      = 500
)

// Destination is the write interface for the archival backend.
type Destination interface {
	InsertExecutions(ctx context.Context, execs []types.Execution) error
	GetCursor(ctx context.Context, ruleID string) (string, error)
	SetCursor(ctx context.Context, ruleID, cursor string) error
}

// Archiver periodically archives executions to Postgres. Execution IDs are
// ULIDs, so lexical comparison against the cursor gives time ordering.
type Archiver struct {
	source   store.Store
	dest     Destination
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new Archiver.
func New(source store.Store, dest Destination, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		source:   source,
		dest:     dest,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the archiver background loop.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("archiver started", "interval", a.interval)
}

// Stop signals the archiver to stop and waits for it to finish.
func (a *Archiver) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("archiver stopped")
}

func (a *Archiver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately on start
	a.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Archiver) tick(ctx context.Context) {
	rules, err := a.source.ListRules(ctx)
	if err != nil {
		a.logger.Error("archiver: failed to list rules", "error", err)
		return
	}
	for _, rule := range rules {
		if ctx.Err() != nil {
			return
		}
		a.archiveRule(ctx, rule.ID)
	}
}

func (a *Archiver) archiveRule(ctx context.Context, ruleID string) {
	cursor, err := a.dest.GetCursor(ctx, ruleID)
	if err != nil {
		a.logger.Error("archiver: failed to get cursor", "rule", ruleID, "error", err)
		return
	}

	execs, err := a.source.ListExecutions(ctx, ruleID, batchLimit)
	if err != nil {
		a.logger.Error("archiver: failed to list executions", "rule", ruleID, "error", err)
		return
	}

	// Most-recent-first; keep only entries past the cursor.
	var fresh []types.Execution
	high := cursor
	for _, exec := range execs {
		if exec.ID <= cursor {
			continue
		}
		fresh = append(fresh, exec)
		if exec.ID > high {
			high = exec.ID
		}
	}
	if len(fresh) == 0 {
		return
	}

	if err := a.dest.InsertExecutions(ctx, fresh); err != nil {
		a.logger.Error("archiver: failed to insert executions", "rule", ruleID, "error", err)
		return
	}
	if err := a.dest.SetCursor(ctx, ruleID, high); err != nil {
		a.logger.Error("archiver: failed to set cursor", "rule", ruleID, "error", err)
		return
	}
	a.logger.Debug("archived executions", "rule", ruleID, "count", len(fresh))
}
