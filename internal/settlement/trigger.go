package settlement

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

const (
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// Trigger owns the run-level mutual exclusion around the aggregator. The
// interval timer and manual calls share one mutex; a trigger arriving while
// a run is in flight is rejected, not queued.
type Trigger struct {
	agg      *Aggregator
	interval time.Duration
	lock     Lock
	logg     *logger.Logger
	mu       sync.Mutex
}

// NewTrigger wires the aggregator to its trigger sources. A nil lock skips
// cross-process coordination; interval <= 0 disables the timer.
func NewTrigger(agg *Aggregator, interval time.Duration, lock Lock, logg *logger.Logger) *Trigger {
	return &Trigger{agg: agg, interval: interval, lock: lock, logg: logg}
}

// RunNow runs settlement synchronously for an on-demand caller. Returns a
// SETTLEMENT_IN_PROGRESS error when a run is already in flight.
func (t *Trigger) RunNow(ctx context.Context) (Result, error) {
	return t.run(ctx, TriggerManual)
}

// Start blocks, firing interval runs until the context is cancelled. It is
// a no-op when the interval is non-positive.
func (t *Trigger) Start(ctx context.Context) {
	if t.interval <= 0 {
		t.logg.Warn(ctx, "settlement interval disabled, timer not started")
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.run(ctx, TriggerInterval); err != nil {
				// A manual run in flight is fine, the next tick retries.
				t.logg.Warn(ctx, "interval settlement skipped: "+err.Error())
			}
		}
	}
}

func (t *Trigger) run(ctx context.Context, trigger string) (Result, error) {
	if !t.mu.TryLock() {
		return Result{}, pkgerrors.New(pkgerrors.CodeSettlementBusy, "settlement already running")
	}
	defer t.mu.Unlock()

	if t.lock != nil {
		ok, err := t.lock.Acquire(ctx)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring settlement lock")
		}
		if !ok {
			return Result{}, pkgerrors.New(pkgerrors.CodeSettlementBusy, "settlement lock held by another process")
		}
		defer func() {
			if err := t.lock.Release(ctx); err != nil {
				t.logg.Error(ctx, "releasing settlement lock", err)
			}
		}()
	}

	return t.agg.Run(ctx, trigger), nil
}
