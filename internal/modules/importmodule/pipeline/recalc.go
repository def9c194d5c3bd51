package pipeline

import (
	"context"
	"sync"
	"time"
)

// RecalculationManager re-derives destination assignments after the
// destination configuration changes, without re-reading source bytes.
// Rapid successive changes are debounced so exactly one pass runs
// against the final configuration; a pass still in flight for a stale
// configuration is cancelled first.
type RecalculationManager struct {
	debounce time.Duration
	recalc   func(ctx context.Context)

	mu       sync.Mutex
	timer    *time.Timer
	inflight context.CancelFunc
	wg       sync.WaitGroup
}

// NewRecalculationManager creates a manager that invokes recalc after
// each debounced trigger.
func NewRecalculationManager(debounce time.Duration, recalc func(ctx context.Context)) *RecalculationManager {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &RecalculationManager{
		debounce: debounce,
		recalc:   recalc,
	}
}

// Trigger schedules a recalculation. A pending (not yet started) pass is
// pushed back by the debounce interval; a running pass is cancelled as
// stale before the new one starts.
func (rm *RecalculationManager) Trigger() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.timer != nil {
		rm.timer.Stop()
	}
	rm.timer = time.AfterFunc(rm.debounce, rm.start)
}

func (rm *RecalculationManager) start() {
	rm.mu.Lock()
	if rm.inflight != nil {
		rm.inflight()
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.inflight = cancel
	rm.wg.Add(1)
	rm.mu.Unlock()

	go func() {
		defer rm.wg.Done()
		defer cancel()
		rm.recalc(ctx)
	}()
}

// Stop cancels any pending or running recalculation and waits for the
// running one to exit.
func (rm *RecalculationManager) Stop() {
	rm.mu.Lock()
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
	if rm.inflight != nil {
		rm.inflight()
		rm.inflight = nil
	}
	rm.mu.Unlock()
	rm.wg.Wait()
}
