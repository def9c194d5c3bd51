package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cardhaul/cardhaul/internal/logger"
)

// Throttler pauses pipeline workers when the system is under heavy
// load, sampling CPU and memory in the background. Enrichment hashes
// many files concurrently; without backpressure that can starve the
// foreground on small machines.
type Throttler struct {
	mu             sync.RWMutex
	cpuHighWater   float64
	memHighWater   float64
	sampleInterval time.Duration
	throttled      bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewThrottler creates a throttler and starts its background sampler
func NewThrottler() *Throttler {
	t := &Throttler{
		cpuHighWater:   85.0,
		memHighWater:   90.0,
		sampleInterval: 3 * time.Second,
		stopCh:         make(chan struct{}),
	}
	go t.sample()
	return t
}

// Wait blocks while the system is over the high-water marks, returning
// early if ctx is cancelled.
func (t *Throttler) Wait(ctx context.Context) error {
	for {
		t.mu.RLock()
		throttled := t.throttled
		t.mu.RUnlock()
		if !throttled {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Stop terminates the background sampler
func (t *Throttler) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Throttler) sample() {
	ticker := time.NewTicker(t.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		}

		var cpuPercent, memPercent float64
		if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
			cpuPercent = percents[0]
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			memPercent = vm.UsedPercent
		}

		over := cpuPercent > t.cpuHighWater || memPercent > t.memHighWater

		t.mu.Lock()
		if over != t.throttled {
			t.throttled = over
			if over {
				logger.Debug("Throttling pipeline workers",
					logger.F("cpu", cpuPercent), logger.F("mem", memPercent))
			}
		}
		t.mu.Unlock()
	}
}
