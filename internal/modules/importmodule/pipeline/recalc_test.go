package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecalcDebouncesRapidTriggers(t *testing.T) {
	var runs int32
	rm := NewRecalculationManager(50*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	defer rm.Stop()

	for i := 0; i < 10; i++ {
		rm.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) == 1
	}, time.Second, 10*time.Millisecond)

	// No extra pass shows up later
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestRecalcNewTriggerCancelsInflightPass(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})

	rm := NewRecalculationManager(10*time.Millisecond, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			select {
			case cancelled <- struct{}{}:
			default:
			}
		case <-time.After(2 * time.Second):
		}
	})
	defer rm.Stop()

	rm.Trigger()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first pass never started")
	}

	rm.Trigger()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("first pass was not cancelled by the second trigger")
	}
}

func TestRecalcStopCancelsAndWaits(t *testing.T) {
	running := make(chan struct{})
	rm := NewRecalculationManager(10*time.Millisecond, func(ctx context.Context) {
		close(running)
		<-ctx.Done()
	})

	rm.Trigger()
	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("pass never started")
	}

	done := make(chan struct{})
	go func() {
		rm.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRecalcStopWithoutTriggerIsSafe(t *testing.T) {
	rm := NewRecalculationManager(10*time.Millisecond, func(ctx context.Context) {})
	rm.Stop()
}
