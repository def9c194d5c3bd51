package importmodule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhaul/cardhaul/internal/config"
	"github.com/cardhaul/cardhaul/internal/events"
	"github.com/cardhaul/cardhaul/internal/modules/importmodule/pipeline"
)

func startTestModule(t *testing.T) (*Module, events.EventBus) {
	t.Helper()

	cfg := config.NewManager()
	require.NoError(t, cfg.Update(func(c *config.Config) {
		c.Library.DestinationRoot = t.TempDir()
		c.Scanner.ThrottleEnabled = false
	}))

	bus := events.NewEventBus(64)
	require.NoError(t, bus.Start())
	t.Cleanup(bus.Stop)

	mod := NewModule(cfg, bus, nil, nil)
	mod.Start()
	t.Cleanup(mod.Stop)
	return mod, bus
}

func scanFixture(t *testing.T, mod *Module, volumeID string) {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "IMG_0001.jpg"), []byte("a"), 0644))

	require.NoError(t, mod.Manager().StartScan(volumeID, "CARD", src))
	require.Eventually(t, func() bool {
		return mod.Manager().Store().Current().State == pipeline.StateResolved
	}, 5*time.Second, 10*time.Millisecond)
}

func unmountEvent(volumeID string) events.Event {
	event := events.NewEvent(events.EventVolumeUnmounted, "system.volumes", "Volume unmounted", "")
	event.Data = map[string]interface{}{"volume_id": volumeID}
	return event
}

func TestModuleUnloadsSessionWhenActiveVolumeRemoved(t *testing.T) {
	mod, bus := startTestModule(t)
	scanFixture(t, mod, "vol-9")
	require.Equal(t, "vol-9", mod.Manager().VolumeID())

	bus.PublishAsync(unmountEvent("vol-9"))

	assert.Eventually(t, func() bool {
		snap := mod.Manager().Store().Current()
		return snap.State == pipeline.StateReady && len(snap.Files) == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, mod.Manager().VolumeID())
}

func TestModuleIgnoresUnmountOfOtherVolumes(t *testing.T) {
	mod, bus := startTestModule(t)
	scanFixture(t, mod, "vol-9")

	bus.PublishAsync(unmountEvent("vol-other"))

	time.Sleep(100 * time.Millisecond)
	snap := mod.Manager().Store().Current()
	assert.Equal(t, pipeline.StateResolved, snap.State)
	assert.Equal(t, "vol-9", mod.Manager().VolumeID())
}
