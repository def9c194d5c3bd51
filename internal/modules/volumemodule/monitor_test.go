package volumemodule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhaul/cardhaul/internal/events"
)

func startMonitor(t *testing.T, root string, bus events.EventBus) *Monitor {
	t.Helper()
	monitor, err := NewMonitor(root, bus)
	require.NoError(t, err)
	require.NoError(t, monitor.Start())
	t.Cleanup(monitor.Stop)
	return monitor
}

func TestMonitorEnumeratesExistingVolumes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "CANON_DC"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "SONY_SD"), 0755))

	bus := events.NewEventBus(16)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	monitor := startMonitor(t, root, bus)

	vols := monitor.Volumes()
	require.Len(t, vols, 2)
	labels := []string{vols[0].Label, vols[1].Label}
	assert.ElementsMatch(t, []string{"CANON_DC", "SONY_SD"}, labels)
	for _, v := range vols {
		assert.NotEmpty(t, v.ID)
	}
}

func TestMonitorPublishesMountAndUnmount(t *testing.T) {
	root := t.TempDir()

	bus := events.NewEventBus(16)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	mounted := make(chan events.Event, 4)
	unmounted := make(chan events.Event, 4)
	bus.Subscribe(events.EventFilter{
		Types: []events.EventType{events.EventVolumeMounted},
	}, func(e events.Event) { mounted <- e })
	bus.Subscribe(events.EventFilter{
		Types: []events.EventType{events.EventVolumeUnmounted},
	}, func(e events.Event) { unmounted <- e })

	monitor := startMonitor(t, root, bus)

	volPath := filepath.Join(root, "NIKON_SD")
	require.NoError(t, os.Mkdir(volPath, 0755))

	var mountEvent events.Event
	select {
	case mountEvent = <-mounted:
	case <-time.After(3 * time.Second):
		t.Fatal("no mount event")
	}
	assert.Equal(t, volPath, mountEvent.Data["path"])
	volumeID, _ := mountEvent.Data["volume_id"].(string)
	assert.NotEmpty(t, volumeID)
	assert.Len(t, monitor.Volumes(), 1)

	require.NoError(t, os.Remove(volPath))

	var unmountEvent events.Event
	select {
	case unmountEvent = <-unmounted:
	case <-time.After(3 * time.Second):
		t.Fatal("no unmount event")
	}
	assert.Equal(t, volumeID, unmountEvent.Data["volume_id"],
		"unmount carries the same volume identity as the mount")
	assert.Empty(t, monitor.Volumes())
}

func TestMonitorMissingRootFailsToStart(t *testing.T) {
	bus := events.NewEventBus(16)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	monitor, err := NewMonitor(filepath.Join(t.TempDir(), "absent"), bus)
	require.NoError(t, err)
	defer monitor.Stop()

	assert.Error(t, monitor.Start())
}
