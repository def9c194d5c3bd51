// Package volumemodule discovers removable volumes by watching a mount
// root (e.g. /media/$USER or /Volumes) and publishes mount/unmount
// events on the bus. The import pipeline treats an unmount of its
// active volume as a scan cancellation.
package volumemodule

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/cardhaul/cardhaul/internal/events"
	"github.com/cardhaul/cardhaul/internal/logger"
)

// Volume represents one mounted removable volume
type Volume struct {
	ID    string
	Label string
	Path  string
}

// Monitor watches a mount root for volumes appearing and disappearing
type Monitor struct {
	mountRoot string
	bus       events.EventBus
	watcher   *fsnotify.Watcher

	mu      sync.RWMutex
	volumes map[string]Volume // path -> volume

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor for the given mount root
func NewMonitor(mountRoot string, bus events.EventBus) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	return &Monitor{
		mountRoot: mountRoot,
		bus:       bus,
		watcher:   watcher,
		volumes:   make(map[string]Volume),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start enumerates already-mounted volumes and begins watching for
// changes. Existing volumes are published as mounted.
func (m *Monitor) Start() error {
	if err := m.watcher.Add(m.mountRoot); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.mountRoot, err)
	}

	entries, err := os.ReadDir(m.mountRoot)
	if err != nil {
		return fmt.Errorf("failed to read mount root %s: %w", m.mountRoot, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			m.mounted(filepath.Join(m.mountRoot, entry.Name()))
		}
	}

	m.wg.Add(1)
	go m.watch()
	return nil
}

// Stop stops watching
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.watcher.Close()
	})
	m.wg.Wait()
}

// Volumes returns the currently known volumes
func (m *Monitor) Volumes() []Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vols := make([]Volume, 0, len(m.volumes))
	for _, v := range m.volumes {
		vols = append(vols, v)
	}
	return vols
}

func (m *Monitor) watch() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Has(fsnotify.Create):
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					m.mounted(event.Name)
				}
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				m.unmounted(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Volume watcher error", logger.F("error", err))
		}
	}
}

func (m *Monitor) mounted(path string) {
	vol := Volume{
		ID:    uuid.New().String(),
		Label: filepath.Base(path),
		Path:  path,
	}

	m.mu.Lock()
	if _, known := m.volumes[path]; known {
		m.mu.Unlock()
		return
	}
	m.volumes[path] = vol
	m.mu.Unlock()

	logger.Info("Volume mounted", logger.F("label", vol.Label), logger.F("path", path))
	event := events.NewEvent(events.EventVolumeMounted, ModuleID, "Volume mounted", vol.Label)
	event.Data = map[string]interface{}{"volume_id": vol.ID, "path": path}
	m.bus.PublishAsync(event)
}

func (m *Monitor) unmounted(path string) {
	m.mu.Lock()
	vol, known := m.volumes[path]
	if !known {
		m.mu.Unlock()
		return
	}
	delete(m.volumes, path)
	m.mu.Unlock()

	logger.Info("Volume unmounted", logger.F("label", vol.Label), logger.F("path", path))
	event := events.NewEvent(events.EventVolumeUnmounted, ModuleID, "Volume unmounted", vol.Label)
	event.Data = map[string]interface{}{"volume_id": vol.ID, "path": path}
	m.bus.PublishAsync(event)
}

// ModuleID is the unique identifier for the volume module
const ModuleID = "system.volumes"
