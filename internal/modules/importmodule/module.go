// Package importmodule wires the import pipeline into the application:
// it owns the pipeline manager, reacts to volume lifecycle events, and
// exposes the snapshot store the presentation layer reads.
package importmodule

import (
	"github.com/cardhaul/cardhaul/internal/config"
	"github.com/cardhaul/cardhaul/internal/database"
	"github.com/cardhaul/cardhaul/internal/events"
	"github.com/cardhaul/cardhaul/internal/logger"
	"github.com/cardhaul/cardhaul/internal/modules/importmodule/pipeline"
)

const (
	// ModuleID is the unique identifier for the import module
	ModuleID = "system.import"

	// ModuleName is the display name for the import module
	ModuleName = "Card Import"
)

// Module implements card import as a module
type Module struct {
	manager *pipeline.Manager
	bus     events.EventBus
	sub     *events.Subscription
}

// NewModule creates the import module
func NewModule(cfg *config.Manager, bus events.EventBus, thumbs pipeline.ThumbnailRequester, history *database.Store) *Module {
	return &Module{
		manager: pipeline.NewManager(cfg, bus, thumbs, history),
		bus:     bus,
	}
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Manager returns the pipeline coordinator
func (m *Module) Manager() *pipeline.Manager {
	return m.manager
}

// Start transitions the pipeline to ready and begins reacting to volume
// removal: unmounting the active volume cancels the session.
func (m *Module) Start() {
	m.sub = m.bus.Subscribe(events.EventFilter{
		Types: []events.EventType{events.EventVolumeUnmounted},
	}, func(event events.Event) {
		volumeID, _ := event.Data["volume_id"].(string)
		if volumeID != "" && volumeID == m.manager.VolumeID() {
			logger.Info("Active volume removed; discarding session",
				logger.F("volume", volumeID))
			m.manager.Unload()
		}
	})

	m.manager.Start()
}

// Stop cancels running work and detaches from the event bus
func (m *Module) Stop() {
	if m.sub != nil {
		m.bus.Unsubscribe(m.sub.ID)
		m.sub = nil
	}
	m.manager.Stop()
}
