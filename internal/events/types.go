// Package events provides the in-process event bus used for cross-module
// notifications: volume lifecycle, scan progress, and import outcomes.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

// System-wide event types
const (
	// Volume events
	EventVolumeMounted   EventType = "volume.mounted"
	EventVolumeUnmounted EventType = "volume.unmounted"

	// Scan events
	EventScanStarted   EventType = "scan.started"
	EventScanFileFound EventType = "scan.file.found"
	EventScanCompleted EventType = "scan.completed"
	EventScanCancelled EventType = "scan.cancelled"

	// Enrichment events
	EventFileEnriched EventType = "file.enriched"

	// Import events
	EventImportStarted      EventType = "import.started"
	EventImportFileComplete EventType = "import.file.complete"
	EventImportCompleted    EventType = "import.completed"
	EventImportCancelled    EventType = "import.cancelled"

	// Recalculation events
	EventRecalcStarted   EventType = "recalc.started"
	EventRecalcCompleted EventType = "recalc.completed"

	// General events
	EventError   EventType = "error"
	EventWarning EventType = "warning"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event)

// EventFilter selects which events a subscription receives.
// An empty Types slice matches every event.
type EventFilter struct {
	Types []EventType
}

// Matches reports whether the filter accepts the event
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Subscription represents an active event subscription
type Subscription struct {
	ID      string
	Filter  EventFilter
	Handler EventHandler
	Created time.Time
}
