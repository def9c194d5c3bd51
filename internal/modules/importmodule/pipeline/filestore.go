package pipeline

import (
	"sync"
)

// State is the coordinator's lifecycle, exposed to observers as an
// explicit transition rather than something to block on.
type State string

const (
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateScanning  State = "scanning"
	StateResolved  State = "resolved"
	StateImporting State = "importing"
)

// StoreSnapshot is one consistent view of the session handed to the
// presentation layer: the full file list with matching statuses and
// destinations, plus the progress counters. Snapshots are immutable;
// files inside them are deep copies.
type StoreSnapshot struct {
	SessionID string
	State     State
	Files     []*File
	Progress  Snapshot
	Warnings  []ScanWarning
}

// FileStore holds the latest published snapshot and fans it out to
// subscribers. The pipeline publishes whole batches only, so observers
// never see a file with a finalized status but a stale destination.
type FileStore struct {
	mu   sync.RWMutex
	snap StoreSnapshot
	subs []func(StoreSnapshot)
}

// NewFileStore creates a store in the loading state
func NewFileStore() *FileStore {
	return &FileStore{snap: StoreSnapshot{State: StateLoading}}
}

// Publish installs a new snapshot and notifies subscribers synchronously
func (fs *FileStore) Publish(snap StoreSnapshot) {
	fs.mu.Lock()
	fs.snap = snap
	subs := make([]func(StoreSnapshot), len(fs.subs))
	copy(subs, fs.subs)
	fs.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

// Current returns the latest snapshot
func (fs *FileStore) Current() StoreSnapshot {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.snap
}

// Subscribe registers an observer for future snapshots
func (fs *FileStore) Subscribe(fn func(StoreSnapshot)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.subs = append(fs.subs, fn)
}
