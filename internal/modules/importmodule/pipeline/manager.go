package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardhaul/cardhaul/internal/config"
	"github.com/cardhaul/cardhaul/internal/database"
	"github.com/cardhaul/cardhaul/internal/events"
	"github.com/cardhaul/cardhaul/internal/logger"
	"github.com/cardhaul/cardhaul/internal/utils"
)

// publishEvery is how many resolved files accumulate between snapshot
// publishes during enrichment; the final batch always publishes.
const publishEvery = 25

// Manager coordinates the pipeline stages and owns all state the
// presentation layer can observe. Background stages hand their results
// to the manager, which mutates the file list under its lock and
// publishes whole-batch snapshots through the FileStore; observers never
// see a half-updated file.
type Manager struct {
	cfg     *config.Manager
	bus     events.EventBus
	thumbs  ThumbnailRequester
	history *database.Store

	store     *FileStore
	progress  *Progress
	resolver  *Resolver
	throttler *Throttler
	recalc    *RecalculationManager

	mu           sync.Mutex
	state        State
	sessionID    string
	volumeID     string
	volumeLabel  string
	volumeRoot   string
	files        []*File
	warnings     []ScanWarning
	template     Template
	importStart  time.Time
	scanCancel   context.CancelFunc
	importCancel context.CancelFunc
	scanDone     sync.WaitGroup
}

// NewManager wires the pipeline together. history may be nil to disable
// the ledger; thumbs may be nil to disable thumbnail requests.
func NewManager(cfg *config.Manager, bus events.EventBus, thumbs ThumbnailRequester, history *database.Store) *Manager {
	m := &Manager{
		cfg:      cfg,
		bus:      bus,
		thumbs:   thumbs,
		history:  history,
		store:    NewFileStore(),
		progress: NewProgress(),
		resolver: NewResolver(),
		state:    StateLoading,
	}
	if cfg.Get().Scanner.ThrottleEnabled {
		m.throttler = NewThrottler()
	}
	m.recalc = NewRecalculationManager(300*time.Millisecond, m.recalculate)

	// Destination settings changes drive recalculation; everything else
	// is picked up lazily.
	cfg.AddWatcher(func(old, new *config.Config) {
		if old == nil || !reflect.DeepEqual(old.Library, new.Library) {
			m.recalc.Trigger()
		}
	})
	return m
}

// Store returns the presentation-facing snapshot store
func (m *Manager) Store() *FileStore {
	return m.store
}

// Start transitions the manager from loading to ready. Readiness is an
// observed state change; callers must not block waiting for it.
func (m *Manager) Start() {
	m.mu.Lock()
	m.state = StateReady
	m.publishLocked()
	m.mu.Unlock()
}

// Stop cancels any running work and shuts down background helpers
func (m *Manager) Stop() {
	m.CancelScan()
	m.CancelImport()
	m.recalc.Stop()
	if m.throttler != nil {
		m.throttler.Stop()
	}
	m.scanDone.Wait()
}

// StartScan begins a fresh scan of a volume. Any prior session state is
// discarded; the scan, enrichment, and resolution run in the background
// and publish batched snapshots as they go.
func (m *Manager) StartScan(volumeID, volumeLabel, root string) error {
	m.CancelScan()
	m.scanDone.Wait()

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.state == StateImporting {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("import in progress")
	}
	m.sessionID = uuid.New().String()
	m.volumeID = volumeID
	m.volumeLabel = volumeLabel
	m.volumeRoot = root
	m.files = nil
	m.warnings = nil
	m.resolver.Reset()
	m.template = TemplateFromConfig(m.cfg.Get().Library)
	m.state = StateScanning
	m.scanCancel = cancel
	m.publishLocked()
	m.mu.Unlock()

	m.bus.PublishAsync(events.NewEvent(events.EventScanStarted, "importmodule",
		"Scan started", root))

	m.scanDone.Add(1)
	go m.runScan(ctx)
	return nil
}

// CancelScan cancels a running scan, if any
func (m *Manager) CancelScan() {
	m.mu.Lock()
	cancel := m.scanCancel
	m.scanCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runScan drives enumeration, enrichment, and resolution for one
// session. Enrichment completions arrive out of order; a reorder buffer
// feeds them to the resolver strictly in scan order so outcomes are
// reproducible.
func (m *Manager) runScan(ctx context.Context) {
	defer m.scanDone.Done()

	cfg := m.cfg.Get()
	scanner := NewScanner(cfg.Scanner.IgnoreNames)
	filter := mediaTypeFilter(cfg.Library.MediaTypes)

	m.mu.Lock()
	template := m.template
	m.mu.Unlock()

	enricher := NewEnricher(cfg.EnrichWorkerCount(), template, m.thumbs, m.throttler)

	scanned, scanErrs := scanner.Scan(ctx, m.volumeRoot)

	// Tee scanner output: record placeholders in scan order, forward the
	// ones passing the media-type filter to enrichment. Workers get a
	// clone so the canonical file list only ever mutates under m.mu.
	toEnrich := make(chan *File, 64)
	go func() {
		defer close(toEnrich)
		for f := range scanned {
			if filter != nil && !filter[f.MediaType] {
				continue
			}
			m.mu.Lock()
			f.ScanIndex = len(m.files)
			m.files = append(m.files, f)
			if len(m.files)%publishEvery == 0 {
				m.publishLocked()
			}
			m.mu.Unlock()

			select {
			case toEnrich <- f.Clone():
			case <-ctx.Done():
				return
			}
		}
	}()

	enriched := enricher.Run(ctx, toEnrich)

	pending := make(map[int]Enriched)
	next := 0
	resolvedSince := 0
	for e := range enriched {
		pending[e.File.ScanIndex] = e
		for {
			en, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			// Merge the enriched clone back into the canonical file,
			// then resolve the canonical instance.
			m.mu.Lock()
			canonical := m.files[en.File.ScanIndex]
			canonical.ContentHash = en.File.ContentHash
			canonical.CaptureTime = en.File.CaptureTime
			canonical.Title = en.File.Title
			canonical.Artist = en.File.Artist
			m.resolver.Resolve(canonical, en.Proposed)
			resolvedSince++
			if resolvedSince >= publishEvery {
				resolvedSince = 0
				m.publishLocked()
			}
			m.mu.Unlock()
		}
	}

	scanErr := <-scanErrs

	m.mu.Lock()
	m.warnings = scanner.Warnings()
	switch {
	case errors.Is(scanErr, context.Canceled) || ctx.Err() != nil:
		m.state = StateReady
		m.publishLocked()
		m.mu.Unlock()
		m.bus.PublishAsync(events.NewEvent(events.EventScanCancelled, "importmodule",
			"Scan cancelled", m.volumeRoot))
	case scanErr != nil:
		m.files = nil
		m.state = StateReady
		m.publishLocked()
		m.mu.Unlock()
		logger.Warn("Scan aborted", logger.F("error", scanErr))
		m.bus.PublishAsync(events.NewEvent(events.EventScanCancelled, "importmodule",
			"Volume unavailable", scanErr.Error()))
	default:
		m.state = StateResolved
		m.publishLocked()
		count := len(m.files)
		stale := !reflect.DeepEqual(m.template, TemplateFromConfig(m.cfg.Get().Library))
		m.mu.Unlock()
		m.bus.PublishAsync(events.NewEvent(events.EventScanCompleted, "importmodule",
			"Scan completed", fmt.Sprintf("%d files", count)))
		if stale {
			// Destination settings changed mid-scan; the debounced pass
			// that fired during scanning was a no-op.
			m.recalc.Trigger()
		}
	}
}

// Import copies all resolved, uncontested files. It blocks until the
// run finishes or ctx is cancelled and returns the session outcome.
func (m *Manager) Import(ctx context.Context) (Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.state != StateResolved {
		m.mu.Unlock()
		return Outcome{}, fmt.Errorf("no resolved session to import")
	}
	m.state = StateImporting
	m.importCancel = cancel
	m.importStart = time.Now()
	files := append([]*File(nil), m.files...)
	m.publishLocked()
	m.mu.Unlock()

	cfg := m.cfg.Get()
	executor := NewExecutor(cfg.ChunkSize(), cfg.Import.CopyConcurrency,
		cfg.Library.DeleteOriginals, m.progress, func(f *File) {
			m.mu.Lock()
			m.publishLocked()
			m.mu.Unlock()
			m.bus.PublishAsync(events.NewEvent(events.EventImportFileComplete, "importmodule",
				string(f.Status), f.SourcePath))
		})

	m.bus.PublishAsync(events.NewEvent(events.EventImportStarted, "importmodule",
		"Import started", m.volumeRoot))

	outcome := executor.Run(ctx, files)

	m.mu.Lock()
	m.importCancel = nil
	m.state = StateResolved
	m.publishLocked()
	m.mu.Unlock()

	m.recordHistory(outcome)

	eventType := events.EventImportCompleted
	if outcome.Cancelled {
		eventType = events.EventImportCancelled
	}
	m.bus.PublishAsync(events.NewEvent(eventType, "importmodule",
		"Import finished",
		fmt.Sprintf("%d imported, %d failed", outcome.Imported, outcome.Failed)))
	return outcome, nil
}

// CancelImport cancels a running import, if any
func (m *Manager) CancelImport() {
	m.mu.Lock()
	cancel := m.importCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Unload discards the session, e.g. when the active volume disappears
func (m *Manager) Unload() {
	m.CancelScan()
	m.CancelImport()
	m.scanDone.Wait()

	m.mu.Lock()
	m.files = nil
	m.warnings = nil
	m.sessionID = ""
	m.volumeID = ""
	m.resolver.Reset()
	m.state = StateReady
	m.publishLocked()
	m.mu.Unlock()
}

// VolumeID returns the identifier of the volume backing the current
// session, empty when none is loaded.
func (m *Manager) VolumeID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumeID
}

// recalculate re-derives destination assignments against the current
// configuration using already-known hashes and timestamps; source bytes
// are never re-read. Imported files keep their paths and continue to
// deduplicate later candidates.
func (m *Manager) recalculate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.files) == 0 || m.state == StateScanning || m.state == StateImporting {
		return
	}
	newTemplate := TemplateFromConfig(m.cfg.Get().Library)
	if reflect.DeepEqual(newTemplate, m.template) {
		return
	}

	m.bus.PublishAsync(events.NewEvent(events.EventRecalcStarted, "importmodule",
		"Recalculating destinations", newTemplate.Root))

	ordered := append([]*File(nil), m.files...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ScanIndex < ordered[j].ScanIndex })

	m.resolver.Reset()
	for _, f := range ordered {
		if ctx.Err() != nil {
			// Stale pass; a newer configuration is on its way. Nothing
			// was published, so observers still see the old snapshot.
			return
		}
		if f.Status == StatusImported {
			m.resolver.Retain(f)
			continue
		}
		f.Status = StatusWaiting
		f.DestPath = ""
		f.Err = nil
		m.resolver.Resolve(f, newTemplate.DestinationFor(f))
	}

	m.template = newTemplate
	m.publishLocked()
	m.bus.PublishAsync(events.NewEvent(events.EventRecalcCompleted, "importmodule",
		"Destinations recalculated", newTemplate.Root))
}

// recordHistory writes the finished session to the ledger
func (m *Manager) recordHistory(outcome Outcome) {
	if m.history == nil {
		return
	}

	m.mu.Lock()
	session := &database.ImportSession{
		ID:              m.sessionID,
		VolumeID:        m.volumeID,
		VolumeLabel:     m.volumeLabel,
		DestinationRoot: m.template.Root,
		StartedAt:       m.importStart,
		CompletedAt:     time.Now(),
	}
	switch {
	case outcome.Cancelled:
		session.Outcome = "cancelled"
	case outcome.Failed > 0:
		session.Outcome = "partial"
	default:
		session.Outcome = "success"
	}
	for _, f := range m.files {
		record := database.ImportRecord{
			SessionID:   m.sessionID,
			SourcePath:  f.SourcePath,
			DestPath:    f.DestPath,
			Status:      string(f.Status),
			Size:        f.Size,
			ContentHash: f.ContentHash,
			CapturedAt:  f.CaptureTime,
		}
		if f.Err != nil {
			record.Error = f.Err.Error()
		}
		session.Records = append(session.Records, record)

		switch f.Status {
		case StatusImported:
			session.FilesImported++
			session.BytesImported += f.Size
		case StatusFailed:
			session.FilesFailed++
		case StatusDuplicateInSource:
			session.FilesDuplicate++
		case StatusPreExisting:
			session.FilesPreExist++
		}
	}
	m.mu.Unlock()

	if err := m.history.RecordSession(session); err != nil {
		logger.Warn("Could not record import history", logger.F("error", err))
	}
}

// publishLocked snapshots the session for observers; m.mu must be held.
// Files are deep-copied so later pipeline mutations cannot leak into a
// published batch.
func (m *Manager) publishLocked() {
	snap := StoreSnapshot{
		SessionID: m.sessionID,
		State:     m.state,
		Files:     make([]*File, len(m.files)),
		Progress:  m.progress.Snapshot(),
		Warnings:  append([]ScanWarning(nil), m.warnings...),
	}
	for i, f := range m.files {
		snap.Files[i] = f.Clone()
	}
	m.store.Publish(snap)
}

func mediaTypeFilter(types []string) map[utils.MediaType]bool {
	if len(types) == 0 {
		return nil
	}
	filter := make(map[utils.MediaType]bool, len(types))
	for _, t := range types {
		filter[utils.MediaType(t)] = true
	}
	return filter
}
