package pipeline

import (
	"sync"
	"time"
)

// Progress aggregates byte and file counters for one import session and
// derives elapsed/remaining time estimates from them. It performs no
// I/O; the executor drives it.
type Progress struct {
	mu sync.RWMutex

	totalBytes    int64
	importedBytes int64
	totalFiles    int
	importedFiles int
	startTime     *time.Time
}

// NewProgress creates an idle progress aggregator
func NewProgress() *Progress {
	return &Progress{}
}

// Start resets all counters from the candidate set and stamps the
// current time. Only importable files count toward the totals.
func (p *Progress) Start(files []*File) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalBytes = 0
	p.totalFiles = 0
	p.importedBytes = 0
	p.importedFiles = 0
	for _, f := range files {
		if f.Importable() {
			p.totalBytes += f.Size
			p.totalFiles++
		}
	}
	now := time.Now()
	p.startTime = &now
}

// Update records a completed file. Only successfully imported files move
// the counters; failures contribute nothing.
func (p *Progress) Update(f *File) {
	if f.Status != StatusImported {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.importedBytes += f.Size
	p.importedFiles++
}

// Finish clears the start time; elapsed and remaining become undefined
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = nil
}

// ElapsedSeconds returns the seconds since Start, or false when no
// session is running.
func (p *Progress) ElapsedSeconds() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.elapsedLocked()
}

func (p *Progress) elapsedLocked() (float64, bool) {
	if p.startTime == nil {
		return 0, false
	}
	return time.Since(*p.startTime).Seconds(), true
}

// RemainingSeconds estimates time to completion from the observed
// throughput. Undefined until some bytes have been imported and some
// time has passed, which keeps early estimates from being nonsense.
func (p *Progress) RemainingSeconds() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed, ok := p.elapsedLocked()
	if !ok || elapsed <= 0 || p.importedBytes == 0 {
		return 0, false
	}
	throughput := float64(p.importedBytes) / elapsed
	return float64(p.totalBytes-p.importedBytes) / throughput, true
}

// Snapshot is an immutable view of the counters for observers
type Snapshot struct {
	TotalBytes    int64
	ImportedBytes int64
	TotalFiles    int
	ImportedFiles int

	// Running reports whether a session is in progress
	Running bool

	// ElapsedSeconds and RemainingSeconds are valid only when the
	// corresponding Has flag is set
	ElapsedSeconds   float64
	HasElapsed       bool
	RemainingSeconds float64
	HasRemaining     bool
}

// Snapshot returns the current counters and estimates
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		TotalBytes:    p.totalBytes,
		ImportedBytes: p.importedBytes,
		TotalFiles:    p.totalFiles,
		ImportedFiles: p.importedFiles,
		Running:       p.startTime != nil,
	}
	if elapsed, ok := p.elapsedLocked(); ok {
		s.ElapsedSeconds = elapsed
		s.HasElapsed = true
		if elapsed > 0 && p.importedBytes > 0 {
			throughput := float64(p.importedBytes) / elapsed
			s.RemainingSeconds = float64(p.totalBytes-p.importedBytes) / throughput
			s.HasRemaining = true
		}
	}
	return s
}
