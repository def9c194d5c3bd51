package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/cardhaul/cardhaul/internal/logger"
	"github.com/cardhaul/cardhaul/internal/utils"
)

// Enricher runs the per-file background pass: capture timestamp
// resolution, content hashing, proposed destination templating, and the
// thumbnail request dispatch. Work is spread across a bounded worker
// pool to overlap I/O latency; completions are funneled through a single
// output channel so downstream session bookkeeping stays single-writer.
type Enricher struct {
	workers   int
	template  Template
	thumbs    ThumbnailRequester
	throttler *Throttler
}

// NewEnricher creates an enricher. thumbs and throttler may be nil.
func NewEnricher(workers int, template Template, thumbs ThumbnailRequester, throttler *Throttler) *Enricher {
	if workers < 1 {
		workers = 1
	}
	return &Enricher{
		workers:   workers,
		template:  template,
		thumbs:    thumbs,
		throttler: throttler,
	}
}

// Enriched pairs a file with its proposed destination path
type Enriched struct {
	File *File

	// Proposed is the templated destination before collision resolution
	Proposed string

	// HashErr is set when content hashing failed; the resolver treats
	// such candidates as non-duplicates
	HashErr error
}

// Run consumes placeholder files and emits enriched results. The output
// channel closes once all input has been processed or ctx is cancelled.
func (e *Enricher) Run(ctx context.Context, in <-chan *File) <-chan Enriched {
	out := make(chan Enriched, e.workers)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-in:
					if !ok {
						return
					}
					result, ok := e.enrich(ctx, f)
					if !ok {
						return
					}
					select {
					case out <- result:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// enrich fills in timestamp, hash, tags, and the proposed destination
// for one file. Metadata failures fall back; only hashing failures are
// surfaced to the resolver. Returns false when cancelled mid-wait, so
// no half-enriched result reaches the resolver.
func (e *Enricher) enrich(ctx context.Context, f *File) (Enriched, bool) {
	if e.throttler != nil {
		if err := e.throttler.Wait(ctx); err != nil {
			return Enriched{}, false
		}
	}

	if err := resolveCaptureTime(f); err != nil {
		logger.Debug("Falling back to mtime", logger.F("path", f.SourcePath), logger.F("error", err))
	}
	readAudioTags(f)

	var hashErr error
	hash, err := utils.HashFile(f.SourcePath)
	if err != nil {
		hashErr = fmt.Errorf("%w: %s: %v", ErrHashComputation, f.SourcePath, err)
		logger.Warn("Content hash failed; file will not deduplicate",
			logger.F("path", f.SourcePath), logger.F("error", err))
	} else {
		f.ContentHash = hash
	}

	// Thumbnails never gate destination computation.
	if e.thumbs != nil {
		e.thumbs.Request(f.SourcePath)
	}

	return Enriched{
		File:     f,
		Proposed: e.template.DestinationFor(f),
		HashErr:  hashErr,
	}, true
}
