package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhaul/cardhaul/internal/utils"
)

type recordingThumbs struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingThumbs) Request(sourcePath string) {
	r.mu.Lock()
	r.paths = append(r.paths, sourcePath)
	r.mu.Unlock()
}

func enrichAll(t *testing.T, e *Enricher, files []*File) map[string]Enriched {
	t.Helper()
	in := make(chan *File, len(files))
	for _, f := range files {
		in <- f
	}
	close(in)

	out := make(map[string]Enriched)
	for en := range e.Run(context.Background(), in) {
		out[en.File.SourcePath] = en
	}
	return out
}

func TestEnricherHashesAndProposesDestinations(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "clip.mp4"), "video bytes")
	info, err := os.Stat(filepath.Join(src, "clip.mp4"))
	require.NoError(t, err)

	f := &File{
		SourcePath: filepath.Join(src, "clip.mp4"),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		MediaType:  utils.MediaTypeVideo,
		Status:     StatusWaiting,
	}

	e := NewEnricher(2, Template{Root: "/lib", FolderLayout: "2006"}, nil, nil)
	results := enrichAll(t, e, []*File{f})
	en := results[f.SourcePath]

	require.NoError(t, en.HashErr)
	assert.NotEmpty(t, en.File.ContentHash)
	assert.Equal(t, info.ModTime(), en.File.CaptureTime, "non-photo falls back to mtime")
	assert.Equal(t, filepath.Join("/lib", info.ModTime().Format("2006"), "clip.mp4"), en.Proposed)
}

func TestEnricherPhotoWithoutExifFallsBackToMtime(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "IMG.jpg"), "not a real jpeg")
	info, err := os.Stat(filepath.Join(src, "IMG.jpg"))
	require.NoError(t, err)

	f := &File{
		SourcePath: filepath.Join(src, "IMG.jpg"),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		MediaType:  utils.MediaTypePhoto,
		Status:     StatusWaiting,
	}

	e := NewEnricher(1, Template{Root: "/lib"}, nil, nil)
	results := enrichAll(t, e, []*File{f})

	assert.Equal(t, info.ModTime(), results[f.SourcePath].File.CaptureTime)
}

func TestEnricherMissingSourceSetsHashErr(t *testing.T) {
	f := &File{
		SourcePath: "/nonexistent/gone.jpg",
		MediaType:  utils.MediaTypePhoto,
		Status:     StatusWaiting,
	}

	e := NewEnricher(1, Template{Root: "/lib"}, nil, nil)
	results := enrichAll(t, e, []*File{f})
	en := results[f.SourcePath]

	assert.ErrorIs(t, en.HashErr, ErrHashComputation)
	assert.Empty(t, en.File.ContentHash)
	assert.NotEmpty(t, en.Proposed, "hash failure still yields a destination")
}

func TestEnricherRequestsThumbnails(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.jpg"), "a")
	writeFile(t, filepath.Join(src, "b.jpg"), "b")

	files := []*File{
		{SourcePath: filepath.Join(src, "a.jpg"), MediaType: utils.MediaTypePhoto},
		{SourcePath: filepath.Join(src, "b.jpg"), MediaType: utils.MediaTypePhoto},
	}

	thumbs := &recordingThumbs{}
	e := NewEnricher(2, Template{Root: "/lib"}, thumbs, nil)
	enrichAll(t, e, files)

	assert.ElementsMatch(t, []string{files[0].SourcePath, files[1].SourcePath}, thumbs.paths)
}

func TestEnricherThrottleCancellationEmitsNothing(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.jpg"), "a")

	// Stuck throttled with no sampler; only cancellation can release it
	throttler := &Throttler{throttled: true, stopCh: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan *File, 1)
	in <- &File{SourcePath: filepath.Join(src, "a.jpg"), MediaType: utils.MediaTypePhoto}
	close(in)

	e := NewEnricher(1, Template{Root: "/lib"}, nil, throttler)
	var results []Enriched
	for en := range e.Run(ctx, in) {
		results = append(results, en)
	}

	assert.Empty(t, results, "cancelled waits must not surface half-enriched files")
}

func TestEnricherCancellationClosesOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan *File)
	e := NewEnricher(2, Template{Root: "/lib"}, nil, nil)
	out := e.Run(ctx, in)

	for range out {
	}
	// Reaching here means the workers exited and closed the channel
}
