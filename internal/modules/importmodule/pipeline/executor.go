package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cardhaul/cardhaul/internal/logger"
	"github.com/cardhaul/cardhaul/internal/utils"
)

// Executor copies bytes for files that resolved to an uncontested
// destination. Each file is copied to a temporary name, size-verified,
// and renamed into place; a failure on one file never aborts the rest.
// Cancellation is cooperative, checked between files and between chunks
// of a single copy, and an interrupted in-flight copy is rolled back so
// nothing ambiguous is left at the destination.
type Executor struct {
	chunkSize       int
	concurrency     int
	deleteOriginals bool
	progress        *Progress

	// onComplete is invoked after each file reaches a terminal state;
	// the coordinator uses it to publish batches
	onComplete func(*File)
}

// Outcome summarizes one executor run
type Outcome struct {
	Imported  int
	Failed    int
	Cancelled bool
}

// NewExecutor creates an executor. A concurrency of 1 (the default
// configuration) serializes writes to the destination volume.
func NewExecutor(chunkSize, concurrency int, deleteOriginals bool, progress *Progress, onComplete func(*File)) *Executor {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		chunkSize:       chunkSize,
		concurrency:     concurrency,
		deleteOriginals: deleteOriginals,
		progress:        progress,
		onComplete:      onComplete,
	}
}

// Run imports every importable file in the candidate set. Files that are
// pre-existing, duplicates, or already terminal are skipped. The
// candidate slice is mutated in place (status and error only).
func (ex *Executor) Run(ctx context.Context, files []*File) Outcome {
	candidates := make([]*File, 0, len(files))
	for _, f := range files {
		if f.Importable() {
			candidates = append(candidates, f)
		}
	}

	ex.progress.Start(files)
	defer ex.progress.Finish()

	var (
		mu      sync.Mutex
		outcome Outcome
		wg      sync.WaitGroup
		sem     = make(chan struct{}, ex.concurrency)
	)

	for _, f := range candidates {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(f *File) {
			defer wg.Done()
			defer func() { <-sem }()

			err := ex.importFile(ctx, f)

			// Terminal-state writes and completion callbacks are
			// serialized here; observers cloning the file list do so
			// from inside onComplete and therefore never overlap a
			// status write.
			mu.Lock()
			switch {
			case errors.Is(err, context.Canceled):
				// Rolled back; the file stays waiting.
				outcome.Cancelled = true
			case err != nil:
				f.Status = StatusFailed
				f.Err = err
				outcome.Failed++
				logger.Error("Import failed",
					logger.F("source", f.SourcePath), logger.F("error", err))
			default:
				f.Status = StatusImported
				outcome.Imported++
			}
			ex.progress.Update(f)
			if ex.onComplete != nil && f.Status != StatusWaiting {
				ex.onComplete(f)
			}
			mu.Unlock()
		}(f)
	}

	wg.Wait()
	if ctx.Err() != nil {
		outcome.Cancelled = true
	}
	return outcome
}

// importFile copies one file and its sidecars. Originals are deleted
// only after their own copy has been verified: a sidecar whose copy
// failed keeps its original even when the primary imported fine.
func (ex *Executor) importFile(ctx context.Context, f *File) error {
	if err := os.MkdirAll(filepath.Dir(f.DestPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}

	if err := ex.copyVerified(ctx, f.SourcePath, f.DestPath, f.Size); err != nil {
		return err
	}

	copied := make([]string, 0, len(f.SidecarPaths))
	for _, sidecar := range f.SidecarPaths {
		dest := ex.sidecarDest(f, sidecar)
		info, err := os.Stat(sidecar)
		if err != nil {
			logger.Warn("Sidecar unreadable; skipped", logger.F("path", sidecar), logger.F("error", err))
			continue
		}
		if err := ex.copyVerified(ctx, sidecar, dest, info.Size()); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("Sidecar copy failed; keeping its original",
				logger.F("path", sidecar), logger.F("error", err))
			continue
		}
		copied = append(copied, sidecar)
	}

	if ex.deleteOriginals {
		ex.removeOriginals(f, copied)
	}
	return nil
}

// copyVerified copies src to dest through a temporary file, verifies the
// byte count, and renames into place. The temporary file is removed on
// any failure or cancellation.
func (ex *Executor) copyVerified(ctx context.Context, src, dest string, wantSize int64) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	defer in.Close()

	// A stale .partial from a crashed earlier run would otherwise fail
	// the exclusive create forever; it holds no verified data, so it is
	// safe to discard.
	tmp := dest + ".partial"
	os.Remove(tmp)
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}

	written, err := ex.copyChunks(ctx, out, in)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", ErrCopyFailed, cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if written != wantSize {
		os.Remove(tmp)
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrVerifyFailed, written, wantSize)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	return nil
}

// copyChunks copies in fixed-size chunks, consulting ctx between chunks
func (ex *Executor) copyChunks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ex.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, context.Canceled
		}
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("%w: %v", ErrCopyFailed, werr)
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("%w: %v", ErrCopyFailed, err)
		}
	}
}

// sidecarDest places a sidecar next to the imported primary, renamed to
// the primary's destination stem with the sidecar's own extension.
func (ex *Executor) sidecarDest(f *File, sidecar string) string {
	destDir := filepath.Dir(f.DestPath)
	destStem := utils.Stem(f.DestPath)
	ext := strings.ToLower(filepath.Ext(sidecar))
	return filepath.Join(destDir, destStem+ext)
}

// removeOriginals deletes the primary source and only those sidecars
// whose copies were verified.
func (ex *Executor) removeOriginals(f *File, copiedSidecars []string) {
	paths := append([]string{f.SourcePath}, copiedSidecars...)
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			logger.Warn("Could not delete original", logger.F("path", p), logger.F("error", err))
		}
	}
}
