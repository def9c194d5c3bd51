package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardhaul/cardhaul/internal/logger"
	"github.com/cardhaul/cardhaul/internal/utils"
)

// Resolver owns the per-session collision state: a claim map from
// finalized destination path to the claiming file, and the set of
// content hashes already claimed this session. Candidates must be
// resolved in scan order; given unchanged inputs and an unchanged
// destination configuration, re-running resolution yields identical
// assignments.
//
// The resolver is not safe for concurrent use. Enrichment completions
// serialize into it through the coordinator, which is what enforces the
// single-writer invariant on session state.
type Resolver struct {
	claims map[string]*File
	hashes map[string]*File

	// exists and hashAt touch the destination filesystem; tests swap
	// them out
	exists func(string) bool
	hashAt func(string) (string, error)
	statAt func(string) (int64, error)
}

// NewResolver creates a resolver with empty session state
func NewResolver() *Resolver {
	r := &Resolver{
		exists: utils.FileExists,
		hashAt: utils.HashFile,
		statAt: func(path string) (int64, error) {
			info, err := os.Stat(path)
			if err != nil {
				return 0, err
			}
			return info.Size(), nil
		},
	}
	r.Reset()
	return r
}

// Reset discards all session state. Called at the start of every scan
// and every recalculation pass.
func (r *Resolver) Reset() {
	r.claims = make(map[string]*File)
	r.hashes = make(map[string]*File)
}

// Resolve finalizes the destination assignment and status for one
// enriched candidate:
//
//  1. A content hash already claimed this session marks the candidate
//     duplicate_in_source with no destination.
//  2. A byte-identical file already on disk at the proposed path marks
//     it pre_existing; nothing is copied.
//  3. Name collisions (on disk with different content, or claimed this
//     session) resolve to the lowest integer-suffixed name that is both
//     absent on disk and unclaimed.
//
// On acceptance the path and hash are recorded in session state and the
// file stays waiting for the executor.
func (r *Resolver) Resolve(f *File, proposed string) {
	if key, ok := r.hashKey(f); ok {
		if _, claimed := r.hashes[key]; claimed {
			f.Status = StatusDuplicateInSource
			f.DestPath = ""
			return
		}
	}

	path := proposed
	if r.exists(proposed) {
		if r.contentMatches(proposed, f) {
			f.Status = StatusPreExisting
			f.DestPath = proposed
			r.claim(proposed, f)
			return
		}
		path = r.nextFreePath(proposed)
	} else if _, claimed := r.claims[proposed]; claimed {
		path = r.nextFreePath(proposed)
	}

	f.Status = StatusWaiting
	f.DestPath = path
	r.claim(path, f)
}

// Retain re-registers an already-imported file's destination and hash
// in session state without touching its status. Recalculation uses this
// so imported files keep deduplicating later candidates while never
// being regressed themselves.
func (r *Resolver) Retain(f *File) {
	if f.DestPath != "" {
		r.claim(f.DestPath, f)
	}
}

// nextFreePath appends integer suffixes to the filename stem, starting
// at 1, until a path is found that is absent on disk and unclaimed in
// this session.
func (r *Resolver) nextFreePath(proposed string) string {
	ext := filepath.Ext(proposed)
	stem := strings.TrimSuffix(proposed, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, claimed := r.claims[candidate]; claimed {
			continue
		}
		if r.exists(candidate) {
			continue
		}
		return candidate
	}
}

// contentMatches compares the candidate against the on-disk file at
// path using size plus content hash. Any uncertainty (missing candidate
// hash, unreadable destination) counts as a mismatch so the candidate
// is suffixed rather than skipped or overwritten.
func (r *Resolver) contentMatches(path string, f *File) bool {
	if f.ContentHash == "" {
		return false
	}
	size, err := r.statAt(path)
	if err != nil || size != f.Size {
		return false
	}
	diskHash, err := r.hashAt(path)
	if err != nil {
		logger.Warn("Could not hash destination file; treating as different",
			logger.F("path", path), logger.F("error", err))
		return false
	}
	return diskHash == f.ContentHash
}

func (r *Resolver) claim(path string, f *File) {
	r.claims[path] = f
	if key, ok := r.hashKey(f); ok {
		r.hashes[key] = f
	}
}

// hashKey combines hash and size; both must match for two files to be
// considered content duplicates. Files whose hash could not be computed
// never participate in duplicate detection.
func (r *Resolver) hashKey(f *File) (string, bool) {
	if f.ContentHash == "" {
		return "", false
	}
	return fmt.Sprintf("%s:%d", f.ContentHash, f.Size), true
}
