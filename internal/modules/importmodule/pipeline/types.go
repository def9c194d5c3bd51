// Package pipeline implements the card import pipeline: source
// enumeration, per-file enrichment, deterministic destination
// resolution, and the progress-tracked copy executor.
package pipeline

import (
	"time"

	"github.com/cardhaul/cardhaul/internal/utils"
)

// Status tracks a file through the import lifecycle. A file only ever
// advances from waiting to one of the terminal states; recalculation may
// reset a non-imported file back to waiting.
type Status string

const (
	StatusWaiting           Status = "waiting"
	StatusImported          Status = "imported"
	StatusPreExisting       Status = "pre_existing"
	StatusDuplicateInSource Status = "duplicate_in_source"
	StatusFailed            Status = "failed"
)

// File is one discovered media item. SourcePath is its identity within a
// scan and never changes; the remaining fields are filled in as the file
// moves through the stages.
type File struct {
	// SourcePath is the absolute path on the source volume
	SourcePath string

	// SidecarPaths are associated non-primary files sharing the filename
	// stem, in lexical order
	SidecarPaths []string

	// Size in bytes, from filesystem metadata at scan time
	Size int64

	// MediaType derived from the extension
	MediaType utils.MediaType

	// ContentHash is the SHA-256 of the file bytes; empty until
	// enrichment completes or when hashing failed
	ContentHash string

	// CaptureTime is the best available timestamp: embedded metadata if
	// present, filesystem mtime otherwise
	CaptureTime time.Time

	// ModTime is the filesystem modification time
	ModTime time.Time

	// Title and Artist come from embedded audio tags and feed the
	// rename template tokens; empty for non-audio files
	Title  string
	Artist string

	// DestPath is the finalized destination; assigned only by the
	// resolver, empty for duplicates
	DestPath string

	// Status of the file within the session
	Status Status

	// Err holds the failure cause when Status is failed
	Err error

	// ScanIndex is the position in scan order; resolution processes
	// candidates in this order so outcomes are reproducible
	ScanIndex int
}

// Clone returns a deep copy, used when handing files to observers so the
// pipeline can keep mutating its own instances.
func (f *File) Clone() *File {
	c := *f
	c.SidecarPaths = append([]string(nil), f.SidecarPaths...)
	return &c
}

// Importable reports whether the executor should copy this file
func (f *File) Importable() bool {
	return f.Status == StatusWaiting && f.DestPath != ""
}

// ThumbnailRequester receives fire-and-forget thumbnail requests keyed
// by source path. Implementations must not block the caller.
type ThumbnailRequester interface {
	Request(sourcePath string)
}
