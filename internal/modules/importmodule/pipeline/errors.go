package pipeline

import (
	"errors"
)

// Error taxonomy for the import pipeline. Per-file failures wrap one of
// these sentinels; only ErrVolumeUnavailable and context cancellation
// stop a session early.
var (
	// ErrVolumeUnavailable indicates the source volume disappeared.
	// It aborts the current scan as a cancellation, not a crash.
	ErrVolumeUnavailable = errors.New("volume unavailable")

	// ErrDirectoryUnreadable marks a directory that could not be
	// enumerated; the scan skips it and continues
	ErrDirectoryUnreadable = errors.New("directory unreadable")

	// ErrMetadataRead marks an embedded-metadata read failure; the
	// capture timestamp falls back to filesystem mtime
	ErrMetadataRead = errors.New("metadata read failed")

	// ErrHashComputation marks a content-hash failure; the candidate is
	// treated as non-duplicate and never silently skipped as one
	ErrHashComputation = errors.New("hash computation failed")

	// ErrCopyFailed marks a per-file copy failure; the session continues
	ErrCopyFailed = errors.New("copy failed")

	// ErrVerifyFailed marks a post-copy verification mismatch
	ErrVerifyFailed = errors.New("copy verification failed")
)

// ScanWarning records a recoverable problem encountered during
// enumeration, reported to the user without aborting the scan.
type ScanWarning struct {
	Path string
	Err  error
}
