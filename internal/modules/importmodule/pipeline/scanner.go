package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cardhaul/cardhaul/internal/logger"
	"github.com/cardhaul/cardhaul/internal/utils"
)

// Scanner enumerates a volume's filesystem tree, producing placeholder
// File records in a deterministic order. Directories whose names match
// the ignore set are pruned before descent. Each directory is processed
// as a unit so sidecars can be associated with their primary file
// without a second pass.
type Scanner struct {
	ignore map[string]bool

	mu       sync.Mutex
	warnings []ScanWarning
}

// NewScanner creates a scanner with the given ignored directory names,
// matched case-insensitively. Hidden entries are always skipped.
func NewScanner(ignoreNames []string) *Scanner {
	ignore := make(map[string]bool, len(ignoreNames))
	for _, name := range ignoreNames {
		ignore[strings.ToLower(name)] = true
	}
	return &Scanner{ignore: ignore}
}

// Scan walks root and sends placeholder Files on the returned channel in
// scan order. The channel closes when enumeration finishes; the error
// channel carries at most one error (volume loss or cancellation).
// A fresh call discards warnings from any prior scan.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan *File, <-chan error) {
	files := make(chan *File, 64)
	errs := make(chan error, 1)

	s.mu.Lock()
	s.warnings = nil
	s.mu.Unlock()

	go func() {
		defer close(files)
		defer close(errs)

		if _, err := os.Stat(root); err != nil {
			errs <- fmt.Errorf("%w: %s: %v", ErrVolumeUnavailable, root, err)
			return
		}

		index := 0
		if err := s.scanDir(ctx, root, files, &index); err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Warnings returns the recoverable problems hit during the last scan
func (s *Scanner) Warnings() []ScanWarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanWarning(nil), s.warnings...)
}

// scanDir enumerates one directory: media files are emitted with their
// sidecars attached, then subdirectories are descended in lexical order.
func (s *Scanner) scanDir(ctx context.Context, dir string, files chan<- *File, index *int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// The volume vanishing from under the walk is a cancellation,
		// not a skippable directory.
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) && dir != "" {
			if _, rootErr := os.Stat(filepath.Dir(dir)); os.IsNotExist(rootErr) {
				return fmt.Errorf("%w: %s", ErrVolumeUnavailable, dir)
			}
		}
		s.warn(dir, fmt.Errorf("%w: %v", ErrDirectoryUnreadable, err))
		return nil
	}

	var subdirs []string
	var media []os.DirEntry
	sidecars := make(map[string][]string)

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if entry.IsDir() {
			if s.ignore[strings.ToLower(name)] {
				continue
			}
			subdirs = append(subdirs, name)
			continue
		}
		path := filepath.Join(dir, name)
		switch {
		case utils.IsMediaFile(path):
			media = append(media, entry)
		case utils.IsSidecarFile(path):
			stem := strings.ToLower(utils.Stem(path))
			sidecars[stem] = append(sidecars[stem], path)
		}
	}

	sort.Slice(media, func(i, j int) bool { return media[i].Name() < media[j].Name() })
	sort.Strings(subdirs)

	claimed := s.assignSidecars(dir, media, sidecars)

	for _, entry := range media {
		info, err := entry.Info()
		if err != nil {
			s.warn(filepath.Join(dir, entry.Name()), err)
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f := &File{
			SourcePath:   path,
			SidecarPaths: claimed[path],
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			MediaType:    utils.DetectMediaType(path),
			Status:       StatusWaiting,
			ScanIndex:    *index,
		}
		*index++

		select {
		case files <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, name := range subdirs {
		if err := s.scanDir(ctx, filepath.Join(dir, name), files, index); err != nil {
			return err
		}
	}
	return nil
}

// assignSidecars attaches each sidecar to the primary media file sharing
// its stem. When a RAW+JPEG pair shares the stem the sidecar goes to the
// higher-priority type.
func (s *Scanner) assignSidecars(dir string, media []os.DirEntry, sidecars map[string][]string) map[string][]string {
	primaries := make(map[string]string) // stem -> chosen primary path
	for _, entry := range media {
		path := filepath.Join(dir, entry.Name())
		stem := strings.ToLower(utils.Stem(path))
		current, ok := primaries[stem]
		if !ok || mediaPriority(path) > mediaPriority(current) {
			primaries[stem] = path
		}
	}

	claimed := make(map[string][]string)
	for stem, paths := range sidecars {
		primary, ok := primaries[stem]
		if !ok {
			continue
		}
		sort.Strings(paths)
		claimed[primary] = paths
	}
	return claimed
}

func mediaPriority(path string) int {
	switch utils.DetectMediaType(path) {
	case utils.MediaTypeRaw:
		return 4
	case utils.MediaTypePhoto:
		return 3
	case utils.MediaTypeVideo:
		return 2
	case utils.MediaTypeAudio:
		return 1
	}
	return 0
}

func (s *Scanner) warn(path string, err error) {
	logger.Warn("Skipping unreadable entry", logger.F("path", path), logger.F("error", err))
	s.mu.Lock()
	s.warnings = append(s.warnings, ScanWarning{Path: path, Err: err})
	s.mu.Unlock()
}
