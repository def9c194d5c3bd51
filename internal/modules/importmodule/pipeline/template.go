package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/cardhaul/cardhaul/internal/config"
	"github.com/cardhaul/cardhaul/internal/utils"
)

// Template derives a file's proposed destination path from the library
// settings. Given the same settings and the same enriched file it always
// produces the same path; collision handling happens later in the
// resolver.
type Template struct {
	// Root is the destination library root
	Root string

	// FolderLayout is a Go reference-time layout applied to the capture
	// timestamp to build per-file subdirectories; empty places files
	// directly under Root
	FolderLayout string

	// Rename is the filename template; supported tokens are {name},
	// {date}, {time}, {type}, {title}, {artist}. Empty keeps the
	// original stem.
	Rename string

	// ExtMap canonicalizes extension variants; keys and values are
	// lowercase with the leading dot
	ExtMap map[string]string
}

// TemplateFromConfig builds a Template from library settings
func TemplateFromConfig(lib config.LibraryConfig) Template {
	extMap := make(map[string]string, len(lib.ExtensionMap))
	for k, v := range lib.ExtensionMap {
		extMap[strings.ToLower(k)] = strings.ToLower(v)
	}
	return Template{
		Root:         lib.DestinationRoot,
		FolderLayout: lib.FolderTemplate,
		Rename:       lib.RenameTemplate,
		ExtMap:       extMap,
	}
}

// DestinationFor returns the proposed destination path for an enriched
// file: Root / dated folder / templated name + canonical extension.
func (t Template) DestinationFor(f *File) string {
	dir := t.Root
	if t.FolderLayout != "" && !f.CaptureTime.IsZero() {
		dir = filepath.Join(dir, f.CaptureTime.Format(t.FolderLayout))
	}
	return filepath.Join(dir, t.filename(f)+t.canonicalExt(f.SourcePath))
}

func (t Template) filename(f *File) string {
	stem := utils.Stem(f.SourcePath)
	if t.Rename == "" {
		return stem
	}

	name := t.Rename
	name = strings.ReplaceAll(name, "{name}", stem)
	name = strings.ReplaceAll(name, "{type}", string(f.MediaType))
	if !f.CaptureTime.IsZero() {
		name = strings.ReplaceAll(name, "{date}", f.CaptureTime.Format("20060102"))
		name = strings.ReplaceAll(name, "{time}", f.CaptureTime.Format("150405"))
	} else {
		name = strings.ReplaceAll(name, "{date}", "")
		name = strings.ReplaceAll(name, "{time}", "")
	}
	name = strings.ReplaceAll(name, "{title}", tokenOr(f.Title, stem))
	name = strings.ReplaceAll(name, "{artist}", tokenOr(f.Artist, ""))

	name = strings.Trim(name, " -_")
	if name == "" {
		return stem
	}
	return name
}

// canonicalExt lowercases the extension and applies the canonicalization
// table, so case variants like .JPEG and .jpeg land on one form.
func (t Template) canonicalExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if canonical, ok := t.ExtMap[ext]; ok {
		return canonical
	}
	return ext
}

func tokenOr(value, fallback string) string {
	if value != "" {
		return sanitizeToken(value)
	}
	return fallback
}

// sanitizeToken strips path separators and other characters unsafe in
// filenames from tag-derived tokens.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
