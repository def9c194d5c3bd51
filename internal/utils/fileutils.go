// Package utils provides file system helpers shared by the pipeline
// modules: media type detection, content hashing, and path utilities.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MediaType classifies a file by its extension
type MediaType string

const (
	MediaTypePhoto   MediaType = "photo"
	MediaTypeVideo   MediaType = "video"
	MediaTypeAudio   MediaType = "audio"
	MediaTypeRaw     MediaType = "raw"
	MediaTypeUnknown MediaType = "unknown"
)

// photoExtensions contains supported photo file extensions
var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
	".heic": true,
	".heif": true,
}

// rawExtensions contains camera raw file extensions
var rawExtensions = map[string]bool{
	".cr2": true, // Canon
	".cr3": true, // Canon
	".nef": true, // Nikon
	".arw": true, // Sony
	".orf": true, // Olympus
	".rw2": true, // Panasonic
	".raf": true, // Fujifilm
	".pef": true, // Pentax
	".dng": true,
}

// videoExtensions contains supported video file extensions
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".mts":  true,
	".m2ts": true,
	".wmv":  true,
	".webm": true,
	".m4v":  true,
	".3gp":  true,
	".mpg":  true,
	".mpeg": true,
}

// audioExtensions contains supported audio file extensions
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".aiff": true,
	".wma":  true,
}

// sidecarExtensions contains non-primary files cameras write alongside
// media: edit metadata, preview thumbnails, and device XML.
var sidecarExtensions = map[string]bool{
	".xmp": true,
	".thm": true,
	".aae": true,
	".xml": true,
	".lrv": true,
	".srt": true,
}

// DetectMediaType classifies a path by extension
func DetectMediaType(path string) MediaType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case photoExtensions[ext]:
		return MediaTypePhoto
	case rawExtensions[ext]:
		return MediaTypeRaw
	case videoExtensions[ext]:
		return MediaTypeVideo
	case audioExtensions[ext]:
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}

// IsMediaFile reports whether the path has a recognized media extension
func IsMediaFile(path string) bool {
	return DetectMediaType(path) != MediaTypeUnknown
}

// IsSidecarFile reports whether the path is a known sidecar type
func IsSidecarFile(path string) bool {
	return sidecarExtensions[strings.ToLower(filepath.Ext(path))]
}

// Stem returns the filename without its directory or extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// HashFile calculates the SHA-256 hash of a file's contents.
// A 64KB buffer is used for better sequential read throughput.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	buffer := make([]byte, 65536)
	if _, err := io.CopyBuffer(hasher, file, buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FileExists reports whether path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
