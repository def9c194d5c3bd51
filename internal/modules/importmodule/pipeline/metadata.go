package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/dhowden/tag"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/cardhaul/cardhaul/internal/utils"
)

// resolveCaptureTime fills f.CaptureTime with the embedded metadata
// timestamp when one can be read, falling back to the filesystem mtime.
// The returned error is informational; it never fails enrichment.
func resolveCaptureTime(f *File) error {
	f.CaptureTime = f.ModTime

	switch f.MediaType {
	case utils.MediaTypePhoto, utils.MediaTypeRaw:
		ts, err := exifCaptureTime(f.SourcePath)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMetadataRead, f.SourcePath, err)
		}
		f.CaptureTime = ts
	}
	return nil
}

// exifCaptureTime reads DateTimeOriginal (or DateTime) from EXIF data
func exifCaptureTime(path string) (time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer file.Close()

	data, err := exif.Decode(file)
	if err != nil {
		return time.Time{}, err
	}
	return data.DateTime()
}

// readAudioTags fills Title/Artist from embedded audio tags so the
// rename template tokens have something to work with. Missing or
// unreadable tags are not an error.
func readAudioTags(f *File) {
	if f.MediaType != utils.MediaTypeAudio {
		return
	}
	file, err := os.Open(f.SourcePath)
	if err != nil {
		return
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return
	}
	f.Title = meta.Title()
	f.Artist = meta.Artist()
}
