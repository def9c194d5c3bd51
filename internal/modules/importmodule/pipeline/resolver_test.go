package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDisk lets resolver tests control what the destination filesystem
// appears to contain without touching the real one.
type fakeDisk struct {
	hashes map[string]string
	sizes  map[string]int64
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{hashes: make(map[string]string), sizes: make(map[string]int64)}
}

func (d *fakeDisk) put(path, hash string, size int64) {
	d.hashes[path] = hash
	d.sizes[path] = size
}

func newTestResolver(disk *fakeDisk) *Resolver {
	r := NewResolver()
	r.exists = func(path string) bool {
		_, ok := disk.hashes[path]
		return ok
	}
	r.hashAt = func(path string) (string, error) {
		hash, ok := disk.hashes[path]
		if !ok {
			return "", fmt.Errorf("no such file %s", path)
		}
		return hash, nil
	}
	r.statAt = func(path string) (int64, error) {
		size, ok := disk.sizes[path]
		if !ok {
			return 0, fmt.Errorf("no such file %s", path)
		}
		return size, nil
	}
	return r
}

func candidate(src, hash string, size int64) *File {
	return &File{
		SourcePath:  src,
		ContentHash: hash,
		Size:        size,
		Status:      StatusWaiting,
	}
}

func TestResolveAssignsProposedPath(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	f := candidate("/card/IMG_0001.jpg", "aaa", 100)
	r.Resolve(f, "/lib/2024/IMG_0001.jpg")

	assert.Equal(t, StatusWaiting, f.Status)
	assert.Equal(t, "/lib/2024/IMG_0001.jpg", f.DestPath)
}

func TestResolveDuplicateInSource(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	first := candidate("/card/DCIM/IMG_0001.jpg", "aaa", 100)
	second := candidate("/card/BACKUP/IMG_9999.jpg", "aaa", 100)
	r.Resolve(first, "/lib/a.jpg")
	r.Resolve(second, "/lib/b.jpg")

	assert.Equal(t, StatusWaiting, first.Status)
	assert.Equal(t, StatusDuplicateInSource, second.Status)
	assert.Empty(t, second.DestPath, "duplicates must not hold a destination")
}

func TestResolveSameHashDifferentSizeIsNotDuplicate(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	first := candidate("/card/a.jpg", "aaa", 100)
	second := candidate("/card/b.jpg", "aaa", 200)
	r.Resolve(first, "/lib/a.jpg")
	r.Resolve(second, "/lib/b.jpg")

	assert.Equal(t, StatusWaiting, second.Status)
	assert.Equal(t, "/lib/b.jpg", second.DestPath)
}

func TestResolvePreExistingInLibrary(t *testing.T) {
	disk := newFakeDisk()
	disk.put("/lib/2024/IMG_0001.jpg", "aaa", 100)
	r := newTestResolver(disk)

	f := candidate("/card/IMG_0001.jpg", "aaa", 100)
	r.Resolve(f, "/lib/2024/IMG_0001.jpg")

	assert.Equal(t, StatusPreExisting, f.Status)
	assert.Equal(t, "/lib/2024/IMG_0001.jpg", f.DestPath)
	assert.False(t, f.Importable())
}

func TestResolvePreExistingStillDeduplicatesLaterCandidates(t *testing.T) {
	disk := newFakeDisk()
	disk.put("/lib/IMG_0001.jpg", "aaa", 100)
	r := newTestResolver(disk)

	first := candidate("/card/IMG_0001.jpg", "aaa", 100)
	second := candidate("/card/copy/IMG_0001.jpg", "aaa", 100)
	r.Resolve(first, "/lib/IMG_0001.jpg")
	r.Resolve(second, "/lib/copy/IMG_0001.jpg")

	assert.Equal(t, StatusPreExisting, first.Status)
	assert.Equal(t, StatusDuplicateInSource, second.Status)
}

func TestResolveSuffixesOnDiskNameCollision(t *testing.T) {
	disk := newFakeDisk()
	disk.put("/lib/IMG_0001.jpg", "other", 50)
	r := newTestResolver(disk)

	f := candidate("/card/IMG_0001.jpg", "aaa", 100)
	r.Resolve(f, "/lib/IMG_0001.jpg")

	assert.Equal(t, StatusWaiting, f.Status)
	assert.Equal(t, "/lib/IMG_0001_1.jpg", f.DestPath)
}

func TestResolveSuffixesOnSessionClaim(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	first := candidate("/card/A/IMG_0001.jpg", "aaa", 100)
	second := candidate("/card/B/IMG_0001.jpg", "bbb", 200)
	r.Resolve(first, "/lib/IMG_0001.jpg")
	r.Resolve(second, "/lib/IMG_0001.jpg")

	assert.Equal(t, "/lib/IMG_0001.jpg", first.DestPath)
	assert.Equal(t, "/lib/IMG_0001_1.jpg", second.DestPath)
	assert.Equal(t, StatusWaiting, second.Status)
}

func TestResolveSuffixSkipsClaimedAndOnDiskNames(t *testing.T) {
	disk := newFakeDisk()
	disk.put("/lib/IMG_0001.jpg", "x", 1)
	disk.put("/lib/IMG_0001_2.jpg", "y", 2)
	r := newTestResolver(disk)

	first := candidate("/card/A/IMG_0001.jpg", "aaa", 100)
	second := candidate("/card/B/IMG_0001.jpg", "bbb", 200)
	r.Resolve(first, "/lib/IMG_0001.jpg")
	r.Resolve(second, "/lib/IMG_0001.jpg")

	assert.Equal(t, "/lib/IMG_0001_1.jpg", first.DestPath)
	assert.Equal(t, "/lib/IMG_0001_3.jpg", second.DestPath)
}

func TestResolveMissingHashNeverParticipatesInDedup(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	first := candidate("/card/a.jpg", "", 100)
	second := candidate("/card/b.jpg", "", 100)
	r.Resolve(first, "/lib/a.jpg")
	r.Resolve(second, "/lib/b.jpg")

	assert.Equal(t, StatusWaiting, first.Status)
	assert.Equal(t, StatusWaiting, second.Status)
}

func TestResolveMissingHashAgainstExistingFileIsSuffixed(t *testing.T) {
	disk := newFakeDisk()
	disk.put("/lib/a.jpg", "aaa", 100)
	r := newTestResolver(disk)

	// Uncertain content comparison must never skip the file
	f := candidate("/card/a.jpg", "", 100)
	r.Resolve(f, "/lib/a.jpg")

	assert.Equal(t, StatusWaiting, f.Status)
	assert.Equal(t, "/lib/a_1.jpg", f.DestPath)
}

func TestResolveDestinationsArePairwiseUnique(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	var files []*File
	for i := 0; i < 20; i++ {
		f := candidate(fmt.Sprintf("/card/%02d/IMG_0001.jpg", i), fmt.Sprintf("h%d", i), int64(i+1))
		r.Resolve(f, "/lib/IMG_0001.jpg")
		files = append(files, f)
	}

	seen := make(map[string]bool)
	for _, f := range files {
		require.NotEmpty(t, f.DestPath)
		assert.False(t, seen[f.DestPath], "destination %s assigned twice", f.DestPath)
		seen[f.DestPath] = true
	}
}

func TestResolveIsDeterministicAcrossReset(t *testing.T) {
	run := func() []string {
		r := newTestResolver(newFakeDisk())
		inputs := []*File{
			candidate("/card/a.jpg", "h1", 10),
			candidate("/card/b.jpg", "h2", 20),
			candidate("/card/c.jpg", "h1", 10),
			candidate("/card/d.jpg", "h3", 30),
		}
		var out []string
		for _, f := range inputs {
			r.Resolve(f, "/lib/pic.jpg")
			out = append(out, f.DestPath+"|"+string(f.Status))
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestRetainKeepsImportedFilesDeduplicating(t *testing.T) {
	r := newTestResolver(newFakeDisk())

	imported := candidate("/card/a.jpg", "aaa", 100)
	imported.Status = StatusImported
	imported.DestPath = "/lib/old/a.jpg"
	r.Retain(imported)

	assert.Equal(t, StatusImported, imported.Status)
	assert.Equal(t, "/lib/old/a.jpg", imported.DestPath)

	// Same content arriving again resolves as a duplicate
	dup := candidate("/card/b.jpg", "aaa", 100)
	r.Resolve(dup, "/lib/new/b.jpg")
	assert.Equal(t, StatusDuplicateInSource, dup.Status)

	// And the imported file's destination stays claimed
	clash := candidate("/card/c.jpg", "ccc", 1)
	r.Resolve(clash, "/lib/old/a.jpg")
	assert.Equal(t, "/lib/old/a_1.jpg", clash.DestPath)
}
