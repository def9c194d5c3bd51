package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "2006/2006-01-02", cfg.Library.FolderTemplate)
	assert.Equal(t, 1, cfg.Import.CopyConcurrency)
	assert.Equal(t, 1024, cfg.Import.ChunkSizeKB)
	assert.True(t, cfg.Scanner.ThrottleEnabled)
	assert.False(t, cfg.Library.DeleteOriginals)
	assert.Contains(t, cfg.Scanner.IgnoreNames, ".Trashes")
	assert.Equal(t, ".jpg", cfg.Library.ExtensionMap[".jpeg"])
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
library:
  destination_root: /mnt/photos
  rename_template: "{date}_{name}"
  delete_originals: true
import:
  copy_concurrency: 2
`), 0644))

	m := NewManager()
	require.NoError(t, m.Load(path))

	cfg := m.Get()
	assert.Equal(t, "/mnt/photos", cfg.Library.DestinationRoot)
	assert.Equal(t, "{date}_{name}", cfg.Library.RenameTemplate)
	assert.True(t, cfg.Library.DeleteOriginals)
	assert.Equal(t, 2, cfg.Import.CopyConcurrency)
	// Unset values keep their defaults
	assert.Equal(t, 1024, cfg.Import.ChunkSizeKB)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, "2006/2006-01-02", m.Get().Library.FolderTemplate)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CARDHAUL_DEST", "/env/photos")
	t.Setenv("CARDHAUL_COPY_CONCURRENCY", "4")

	m := NewManager()
	require.NoError(t, m.Load(""))

	cfg := m.Get()
	assert.Equal(t, "/env/photos", cfg.Library.DestinationRoot)
	assert.Equal(t, 4, cfg.Import.CopyConcurrency)
}

func TestEnvOverrideRejectsInvalidValue(t *testing.T) {
	t.Setenv("CARDHAUL_COPY_CONCURRENCY", "lots")

	m := NewManager()
	assert.Error(t, m.Load(""))
}

func TestUpdateNotifiesWatchers(t *testing.T) {
	m := NewManager()

	var gotOld, gotNew string
	m.AddWatcher(func(old, new *Config) {
		gotOld = old.Library.DestinationRoot
		gotNew = new.Library.DestinationRoot
	})

	before := m.Get().Library.DestinationRoot
	require.NoError(t, m.Update(func(c *Config) {
		c.Library.DestinationRoot = "/new/root"
	}))

	assert.Equal(t, before, gotOld)
	assert.Equal(t, "/new/root", gotNew)
	assert.Equal(t, "/new/root", m.Get().Library.DestinationRoot)
}

func TestUpdateRejectsInvalidConfig(t *testing.T) {
	m := NewManager()
	before := m.Get().Library.DestinationRoot

	assert.Error(t, m.Update(func(c *Config) {
		c.Library.DestinationRoot = ""
	}))
	assert.Error(t, m.Update(func(c *Config) {
		c.Library.MediaTypes = []string{"hologram"}
	}))
	assert.Equal(t, before, m.Get().Library.DestinationRoot)
}

func TestUpdateDoesNotMutateOldConfig(t *testing.T) {
	m := NewManager()
	old := m.Get()
	oldMap := old.Library.ExtensionMap[".jpeg"]

	require.NoError(t, m.Update(func(c *Config) {
		c.Library.ExtensionMap[".jpeg"] = ".changed"
	}))

	assert.Equal(t, oldMap, old.Library.ExtensionMap[".jpeg"])
	assert.Equal(t, ".changed", m.Get().Library.ExtensionMap[".jpeg"])
}

func TestEnrichWorkerCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scanner.EnrichWorkers = 3
	assert.Equal(t, 3, cfg.EnrichWorkerCount())

	cfg.Scanner.EnrichWorkers = 0
	n := cfg.EnrichWorkerCount()
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 8)
}

func TestChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1024*1024, cfg.ChunkSize())

	cfg.Import.ChunkSizeKB = 64
	assert.Equal(t, 64*1024, cfg.ChunkSize())

	cfg.Import.ChunkSizeKB = -1
	assert.Equal(t, 1024*1024, cfg.ChunkSize())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m := NewManager()
	require.NoError(t, m.Load(path))
	require.NoError(t, m.Update(func(c *Config) {
		c.Library.DestinationRoot = "/saved/root"
	}))
	require.NoError(t, m.Save())

	fresh := NewManager()
	require.NoError(t, fresh.Load(path))
	assert.Equal(t, "/saved/root", fresh.Get().Library.DestinationRoot)
}
