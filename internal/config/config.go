// Package config holds the application configuration: the destination
// library settings that drive path templating, plus tuning knobs for the
// scan, enrichment, and copy stages. Configuration is loaded from a YAML
// file with environment variable overrides, and registered watchers are
// notified on every change so dependent components (notably destination
// recalculation) can react.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Library holds destination library settings
	Library LibraryConfig `yaml:"library"`

	// Scanner holds source enumeration settings
	Scanner ScannerConfig `yaml:"scanner"`

	// Import holds copy-stage settings
	Import ImportConfig `yaml:"import"`

	// Thumbnails holds thumbnail cache settings
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`

	// History holds import history ledger settings
	History HistoryConfig `yaml:"history"`
}

// LibraryConfig describes the destination library: where imported files
// land and how their names are derived.
type LibraryConfig struct {
	// DestinationRoot is the root directory of the destination library
	DestinationRoot string `yaml:"destination_root" env:"CARDHAUL_DEST"`

	// FolderTemplate is the strftime-like date pattern for per-file
	// subdirectories, e.g. "2006/2006-01-02" (Go reference time layout)
	FolderTemplate string `yaml:"folder_template" env:"CARDHAUL_FOLDER_TEMPLATE" default:"2006/2006-01-02"`

	// RenameTemplate renames files using tokens: {name}, {date}, {time},
	// {type}. Empty keeps the original filename stem.
	RenameTemplate string `yaml:"rename_template" env:"CARDHAUL_RENAME_TEMPLATE"`

	// ExtensionMap canonicalizes extension variants, e.g. ".jpeg" -> ".jpg".
	// Keys are matched case-insensitively.
	ExtensionMap map[string]string `yaml:"extension_map"`

	// MediaTypes restricts import to the listed media types
	// (photo, video, audio, raw). Empty imports everything recognized.
	MediaTypes []string `yaml:"media_types"`

	// DeleteOriginals removes source files (and their sidecars) after a
	// verified successful copy
	DeleteOriginals bool `yaml:"delete_originals" env:"CARDHAUL_DELETE_ORIGINALS" default:"false"`
}

// ScannerConfig holds source enumeration settings
type ScannerConfig struct {
	// IgnoreNames are directory names pruned before descent, matched
	// case-insensitively
	IgnoreNames []string `yaml:"ignore_names"`

	// EnrichWorkers is the number of enrichment workers; 0 uses CPU count
	EnrichWorkers int `yaml:"enrich_workers" env:"CARDHAUL_ENRICH_WORKERS" default:"0"`

	// ThrottleEnabled pauses enrichment under high system load
	ThrottleEnabled bool `yaml:"throttle_enabled" env:"CARDHAUL_THROTTLE" default:"true"`
}

// ImportConfig holds copy-stage settings
type ImportConfig struct {
	// CopyConcurrency is the number of concurrent file copies. The default
	// of 1 serializes writes to the destination volume.
	CopyConcurrency int `yaml:"copy_concurrency" env:"CARDHAUL_COPY_CONCURRENCY" default:"1"`

	// ChunkSizeKB is the copy buffer size in KiB; cancellation is checked
	// between chunks
	ChunkSizeKB int `yaml:"chunk_size_kb" env:"CARDHAUL_CHUNK_KB" default:"1024"`
}

// ThumbnailConfig holds thumbnail cache settings
type ThumbnailConfig struct {
	Enabled   bool   `yaml:"enabled" env:"CARDHAUL_THUMBNAILS" default:"true"`
	CacheDir  string `yaml:"cache_dir" env:"CARDHAUL_THUMB_DIR"`
	MaxEdge   int    `yaml:"max_edge" default:"320"`
	QueueSize int    `yaml:"queue_size" default:"512"`
}

// HistoryConfig holds import history ledger settings
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"CARDHAUL_HISTORY" default:"true"`
	DatabasePath string `yaml:"database_path" env:"CARDHAUL_HISTORY_DB"`
}

// Watcher is notified after the configuration changes
type Watcher func(old, new *Config)

// Manager owns the loaded configuration and its watchers
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	watchers []Watcher
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// GetManager returns the process-wide configuration manager
func GetManager() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// NewManager creates a manager holding the default configuration
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(reflect.ValueOf(cfg).Elem())

	cfg.Scanner.IgnoreNames = []string{".Trashes", ".Spotlight-V100", ".fseventsd", "MISC", "THMBNL", "CANONMSC"}
	cfg.Library.ExtensionMap = map[string]string{
		".jpeg": ".jpg",
		".jpe":  ".jpg",
		".tif":  ".tiff",
		".mpeg": ".mpg",
	}

	home, err := os.UserHomeDir()
	if err == nil {
		cfg.Library.DestinationRoot = filepath.Join(home, "Pictures", "Cardhaul")
		cfg.Thumbnails.CacheDir = filepath.Join(home, ".cache", "cardhaul", "thumbs")
		cfg.History.DatabasePath = filepath.Join(home, ".local", "share", "cardhaul", "history.db")
	}
	return cfg
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and installs the result. Watchers registered beforehand are
// notified.
func (m *Manager) Load(path string) error {
	cfg := DefaultConfig()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.path = path
	old := m.config
	m.config = cfg
	watchers := append([]Watcher(nil), m.watchers...)
	m.mu.Unlock()

	for _, w := range watchers {
		w(old, cfg)
	}
	return nil
}

// Get returns the current configuration. Callers must not mutate it;
// use Update to install changes.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update applies fn to a copy of the current configuration and installs
// the result, notifying watchers. This is the settings-store mutation
// path; destination changes observed here drive recalculation.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	old := m.config
	next := old.Clone()
	fn(next)
	if err := validate(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = next
	watchers := append([]Watcher(nil), m.watchers...)
	m.mu.Unlock()

	for _, w := range watchers {
		w(old, next)
	}
	return nil
}

// AddWatcher registers a watcher for configuration changes
func (m *Manager) AddWatcher(w Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, w)
}

// Save writes the current configuration back to its file
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg, path := m.config, m.path
	m.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no config path set")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	next := *c
	next.Library.ExtensionMap = make(map[string]string, len(c.Library.ExtensionMap))
	for k, v := range c.Library.ExtensionMap {
		next.Library.ExtensionMap[k] = v
	}
	next.Library.MediaTypes = append([]string(nil), c.Library.MediaTypes...)
	next.Scanner.IgnoreNames = append([]string(nil), c.Scanner.IgnoreNames...)
	return &next
}

// EnrichWorkerCount resolves the effective enrichment worker count
func (c *Config) EnrichWorkerCount() int {
	if c.Scanner.EnrichWorkers > 0 {
		return c.Scanner.EnrichWorkers
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 2 {
		n = 2
	}
	return n
}

// ChunkSize resolves the effective copy chunk size in bytes
func (c *Config) ChunkSize() int {
	kb := c.Import.ChunkSizeKB
	if kb <= 0 {
		kb = 1024
	}
	return kb * 1024
}

func validate(cfg *Config) error {
	if cfg.Library.DestinationRoot == "" {
		return fmt.Errorf("library.destination_root must be set")
	}
	if cfg.Import.CopyConcurrency < 1 {
		return fmt.Errorf("import.copy_concurrency must be at least 1")
	}
	for _, mt := range cfg.Library.MediaTypes {
		switch strings.ToLower(mt) {
		case "photo", "video", "audio", "raw":
		default:
			return fmt.Errorf("unknown media type filter %q", mt)
		}
	}
	return nil
}

// applyDefaults walks the struct and fills fields from `default` tags
func applyDefaults(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			applyDefaults(field)
			continue
		}
		def := t.Field(i).Tag.Get("default")
		if def == "" {
			continue
		}
		setField(field, def)
	}
}

// applyEnv walks the struct and overrides fields from `env` tags
func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyEnv(field); err != nil {
				return err
			}
			continue
		}
		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if !setField(field, val) {
			return fmt.Errorf("invalid value %q for %s", val, key)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) bool {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		field.SetInt(n)
	default:
		return false
	}
	return true
}
