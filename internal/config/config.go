package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration
type Config struct {
	View     ViewConfig     `yaml:"view"`
	Viewport ViewportConfig `yaml:"viewport"`
	Access   AccessConfig   `yaml:"access"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
	Trace    bool           `yaml:"trace"` // also enabled by FOLIO_TRACE
}

// ViewConfig holds rendering preferences
type ViewConfig struct {
	Zoom             int     `yaml:"zoom"`               // DPI-equivalent, 48..384
	DevicePixelRatio float64 `yaml:"device_pixel_ratio"` // rasterize DPI = zoom * ratio
	PageGap          int     `yaml:"page_gap"`           // pixels between pages
	CellWidth        int     `yaml:"cell_width"`         // pixels per terminal column
}

// ViewportConfig controls prefetching and refresh coalescing
type ViewportConfig struct {
	PrefetchAbove float64 `yaml:"prefetch_above"` // fraction of the window height
	PrefetchBelow float64 `yaml:"prefetch_below"`
	DebounceMs    int     `yaml:"debounce_ms"`
}

// AccessConfig holds user permissions
type AccessConfig struct {
	CanCopyText bool `yaml:"can_copy_text"`
}

// StoreConfig locates the view history database
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the log file
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		View: ViewConfig{
			Zoom:             96,
			DevicePixelRatio: 1,
			PageGap:          16,
			CellWidth:        8,
		},
		Viewport: ViewportConfig{
			PrefetchAbove: 0.25,
			PrefetchBelow: 1.0,
			DebounceMs:    50,
		},
		Access: AccessConfig{CanCopyText: true},
		Store:  StoreConfig{Path: filepath.Join(dir, "folio.db")},
		Log:    LogConfig{Level: "info", Dir: filepath.Join(dir, "logs")},
	}
}

// Dir returns the folio data directory
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".folio")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads config from the default path, or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path. A missing file yields the defaults. Keys
// absent from the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Log.Dir = expandHome(cfg.Log.Dir)
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FOLIO_TRACE"); v != "" && v != "0" {
		c.Trace = true
	}
}

// Save writes config to path, creating its directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate replaces out-of-range values with defaults or limits and
// returns a note for each field it changed.
func (c *Config) Validate() []string {
	def := DefaultConfig()
	var notes []string
	fix := func(field string, bad bool, apply func()) {
		if bad {
			apply()
			notes = append(notes, field)
		}
	}

	fix("view.zoom", c.View.Zoom < 48 || c.View.Zoom > 384, func() {
		c.View.Zoom = min(max(c.View.Zoom, 48), 384)
	})
	fix("view.device_pixel_ratio", c.View.DevicePixelRatio <= 0 || c.View.DevicePixelRatio > 8, func() {
		c.View.DevicePixelRatio = def.View.DevicePixelRatio
	})
	fix("view.page_gap", c.View.PageGap < 0, func() { c.View.PageGap = def.View.PageGap })
	fix("view.cell_width", c.View.CellWidth <= 0, func() { c.View.CellWidth = def.View.CellWidth })
	fix("viewport.prefetch_above", c.Viewport.PrefetchAbove < 0, func() {
		c.Viewport.PrefetchAbove = def.Viewport.PrefetchAbove
	})
	fix("viewport.prefetch_below", c.Viewport.PrefetchBelow < 0, func() {
		c.Viewport.PrefetchBelow = def.Viewport.PrefetchBelow
	})
	fix("viewport.debounce_ms", c.Viewport.DebounceMs <= 0, func() {
		c.Viewport.DebounceMs = def.Viewport.DebounceMs
	})
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		fix("log.level", true, func() { c.Log.Level = def.Log.Level })
	}
	fix("store.path", c.Store.Path == "", func() { c.Store.Path = def.Store.Path })
	fix("log.dir", c.Log.Dir == "", func() { c.Log.Dir = def.Log.Dir })
	return notes
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
