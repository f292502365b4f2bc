// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/naming"
	"github.com/logflow/processlens/pkg/parser"
	"github.com/logflow/processlens/pkg/source"
	"github.com/logflow/processlens/pkg/telemetry"
)

// Resolution bounds accepted from configuration and flags.
const (
	MinResolution = 0.1
	MaxResolution = 3.0
)

// Config holds all ProcessLens configuration.
type Config struct {
	Version int `yaml:"version"`

	Mining    MiningConfig     `yaml:"mining"`
	Input     InputConfig      `yaml:"input"`
	Cache     CacheConfig      `yaml:"cache"`
	Naming    NamingConfig     `yaml:"naming"`
	Log       LogConfig        `yaml:"log"`
	S3        source.S3Config  `yaml:"s3"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// MiningConfig controls normalization and decomposition.
type MiningConfig struct {
	Resolution float64 `yaml:"resolution"`
	DayFirst   bool    `yaml:"day_first"`
	// Timezone applies to timestamps without an offset. Empty means UTC.
	Timezone string `yaml:"timezone"`

	// Column overrides; empty roles are detected.
	CaseColumn      string `yaml:"case_column"`
	ActivityColumn  string `yaml:"activity_column"`
	TimestampColumn string `yaml:"timestamp_column"`
}

// InputConfig controls table loading.
type InputConfig struct {
	Delimiter string `yaml:"delimiter"` // empty = sniff
	Sheet     string `yaml:"sheet"`
	MaxRows   int    `yaml:"max_rows"` // 0 = all
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Size   int           `yaml:"size"`    // 0 disables caching
	MaxAge time.Duration `yaml:"max_age"` // 0 = no expiry
}

// NamingConfig controls subprocess naming.
type NamingConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Concurrency int                 `yaml:"concurrency"`
	Timeout     time.Duration       `yaml:"timeout"`
	Gemini      naming.GeminiConfig `yaml:"gemini"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Mining: MiningConfig{
			Resolution: 1.0,
			DayFirst:   true,
		},
		Cache: CacheConfig{
			Size: 1,
		},
		Naming: NamingConfig{
			Enabled:     true,
			Concurrency: 4,
			Timeout:     30 * time.Second,
			Gemini:      naming.DefaultGeminiConfig(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		S3:        source.DefaultS3Config(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks the configuration for out of range values and reports
// every problem found.
func (c *Config) Validate() error {
	var errs perrors.MultiError
	if c.Mining.Resolution < MinResolution || c.Mining.Resolution > MaxResolution {
		errs.Add(perrors.New(perrors.CodeInvalidResolution,
			fmt.Sprintf("resolution %g is outside [%g, %g]", c.Mining.Resolution, MinResolution, MaxResolution)))
	}
	if len(c.Input.Delimiter) > 1 {
		errs.Add(perrors.New(perrors.CodeValidationFailed,
			fmt.Sprintf("delimiter must be a single character, got %q", c.Input.Delimiter)))
	}
	if c.Input.MaxRows < 0 {
		errs.Add(perrors.New(perrors.CodeValidationFailed, "max_rows must not be negative"))
	}
	if c.Cache.Size < 0 {
		errs.Add(perrors.New(perrors.CodeValidationFailed, "cache size must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs.Add(perrors.Wrap(err, perrors.CodeValidationFailed, "invalid timezone"))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs.Add(perrors.Wrap(err, perrors.CodeValidationFailed, "invalid log level"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs.Add(perrors.New(perrors.CodeValidationFailed,
			fmt.Sprintf("log format must be console or json, got %q", c.Log.Format)))
	}
	return errs.Combined()
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Mining.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Mining.Timezone)
}

// ParserConfig returns loader settings.
func (c *Config) ParserConfig() parser.Config {
	pc := parser.DefaultConfig()
	if c.Input.Delimiter != "" {
		pc.Delimiter = c.Input.Delimiter[0]
	}
	pc.Sheet = c.Input.Sheet
	pc.MaxRows = c.Input.MaxRows
	if loc, err := c.Location(); err == nil {
		pc.Location = loc
	}
	return pc
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded

	// searchPaths overrides the default file locations.
	searchPaths []string
	getenv      func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		getenv: os.Getenv,
	}
}

// WithPaths replaces the config file search paths.
func (m *Manager) WithPaths(paths ...string) *Manager {
	m.searchPaths = append([]string{}, paths...)
	return m
}

// WithEnv replaces the environment lookup.
func (m *Manager) WithEnv(getenv func(string) string) *Manager {
	m.getenv = getenv
	return m
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	paths := m.searchPaths
	if paths == nil {
		paths = DefaultPaths()
	}
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return perrors.Wrapf(err, perrors.CodeValidationFailed, "load config %s", path)
		}
		m.paths = append(m.paths, path)
	}

	return m.loadEnv()
}

// DefaultPaths returns config file paths in priority order.
func DefaultPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/processlens/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".processlens", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".processlens.yaml"))
	}
	return paths
}

// loadFile decodes a config file over the current values, so keys absent
// from the file keep their earlier value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv applies environment overrides.
func (m *Manager) loadEnv() error {
	if v := m.getenv("PROCESSLENS_RESOLUTION"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return perrors.Wrapf(err, perrors.CodeValidationFailed, "PROCESSLENS_RESOLUTION=%q", v)
		}
		m.config.Mining.Resolution = r
	}
	if v := m.getenv("PROCESSLENS_DAY_FIRST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return perrors.Wrapf(err, perrors.CodeValidationFailed, "PROCESSLENS_DAY_FIRST=%q", v)
		}
		m.config.Mining.DayFirst = b
	}
	if v := m.getenv("PROCESSLENS_LOG_LEVEL"); v != "" {
		m.config.Log.Level = v
	}

	// GEMINI_API_KEY wins over GOOGLE_API_KEY
	for _, key := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"} {
		if v := m.getenv(key); v != "" {
			m.config.Naming.Gemini.APIKey = v
		}
	}

	if v := m.getenv("PROCESSLENS_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
	}
	if v := m.getenv("AWS_REGION"); v != "" && m.config.S3.Region == "" {
		m.config.S3.Region = v
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// Save writes the current config to path. The API key is never written.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
