package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"folder-sanitizer/internal/rules"
)

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port"` // 0 disables the metrics server
}

type LoggingCfg struct {
	File       string `yaml:"file" json:"file"`                 // Rotating log file; empty disables file logging
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`   // Size before rotation
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"` // Days to keep rotated files
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
	Debug      bool   `yaml:"debug" json:"debug"`
}

type ResourceLimits struct {
	MaxCPUPercent float64 `yaml:"max_cpu_percent" json:"max_cpu_percent"` // 0 or 100 means unlimited
}

type WatchCfg struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`                   // Sweep again when roots change
	DebounceSeconds int  `yaml:"debounce_seconds" json:"debounce_seconds"` // Quiet period before a change-triggered sweep
}

type Config struct {
	Roots            []string       `yaml:"roots" json:"roots"`
	Prefixes         []string       `yaml:"prefixes" json:"prefixes"`
	DeletePatterns   []string       `yaml:"delete_patterns" json:"delete_patterns"`
	DeleteGlobs      []string       `yaml:"delete_globs" json:"delete_globs"`
	ExactDeleteNames []string       `yaml:"exact_delete_names" json:"exact_delete_names"`
	SkipNames        []string       `yaml:"skip_names" json:"skip_names"`
	DryRun           bool           `yaml:"dry_run" json:"dry_run"`
	IntervalMinutes  int            `yaml:"interval_minutes" json:"interval_minutes"`
	Prometheus       PrometheusCfg  `yaml:"prometheus" json:"prometheus"`
	Logging          LoggingCfg     `yaml:"logging" json:"logging"`
	ResourceLimits   ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
	Watch            WatchCfg       `yaml:"watch" json:"watch"`
	DatabasePath     string         `yaml:"database_path" json:"database_path"` // SQLite history; "-" disables it
	ProtectedPaths   []string       `yaml:"protected_paths" json:"protected_paths"`
}

var (
	errNoRoots         = errors.New("configuration must specify at least one root")
	errInvalidPath     = errors.New("path must be absolute")
	errInvalidInterval = errors.New("interval_minutes cannot be negative")
	errInvalidCPU      = errors.New("max_cpu_percent must be between 0 and 100")
	errInvalidPort     = errors.New("prometheus port out of range")
	errNoRules         = errors.New("configuration must specify at least one prefix or delete rule")
)

// DisabledDatabase as DatabasePath turns history recording off.
const DisabledDatabase = "-"

// Default returns a configuration with every default applied and no roots.
func Default() *Config {
	cfg := &Config{}
	// Cannot fail without roots or rules to validate.
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// validateAndDefault checks what can be checked in a partial config and
// fills in defaults. Roots are optional here since flags may supply them.
func (c *Config) validateAndDefault() error {
	if c.IntervalMinutes < 0 {
		return errInvalidInterval
	}
	if c.IntervalMinutes == 0 {
		c.IntervalMinutes = 15
	}

	if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
		return fmt.Errorf("%w: %d", errInvalidPort, c.Prometheus.Port)
	}

	if c.ResourceLimits.MaxCPUPercent < 0 || c.ResourceLimits.MaxCPUPercent > 100 {
		return fmt.Errorf("%w: %g", errInvalidCPU, c.ResourceLimits.MaxCPUPercent)
	}

	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 30
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}

	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = 5
	}

	if c.SkipNames == nil {
		c.SkipNames = append([]string(nil), rules.DefaultSkipNames...)
	}

	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath()
	}

	cleaned := make([]string, 0, len(c.Roots))
	for _, p := range c.Roots {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("root: %w", err)
		}
		cleaned = append(cleaned, cp)
	}
	c.Roots = cleaned

	if _, err := c.Rules(); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration is complete enough to run a sweep.
func (c *Config) Validate() error {
	if err := c.validateAndDefault(); err != nil {
		return err
	}
	if len(c.Roots) == 0 {
		return errNoRoots
	}
	set, err := c.Rules()
	if err != nil {
		return err
	}
	if set.Empty() {
		return errNoRules
	}
	return nil
}

// Rules compiles the rule lists of the configuration.
func (c *Config) Rules() (*rules.Set, error) {
	return rules.Compile(rules.Spec{
		Prefixes:         c.Prefixes,
		DeletePatterns:   c.DeletePatterns,
		DeleteGlobs:      c.DeleteGlobs,
		ExactDeleteNames: c.ExactDeleteNames,
		SkipNames:        c.SkipNames,
	})
}

// Save writes the configuration as YAML, replacing path atomically.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

// SplitLines parses a newline-separated list, dropping blank lines.
// Entries are kept verbatim otherwise: a prefix may end in a space.
func SplitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// SplitComma parses a comma-separated list, trimming each item.
func SplitComma(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultDatabasePath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "folder-sanitizer", "history.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "folder-sanitizer", "history.db")
	}
	return filepath.Join(os.TempDir(), "folder-sanitizer", "history.db")
}

// DefaultPath is where the CLI looks for its config file.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "folder-sanitizer", "config.yaml")
	}
	return "folder-sanitizer.yaml"
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceSeconds) * time.Second
}

func (c *Config) PrometheusAddress() string {
	return fmt.Sprintf(":%d", c.Prometheus.Port)
}

// HistoryEnabled reports whether runs are recorded to the database.
func (c *Config) HistoryEnabled() bool {
	return c.DatabasePath != DisabledDatabase
}
