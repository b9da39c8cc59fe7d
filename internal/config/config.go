// internal/config/config.go
//
// This package handles configuration and the .paneler directory structure.
// Every project that uses paneler gets a .paneler/ folder next to its data.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/paneler/internal/allocation"
	"github.com/kingrea/paneler/internal/split"
)

const (
	// PanelerDir is the name of the directory we create in each project
	PanelerDir = ".paneler"

	// EnvConfigPath overrides the location of config.yaml.
	EnvConfigPath = "PANELER_CONFIG"
)

const defaultProjectConfigYAML = `# paneler project configuration
version: 1

# Master dataset. Paths are relative to the project directory.
dataset:
  path: data/master.csv
  # Integer column holding record ids. Leave empty to use the row number.
  key_column: ""
  # comma, tab or semicolon
  delimiter: comma

# Stratification features, most important first. Panels are balanced on the
# first feature, then within each of its categories on the second, and so on.
features:
  - Gender

# Ideal proportions per feature. Each feature must sum to 1.0.
targets:
  Gender:
    Male: 0.5
    Female: 0.5

panels:
  count: 2
  size: 100

splits:
  sets: 2
  # reset starts every stratum at set 1; carry continues where the last
  # stratum stopped, keeping set sizes within one of each other.
  cursor: reset

seed: 42

# What to do when stratified quotas leave a panel short: random or skip.
remainder: random

output:
  # Defaults to .paneler/run when empty.
  dir: ""
  # csv or tsv
  format: csv
`

var validate = validator.New()

// DatasetConfig points at the master data file.
type DatasetConfig struct {
	Path      string `yaml:"path" validate:"required"`
	KeyColumn string `yaml:"key_column,omitempty"`
	Delimiter string `yaml:"delimiter,omitempty" validate:"omitempty,oneof=comma tab semicolon"`
}

// PanelsConfig sets how many panels to draw and how big each one is.
type PanelsConfig struct {
	Count int `yaml:"count" validate:"min=1"`
	Size  int `yaml:"size" validate:"min=1"`
}

// SplitsConfig sets how many sets each panel is split into.
type SplitsConfig struct {
	Sets   int    `yaml:"sets" validate:"min=2"`
	Cursor string `yaml:"cursor,omitempty" validate:"omitempty,oneof=reset carry"`
}

// OutputConfig controls exported files.
type OutputConfig struct {
	Dir    string `yaml:"dir,omitempty"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=csv tsv"`
}

// ProjectConfig models .paneler/config.yaml.
type ProjectConfig struct {
	Version   int                           `yaml:"version" validate:"min=1"`
	Dataset   DatasetConfig                 `yaml:"dataset"`
	Features  []string                      `yaml:"features" validate:"required,min=1,dive,required"`
	Targets   map[string]map[string]float64 `yaml:"targets" validate:"required"`
	Panels    PanelsConfig                  `yaml:"panels"`
	Splits    SplitsConfig                  `yaml:"splits"`
	Seed      int64                         `yaml:"seed"`
	Remainder string                        `yaml:"remainder,omitempty" validate:"omitempty,oneof=random skip"`
	Output    OutputConfig                  `yaml:"output"`
}

// Config holds the runtime configuration for paneler.
type Config struct {
	// ProjectDir is the directory where the user ran `paneler` from
	ProjectDir string

	// PanelerProjectDir is ProjectDir/.paneler
	PanelerProjectDir string

	// ConfigPath is the config file in use. It defaults to
	// .paneler/config.yaml and can be moved with PANELER_CONFIG.
	ConfigPath string

	Project ProjectConfig
}

// InitProjectDir creates the .paneler directory structure in the given project directory.
//
// Structure created:
// .paneler/
// ├── config.yaml
// ├── logs/         <- debug log
// ├── state/        <- engine state between runs
// └── run/          <- pipeline artifacts
//
//	├── panels/   <- panel_{p}.csv
//	└── splits/   <- panel_{p}_set_{s}.csv
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, PanelerDir)

	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
		filepath.Join(root, "run"),
		filepath.Join(root, "run", "panels"),
		filepath.Join(root, "run", "splits"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// A missing config file leaves the defaults in place.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		PanelerProjectDir: filepath.Join(projectDir, PanelerDir),
		Project:           defaultProjectConfig(),
	}
	cfg.ConfigPath = filepath.Join(cfg.PanelerProjectDir, "config.yaml")
	if override := strings.TrimSpace(os.Getenv(EnvConfigPath)); override != "" {
		cfg.ConfigPath = resolvePath(projectDir, override)
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.PanelerProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.PanelerProjectDir, "state")
}

// RunDir returns where pipeline artifacts are written.
func (c *Config) RunDir() string {
	if c.Project.Output.Dir != "" {
		return c.Project.Output.Dir
	}
	return filepath.Join(c.PanelerProjectDir, "run")
}

// JournalPath returns the logbook file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.PanelerProjectDir, "journal.log")
}

// DatasetPath returns the absolute path of the master dataset.
func (c *Config) DatasetPath() string {
	return c.Project.Dataset.Path
}

// DelimiterRune maps the configured delimiter name to its character.
func (c *Config) DelimiterRune() rune {
	switch c.Project.Dataset.Delimiter {
	case "tab":
		return '\t'
	case "semicolon":
		return ';'
	default:
		return ','
	}
}

// Targets returns a copy of the ideal targets.
func (c *Config) Targets() allocation.Targets {
	return allocation.Targets(c.Project.Targets).Clone()
}

// RemainderPolicy returns the configured remainder policy.
func (c *Config) RemainderPolicy() allocation.RemainderPolicy {
	policy, err := allocation.ParseRemainderPolicy(c.Project.Remainder)
	if err != nil {
		return allocation.RemainderRandom
	}
	return policy
}

// SplitCursor returns the configured split cursor mode.
func (c *Config) SplitCursor() split.Cursor {
	cursor, err := split.ParseCursor(c.Project.Splits.Cursor)
	if err != nil {
		return split.CursorReset
	}
	return cursor
}

// SetTargets replaces the features and their targets, then persists the
// config.
func (c *Config) SetTargets(features []string, targets allocation.Targets) error {
	c.Project.Features = append([]string(nil), features...)
	c.Project.Targets = targets.Clone()
	return c.Save()
}

// Save validates and writes the config back to ConfigPath.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.ConfigPath), 0o755); err != nil {
		return fmt.Errorf("config: ensure config dir: %w", err)
	}
	out := c.Project
	out.Dataset.Path = relativePath(c.ProjectDir, out.Dataset.Path)
	out.Output.Dir = relativePath(c.ProjectDir, out.Output.Dir)
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath, data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.ProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed, err := parseProjectConfig(data)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func parseProjectConfig(data []byte) (ProjectConfig, error) {
	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return ProjectConfig{}, err
	}
	return parsed, nil
}

func defaultProjectConfig() ProjectConfig {
	parsed, err := parseProjectConfig([]byte(defaultProjectConfigYAML))
	if err != nil {
		panic(fmt.Sprintf("config: default config: %v", err))
	}
	parsed.applyDefaults()
	return parsed
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Dataset.Delimiter == "" {
		pc.Dataset.Delimiter = "comma"
	}
	if pc.Splits.Sets == 0 {
		pc.Splits.Sets = 2
	}
	if pc.Splits.Cursor == "" {
		pc.Splits.Cursor = string(split.CursorReset)
	}
	if pc.Remainder == "" {
		pc.Remainder = string(allocation.RemainderRandom)
	}
	if pc.Output.Format == "" {
		pc.Output.Format = "csv"
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Dataset.Path = resolvePath(base, pc.Dataset.Path)
	pc.Dataset.KeyColumn = strings.TrimSpace(pc.Dataset.KeyColumn)
	pc.Dataset.Delimiter = normalizeName(pc.Dataset.Delimiter)
	for i := range pc.Features {
		pc.Features[i] = strings.TrimSpace(pc.Features[i])
	}
	pc.Splits.Cursor = normalizeName(pc.Splits.Cursor)
	pc.Remainder = normalizeName(pc.Remainder)
	pc.Output.Dir = resolvePath(base, pc.Output.Dir)
	pc.Output.Format = normalizeName(pc.Output.Format)
}

func (pc *ProjectConfig) validate() error {
	if err := validate.Struct(pc); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	seen := map[string]bool{}
	for _, feature := range pc.Features {
		if seen[feature] {
			return fmt.Errorf("feature %q is listed twice", feature)
		}
		seen[feature] = true
	}
	if err := allocation.Targets(pc.Targets).Validate(pc.Features); err != nil {
		return fmt.Errorf("targets: %w", err)
	}
	if pc.Splits.Sets > pc.Panels.Size {
		return fmt.Errorf("splits.sets (%d) cannot exceed panels.size (%d)", pc.Splits.Sets, pc.Panels.Size)
	}
	return nil
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func relativePath(base, path string) string {
	if path == "" || base == "" {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
