// Package config loads the courselink configuration file.
//
// The file is YAML. Unknown keys are rejected, missing keys take their
// defaults, and the decoded result is checked against an embedded CUE
// schema that reports every violation at once.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/courselink/internal/policy"
)

//go:embed schema.cue
var schemaSource string

// MinReconcileInterval is the shortest accepted reconcile_interval.
const MinReconcileInterval = time.Minute

// Config is the decoded configuration file.
type Config struct {
	Database          string        `yaml:"database"`
	Enabled           bool          `yaml:"enabled"`
	NoSyncRoles       string        `yaml:"nosync_roles"`
	ReconcileInterval Duration      `yaml:"reconcile_interval"`
	Log               LogConfig     `yaml:"log"`
	Metrics           MetricsConfig `yaml:"metrics"`
	Links             LinksConfig   `yaml:"links"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LinksConfig configures link creation.
type LinksConfig struct {
	AllowHiddenTargets bool `yaml:"allow_hidden_targets"`
}

// Duration is a time.Duration written as a Go duration string ("1h30m").
type Duration struct {
	time.Duration
	raw string
}

// UnmarshalYAML keeps the raw text so the schema can report it verbatim.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	d.raw = s
	if parsed, err := time.ParseDuration(s); err == nil {
		d.Duration = parsed
	}
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) String() string {
	if d.raw != "" {
		return d.raw
	}
	return d.Duration.String()
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database:          "courselink.db",
		Enabled:           true,
		ReconcileInterval: Duration{Duration: time.Hour},
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

// ValidationError is one schema violation.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads and validates the file at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the configuration against the schema and returns every
// violation. The no-sync list is not checked here; see Lint.
func (c *Config) Validate() []error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []error{fmt.Errorf("compile schema: %w", err)}
	}

	value := ctx.Encode(c.schemaView())
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)

	var errs []error
	if err := unified.Validate(cue.Concrete(true), cue.All()); err != nil {
		for _, e := range cueerrors.Errors(err) {
			errs = append(errs, &ValidationError{
				Path:    strings.Join(e.Path(), "."),
				Message: cueMessage(e),
			})
		}
	}

	if c.ReconcileInterval.Duration < MinReconcileInterval {
		errs = append(errs, &ValidationError{
			Path:    "reconcile_interval",
			Message: fmt.Sprintf("must be at least %s", MinReconcileInterval),
		})
	}
	return errs
}

// Lint is Validate plus checks for settings that are tolerated at runtime
// but almost certainly mistakes.
func (c *Config) Lint() []error {
	errs := c.Validate()
	if _, err := policy.Parse(c.NoSyncRoles); err != nil {
		errs = append(errs, &ValidationError{Path: "nosync_roles", Message: err.Error()})
	}
	return errs
}

// Policy returns the no-sync policy. A malformed list excludes nothing and
// is reported to logger.
func (c *Config) Policy(logger *slog.Logger) *policy.NoSync {
	return policy.ParseOrEmpty(c.NoSyncRoles, logger)
}

// LogLevel returns the slog level named by log.level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) schemaView() map[string]any {
	return map[string]any{
		"database":           c.Database,
		"enabled":            c.Enabled,
		"nosync_roles":       c.NoSyncRoles,
		"reconcile_interval": c.ReconcileInterval.String(),
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"metrics": map[string]any{
			"listen": c.Metrics.Listen,
		},
		"links": map[string]any{
			"allow_hidden_targets": c.Links.AllowHiddenTargets,
		},
	}
}

// cueMessage strips the path prefix CUE puts in front of its messages.
func cueMessage(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}
