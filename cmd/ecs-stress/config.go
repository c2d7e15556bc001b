package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config drives a stress run. It is read from a TOML or YAML file over
// defaults(), then individual flags override it.
type Config struct {
	Duration       time.Duration `toml:"duration" yaml:"duration"`
	Entities       int           `toml:"entities" yaml:"entities"`
	Systems        int           `toml:"systems" yaml:"systems"`
	Workers        int           `toml:"workers" yaml:"workers"`
	Seed           int64         `toml:"seed" yaml:"seed"`
	ChurnPerTick   int           `toml:"churn_per_tick" yaml:"churn_per_tick"`
	Format         string        `toml:"format" yaml:"format"`   // "text" or "json"
	Profile        string        `toml:"profile" yaml:"profile"` // "", "cpu" or "mem"
	GCPauseMetrics bool          `toml:"gc_pause_metrics" yaml:"gc_pause_metrics"`
	DebugBorrows   bool          `toml:"debug_borrows" yaml:"debug_borrows"`
	Logging        LoggingConfig `toml:"logging" yaml:"logging"`
}

type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"` // "json" or "console"
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

func defaults() *Config {
	return &Config{
		Duration:     10 * time.Second,
		Entities:     10000,
		Systems:      50,
		Workers:      4,
		Seed:         1,
		ChurnPerTick: 10,
		Format:       "text",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  64,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path over the defaults. The decoder is chosen by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read config %s", path)
	}

	cfg := defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, eris.Wrapf(err, "parse config %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, eris.Wrapf(err, "parse config %s", path)
		}
	default:
		return nil, eris.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the run cannot use.
func (c *Config) Validate() error {
	switch {
	case c.Duration <= 0:
		return eris.Errorf("duration must be positive, got %s", c.Duration)
	case c.Entities < 0:
		return eris.Errorf("entities must not be negative, got %d", c.Entities)
	case c.Systems < 0:
		return eris.Errorf("systems must not be negative, got %d", c.Systems)
	case c.Format != "text" && c.Format != "json":
		return eris.Errorf("unknown report format %q", c.Format)
	case c.Profile != "" && c.Profile != "cpu" && c.Profile != "mem":
		return eris.Errorf("unknown profile mode %q", c.Profile)
	}
	return nil
}

type flagValues struct {
	config         *string
	duration       *time.Duration
	entities       *int
	systems        *int
	workers        *int
	seed           *int64
	format         *string
	profile        *string
	gcPauseMetrics *bool
	debugBorrows   *bool
	logLevel       *string
	logFile        *string
}

func registerFlags(fs *flag.FlagSet) *flagValues {
	d := defaults()
	return &flagValues{
		config:         fs.String("config", "", "Path to a TOML or YAML config file."),
		duration:       fs.Duration("duration", d.Duration, "The total duration the test should run for."),
		entities:       fs.Int("entities", d.Entities, "The initial number of entities to create."),
		systems:        fs.Int("systems", d.Systems, "The number of generated systems."),
		workers:        fs.Int("workers", d.Workers, "Worker pool size for parallel groups (<= 1 runs inline)."),
		seed:           fs.Int64("seed", d.Seed, "Random seed for the generated workload."),
		format:         fs.String("format", d.Format, "Report format: text or json."),
		profile:        fs.String("profile", d.Profile, "Write a profile: cpu or mem."),
		gcPauseMetrics: fs.Bool("gc-pause-metrics", d.GCPauseMetrics, "Enable detailed GC pause metrics in the report."),
		debugBorrows:   fs.Bool("debug-borrows", d.DebugBorrows, "Enable runtime borrow checking."),
		logLevel:       fs.String("log-level", d.Logging.Level, "Log level."),
		logFile:        fs.String("log-file", d.Logging.File, "Also write logs to this rotating file."),
	}
}

// resolveConfig loads the config file, if any, and applies the flags that
// were set explicitly on the command line.
func resolveConfig(fs *flag.FlagSet, v *flagValues) (*Config, error) {
	cfg := defaults()
	if *v.config != "" {
		loaded, err := Load(*v.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			cfg.Duration = *v.duration
		case "entities":
			cfg.Entities = *v.entities
		case "systems":
			cfg.Systems = *v.systems
		case "workers":
			cfg.Workers = *v.workers
		case "seed":
			cfg.Seed = *v.seed
		case "format":
			cfg.Format = *v.format
		case "profile":
			cfg.Profile = *v.profile
		case "gc-pause-metrics":
			cfg.GCPauseMetrics = *v.gcPauseMetrics
		case "debug-borrows":
			cfg.DebugBorrows = *v.debugBorrows
		case "log-level":
			cfg.Logging.Level = *v.logLevel
		case "log-file":
			cfg.Logging.File = *v.logFile
		}
	})
	return cfg, cfg.Validate()
}
