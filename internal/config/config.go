package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EngineConfig points at the external routing engine and describes the
// network build it performs at the start of a run.
type EngineConfig struct {
	BaseURL         string  `yaml:"base_url" validate:"required,url"`
	DataDir         string  `yaml:"data_dir" validate:"required"`
	Verbose         bool    `yaml:"verbose"`
	Overwrite       bool    `yaml:"overwrite"`
	Elevation       string  `yaml:"elevation" validate:"omitempty,oneof=none flat tobler"`
	MaxMemoryGB     float64 `yaml:"max_memory_gb" validate:"gte=0"`
	RequestTimeoutS int     `yaml:"request_timeout_s" validate:"gt=0"`
}

// RequestTimeout returns the per-call engine timeout.
func (c EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}

// BatchConfig contains the routing parameters applied to every row of a run.
type BatchConfig struct {
	Departure          string   `yaml:"departure" validate:"required"`
	Modes              []string `yaml:"modes" validate:"min=1,dive,required"`
	EgressMode         string   `yaml:"egress_mode" validate:"required"`
	MaxWalkTimeMin     int      `yaml:"max_walk_time_min" validate:"gt=0"`
	MaxTripDurationMin int      `yaml:"max_trip_duration_min" validate:"gt=0"`
	ShortestPathOnly   bool     `yaml:"shortest_path_only"`
	CheckpointInterval int      `yaml:"checkpoint_interval" validate:"gt=0"`
	StatusInterval     int      `yaml:"status_interval" validate:"gt=0"`

	// DepartAt is Departure parsed during Load.
	DepartAt time.Time `yaml:"-" validate:"-"`
}

// MaxWalkTime returns the access/egress walk bound.
func (c BatchConfig) MaxWalkTime() time.Duration {
	return time.Duration(c.MaxWalkTimeMin) * time.Minute
}

// MaxTripDuration returns the total trip duration bound.
func (c BatchConfig) MaxTripDuration() time.Duration {
	return time.Duration(c.MaxTripDurationMin) * time.Minute
}

// InputConfig describes the OD pair table.
type InputConfig struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter" validate:"len=1"`
	Encoding  string `yaml:"encoding" validate:"required"`
}

// DelimiterRune returns the single-character field delimiter.
func (c InputConfig) DelimiterRune() rune {
	return []rune(c.Delimiter)[0]
}

// OutputConfig describes the result tables. Delimiter and encoding default
// to the input table's settings.
type OutputConfig struct {
	Dir       string `yaml:"dir" validate:"required"`
	Delimiter string `yaml:"delimiter" validate:"len=1"`
	Encoding  string `yaml:"encoding" validate:"required"`
}

// DelimiterRune returns the single-character field delimiter.
func (c OutputConfig) DelimiterRune() rune {
	return []rune(c.Delimiter)[0]
}

// CacheConfig selects the trip cache backend.
type CacheConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=sqlite redis none"`
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	RedisAddr  string `yaml:"redis_addr" validate:"required_if=Backend redis"`
}

// JournalConfig selects the run journal backend.
type JournalConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=sqlite postgres"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
}

// Config is the root configuration structure.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Batch   BatchConfig   `yaml:"batch"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Cache   CacheConfig   `yaml:"cache"`
	Journal JournalConfig `yaml:"journal"`
}

// Load reads, defaults, and validates the configuration at path. Environment
// variables override selected fields so deployments can keep credentials out
// of the file.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	depart, err := time.Parse(time.RFC3339, cfg.Batch.Departure)
	if err != nil {
		return cfg, fmt.Errorf("load config: batch.departure must be an RFC 3339 timestamp: %w", err)
	}
	cfg.Batch.DepartAt = depart

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.RequestTimeoutS == 0 {
		cfg.Engine.RequestTimeoutS = 60
	}

	if len(cfg.Batch.Modes) == 0 {
		cfg.Batch.Modes = []string{"WALK", "TRANSIT"}
	}
	if cfg.Batch.EgressMode == "" {
		cfg.Batch.EgressMode = "WALK"
	}
	if cfg.Batch.MaxWalkTimeMin == 0 {
		cfg.Batch.MaxWalkTimeMin = 30
	}
	if cfg.Batch.MaxTripDurationMin == 0 {
		cfg.Batch.MaxTripDurationMin = 180
	}
	if cfg.Batch.CheckpointInterval == 0 {
		cfg.Batch.CheckpointInterval = 50
	}
	if cfg.Batch.StatusInterval == 0 {
		cfg.Batch.StatusInterval = 10
	}

	if cfg.Input.Delimiter == "" {
		cfg.Input.Delimiter = ";"
	}
	if cfg.Input.Encoding == "" {
		cfg.Input.Encoding = "utf-8"
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if cfg.Output.Delimiter == "" {
		cfg.Output.Delimiter = cfg.Input.Delimiter
	}
	if cfg.Output.Encoding == "" {
		cfg.Output.Encoding = cfg.Input.Encoding
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "sqlite"
	}
	if cfg.Cache.Backend == "sqlite" && cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = "trip_cache.db"
	}

	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = "sqlite"
	}
	if cfg.Journal.Backend == "sqlite" && cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = "journal.db"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TBP_ENGINE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("TBP_JOURNAL_DSN"); v != "" {
		cfg.Journal.PostgresDSN = v
	}
	if v := os.Getenv("TBP_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}
