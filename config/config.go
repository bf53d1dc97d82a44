package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"rearrange/physics"
	"rearrange/placement"
	"rearrange/planning"
)

// Config holds every tunable of a placement run and of the service around it.
type Config struct {
	Search    SearchConfig    `json:"search" yaml:"search"`
	Placement PlacementConfig `json:"placement" yaml:"placement"`
	Planning  PlanningConfig  `json:"planning" yaml:"planning"`
	Server    ServerConfig    `json:"server" yaml:"server"`
}

type SearchConfig struct {
	Timeout     time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
	ScalarFloor float64       `json:"scalar_floor" yaml:"scalar_floor"`
	TupleFloor  float64       `json:"tuple_floor" yaml:"tuple_floor"`
}

type PlacementConfig struct {
	Algorithm string  `json:"algorithm" yaml:"algorithm" validate:"oneof=random_sample inner random_restart middle outer"`
	BatchSize int     `json:"batch_size" yaml:"batch_size" validate:"min=1"`
	Precision int     `json:"precision" yaml:"precision" validate:"min=1,max=12"`
	Workers   int     `json:"workers" yaml:"workers" validate:"min=1,max=256"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gt=0"`
	Seed      int64   `json:"seed" yaml:"seed"`
}

type PlanningConfig struct {
	Clingo       string `json:"clingo" yaml:"clingo"`
	IncludeNews  bool   `json:"include_news" yaml:"include_news"`
	OptimizeGrid bool   `json:"optimize_grid" yaml:"optimize_grid"`
	MaxSteps     int    `json:"max_steps" yaml:"max_steps" validate:"min=0"`
}

type ServerConfig struct {
	Addr     string `json:"addr" yaml:"addr" validate:"required"`
	LogLevel string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	Tracing  bool   `json:"tracing" yaml:"tracing"`
}

var validate = validator.New()

func Default() Config {
	return Config{
		Search: SearchConfig{
			Timeout:     placement.DefaultSettings.Timeout,
			ScalarFloor: placement.DefaultSettings.ScalarFloor,
			TupleFloor:  placement.DefaultSettings.TupleFloor,
		},
		Placement: PlacementConfig{
			Algorithm: placement.AlgoOuter.String(),
			BatchSize: placement.DefaultSettings.BatchSize,
			Precision: placement.DefaultSettings.Precision,
			Workers:   1,
			Threshold: physics.DefaultResolver.Threshold,
			Seed:      1,
		},
		Planning: PlanningConfig{
			Clingo:       "clingo",
			IncludeNews:  planning.DefaultOptions.IncludeNews,
			OptimizeGrid: planning.DefaultOptions.Optimize,
		},
		Server: ServerConfig{
			Addr:     ":8080",
			LogLevel: "info",
		},
	}
}

// Load reads configuration with priority env > file > defaults. A missing
// file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if err := loadFile(path, &c); err != nil {
			return c, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&c)
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func loadFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if strings.HasSuffix(path, ".json") {
		return json.Unmarshal(data, c)
	}
	return yaml.Unmarshal(data, c)
}

func loadEnv(c *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	if v := os.Getenv("REARRANGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Search.Timeout = d
		}
	}
	float("REARRANGE_SCALAR_FLOOR", &c.Search.ScalarFloor)
	float("REARRANGE_TUPLE_FLOOR", &c.Search.TupleFloor)

	str("REARRANGE_ALGORITHM", &c.Placement.Algorithm)
	num("REARRANGE_BATCH_SIZE", &c.Placement.BatchSize)
	num("REARRANGE_PRECISION", &c.Placement.Precision)
	num("REARRANGE_WORKERS", &c.Placement.Workers)
	float("REARRANGE_THRESHOLD", &c.Placement.Threshold)
	if v := os.Getenv("REARRANGE_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Placement.Seed = i
		}
	}

	str("REARRANGE_CLINGO", &c.Planning.Clingo)
	flag("REARRANGE_INCLUDE_NEWS", &c.Planning.IncludeNews)
	flag("REARRANGE_OPTIMIZE_GRID", &c.Planning.OptimizeGrid)
	num("REARRANGE_MAX_STEPS", &c.Planning.MaxSteps)

	str("REARRANGE_ADDR", &c.Server.Addr)
	str("REARRANGE_LOG_LEVEL", &c.Server.LogLevel)
	flag("REARRANGE_TRACING", &c.Server.Tracing)
}

func (c Config) Validate() error {
	return validate.Struct(c)
}

func (c Config) Algorithm() (placement.Algorithm, error) {
	return placement.ParseAlgorithm(c.Placement.Algorithm)
}

// Settings builds placement settings seeded from the configuration. Start
// is left zero so the budget runs from the first search.
func (c Config) Settings(logger *slog.Logger) placement.Settings {
	return placement.Settings{
		Engine:      physics.NewResolver(c.Placement.Threshold),
		Timeout:     c.Search.Timeout,
		BatchSize:   c.Placement.BatchSize,
		Precision:   c.Placement.Precision,
		Rand:        rand.New(rand.NewSource(c.Placement.Seed)),
		Workers:     c.Placement.Workers,
		ScalarFloor: c.Search.ScalarFloor,
		TupleFloor:  c.Search.TupleFloor,
		Logger:      logger,
	}
}

func (c Config) PlanOptions(solver planning.Solver, logger *slog.Logger) planning.Options {
	return planning.Options{
		Solver:      solver,
		Engine:      physics.NewResolver(c.Placement.Threshold),
		IncludeNews: c.Planning.IncludeNews,
		Optimize:    c.Planning.OptimizeGrid,
		MaxSteps:    c.Planning.MaxSteps,
		Precision:   c.Placement.Precision,
		Rand:        rand.New(rand.NewSource(c.Placement.Seed)),
		Logger:      logger,
	}
}

func (s ServerConfig) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
