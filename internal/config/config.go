package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edp1096/circuitsolver/pkg/analysis"
	"github.com/edp1096/circuitsolver/pkg/nls"
)

const envPrefix = "CIRCUITSOLVER_"

// Config is everything the command line tool and the server can be tuned by.
type Config struct {
	Solver   SolverConfig   `json:"solver" yaml:"solver"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// SolverConfig tunes the least-squares solver of every partition.
type SolverConfig struct {
	MaxIterations      int     `json:"max_iterations" yaml:"max_iterations"`
	InitialDamping     float64 `json:"initial_damping" yaml:"initial_damping"`
	CostTolerance      float64 `json:"cost_tolerance" yaml:"cost_tolerance"`
	GradientTolerance  float64 `json:"gradient_tolerance" yaml:"gradient_tolerance"`
	FunctionTolerance  float64 `json:"function_tolerance" yaml:"function_tolerance"`
	ParameterTolerance float64 `json:"parameter_tolerance" yaml:"parameter_tolerance"`
}

// AnalysisConfig tunes the partition search.
type AnalysisConfig struct {
	MaxRetries     int     `json:"max_retries" yaml:"max_retries"`
	MaxBases       int     `json:"max_bases" yaml:"max_bases"`
	AcceptCost     float64 `json:"accept_cost" yaml:"accept_cost"`
	StationaryCost float64 `json:"stationary_cost" yaml:"stationary_cost"`
	InitialSpread  float64 `json:"initial_spread" yaml:"initial_spread"`
	Parallelism    int     `json:"parallelism" yaml:"parallelism"`
	MaxSweepPoints int     `json:"max_sweep_points" yaml:"max_sweep_points"`
	Seed           uint64  `json:"seed" yaml:"seed"`
}

// StoreConfig locates the solve history database. An empty path disables it.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

type ServerConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	SolveTimeout time.Duration `json:"solve_timeout" yaml:"solve_timeout"`
	MaxBodyBytes int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text or json
}

func Default() Config {
	solver := nls.DefaultOptions()
	an := analysis.DefaultConfig()
	return Config{
		Solver: SolverConfig{
			MaxIterations:      solver.MaxIterations,
			InitialDamping:     solver.InitialDamping,
			CostTolerance:      solver.CostTolerance,
			GradientTolerance:  solver.GradientTolerance,
			FunctionTolerance:  solver.FunctionTolerance,
			ParameterTolerance: solver.ParameterTolerance,
		},
		Analysis: AnalysisConfig{
			MaxRetries:     an.MaxRetries,
			MaxBases:       an.MaxBases,
			AcceptCost:     an.AcceptCost,
			StationaryCost: an.StationaryCost,
			InitialSpread:  an.InitialSpread,
			Parallelism:    runtime.GOMAXPROCS(0),
			MaxSweepPoints: an.MaxSweepPoints,
			Seed:           an.Seed,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			SolveTimeout: 30 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the file if given, then
// CIRCUITSOLVER_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func loadFromEnv(cfg *Config) {
	// Solver
	envInt("MAX_ITERATIONS", &cfg.Solver.MaxIterations)

	// Analysis
	envInt("MAX_RETRIES", &cfg.Analysis.MaxRetries)
	envInt("MAX_BASES", &cfg.Analysis.MaxBases)
	envInt("PARALLELISM", &cfg.Analysis.Parallelism)
	envInt("MAX_SWEEP_POINTS", &cfg.Analysis.MaxSweepPoints)
	envFloat("ACCEPT_COST", &cfg.Analysis.AcceptCost)
	envFloat("INITIAL_SPREAD", &cfg.Analysis.InitialSpread)
	if v := os.Getenv(envPrefix + "SEED"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Analysis.Seed = u
		}
	}

	// Store and server
	envString("DB", &cfg.Store.Path)
	envString("ADDR", &cfg.Server.Addr)
	if v := os.Getenv(envPrefix + "SOLVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.SolveTimeout = d
		}
	}

	// Logging
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
}

func (c Config) Validate() error {
	if err := c.AnalysisOptions().Validate(); err != nil {
		return err
	}
	if c.Solver.InitialDamping <= 0 {
		return fmt.Errorf("initial_damping must be > 0")
	}
	if c.Server.SolveTimeout < 0 {
		return fmt.Errorf("solve_timeout must not be negative")
	}
	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("max_body_bytes must be >= 1")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json: %q", c.Log.Format)
	}
	return nil
}

// AnalysisOptions converts the file form into the partition search config.
func (c Config) AnalysisOptions() analysis.Config {
	opts := nls.DefaultOptions()
	opts.MaxIterations = c.Solver.MaxIterations
	opts.InitialDamping = c.Solver.InitialDamping
	opts.CostTolerance = c.Solver.CostTolerance
	opts.GradientTolerance = c.Solver.GradientTolerance
	opts.FunctionTolerance = c.Solver.FunctionTolerance
	opts.ParameterTolerance = c.Solver.ParameterTolerance

	return analysis.Config{
		MaxRetries:     c.Analysis.MaxRetries,
		MaxBases:       c.Analysis.MaxBases,
		AcceptCost:     c.Analysis.AcceptCost,
		StationaryCost: c.Analysis.StationaryCost,
		InitialSpread:  c.Analysis.InitialSpread,
		Parallelism:    c.Analysis.Parallelism,
		MaxSweepPoints: c.Analysis.MaxSweepPoints,
		Seed:           c.Analysis.Seed,
		Solver:         opts,
	}
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds the slog logger the configuration asks for.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
