// Package config loads service settings from defaults, an optional YAML
// file and SCOREATTEST_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/score-attest/internal/score"
)

const envPrefix = "SCOREATTEST_"

type Config struct {
	Policy score.Policy `yaml:"policy"`
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Prover ProverConfig `yaml:"prover"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RequireToken enables X-API-Token checks on mutating routes
	RequireToken bool   `yaml:"require_token"`
	TokenName    string `yaml:"token_name"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ProverConfig struct {
	// Engine is "groth16" or "simulated"
	Engine         string        `yaml:"engine"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	MaxAttempts    uint64        `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
	SimulatedDelay time.Duration `yaml:"simulated_delay"`
	// SimulatedKey keeps simulated proofs checkable across restarts. Empty
	// means a random key per process.
	SimulatedKey string `yaml:"simulated_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a config usable without any file or environment
func Default() Config {
	return Config{
		Policy: score.DefaultPolicy(),
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   0, // SSE streams stay open
			RequestTimeout: 60 * time.Second,
			TokenName:      "default",
		},
		Store: StoreConfig{Path: "scoreattest.db"},
		Prover: ProverConfig{
			Engine:         "groth16",
			Workers:        2,
			QueueSize:      64,
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			Timeout:        5 * time.Minute,
			SimulatedDelay: 2 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console", Output: "stderr"},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	uintVar := func(key string, bits int, set func(uint64)) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			n, err := strconv.ParseUint(v, 10, bits)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			set(n)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	uintVar("MAX_SCORE", 32, func(n uint64) { c.Policy.MaxScore = uint32(n) })
	uintVar("MAX_SKEW_SECONDS", 64, func(n uint64) { c.Policy.MaxSkewSeconds = n })
	str("ADDR", &c.Server.Addr)
	dur("REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	if v, ok := lookup(envPrefix + "REQUIRE_TOKEN"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUIRE_TOKEN: %w", envPrefix, err))
		} else {
			c.Server.RequireToken = b
		}
	}
	str("DB_PATH", &c.Store.Path)
	str("ENGINE", &c.Prover.Engine)
	uintVar("WORKERS", 16, func(n uint64) { c.Prover.Workers = int(n) })
	uintVar("MAX_ATTEMPTS", 16, func(n uint64) { c.Prover.MaxAttempts = n })
	dur("PROVE_TIMEOUT", &c.Prover.Timeout)
	dur("SIMULATED_DELAY", &c.Prover.SimulatedDelay)
	str("SIMULATED_KEY", &c.Prover.SimulatedKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Prover.Workers < 1 {
		errs = append(errs, errors.New("prover.workers must be at least 1"))
	}
	if c.Prover.MaxAttempts < 1 {
		errs = append(errs, errors.New("prover.max_attempts must be at least 1"))
	}
	switch c.Prover.Engine {
	case "groth16", "simulated":
	default:
		errs = append(errs, fmt.Errorf("prover.engine %q is not supported", c.Prover.Engine))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not supported", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
