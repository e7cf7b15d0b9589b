package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full arena configuration.
type Config struct {
	Sim     SimConfig     `yaml:"sim"`
	Arena   ArenaConfig   `yaml:"arena"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SimConfig controls the simulation core.
type SimConfig struct {
	Seed                 int64 `yaml:"seed"` // 0 = crypto-seeded
	HouseAgents          int   `yaml:"house_agents"`
	SkirmishIntervalSecs int   `yaml:"skirmish_interval_seconds"`
	ReportIntervalSecs   int   `yaml:"report_interval_seconds"`
}

// ArenaConfig controls the round scheduler's phase timings.
type ArenaConfig struct {
	Seats       int `yaml:"seats"`
	WaitSecs    int `yaml:"wait_seconds"`
	RevealSecs  int `yaml:"reveal_seconds"`
	LoadingSecs int `yaml:"loading_seconds"`
	FightSecs   int `yaml:"fight_seconds"`
	SettleSecs  int `yaml:"settle_seconds"`
	BackoffSecs int `yaml:"backoff_seconds"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	Token     string  `yaml:"token"` // bearer token for mutating endpoints
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// StorageConfig controls where state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or empty for local-only
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Env values override
// YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// SkirmishInterval returns the auto-battle tick as a time.Duration.
func (c *Config) SkirmishInterval() time.Duration {
	return time.Duration(c.Sim.SkirmishIntervalSecs) * time.Second
}

// ReportInterval returns the report cadence as a time.Duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Sim.ReportIntervalSecs) * time.Second
}

// applyEnvOverrides overrides values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARENA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ARENA_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("ARENA_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills anything the file left unset.
func setDefaults(cfg *Config) {
	if cfg.Sim.HouseAgents <= 0 {
		cfg.Sim.HouseAgents = 200
	}
	if cfg.Sim.SkirmishIntervalSecs <= 0 {
		cfg.Sim.SkirmishIntervalSecs = 5
	}
	if cfg.Sim.ReportIntervalSecs <= 0 {
		cfg.Sim.ReportIntervalSecs = 60
	}
	if cfg.Arena.Seats <= 0 {
		cfg.Arena.Seats = 10
	}
	if cfg.Arena.WaitSecs <= 0 {
		cfg.Arena.WaitSecs = 2
	}
	if cfg.Arena.RevealSecs <= 0 {
		cfg.Arena.RevealSecs = 3
	}
	if cfg.Arena.LoadingSecs <= 0 {
		cfg.Arena.LoadingSecs = 1
	}
	if cfg.Arena.FightSecs <= 0 {
		cfg.Arena.FightSecs = 10
	}
	if cfg.Arena.SettleSecs <= 0 {
		cfg.Arena.SettleSecs = 3
	}
	if cfg.Arena.BackoffSecs <= 0 {
		cfg.Arena.BackoffSecs = 3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RateLimit <= 0 {
		cfg.Server.RateLimit = 20
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 40
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
