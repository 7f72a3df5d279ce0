package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	Resources   ResourceConfig `yaml:"resources"`
	Members     []string       `yaml:"members"`
	Report      ReportConfig   `yaml:"report"`
	Database    DatabaseConfig `yaml:"database"`
	Server      ServerConfig   `yaml:"server"`
}

// ResourceConfig sizes the shared pools.
type ResourceConfig struct {
	ParkingSlots      int `yaml:"parking_slots"`
	EssentialCapacity int `yaml:"essential_capacity"`
}

// ReportConfig holds the report file location.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// RequestIPHeader names a header set by a trusted proxy that carries the
	// client address. Empty means the socket address is used.
	RequestIPHeader string `yaml:"request_ip_header"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// DefaultMembers is the member directory used when none is configured.
var DefaultMembers = []string{"member_A", "member_B", "member_C", "member_D", "member_E"}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration from the given path. A missing file yields Default().
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}

	if cfg.Resources.ParkingSlots <= 0 {
		cfg.Resources.ParkingSlots = 3
	}
	if cfg.Resources.EssentialCapacity <= 0 {
		cfg.Resources.EssentialCapacity = 3
	}

	if len(cfg.Members) == 0 {
		cfg.Members = append([]string(nil), DefaultMembers...)
	}

	if cfg.Report.Path == "" {
		cfg.Report.Path = "SPMS_Report.txt"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file::memory:?cache=shared"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 1
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 1
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
}
