package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the SLO engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Events    EventsConfig    `yaml:"events"`
	Catalogue CatalogueConfig `yaml:"catalogue"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the gRPC and HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DatabaseConfig locates the SQLite file holding the catalogue, measurements and alerts.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig selects and configures the invoice event source.
type EventsConfig struct {
	Source  string        `yaml:"source"`
	BaseURL string        `yaml:"baseURL"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// CatalogueConfig points at the SLO catalogue file. Empty uses the built-in catalogue.
type CatalogueConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig tunes the calculator, evaluator and dashboard.
type EngineConfig struct {
	QueryTimeout       time.Duration `yaml:"queryTimeout"`
	BatchLockTTL       time.Duration `yaml:"batchLockTTL"`
	CriticalFloor      float64       `yaml:"criticalFloor"`
	RecentCriticalCap  int           `yaml:"recentCriticalCap"`
	DashboardAlertScan int           `yaml:"dashboardAlertScan"`
}

// SchedulerConfig enables the in-process periodic runner.
type SchedulerConfig struct {
	Enabled bool     `yaml:"enabled"`
	Periods []string `yaml:"periods"`
}

// CacheConfig controls Valkey-backed caching and run locks.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	EventsTTL    time.Duration `yaml:"eventsTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AP_SLO_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			HTTPAddress:     ":8088",
			GracefulTimeout: 10 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Database: DatabaseConfig{Path: "data/ap-slo.db"},
		Events: EventsConfig{
			Source:  "sqlite",
			Path:    "/api/v1/invoice-events/query",
			Timeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			QueryTimeout:       30 * time.Second,
			BatchLockTTL:       15 * time.Minute,
			CriticalFloor:      50,
			RecentCriticalCap:  10,
			DashboardAlertScan: 200,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Periods: []string{"hourly", "daily"},
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			EventsTTL:    time.Minute,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.Events.Source {
	case "sqlite":
	case "http":
		if c.Events.BaseURL == "" {
			return fmt.Errorf("events.baseURL is required when events.source is http")
		}
	default:
		return fmt.Errorf("unsupported events.source %q", c.Events.Source)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Engine.CriticalFloor < 0 || c.Engine.CriticalFloor > 100 {
		return fmt.Errorf("engine.criticalFloor must be within [0,100], got %v", c.Engine.CriticalFloor)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AP_SLO_GRPC_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AP_SLO_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("AP_SLO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AP_SLO_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("AP_SLO_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AP_SLO_EVENTS_SOURCE"); v != "" {
		cfg.Events.Source = strings.ToLower(v)
	}
	if v := os.Getenv("AP_SLO_EVENTS_BASE_URL"); v != "" {
		cfg.Events.BaseURL = v
	}
	if v := os.Getenv("AP_SLO_EVENTS_PATH"); v != "" {
		cfg.Events.Path = v
	}
	if v := os.Getenv("AP_SLO_EVENTS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Events.Timeout = d
		}
	}
	if v := os.Getenv("AP_SLO_CATALOGUE_PATH"); v != "" {
		cfg.Catalogue.Path = v
	}
	if v := os.Getenv("AP_SLO_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.QueryTimeout = d
		}
	}
	if v := os.Getenv("AP_SLO_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = parseBool(v)
	}
	if v := os.Getenv("AP_SLO_SCHEDULER_PERIODS"); v != "" {
		cfg.Scheduler.Periods = splitList(v)
	}
	if v := os.Getenv("AP_SLO_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("AP_SLO_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("AP_SLO_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("AP_SLO_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("AP_SLO_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("AP_SLO_CACHE_TLS"); v != "" {
		cfg.Cache.TLS = parseBool(v)
	}
	if v := os.Getenv("AP_SLO_CACHE_EVENTS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.EventsTTL = d
		}
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
