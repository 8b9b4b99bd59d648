package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no config path is given.
const EnvConfigPath = "RELEVANCY_CONFIG"

// DefaultEndpoint is the remote relevancy prediction service.
const DefaultEndpoint = "https://m1-backend-api.onrender.com/"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Predictor   PredictorConfig           `json:"predictor" yaml:"predictor"`
	Flow        FlowConfig                `json:"flow" yaml:"flow"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address"`
	UploadDir         string `json:"upload_dir" yaml:"upload_dir"`
	DatabaseDriver    string `json:"database_driver" yaml:"database_driver"`
	SessionTTLMinutes int    `json:"session_ttl_minutes" yaml:"session_ttl_minutes"`
	CleanupSchedule   string `json:"cleanup_schedule" yaml:"cleanup_schedule"`
	LogLevel          string `json:"log_level" yaml:"log_level"`
	LogFormat         string `json:"log_format" yaml:"log_format"`
}

// PredictorConfig points at the external prediction endpoint.
// A zero timeout keeps the transport default.
type PredictorConfig struct {
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type FlowConfig struct {
	ClearOnFailure bool `json:"clear_on_failure" yaml:"clear_on_failure"`
	PreviewRows    int  `json:"preview_rows" yaml:"preview_rows"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

// Default returns a configuration that runs without any file: sqlite on disk,
// in-process cache and the public prediction endpoint.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:     ":8090",
			UploadDir:         "uploads",
			DatabaseDriver:    "sqlite3",
			SessionTTLMinutes: 24 * 60,
			CleanupSchedule:   "@every 30m",
			LogLevel:          "info",
			LogFormat:         "console",
		},
		Predictor: PredictorConfig{
			Endpoint: DefaultEndpoint,
		},
		Flow: FlowConfig{
			PreviewRows: 10,
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "relevancy.db"},
		},
	}
}

// Load reads configuration from the provided path. An empty path falls back to
// $RELEVANCY_CONFIG and then to config.json; a missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if sqlite, ok := cfg.Databases["sqlite3"]; ok && sqlite.DSN != "" && sqlite.DSN != ":memory:" && !filepath.IsAbs(sqlite.DSN) {
		sqlite.DSN = filepath.Join(filepath.Dir(absPath), sqlite.DSN)
		cfg.Databases["sqlite3"] = sqlite
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields after defaults have been applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Predictor.Endpoint) == "" {
		return fmt.Errorf("predictor.endpoint must be configured")
	}
	if strings.TrimSpace(c.BasicConfig.UploadDir) == "" {
		return fmt.Errorf("basic_config.upload_dir must be configured")
	}
	if c.Predictor.TimeoutSeconds < 0 {
		return fmt.Errorf("predictor.timeout_seconds cannot be negative")
	}
	if c.Flow.PreviewRows <= 0 {
		c.Flow.PreviewRows = 10
	}
	if c.BasicConfig.SessionTTLMinutes <= 0 {
		c.BasicConfig.SessionTTLMinutes = 24 * 60
	}
	if c.BasicConfig.DatabaseDriver == "" {
		c.BasicConfig.DatabaseDriver = "sqlite3"
	}
	if _, ok := c.Databases[c.BasicConfig.DatabaseDriver]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.DatabaseDriver)
	}
	return nil
}
