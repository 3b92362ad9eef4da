// Package config loads the daemon configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. APPCHOOSER_ROBOT_BASE_URL.
const EnvPrefix = "APPCHOOSER"

var (
	ErrInvalidMode   = errors.New("session.mode must be registered or developer")
	ErrInvalidDriver = errors.New("platform.driver must be exec or docker")
)

type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Database  DatabaseConfig `yaml:"database"`
	Robot     RobotConfig    `yaml:"robot"`
	Session   SessionConfig  `yaml:"session"`
	Platform  PlatformConfig `yaml:"platform"`
	Logging   LoggingConfig  `yaml:"logging"`
	LogBuffer int            `yaml:"log_buffer" split_words:"true"`
}

type ServerConfig struct {
	Host        string  `yaml:"host" split_words:"true"`
	PathPrefix  string  `yaml:"path_prefix" split_words:"true"`
	Port        int     `yaml:"port" split_words:"true"`
	RateLimit   float64 `yaml:"rate_limit" split_words:"true"`
	RateBurst   int     `yaml:"rate_burst" split_words:"true"`
	MaxBodySize int64   `yaml:"max_body_size" split_words:"true"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// RobotConfig describes how to reach the robot's app manager.
type RobotConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
	// PushURL overrides the event socket derived from BaseURL.
	PushURL        string        `yaml:"push_url" split_words:"true"`
	Timeout        time.Duration `yaml:"timeout" split_words:"true"`
	RetryWaitMin   time.Duration `yaml:"retry_wait_min" split_words:"true"`
	RetryWaitMax   time.Duration `yaml:"retry_wait_max" split_words:"true"`
	PushMinBackoff time.Duration `yaml:"push_min_backoff" split_words:"true"`
	PushMaxBackoff time.Duration `yaml:"push_max_backoff" split_words:"true"`
	RateLimit      float64       `yaml:"rate_limit" split_words:"true"`
	Retries        int           `yaml:"retries" split_words:"true"`
	Burst          int           `yaml:"burst" split_words:"true"`
	DisablePush    bool          `yaml:"disable_push" split_words:"true"`
}

type SessionConfig struct {
	Mode       string `yaml:"mode" split_words:"true"`
	ClientType string `yaml:"client_type" split_words:"true"`
	// CacheTTL keeps a fetched app list fresh for this long. Zero refetches on
	// every refresh.
	CacheTTL time.Duration `yaml:"cache_ttl" split_words:"true"`
}

type PlatformConfig struct {
	Driver      string   `yaml:"driver" split_words:"true"`
	LabelPrefix string   `yaml:"label_prefix" split_words:"true"`
	Network     string   `yaml:"network" split_words:"true"`
	Env         []string `yaml:"env" split_words:"true"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" split_words:"true"`
	Development bool   `yaml:"development" split_words:"true"`
}

// Load reads the YAML file at path, applies environment overrides and fills in
// defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Session.Mode) {
	case "registered", "developer":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Session.Mode)
	}
	switch c.Platform.Driver {
	case "exec", "docker":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Platform.Driver)
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PathPrefix == "" {
		cfg.Server.PathPrefix = "/chooser"
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 20
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 40
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 1 << 20
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/appchooser.db"
	}
	if cfg.Robot.Timeout == 0 {
		cfg.Robot.Timeout = 10 * time.Second
	}
	if cfg.Robot.RetryWaitMin == 0 {
		cfg.Robot.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.Robot.RetryWaitMax == 0 {
		cfg.Robot.RetryWaitMax = 2 * time.Second
	}
	if cfg.Robot.PushMinBackoff == 0 {
		cfg.Robot.PushMinBackoff = time.Second
	}
	if cfg.Robot.PushMaxBackoff == 0 {
		cfg.Robot.PushMaxBackoff = 30 * time.Second
	}
	if cfg.Robot.Retries == 0 {
		cfg.Robot.Retries = 2
	}
	if cfg.Session.Mode == "" {
		cfg.Session.Mode = "registered"
	}
	if cfg.Session.ClientType == "" {
		cfg.Session.ClientType = "android"
	}
	if cfg.Platform.Driver == "" {
		cfg.Platform.Driver = "exec"
	}
	if cfg.Platform.LabelPrefix == "" {
		cfg.Platform.LabelPrefix = "org.ros.appchooser"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.LogBuffer == 0 {
		cfg.LogBuffer = 500
	}
}
