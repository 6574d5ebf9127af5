package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Survey   SurveyConfig
	Delivery DeliveryConfig
	API      APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir  string
	SeedFile string
}

type LogConfig struct {
	Level string
	JSON  bool
}

type SurveyConfig struct {
	// TotalEmployees is the headcount survey response rates are measured against.
	TotalEmployees int
}

type DeliveryConfig struct {
	WebhookURL   string
	PollInterval string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Survey: SurveyConfig{
			TotalEmployees: 156,
		},
		Delivery: DeliveryConfig{
			PollInterval: "500ms",
		},
	}
}

// Load reads configuration from the JSON config file, environment
// variables and the secrets file in the data directory.
//
// The config file lives at $XDG_CONFIG_HOME/staffdesk/config.json.
// Environment variables (STAFFDESK_*) override file values. When no API
// token is configured one is generated and kept in <data_dir>/secrets.json.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), func(dataDir string) secretStore {
		return fileSecrets{path: filepath.Join(dataDir, "secrets.json")}
	})
}

func loadWith(b ConfigBackend, secretsFor func(dataDir string) secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	if cfg.API.Token == "" {
		token, err := ensureToken(secretsFor(cfg.Storage.DataDir))
		if err != nil {
			return Config{}, fmt.Errorf("loading API token: %w", err)
		}
		cfg.API.Token = token
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Survey.TotalEmployees < 0 {
		return fmt.Errorf("survey.total_employees must not be negative")
	}
	if _, err := cfg.Delivery.Interval(); err != nil {
		return err
	}
	if cfg.Delivery.WebhookURL != "" {
		u, err := url.Parse(cfg.Delivery.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("delivery.webhook_url %q is not an http(s) URL", cfg.Delivery.WebhookURL)
		}
	}
	return nil
}

// Interval parses PollInterval.
func (d DeliveryConfig) Interval() (time.Duration, error) {
	iv, err := time.ParseDuration(d.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("delivery.poll_interval: %w", err)
	}
	if iv <= 0 {
		return 0, fmt.Errorf("delivery.poll_interval must be positive")
	}
	return iv, nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
}
