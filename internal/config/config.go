package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

type Config struct {
	Service ServiceConfig
	Chat    ChatConfig
	Stub    StubConfig
	Log     LogConfig
}

type ServiceConfig struct {
	BaseURL  string
	APIToken string
}

type ChatConfig struct {
	Greeting string
}

type StubConfig struct {
	Port    int
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{
			BaseURL: "http://localhost:8000",
		},
		Stub: StubConfig{
			Port:    8000,
			DataDir: ":memory:",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/qadesk/config.json, then applies QADESK_* environment
// variables on top. The service API token is only read from the environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid config service.base_url %q: want an absolute http(s) URL", c.Service.BaseURL)
	}
	if c.Stub.Port <= 0 || c.Stub.Port > 65535 {
		return fmt.Errorf("invalid config stub.port %d", c.Stub.Port)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid config log.level %q: want debug, info, warn or error", s)
	}
}
