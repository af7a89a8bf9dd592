package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/qadesk/internal/config"
	"github.com/kalambet/qadesk/internal/service"
)

// session bundles what every service-facing command needs.
type session struct {
	cfg    config.Config
	client *service.Client
	logger *slog.Logger
}

var newSession = func() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Service.APIToken != "" {
		opts = append(opts, service.WithToken(cfg.Service.APIToken))
	}

	return &session{
		cfg:    cfg,
		client: service.New(cfg.Service.BaseURL, opts...),
		logger: logger,
	}, nil
}

// loadConfig loads the config, applies --base-url and installs the logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if baseURLFlag != "" {
		cfg.Service.BaseURL = baseURLFlag
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func setupLogging(level string) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
