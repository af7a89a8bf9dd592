package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "service.base_url", typ: kString, env: "QADESK_SERVICE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Service.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.BaseURL },
	},
	{
		key: "service.api_token", typ: kString, env: "QADESK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Service.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Service.APIToken },
	},
	{
		key: "chat.greeting", typ: kString, env: "QADESK_CHAT_GREETING",
		apply:   func(cfg *Config, v any) { cfg.Chat.Greeting = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Greeting },
	},
	{
		key: "stub.port", typ: kInt, env: "QADESK_STUB_PORT",
		apply:   func(cfg *Config, v any) { cfg.Stub.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Stub.Port },
	},
	{
		key: "stub.data_dir", typ: kString, env: "QADESK_STUB_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Stub.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Stub.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "QADESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kString:
			var str string
			ok, err = b.Get(s.key, &str)
			v = str
		case kInt:
			var n int
			ok, err = b.Get(s.key, &n)
			v = n
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}
