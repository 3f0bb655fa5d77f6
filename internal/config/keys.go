package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // keychain account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KINGDOM_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KINGDOM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "KINGDOM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "gemini.api_key", typ: kString, env: "KINGDOM_GEMINI_API_KEY",
		secret: true, account: accountGeminiKey,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.base_url", typ: kString, env: "KINGDOM_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.text_model", typ: kString, env: "KINGDOM_GEMINI_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.TextModel },
	},
	{
		key: "gemini.maps_model", typ: kString, env: "KINGDOM_GEMINI_MAPS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MapsModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.MapsModel },
	},
	{
		key: "gemini.speech_model", typ: kString, env: "KINGDOM_GEMINI_SPEECH_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.SpeechModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.SpeechModel },
	},
	{
		key: "gemini.voice", typ: kString, env: "KINGDOM_GEMINI_VOICE",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Voice = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Voice },
	},
	{
		key: "gemini.image_model", typ: kString, env: "KINGDOM_GEMINI_IMAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.ImageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.ImageModel },
	},
	{
		key: "gemini.fallback_image_model", typ: kString, env: "KINGDOM_GEMINI_FALLBACK_IMAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.FallbackImageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.FallbackImageModel },
	},
	{
		key: "gemini.video_model", typ: kString, env: "KINGDOM_GEMINI_VIDEO_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.VideoModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.VideoModel },
	},
	{
		key: "video.poll_interval", typ: kDuration, env: "KINGDOM_VIDEO_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Video.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Video.PollInterval },
	},
	{
		key: "video.max_polls", typ: kInt, env: "KINGDOM_VIDEO_MAX_POLLS",
		apply:   func(cfg *Config, v any) { cfg.Video.MaxPolls = v.(int) },
		extract: func(cfg Config) any { return cfg.Video.MaxPolls },
	},
	{
		key: "forms.endpoint", typ: kString, env: "KINGDOM_FORMS_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Forms.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Forms.Endpoint },
	},
	{
		key: "forms.access_key", typ: kString, env: "KINGDOM_FORMS_ACCESS_KEY",
		secret: true, account: accountFormsKey,
		apply:   func(cfg *Config, v any) { cfg.Forms.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Forms.AccessKey },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type for s.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer for %s: %w", s.key, err)
		}
		return i, nil
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", s.key, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid duration for %s: must be positive", s.key)
		}
		return d, nil
	}
	return raw, nil
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			raw, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || raw == "" {
				continue
			}
			v, err := parseValue(s, raw)
			if err != nil {
				slog.Warn("ignoring config value", "key", s.key, "value", raw, "error", err)
				continue
			}
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			slog.Warn("ignoring environment override", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
