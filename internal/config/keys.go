package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
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
		key: "server.port", typ: kInt, env: "WPBATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "WPBATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "WPBATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "gemini.text_model", typ: kString, env: "WPBATCH_GEMINI_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.TextModel },
	},
	{
		key: "gemini.image_model", typ: kString, env: "WPBATCH_GEMINI_IMAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.ImageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.ImageModel },
	},
	{
		key: "gemini.max_output_tokens", typ: kInt, env: "WPBATCH_GEMINI_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxOutputTokens },
	},
	{
		key: "gemini.api_key", typ: kString, env: "WPBATCH_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "generation.auto_complete", typ: kBool, env: "WPBATCH_GENERATION_AUTO_COMPLETE",
		apply:   func(cfg *Config, v any) { cfg.Generation.AutoComplete = v.(bool) },
		extract: func(cfg Config) any { return cfg.Generation.AutoComplete },
	},
	{
		key: "thumbnail.font_path", typ: kString, env: "WPBATCH_THUMBNAIL_FONT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Thumbnail.FontPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Thumbnail.FontPath },
	},
	{
		key: "batch.pause_poll", typ: kDuration, env: "WPBATCH_BATCH_PAUSE_POLL",
		apply:   func(cfg *Config, v any) { cfg.Batch.PausePoll = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Batch.PausePoll },
	},
	{
		key: "batch.default_interval", typ: kInt, env: "WPBATCH_BATCH_DEFAULT_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Batch.DefaultInterval = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.DefaultInterval },
	},
	{
		key: "batch.timezone", typ: kString, env: "WPBATCH_BATCH_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Batch.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Batch.Timezone },
	},
	{
		key: "batch.draft_ignores_schedule", typ: kBool, env: "WPBATCH_BATCH_DRAFT_IGNORES_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Batch.DraftIgnoresSchedule = v.(bool) },
		extract: func(cfg Config) any { return cfg.Batch.DraftIgnoresSchedule },
	},
	{
		key: "commands.poll_interval", typ: kDuration, env: "WPBATCH_COMMANDS_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Commands.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Commands.PollInterval },
	},
	{
		key: "commands.user_id", typ: kString, env: "WPBATCH_COMMANDS_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Commands.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Commands.UserID },
	},
	{
		key: "wordpress.allow_insecure_http", typ: kBool, env: "WPBATCH_WORDPRESS_ALLOW_INSECURE_HTTP",
		apply:   func(cfg *Config, v any) { cfg.WordPress.AllowInsecureHTTP = v.(bool) },
		extract: func(cfg Config) any { return cfg.WordPress.AllowInsecureHTTP },
	},
	{
		key: "telegram.bot_token", typ: kString, env: "WPBATCH_TELEGRAM_BOT_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Telegram.BotToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.BotToken },
	},
	{
		key: "telegram.chat_id", typ: kString, env: "WPBATCH_TELEGRAM_CHAT_ID",
		apply:   func(cfg *Config, v any) { cfg.Telegram.ChatID = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.ChatID },
	},
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw into the Go type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		v, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (v == "" && s.typ != kString) {
			continue
		}
		parsed, err := s.parse(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
			continue
		}
		s.apply(cfg, parsed)
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
		parsed, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, parsed)
	}
}

// applySecrets fills secrets not set by the environment from kc.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(appName, secretAccount(s.key)); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
