package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Gemini     GeminiConfig
	Generation GenerationConfig
	Thumbnail  ThumbnailConfig
	Batch      BatchConfig
	Commands   CommandsConfig
	WordPress  WordPressConfig
	Telegram   TelegramConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type GeminiConfig struct {
	TextModel       string
	ImageModel      string
	MaxOutputTokens int
	// APIKey is a comma-separated fallback key pool for profiles without keys.
	APIKey string
}

type GenerationConfig struct {
	AutoComplete bool
}

type ThumbnailConfig struct {
	FontPath string
}

type BatchConfig struct {
	PausePoll       time.Duration
	DefaultInterval int
	Timezone        string

	// DraftIgnoresSchedule leaves draft batches without publish times.
	DraftIgnoresSchedule bool
}

type CommandsConfig struct {
	PollInterval time.Duration
	UserID       string
}

type WordPressConfig struct {
	AllowInsecureHTTP bool
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Gemini: GeminiConfig{
			TextModel:       "gemini-2.5-flash",
			ImageModel:      "gemini-2.0-flash-exp",
			MaxOutputTokens: 50000,
		},
		Batch: BatchConfig{
			PausePoll:       500 * time.Millisecond,
			DefaultInterval: 30,
			Timezone:        "Asia/Seoul",
		},
		Commands: CommandsConfig{
			PollInterval: 5 * time.Second,
			UserID:       "local",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/wpbatch/config.json, then applies WPBATCH_* environment
// overrides. Secrets come from the environment or, failing that, from the
// secrets file at $XDG_DATA_HOME/wpbatch/secrets.json.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if _, err := cfg.Location(); err != nil {
		return Config{}, fmt.Errorf("invalid batch.timezone %q: %w", cfg.Batch.Timezone, err)
	}
	return cfg, nil
}

// Location returns the zone schedule start times are interpreted in.
func (c Config) Location() (*time.Location, error) {
	if c.Batch.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Batch.Timezone)
}

// FallbackKeys splits Gemini.APIKey into individual keys.
func (c Config) FallbackKeys() []string {
	var keys []string
	for _, k := range strings.Split(c.Gemini.APIKey, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// TelegramEnabled reports whether both the bot token and chat are set.
func (c Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
