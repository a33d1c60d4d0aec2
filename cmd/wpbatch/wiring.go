package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/config"
	"github.com/kalambet/wpbatch/internal/generator"
	"github.com/kalambet/wpbatch/internal/notify"
	"github.com/kalambet/wpbatch/internal/profile"
	"github.com/kalambet/wpbatch/internal/publish"
	"github.com/kalambet/wpbatch/internal/storage"
	"github.com/kalambet/wpbatch/internal/thumbnail"
)

// components is everything that generates and publishes, built once per
// process from the config.
type components struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Store
	profiles *profile.Manager
	gen      *generator.Generator
	stage    *publish.Stage
	batch    *batch.Controller
	notifier notify.Notifier
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildComponents opens storage and wires the pipeline. extra notifiers
// receive batch events in addition to Telegram (when configured) or the log.
func buildComponents(cfg config.Config, logger *slog.Logger, extra ...notify.Notifier) (*components, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	renderer, err := thumbnail.NewRenderer(cfg.Thumbnail.FontPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	profiles := profile.NewManager(store)
	gen := generator.New(
		&generator.GeminiModel{
			TextModel:       cfg.Gemini.TextModel,
			ImageModel:      cfg.Gemini.ImageModel,
			MaxOutputTokens: int32(cfg.Gemini.MaxOutputTokens),
		},
		renderer,
		generator.WithAutoComplete(cfg.Generation.AutoComplete),
		generator.WithLogger(logger),
	)
	stage := publish.NewStage(
		publish.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		publish.AllowInsecureHTTP(cfg.WordPress.AllowInsecureHTTP),
		publish.WithLogger(logger),
	)

	var primary notify.Notifier = notify.Log{Logger: logger}
	if cfg.TelegramEnabled() {
		primary = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	notifier := notify.Notifier(primary)
	if len(extra) > 0 {
		notifier = append(notify.Multi{primary}, extra...)
	}

	ctrl := batch.NewController(profiles, gen, stage,
		batch.WithFallbackKeys(cfg.FallbackKeys()),
		batch.WithPausePoll(cfg.Batch.PausePoll),
		batch.WithLocation(loc),
		batch.WithDraftIgnoresSchedule(cfg.Batch.DraftIgnoresSchedule),
		batch.WithNotifier(notifier),
		batch.WithHistory(store),
		batch.WithLogger(logger),
	)

	return &components{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		profiles: profiles,
		gen:      gen,
		stage:    stage,
		batch:    ctrl,
		notifier: notifier,
	}, nil
}

func (c *components) Close() {
	if err := c.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
