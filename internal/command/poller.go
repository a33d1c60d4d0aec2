// Package command applies remote control commands to the batch controller.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/wpbatch/internal/metrics"
	"github.com/kalambet/wpbatch/internal/notify"
	"github.com/kalambet/wpbatch/internal/storage"
)

// Recognized commands.
const (
	Pause  = "pause"
	Resume = "resume"
	Status = "status"
)

// DefaultPollInterval is used when NewPoller is given no interval.
const DefaultPollInterval = 5 * time.Second

// Source abstracts the command queue. Implemented by storage.Store.
type Source interface {
	PendingCommands(userID string) ([]storage.Command, error)
	MarkCommandProcessed(id string) error
}

// Target is what commands act on. Implemented by batch.Controller, which
// emits its own paused and resumed notifications.
type Target interface {
	Pause(ctx context.Context) bool
	Resume(ctx context.Context) bool
	StatusEvent() notify.Event
}

// Poller fetches pending commands for one user and applies them.
type Poller struct {
	source   Source
	target   Target
	notifier notify.Notifier
	userID   string
	poll     time.Duration
	logger   *slog.Logger

	mu sync.Mutex
	// acted holds commands already applied whose acknowledgement failed,
	// so that the next poll only retries the acknowledgement. It never
	// outgrows the pending set.
	acted map[string]bool
}

// NewPoller creates a Poller. If pollInterval is <= 0 it defaults to
// DefaultPollInterval. A nil notifier drops status replies.
func NewPoller(source Source, target Target, notifier notify.Notifier, userID string, pollInterval time.Duration) *Poller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Poller{
		source:   source,
		target:   target,
		notifier: notifier,
		userID:   userID,
		poll:     pollInterval,
		logger:   slog.Default(),
		acted:    make(map[string]bool),
	}
}

// Run polls for commands until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Error("command poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.poll):
		}
	}
}

// RunOnce applies every pending command in arrival order and acknowledges
// each one, recognized or not. It returns the number of commands handled.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	cmds, err := p.source.PendingCommands(p.userID)
	if err != nil {
		return 0, fmt.Errorf("fetching commands: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		pending[c.ID] = true
	}
	for id := range p.acted {
		if !pending[id] {
			delete(p.acted, id)
		}
	}

	for _, c := range cmds {
		if !p.acted[c.ID] {
			p.apply(ctx, c)
		}
		if err := p.source.MarkCommandProcessed(c.ID); err != nil {
			p.acted[c.ID] = true
			p.logger.Error("acknowledging command failed", "command_id", c.ID, "error", err)
			continue
		}
		delete(p.acted, c.ID)
	}
	return len(cmds), nil
}

func (p *Poller) apply(ctx context.Context, c storage.Command) {
	name := Normalize(c.Command)
	switch name {
	case Pause:
		changed := p.target.Pause(ctx)
		p.logger.Info("command: pause", "command_id", c.ID, "changed", changed)
	case Resume:
		changed := p.target.Resume(ctx)
		p.logger.Info("command: resume", "command_id", c.ID, "changed", changed)
	case Status:
		if err := p.notifier.Notify(ctx, p.target.StatusEvent()); err != nil {
			p.logger.Debug("command: status reply failed", "error", err)
		}
	default:
		p.logger.Warn("command: unrecognized", "command_id", c.ID, "command", c.Command)
		name = "unknown"
	}
	metrics.CommandsTotal.WithLabelValues(name).Inc()
}

// Normalize lowercases a command and strips a leading slash and any bot
// mention, so "/Pause@my_bot" reads as "pause".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Valid reports whether s names a recognized command.
func Valid(s string) bool {
	switch Normalize(s) {
	case Pause, Resume, Status:
		return true
	}
	return false
}
