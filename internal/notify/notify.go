// Package notify delivers batch lifecycle events to an outbound channel.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
)

// Kind identifies an event.
type Kind string

const (
	BatchStarted   Kind = "batch_started"
	BatchCompleted Kind = "batch_completed"
	ItemSucceeded  Kind = "item_succeeded"
	ItemFailed     Kind = "item_failed"
	Paused         Kind = "paused"
	Resumed        Kind = "resumed"
	Status         Kind = "status"
)

// Event is one notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind      Kind   `json:"kind"`
	Total     int    `json:"total,omitempty"`
	Succeeded int    `json:"succeeded,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Pending   int    `json:"pending,omitempty"`
	Title     string `json:"title,omitempty"`
	Site      string `json:"site,omitempty"`
	Error     string `json:"error,omitempty"`
	Paused    bool   `json:"paused,omitempty"`
	Current   string `json:"current,omitempty"`
}

// Notifier delivers events. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Text renders ev as a short human-readable message with HTML markup.
func (ev Event) Text() string {
	esc := html.EscapeString
	switch ev.Kind {
	case BatchStarted:
		return fmt.Sprintf("🚀 <b>Batch started</b>\n%d posts queued.", ev.Total)
	case BatchCompleted:
		return fmt.Sprintf("🏁 <b>Batch complete</b>\n✅ %d succeeded\n❌ %d failed", ev.Succeeded, ev.Failed)
	case ItemSucceeded:
		return fmt.Sprintf("✅ <b>Published</b>\n%s\n%s", esc(ev.Title), esc(ev.Site))
	case ItemFailed:
		return fmt.Sprintf("❌ <b>Publish failed</b>\n%s\n%s", esc(ev.Title), esc(ev.Error))
	case Paused:
		return "⏸ <b>Batch paused</b>"
	case Resumed:
		return "▶️ <b>Batch resumed</b>"
	case Status:
		var b strings.Builder
		state := "running"
		if ev.Paused {
			state = "paused"
		}
		fmt.Fprintf(&b, "📊 <b>Status</b>: %s\n", state)
		fmt.Fprintf(&b, "Pending: %d\nCompleted: %d\nFailed: %d", ev.Pending, ev.Succeeded, ev.Failed)
		if ev.Current != "" {
			fmt.Fprintf(&b, "\nNow: %s", esc(ev.Current))
		}
		return b.String()
	}
	return string(ev.Kind)
}

// Log writes events to a logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, ev Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notify: "+string(ev.Kind),
		"total", ev.Total, "succeeded", ev.Succeeded, "failed", ev.Failed,
		"title", ev.Title, "error", ev.Error)
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
