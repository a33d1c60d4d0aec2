// Package batch runs a queue of topics through generation and publishing,
// one item at a time, with cooperative pause and per-item retry.
package batch

import (
	"errors"
	"time"

	"github.com/kalambet/wpbatch/internal/audit"
	"github.com/kalambet/wpbatch/internal/post"
	"github.com/kalambet/wpbatch/internal/schedule"
	"github.com/kalambet/wpbatch/internal/wordpress"
)

// ItemStatus is the lifecycle state of a queue item.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusGenerating ItemStatus = "generating"
	StatusPublishing ItemStatus = "publishing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// Terminal reports whether s is completed or failed.
func (s ItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Item is one topic of a batch and everything known about its progress.
type Item struct {
	Index       int           `json:"index"`
	Topic       post.Topic    `json:"topic"`
	Status      ItemStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
	Result      *post.Post    `json:"result,omitempty"`
	ScheduledAt *time.Time    `json:"scheduled_at,omitempty"`
	Audit       *audit.Result `json:"audit,omitempty"`
}

func (it Item) clone() Item {
	cp := it
	cp.Result = it.Result.Clone()
	if it.ScheduledAt != nil {
		t := *it.ScheduledAt
		cp.ScheduledAt = &t
	}
	if it.Audit != nil {
		a := *it.Audit
		a.BrokenLinks = append([]string(nil), it.Audit.BrokenLinks...)
		cp.Audit = &a
	}
	return cp
}

// Snapshot is a read-only view of the controller state.
type Snapshot struct {
	Running   bool             `json:"running"`
	Paused    bool             `json:"paused"`
	Total     int              `json:"total"`
	Pending   int              `json:"pending"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Current   string           `json:"current,omitempty"`
	Schedule  schedule.Config  `json:"schedule"`
	Stats     *wordpress.Stats `json:"stats,omitempty"`
	Items     []Item           `json:"items"`
}

// ConfigError is a precondition failure that blocks a batch from starting.
// Msg is meant to be shown to the user as is.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

var (
	// ErrBusy is returned by Start while another batch is running.
	ErrBusy = errors.New("a batch is already running")
	// ErrNoItem is returned for a retry index outside the queue.
	ErrNoItem = errors.New("no such queue item")
	// ErrNotRetryable is returned when retrying an item that has not failed.
	ErrNotRetryable = errors.New("only failed items can be retried")
)

var (
	errNoProfile  = &ConfigError{Msg: "No site profile selected. Add a site profile and make it active."}
	errNoKeys     = &ConfigError{Msg: "No API key configured. Add at least one API key to the site profile."}
	errIncomplete = &ConfigError{Msg: "WordPress connection details are incomplete. Set the site URL, username and application password."}
	errNoTopics   = &ConfigError{Msg: `No topics to publish. Enter one topic per line as "title///keyword".`}
)
