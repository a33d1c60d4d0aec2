package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SiteProfile is a stored site profile. The site configuration is kept as
// an opaque JSON document owned by the profile package.
type SiteProfile struct {
	ID         string
	Name       string
	ConfigJSON string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Command statuses.
const (
	CommandPending   = "pending"
	CommandProcessed = "processed"
)

// Command is a remote control command queued for a user.
type Command struct {
	ID          string
	UserID      string
	Command     string
	Status      string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// PublishRecord is one line of the local publish history.
type PublishRecord struct {
	ID          string
	ProfileID   string
	Topic       string
	Title       string
	RemoteID    int
	Status      string // "completed" or "failed"
	ScheduledAt *time.Time
	Error       string
	CreatedAt   time.Time
}
