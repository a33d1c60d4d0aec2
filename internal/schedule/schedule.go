package schedule

import (
	"strings"
	"time"

	"github.com/kalambet/wpbatch/internal/post"
)

// InputLayout is the minute-precision layout used for start times entered
// by users (the HTML datetime-local format).
const InputLayout = "2006-01-02T15:04"

var layouts = []string{time.RFC3339, "2006-01-02T15:04:05", InputLayout}

// Config is the schedule of one batch run.
type Config struct {
	Status          post.Status `json:"status"`
	StartTime       string      `json:"start_time"`
	IntervalMinutes int         `json:"interval_minutes"`
}

// Mode is the status and optional date a post should be created with.
type Mode struct {
	Status post.Status
	Date   *time.Time
}

// ParseStart parses s as RFC3339 or as a wall-clock time in loc. Blank or
// unparsable input yields now.
func ParseStart(s string, now time.Time, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return now
}

// DefaultStart formats now in loc as an InputLayout string.
func DefaultStart(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(InputLayout)
}

// Compute returns n timestamps: start, start+interval, start+2*interval, ...
// A zero interval gives every item the same timestamp.
func Compute(n int, start time.Time, intervalMinutes int) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	if intervalMinutes < 0 {
		intervalMinutes = 0
	}
	step := time.Duration(intervalMinutes) * time.Minute
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

// DecideMode picks how a post is created at dispatch time. A scheduled time
// at or before now publishes immediately, a later one schedules the post.
// Without a scheduled time the batch's configured status applies with no
// explicit date.
func DecideMode(scheduled *time.Time, now time.Time, fallback post.Status) Mode {
	if scheduled == nil {
		if fallback == "" {
			fallback = post.StatusDraft
		}
		return Mode{Status: fallback}
	}
	d := *scheduled
	if !d.After(now) {
		return Mode{Status: post.StatusPublish, Date: &d}
	}
	return Mode{Status: post.StatusFuture, Date: &d}
}
