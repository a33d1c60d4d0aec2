package schedule

import (
	"testing"
	"time"

	"github.com/kalambet/wpbatch/internal/post"
)

var seoul = time.FixedZone("KST", 9*60*60)

func TestCompute(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, n := range []int{0, 1, 5} {
		for _, interval := range []int{0, 1, 30} {
			got := Compute(n, start, interval)
			if len(got) != n {
				t.Fatalf("Compute(%d, _, %d) len = %d", n, interval, len(got))
			}
			for i, ts := range got {
				want := start.Add(time.Duration(i*interval) * time.Minute)
				if !ts.Equal(want) {
					t.Errorf("Compute(%d, _, %d)[%d] = %v, want %v", n, interval, i, ts, want)
				}
			}
		}
	}
}

func TestCompute_NegativeCount(t *testing.T) {
	if got := Compute(-1, time.Now(), 10); len(got) != 0 {
		t.Errorf("Compute(-1) = %v, want empty", got)
	}
}

func TestParseStart(t *testing.T) {
	now := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", now},
		{"not a date", now},
		{"2025-06-01T08:30", time.Date(2025, 6, 1, 8, 30, 0, 0, seoul)},
		{"2025-06-01T08:30:15", time.Date(2025, 6, 1, 8, 30, 15, 0, seoul)},
		{"2025-06-01T08:30:00Z", time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := ParseStart(tt.in, now, seoul)
		if !got.Equal(tt.want) {
			t.Errorf("ParseStart(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultStart(t *testing.T) {
	now := time.Date(2025, 5, 5, 23, 10, 0, 0, time.UTC)
	if got := DefaultStart(now, seoul); got != "2025-05-06T08:10" {
		t.Errorf("DefaultStart = %q, want 2025-05-06T08:10", got)
	}
}

func TestDecideMode(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	m := DecideMode(&past, now, post.StatusDraft)
	if m.Status != post.StatusPublish || m.Date == nil || !m.Date.Equal(past) {
		t.Errorf("past: got %+v", m)
	}

	m = DecideMode(&now, now, post.StatusDraft)
	if m.Status != post.StatusPublish || !m.Date.Equal(now) {
		t.Errorf("equal: got %+v", m)
	}

	m = DecideMode(&future, now, post.StatusDraft)
	if m.Status != post.StatusFuture || !m.Date.Equal(future) {
		t.Errorf("future: got %+v", m)
	}

	m = DecideMode(nil, now, post.StatusPending)
	if m.Status != post.StatusPending || m.Date != nil {
		t.Errorf("no schedule: got %+v", m)
	}

	m = DecideMode(nil, now, "")
	if m.Status != post.StatusDraft {
		t.Errorf("no schedule, no fallback: got %+v", m)
	}
}

func TestDecideMode_DoesNotAliasInput(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Add(time.Hour)
	m := DecideMode(&ts, now, post.StatusDraft)
	*m.Date = m.Date.Add(time.Hour)
	if !ts.Equal(now.Add(time.Hour)) {
		t.Error("DecideMode returned a pointer to the caller's timestamp")
	}
}
