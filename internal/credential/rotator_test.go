package credential

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestRotator_CurrentEmpty(t *testing.T) {
	r := NewRotator(nil, 0, nil)
	if got := r.Current(); got != "" {
		t.Errorf("Current() = %q, want empty", got)
	}
	if r.Rotate() {
		t.Error("Rotate() on empty pool = true, want false")
	}
}

func TestRotator_DropsBlankKeysAndClamps(t *testing.T) {
	r := NewRotator([]string{"a", "  ", "", "b"}, 7, nil)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if r.Index() != 1 || r.Current() != "b" {
		t.Errorf("cursor = %d (%q), want 1 (b)", r.Index(), r.Current())
	}

	r.SetKeys([]string{"x", "y"}, -3)
	if r.Index() != 0 {
		t.Errorf("negative start index not clamped: %d", r.Index())
	}
}

func TestRotator_SingleKeyNeverRotates(t *testing.T) {
	var calls int
	r := NewRotator([]string{"only"}, 0, func(int) { calls++ })
	r.BeginCycle()
	if r.Rotate() {
		t.Error("Rotate() with one key = true, want false")
	}
	if calls != 0 {
		t.Errorf("observer called %d times, want 0", calls)
	}
}

func TestRotator_VisitsEachKeyOncePerCycle(t *testing.T) {
	for start := 0; start < 4; start++ {
		t.Run(fmt.Sprintf("start=%d", start), func(t *testing.T) {
			var observed []int
			r := NewRotator([]string{"k0", "k1", "k2", "k3"}, start, func(i int) { observed = append(observed, i) })
			r.BeginCycle()

			seen := map[string]bool{r.Current(): true}
			for r.Rotate() {
				k := r.Current()
				if seen[k] {
					t.Fatalf("key %q visited twice", k)
				}
				seen[k] = true
			}
			if len(seen) != 4 {
				t.Errorf("visited %d keys, want 4", len(seen))
			}
			if len(observed) != 3 {
				t.Errorf("observer called %d times, want 3", len(observed))
			}
			if want := (start + 3) % 4; r.Index() != want {
				t.Errorf("final index = %d, want %d", r.Index(), want)
			}
		})
	}
}

func TestRotator_StickyAcrossCycles(t *testing.T) {
	r := NewRotator([]string{"a", "b", "c"}, 0, nil)
	r.BeginCycle()
	if !r.Rotate() {
		t.Fatal("first Rotate() = false")
	}
	// A later cycle starts where the previous one left off.
	r.BeginCycle()
	if r.Current() != "b" {
		t.Fatalf("Current() = %q, want b", r.Current())
	}
	if !r.Rotate() || r.Current() != "c" {
		t.Fatalf("Rotate() did not advance to c, got %q", r.Current())
	}
	if !r.Rotate() || r.Current() != "a" {
		t.Fatalf("Rotate() did not wrap to a, got %q", r.Current())
	}
	if r.Rotate() {
		t.Error("Rotate() back to cycle start = true, want false")
	}
}

func TestIsCredentialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429 in message", errors.New("Error 429: too many requests"), true},
		{"quota", errors.New("You exceeded your current QUOTA"), true},
		{"rate limit", errors.New("rate limit reached"), true},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED"), true},
		{"suspended", errors.New("CONSUMER_SUSPENDED"), true},
		{"permission denied", errors.New("Permission denied on resource"), true},
		{"forbidden", errors.New("403 Forbidden"), true},
		{"wrapped", fmt.Errorf("generate: %w", errors.New("limit exceeded")), true},
		{"api error code", genai.APIError{Code: 429, Message: "slow down"}, true},
		{"api error 403", genai.APIError{Code: 403}, true},
		{"api error status", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, true},
		{"api error other", genai.APIError{Code: 500, Message: "internal"}, false},
		{"plain failure", errors.New("connection reset by peer"), false},
		{"bad request", errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCredentialError(tt.err); got != tt.want {
				t.Errorf("IsCredentialError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
