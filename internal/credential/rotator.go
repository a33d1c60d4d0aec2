package credential

import (
	"strings"
	"sync"
)

// Rotator owns an ordered pool of API keys and a cursor into it.
//
// The cursor is sticky: it is never reset on success, so a run that starts
// after an exhausted key begins with the last key that worked. Every cursor
// move is reported to the observer so the owning profile can persist it.
type Rotator struct {
	mu       sync.Mutex
	keys     []string
	idx      int
	start    int
	onChange func(int)
}

// NewRotator creates a Rotator over keys starting at startIndex.
// onChange may be nil.
func NewRotator(keys []string, startIndex int, onChange func(int)) *Rotator {
	r := &Rotator{onChange: onChange}
	r.SetKeys(keys, startIndex)
	return r
}

// SetKeys replaces the key pool. Blank keys are dropped and startIndex is
// clamped into range. The current cycle restarts at the new cursor.
func (r *Rotator) SetKeys(keys []string, startIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	r.keys = cleaned
	switch {
	case len(r.keys) == 0 || startIndex < 0:
		r.idx = 0
	case startIndex >= len(r.keys):
		r.idx = len(r.keys) - 1
	default:
		r.idx = startIndex
	}
	r.start = r.idx
}

// Current returns the key at the cursor, or "" when no keys are configured.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.idx]
}

// Index returns the cursor position.
func (r *Rotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx
}

// Len returns the number of usable keys.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// BeginCycle marks the current key as the start of an exhaustion cycle.
// Call it once before a sequence of attempts.
func (r *Rotator) BeginCycle() {
	r.mu.Lock()
	r.start = r.idx
	r.mu.Unlock()
}

// Rotate advances the cursor to the next key, wrapping at the end of the
// pool. It returns false without moving when the next key would be the one
// the current cycle started on, which means every key has been tried.
func (r *Rotator) Rotate() bool {
	r.mu.Lock()
	if len(r.keys) <= 1 {
		r.mu.Unlock()
		return false
	}
	next := (r.idx + 1) % len(r.keys)
	if next == r.start {
		r.mu.Unlock()
		return false
	}
	r.idx = next
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(next)
	}
	return true
}
