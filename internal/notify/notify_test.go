package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEventText(t *testing.T) {
	tests := []struct {
		ev   Event
		want []string
	}{
		{Event{Kind: BatchStarted, Total: 4}, []string{"Batch started", "4 posts"}},
		{Event{Kind: BatchCompleted, Succeeded: 3, Failed: 1}, []string{"3 succeeded", "1 failed"}},
		{Event{Kind: ItemSucceeded, Title: "A & B", Site: "https://x"}, []string{"A &amp; B", "https://x"}},
		{Event{Kind: ItemFailed, Title: "T", Error: "<boom>"}, []string{"&lt;boom&gt;"}},
		{Event{Kind: Status, Paused: true, Pending: 2, Succeeded: 1, Current: "Now here"}, []string{"paused", "Pending: 2", "Completed: 1", "Now: Now here"}},
	}
	for _, tt := range tests {
		text := tt.ev.Text()
		for _, w := range tt.want {
			if !strings.Contains(text, w) {
				t.Errorf("%s text = %q, want it to contain %q", tt.ev.Kind, text, w)
			}
		}
	}
}

func TestTelegram_Notify(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramWithBaseURL("TOKEN", "42", srv.URL)
	if err := n.Notify(context.Background(), Event{Kind: Paused}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.ChatID != "42" || got.ParseMode != "HTML" || !strings.Contains(got.Text, "paused") {
		t.Errorf("request = %+v", got)
	}
}

func TestTelegram_NotifyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	err := NewTelegramWithBaseURL("bad", "1", srv.URL).Notify(context.Background(), Event{Kind: Resumed})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want 401 error", err)
	}
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, Event) error {
	f.calls++
	return errors.New("down")
}

func TestMulti(t *testing.T) {
	f := &failing{}
	m := Multi{f, Discard{}, Log{}}
	if err := m.Notify(context.Background(), Event{Kind: Paused}); err == nil {
		t.Error("expected first error")
	}
	if f.calls != 1 {
		t.Errorf("calls = %d", f.calls)
	}
}
