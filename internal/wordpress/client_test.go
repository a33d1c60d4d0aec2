package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Credentials{
		SiteURL:     srv.URL,
		Username:    "  admin ",
		AppPassword: "abcd efgh\tijkl",
	}, WithHTTPClient(srv.Client()), AllowInsecureHTTP(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNormalizeSiteURL(t *testing.T) {
	tests := []struct {
		raw       string
		allowHTTP bool
		want      string
	}{
		{"example.com", false, "https://example.com"},
		{"  example.com/  ", false, "https://example.com"},
		{"/example.com//", false, "https://example.com"},
		{"http://example.com", false, "https://example.com"},
		{"HTTP://Example.com/blog/", false, "https://Example.com/blog"},
		{"https://example.com/", false, "https://example.com"},
		{"http://localhost:8080", true, "http://localhost:8080"},
		{"localhost:8080", true, "https://localhost:8080"},
	}
	for _, tt := range tests {
		got, err := NormalizeSiteURL(tt.raw, tt.allowHTTP)
		if err != nil {
			t.Errorf("NormalizeSiteURL(%q) error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeSiteURL(%q, %v) = %q, want %q", tt.raw, tt.allowHTTP, got, tt.want)
		}
	}
}

func TestNormalizeSiteURL_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "///", "ftp://example.com", "exa mple.com"} {
		if _, err := NormalizeSiteURL(raw, false); !errors.Is(err, ErrInvalidSiteURL) {
			t.Errorf("NormalizeSiteURL(%q) error = %v, want ErrInvalidSiteURL", raw, err)
		}
	}
}

func TestTestConnection_OK(t *testing.T) {
	var gotUser, gotPass string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/users/me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotUser, gotPass, _ = r.BasicAuth()
		w.Write([]byte(`{"id":1,"name":"Admin","slug":"admin"}`))
	})

	u, err := c.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if u.Name != "Admin" || u.Slug != "admin" {
		t.Errorf("user = %+v", u)
	}
	if gotUser != "admin" {
		t.Errorf("username = %q, want trimmed admin", gotUser)
	}
	if gotPass != "abcdefghijkl" {
		t.Errorf("password = %q, want whitespace removed", gotPass)
	}
}

func TestTestConnection_Statuses(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusInternalServerError, KindUnknown},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := c.TestConnection(context.Background())
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if got := KindOf(err); got != tt.kind {
			t.Errorf("status %d: kind = %q, want %q", tt.status, got, tt.kind)
		}
	}
}

func TestTestConnection_Network(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c, err := New(Credentials{SiteURL: srv.URL}, AllowInsecureHTTP(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.TestConnection(context.Background())
	if KindOf(err) != KindNetwork {
		t.Errorf("kind = %q, want network (err = %v)", KindOf(err), err)
	}
}

func TestStats(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		mu.Lock()
		seen = append(seen, status)
		mu.Unlock()
		if r.URL.Query().Get("per_page") != "1" {
			t.Errorf("per_page = %q, want 1", r.URL.Query().Get("per_page"))
		}
		switch status {
		case "draft":
			w.Header().Set("X-WP-Total", "4")
		case "future":
			w.WriteHeader(http.StatusInternalServerError)
			return
		case "publish":
			w.Header().Set("X-WP-Total", "12")
		}
		w.Write([]byte(`[]`))
	})

	s := c.Stats(context.Background())
	if s.Draft != 4 || s.Future != 0 || s.Publish != 12 {
		t.Errorf("Stats = %+v, want {4 0 12}", s)
	}
	if len(seen) != 3 {
		t.Errorf("requests = %v, want 3", seen)
	}
}

func TestCreatePost(t *testing.T) {
	date := time.Date(2025, 2, 3, 4, 5, 6, 0, time.FixedZone("KST", 9*3600))
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wp-json/wp/v2/posts" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["title"] != "Hello" || body["status"] != "future" || body["excerpt"] != "ex" {
			t.Errorf("body = %v", body)
		}
		if body["date"] != "2025-02-02T19:05:06Z" {
			t.Errorf("date = %v, want UTC RFC3339", body["date"])
		}
		if cats, ok := body["categories"].([]any); !ok || len(cats) != 1 || cats[0] != float64(7) {
			t.Errorf("categories = %v", body["categories"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42,"status":"future","link":"https://x/p/42","title":{"rendered":"Hello"},"date":"2025-02-03T04:05:06"}`))
	})

	p, err := c.CreatePost(context.Background(), PostRequest{
		Title: "Hello", Content: "<p>x</p>", Excerpt: "ex", Status: "future", Date: &date, Categories: []int{7},
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ID != 42 || p.Link != "https://x/p/42" || p.Title != "Hello" {
		t.Errorf("post = %+v", p)
	}
}

func TestCreatePost_NoDateSendsEmptyCategories(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)
		if strings.Contains(body, `"date"`) {
			t.Errorf("body has date: %s", body)
		}
		if !strings.Contains(body, `"categories":[]`) {
			t.Errorf("body lacks empty categories: %s", body)
		}
		w.Write([]byte(`{"id":1}`))
	})
	if _, err := c.CreatePost(context.Background(), PostRequest{Title: "t", Status: "draft"}); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
}

func TestCreatePost_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		wantMsg string
	}{
		{"unauthorized", 401, `{"code":"rest_cannot_create","message":"Sorry"}`, KindAuth, "authentication failed"},
		{"forbidden", 403, ``, KindAuth, "authentication failed"},
		{"bad request", 400, `{"code":"rest_invalid_param","message":"Invalid parameter(s): status"}`, KindMalformed, "Invalid parameter(s): status"},
		{"server message", 500, `{"code":"x","message":"database down"}`, KindUnknown, "database down"},
		{"server no body", 502, `<html>bad gateway</html>`, KindUnknown, "publish failed (502)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.CreatePost(context.Background(), PostRequest{Title: "t"})
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tt.kind {
				t.Errorf("kind = %q, want %q", KindOf(err), tt.kind)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestRecentPosts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "future,draft,publish" || q.Get("per_page") != "20" ||
			q.Get("orderby") != "date" || q.Get("order") != "desc" || !q.Has("_embed") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"id":2,"title":{"rendered":"B"},"content":{"rendered":"<p>b</p>"},"excerpt":{"rendered":"eb"},
			 "status":"future","date":"2025-03-04T10:00:00","categories":[3],
			 "_embedded":{"wp:featuredmedia":[{"source_url":"https://x/img.png"}]}},
			{"id":1,"title":{"rendered":"A"},"status":"publish","date":"bogus"}
		]`))
	})

	posts, err := c.RecentPosts(context.Background())
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts", len(posts))
	}
	p := posts[0]
	if p.ID != 2 || p.Title != "B" || p.Content != "<p>b</p>" || p.Excerpt != "eb" || p.Status != "future" {
		t.Errorf("posts[0] = %+v", p)
	}
	if p.FeaturedMediaURL != "https://x/img.png" {
		t.Errorf("FeaturedMediaURL = %q", p.FeaturedMediaURL)
	}
	if !p.Date.Equal(time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", p.Date)
	}
	if len(p.Categories) != 1 || p.Categories[0] != 3 {
		t.Errorf("Categories = %v", p.Categories)
	}
	if !posts[1].Date.IsZero() || posts[1].FeaturedMediaURL != "" {
		t.Errorf("posts[1] = %+v", posts[1])
	}
}

func TestUploadMedia(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/media" {
			t.Errorf("path = %q", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "thumb.png" || string(data) != "PNGDATA" {
			t.Errorf("file = %q (%q)", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part Content-Type = %q", ct)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":9,"source_url":"https://x/uploads/thumb.png"}`))
	})

	m, err := c.UploadMedia(context.Background(), "thumb.png", "image/png", []byte("PNGDATA"))
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if m.ID != 9 || m.SourceURL != "https://x/uploads/thumb.png" {
		t.Errorf("media = %+v", m)
	}
}

func TestUploadMedia_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})
	if _, err := c.UploadMedia(context.Background(), "a.png", "image/png", []byte("x")); err == nil {
		t.Fatal("expected error")
	}
}
