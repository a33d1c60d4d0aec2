package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"
)

const (
	apiPrefix      = "/wp-json/wp/v2"
	maxErrorBody   = 64 << 10
	recentPostsCap = 20
)

// Credentials identifies a WordPress site and an application password.
type Credentials struct {
	SiteURL     string
	Username    string
	AppPassword string
}

// Client talks to one WordPress site's REST API with basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	allowHTTP  bool
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// AllowInsecureHTTP keeps an explicit http:// scheme instead of upgrading
// it to https://. Intended for local development sites.
func AllowInsecureHTTP(allow bool) Option {
	return func(o *options) { o.allowHTTP = allow }
}

// New normalizes creds.SiteURL and returns a Client for it.
func New(creds Credentials, opts ...Option) (*Client, error) {
	o := options{httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	base, err := NormalizeSiteURL(creds.SiteURL, o.allowHTTP)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    base,
		username:   strings.TrimSpace(creds.Username),
		password:   stripSpaces(creds.AppPassword),
		httpClient: o.httpClient,
	}, nil
}

// BaseURL returns the normalized site URL.
func (c *Client) BaseURL() string { return c.baseURL }

// NormalizeSiteURL trims whitespace and slashes, forces an https:// scheme
// (keeping http:// only when allowHTTP is set) and rejects anything that is
// not an absolute URL with a host.
func NormalizeSiteURL(raw string, allowHTTP bool) (string, error) {
	s := strings.Trim(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", ErrInvalidSiteURL
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		s = "https://" + s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		if allowHTTP {
			s = "http://" + s[len("http://"):]
		} else {
			s = "https://" + s[len("http://"):]
		}
	case strings.Contains(lower, "://"):
		return "", fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidSiteURL, raw)
	default:
		s = "https://" + s
	}
	s = strings.TrimRight(s, "/")

	u, err := url.Parse(s)
	if err != nil || u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSiteURL, raw)
	}
	return s, nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// User is the authenticated account returned by /users/me.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TestConnection verifies the credentials against /users/me.
func (c *Client) TestConnection(ctx context.Context) (User, error) {
	resp, err := c.do(ctx, "test connection", http.MethodGet, apiPrefix+"/users/me", nil, "")
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return User{}, &Error{Op: "test connection", Kind: KindAuth, StatusCode: resp.StatusCode,
			Message: "invalid username or application password"}
	case http.StatusNotFound:
		return User{}, &Error{Op: "test connection", Kind: KindNotFound, StatusCode: resp.StatusCode,
			Message: "REST API not found; check the site address or security plugins"}
	default:
		return User{}, responseError("test connection", resp)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("decoding user: %w", err)
	}
	return u, nil
}

// Stats holds post counts per status.
type Stats struct {
	Draft   int `json:"draft"`
	Future  int `json:"future"`
	Publish int `json:"publish"`
}

// Stats counts posts in each of draft, future and publish concurrently.
// A status whose count cannot be read reports 0.
func (c *Client) Stats(ctx context.Context) Stats {
	var s Stats
	g, gctx := errgroup.WithContext(ctx)
	for status, dst := range map[string]*int{"draft": &s.Draft, "future": &s.Future, "publish": &s.Publish} {
		g.Go(func() error {
			n, err := c.CountPosts(gctx, status)
			if err != nil {
				slog.Debug("wordpress: counting posts failed", "status", status, "error", err)
				return nil
			}
			*dst = n
			return nil
		})
	}
	_ = g.Wait()
	return s
}

// CountPosts reads the X-WP-Total header of a one-item listing.
func (c *Client) CountPosts(ctx context.Context, status string) (int, error) {
	q := url.Values{"status": {status}, "per_page": {"1"}}
	resp, err := c.do(ctx, "count posts", http.MethodGet, apiPrefix+"/posts?"+q.Encode(), nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return 0, &Error{Op: "count posts", Kind: kindForStatus(resp.StatusCode), StatusCode: resp.StatusCode}
	}
	n, err := strconv.Atoi(resp.Header.Get("X-WP-Total"))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// PostRequest is the body of a post-creation call.
type PostRequest struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Excerpt    string     `json:"excerpt"`
	Status     string     `json:"status"`
	Date       *time.Time `json:"-"`
	Categories []int      `json:"categories"`
}

// MarshalJSON writes Date in RFC3339 UTC, omitting it when unset.
func (p PostRequest) MarshalJSON() ([]byte, error) {
	type alias PostRequest
	out := struct {
		alias
		Date string `json:"date,omitempty"`
	}{alias: alias(p)}
	if out.Categories == nil {
		out.Categories = []int{}
	}
	if p.Date != nil {
		out.Date = p.Date.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// Post is a post as returned by the REST API.
type Post struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	Excerpt          string    `json:"excerpt"`
	Status           string    `json:"status"`
	Date             time.Time `json:"date"`
	Link             string    `json:"link"`
	FeaturedMediaURL string    `json:"featured_media_url,omitempty"`
	Categories       []int     `json:"categories"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

type rawPost struct {
	ID         int      `json:"id"`
	Title      rendered `json:"title"`
	Content    rendered `json:"content"`
	Excerpt    rendered `json:"excerpt"`
	Status     string   `json:"status"`
	Date       string   `json:"date"`
	Link       string   `json:"link"`
	Categories []int    `json:"categories"`
	Embedded   struct {
		FeaturedMedia []struct {
			SourceURL string `json:"source_url"`
		} `json:"wp:featuredmedia"`
	} `json:"_embedded"`
}

func (r rawPost) toPost() Post {
	p := Post{
		ID:         r.ID,
		Title:      r.Title.Rendered,
		Content:    r.Content.Rendered,
		Excerpt:    r.Excerpt.Rendered,
		Status:     r.Status,
		Link:       r.Link,
		Categories: r.Categories,
	}
	// WordPress reports local dates without an offset.
	if t, err := time.Parse("2006-01-02T15:04:05", r.Date); err == nil {
		p.Date = t
	}
	if len(r.Embedded.FeaturedMedia) > 0 {
		p.FeaturedMediaURL = r.Embedded.FeaturedMedia[0].SourceURL
	}
	return p
}

// CreatePost creates a post and returns it with its remote id.
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (Post, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Post{}, fmt.Errorf("marshalling post: %w", err)
	}
	resp, err := c.do(ctx, "create post", http.MethodPost, apiPrefix+"/posts", bytes.NewReader(body), "application/json")
	if err != nil {
		return Post{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e := responseError("create post", resp)
		e.Message = "authentication failed; check the username and application password"
		return Post{}, e
	case resp.StatusCode == http.StatusBadRequest:
		e := responseError("create post", resp)
		if e.Message == "" {
			e.Message = "malformed request"
		} else {
			e.Message = "malformed request: " + e.Message
		}
		return Post{}, e
	default:
		e := responseError("create post", resp)
		if e.Message == "" {
			e.Message = fmt.Sprintf("publish failed (%d)", resp.StatusCode)
		}
		return Post{}, e
	}

	var raw rawPost
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Post{}, fmt.Errorf("decoding created post: %w", err)
	}
	return raw.toPost(), nil
}

// RecentPosts returns up to 20 future, draft and published posts, newest
// first, with featured media embedded.
func (c *Client) RecentPosts(ctx context.Context) ([]Post, error) {
	q := url.Values{
		"status":   {"future,draft,publish"},
		"per_page": {strconv.Itoa(recentPostsCap)},
		"_embed":   {""},
		"orderby":  {"date"},
		"order":    {"desc"},
	}
	resp, err := c.do(ctx, "recent posts", http.MethodGet, apiPrefix+"/posts?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("recent posts", resp)
	}

	var raws []rawPost
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decoding posts: %w", err)
	}
	posts := make([]Post, len(raws))
	for i, r := range raws {
		posts[i] = r.toPost()
	}
	return posts, nil
}

// Media is an uploaded media asset.
type Media struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
}

// UploadMedia uploads data as a multipart "file" field.
func (c *Client) UploadMedia(ctx context.Context, filename, mimeType string, data []byte) (Media, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return Media{}, fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Media{}, fmt.Errorf("writing multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Media{}, fmt.Errorf("closing multipart body: %w", err)
	}

	resp, err := c.do(ctx, "upload media", http.MethodPost, apiPrefix+"/media", &buf, mw.FormDataContentType())
	if err != nil {
		return Media{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Media{}, responseError("upload media", resp)
	}

	var m Media
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Media{}, fmt.Errorf("decoding media: %w", err)
	}
	if m.SourceURL == "" {
		return Media{}, &Error{Op: "upload media", Kind: KindUnknown, StatusCode: resp.StatusCode, Message: "response has no source_url"}
	}
	return m, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	return resp, nil
}

// responseError builds an Error from a non-success response, extracting the
// REST API's {"code","message"} body when present.
func responseError(op string, resp *http.Response) *Error {
	e := &Error{Op: op, Kind: kindForStatus(resp.StatusCode), StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		e.Message = body.Message
	}
	return e
}
