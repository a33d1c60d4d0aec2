// Package publish writes generated posts to a WordPress site.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kalambet/wpbatch/internal/metrics"
	"github.com/kalambet/wpbatch/internal/post"
	"github.com/kalambet/wpbatch/internal/wordpress"
)

// Site is the connection and defaults of one WordPress site.
type Site struct {
	URL               string
	Username          string
	AppPassword       string
	DefaultCategoryID string
}

// Error is a failed publish, classified by Kind.
type Error struct {
	Kind wordpress.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Stage uploads thumbnails and creates posts.
type Stage struct {
	httpClient *http.Client
	allowHTTP  bool
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Stage.
type Option func(*Stage)

// WithHTTPClient sets the HTTP client used for WordPress calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Stage) { s.httpClient = hc }
}

// AllowInsecureHTTP keeps explicit http:// site addresses.
func AllowInsecureHTTP(allow bool) Option {
	return func(s *Stage) { s.allowHTTP = allow }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stage) { s.logger = l }
}

// NewStage creates a Stage.
func NewStage(opts ...Option) *Stage {
	s := &Stage{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns a WordPress client for site.
func (s *Stage) Client(site Site) (*wordpress.Client, error) {
	opts := []wordpress.Option{wordpress.AllowInsecureHTTP(s.allowHTTP)}
	if s.httpClient != nil {
		opts = append(opts, wordpress.WithHTTPClient(s.httpClient))
	}
	return wordpress.New(wordpress.Credentials{
		SiteURL:     site.URL,
		Username:    site.Username,
		AppPassword: site.AppPassword,
	}, opts...)
}

// Publish uploads p's thumbnail, rewrites references to it, and creates the
// post. A failed upload leaves the inline image in place. The returned post
// is a copy of p carrying the remote id; p itself is not modified.
func (s *Stage) Publish(ctx context.Context, site Site, p *post.Post) (*post.Post, error) {
	start := s.now()
	defer func() { metrics.PublishDuration.Observe(time.Since(start).Seconds()) }()

	client, err := s.Client(site)
	if err != nil {
		return nil, &Error{Kind: wordpress.KindMalformed, Err: err}
	}

	out := p.Clone()
	if out.Thumbnail != nil && len(out.Thumbnail.Data) > 0 {
		s.uploadThumbnail(ctx, client, out)
	}

	out.Categories = resolveCategories(out.Categories, site.DefaultCategoryID)

	created, err := client.CreatePost(ctx, wordpress.PostRequest{
		Title:      out.Title,
		Content:    out.Content,
		Excerpt:    out.Excerpt,
		Status:     string(out.Status),
		Date:       out.Date,
		Categories: out.Categories,
	})
	if err != nil {
		return nil, &Error{Kind: publishKind(err), Err: err}
	}

	out.RemoteID = created.ID
	out.Link = created.Link
	s.logger.Info("publish: post created", "site", client.BaseURL(), "title", out.Title, "remote_id", created.ID, "status", out.Status)
	return out, nil
}

func (s *Stage) uploadThumbnail(ctx context.Context, client *wordpress.Client, p *post.Post) {
	img := p.Thumbnail
	filename := fmt.Sprintf("thumbnail-%d%s", s.now().UnixMilli(), extension(img.MIMEType))

	media, err := client.UploadMedia(ctx, filename, img.MIMEType, img.Data)
	if err != nil {
		metrics.MediaUploadFailures.Inc()
		s.logger.Warn("publish: thumbnail upload failed, keeping inline image", "title", p.Title, "error", err)
		return
	}

	p.Content = strings.ReplaceAll(p.Content, img.DataURI(), media.SourceURL)
	p.FeaturedMediaURL = media.SourceURL
	s.logger.Debug("publish: thumbnail uploaded", "url", media.SourceURL, "size", humanize.Bytes(uint64(len(img.Data))))
}

// Stats returns the site's post counts by status.
func (s *Stage) Stats(ctx context.Context, site Site) (wordpress.Stats, error) {
	client, err := s.Client(site)
	if err != nil {
		return wordpress.Stats{}, err
	}
	return client.Stats(ctx), nil
}

// resolveCategories prefers explicit categories, then the site default.
// It never returns nil.
func resolveCategories(explicit []int, defaultID string) []int {
	if len(explicit) > 0 {
		return explicit
	}
	if id, err := strconv.Atoi(strings.TrimSpace(defaultID)); err == nil {
		return []int{id}
	}
	return []int{}
}

func publishKind(err error) wordpress.ErrorKind {
	switch k := wordpress.KindOf(err); k {
	case wordpress.KindAuth, wordpress.KindMalformed, wordpress.KindNetwork:
		return k
	}
	return wordpress.KindUnknown
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ""
}
