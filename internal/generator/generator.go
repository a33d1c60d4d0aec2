// Package generator turns a topic line into a finished post draft using a
// generative model, a pool of rotating API keys and a thumbnail renderer.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/kalambet/wpbatch/internal/credential"
	"github.com/kalambet/wpbatch/internal/metrics"
	"github.com/kalambet/wpbatch/internal/post"
)

const companionImageWidth = 800

var (
	// ErrNoAPIKey is returned when the key pool is empty.
	ErrNoAPIKey = errors.New("API key not set; add at least one key in the site profile")
	// ErrKeysExhausted is returned when every key in the pool was rejected.
	ErrKeysExhausted = errors.New("every API key was rejected; add a new API key")
	// ErrContentIncomplete is returned when the response has no usable body.
	ErrContentIncomplete = errors.New("generated content is incomplete")
)

// Error is a failed generation for one topic.
type Error struct {
	Topic string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generating %q: %v", e.Topic, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetwork reports whether err was caused by a network failure reaching
// the model API.
func IsNetwork(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Thumbnailer renders caption text into an image.
type Thumbnailer interface {
	Render(text string) (*post.Image, error)
}

// Options are the per-site inputs of one generation.
type Options struct {
	CustomInstruction string
	AdCode1           string
	AdCode2           string
	EnableImage       bool
}

// Generator produces post drafts. It is safe for concurrent use, though the
// batch controller only ever runs one generation at a time.
type Generator struct {
	model        Model
	thumbs       Thumbnailer
	autoComplete bool
	logger       *slog.Logger
	pick         func(n int) int
}

// Option configures a Generator.
type Option func(*Generator)

// WithAutoComplete appends a closing paragraph and call-to-action to an
// article that lost both its [/CONTENT] tag and its final call-to-action,
// instead of failing it.
func WithAutoComplete(on bool) Option {
	return func(g *Generator) { g.autoComplete = on }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithTemplatePicker overrides the random template choice.
func WithTemplatePicker(pick func(n int) int) Option {
	return func(g *Generator) { g.pick = pick }
}

// New creates a Generator.
func New(model Model, thumbs Thumbnailer, opts ...Option) *Generator {
	g := &Generator{
		model:  model,
		thumbs: thumbs,
		logger: slog.Default(),
		pick:   rand.IntN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes a draft for topicLine. It tries at most one attempt per
// key: a credential failure rotates keys, any other failure returns at once.
// The returned post has status draft.
func (g *Generator) Generate(ctx context.Context, topicLine string, opts Options, keys *credential.Rotator) (*post.Post, error) {
	topic := post.ParseTopic(topicLine)
	tmpl := Templates[g.pick(len(Templates))]
	req := TextRequest{
		System: systemInstruction(opts.CustomInstruction, tmpl),
		Prompt: userPrompt(topic, tmpl),
	}

	start := time.Now()
	defer func() { metrics.GenerationDuration.Observe(time.Since(start).Seconds()) }()

	keys.BeginCycle()
	attempts := max(1, keys.Len())
	lastErr := ErrKeysExhausted
	for range attempts {
		key := keys.Current()
		if key == "" {
			return nil, &Error{Topic: topic.Title, Err: ErrNoAPIKey}
		}

		text, err := g.model.GenerateText(ctx, key, req)
		if err == nil {
			p, err := g.compose(ctx, key, topic, tmpl, text, opts)
			if err != nil {
				return nil, &Error{Topic: topic.Title, Err: err}
			}
			return p, nil
		}

		if ctx.Err() != nil || !credential.IsCredentialError(err) {
			return nil, &Error{Topic: topic.Title, Err: err}
		}

		lastErr = err
		from := keys.Index()
		if !keys.Rotate() {
			g.logger.Warn("generator: API key pool exhausted", "topic", topic.Title, "keys", keys.Len(), "error", err)
			return nil, &Error{Topic: topic.Title, Err: fmt.Errorf("%w (%d keys tried): %w", ErrKeysExhausted, keys.Len(), err)}
		}
		metrics.KeyRotations.Inc()
		g.logger.Info("generator: rotating API key", "topic", topic.Title, "from", from, "key_index", keys.Index(), "error", err)
	}
	return nil, &Error{Topic: topic.Title, Err: fmt.Errorf("%w: %w", ErrKeysExhausted, lastErr)}
}

func (g *Generator) compose(ctx context.Context, key string, topic post.Topic, tmpl Template, text string, opts Options) (*post.Post, error) {
	closed := strings.Contains(text, "[/CONTENT]")
	hasFinalCTA := strings.Contains(text, finalCTAMarker)

	content := section(text, "CONTENT")
	if content == "" {
		return nil, fmt.Errorf("%w: no [CONTENT] section", ErrContentIncomplete)
	}
	if !closed && !hasFinalCTA {
		if !g.autoComplete {
			return nil, fmt.Errorf("%w: article was cut off before its end", ErrContentIncomplete)
		}
		g.logger.Warn("generator: completing truncated article", "topic", topic.Title)
		content += "\n" + tmpl.closingCTA()
	}

	content = injectAds(content, opts.AdCode1, opts.AdCode2)

	var figure string
	if opts.EnableImage {
		img, err := g.companionImage(ctx, key, topic.Keyword)
		if err != nil {
			g.logger.Warn("generator: companion image failed", "topic", topic.Title, "error", err)
		} else {
			figure = figureHTML(img.DataURI(), topic.Keyword)
		}
	}

	caption := StripTags(section(text, "THUMBNAIL_TEXT"))
	if caption == "" {
		caption = topic.Title
	}
	thumb, err := g.thumbs.Render(caption)
	if err != nil {
		return nil, fmt.Errorf("rendering thumbnail: %w", err)
	}

	title := StripTags(section(text, "TITLE"))
	if title == "" {
		title = topic.Title
	}

	body := thumbnailHTML(thumb.DataURI(), topic.Title) + "\n" + insertAfterFirstH2(content, figure)
	return &post.Post{
		Title:         title,
		Content:       body,
		Excerpt:       StripTags(section(text, "EXCERPT")),
		ThumbnailText: caption,
		Status:        post.StatusDraft,
		Thumbnail:     thumb,
	}, nil
}

// companionImage requests an illustration for keyword and scales it down
// to companionImageWidth. An image that cannot be decoded is used as is.
func (g *Generator) companionImage(ctx context.Context, key, keyword string) (*post.Image, error) {
	img, err := g.model.GenerateImage(ctx, key, keyword+" related blog photo")
	if err != nil {
		return nil, err
	}

	decoded, err := imaging.Decode(bytes.NewReader(img.Data))
	if err != nil || decoded.Bounds().Dx() <= companionImageWidth {
		return img, nil
	}
	resized := imaging.Resize(decoded, companionImageWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return img, nil
	}
	return &post.Image{MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}
