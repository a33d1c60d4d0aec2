package batch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/wpbatch/internal/audit"
	"github.com/kalambet/wpbatch/internal/credential"
	"github.com/kalambet/wpbatch/internal/generator"
	"github.com/kalambet/wpbatch/internal/metrics"
	"github.com/kalambet/wpbatch/internal/notify"
	"github.com/kalambet/wpbatch/internal/post"
	"github.com/kalambet/wpbatch/internal/profile"
	"github.com/kalambet/wpbatch/internal/publish"
	"github.com/kalambet/wpbatch/internal/schedule"
	"github.com/kalambet/wpbatch/internal/storage"
	"github.com/kalambet/wpbatch/internal/wordpress"
)

// SiteSource provides the active site profile and persists the key cursor.
// Implemented by profile.Manager.
type SiteSource interface {
	Active() (profile.SiteProfile, error)
	SetKeyIndex(id string, idx int) error
}

// Generator writes a post draft for one topic line.
type Generator interface {
	Generate(ctx context.Context, topicLine string, opts generator.Options, keys *credential.Rotator) (*post.Post, error)
}

// Publisher pushes a post to a site and reads the site's counts.
type Publisher interface {
	Publish(ctx context.Context, site publish.Site, p *post.Post) (*post.Post, error)
	Stats(ctx context.Context, site publish.Site) (wordpress.Stats, error)
}

// History records finished items. Implemented by storage.Store.
type History interface {
	RecordPublish(r storage.PublishRecord) error
}

// Controller owns the queue of the current batch. Items are processed
// strictly one at a time: the batch loop and manual retries share one
// work lock.
type Controller struct {
	sites        SiteSource
	gen          Generator
	pub          Publisher
	history      History
	notifier     notify.Notifier
	logger       *slog.Logger
	fallbackKeys []string
	pausePoll    time.Duration
	loc          *time.Location
	now          func() time.Time

	draftIgnoresSchedule bool

	work   sync.Mutex
	paused atomic.Bool

	mu         sync.RWMutex
	items      []Item
	running    bool
	current    int
	sched      schedule.Config
	stats      *wordpress.Stats
	generation int
	retrying   map[int]bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithFallbackKeys sets API keys used when the active profile has none.
func WithFallbackKeys(keys []string) Option {
	return func(c *Controller) { c.fallbackKeys = keys }
}

// WithPausePoll sets how often a paused batch checks whether it may resume.
func WithPausePoll(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pausePoll = d
		}
	}
}

// WithLocation sets the zone wall-clock start times are read in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithHistory(h History) Option {
	return func(c *Controller) { c.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDraftIgnoresSchedule keeps draft batches undated: no publish times are
// computed and every post is created as a draft.
func WithDraftIgnoresSchedule(on bool) Option {
	return func(c *Controller) { c.draftIgnoresSchedule = on }
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates an idle Controller.
func NewController(sites SiteSource, gen Generator, pub Publisher, opts ...Option) *Controller {
	c := &Controller{
		sites:     sites,
		gen:       gen,
		pub:       pub,
		notifier:  notify.Discard{},
		logger:    slog.Default(),
		pausePoll: 500 * time.Millisecond,
		loc:       time.Local,
		now:       time.Now,
		current:   -1,
		retrying:  make(map[int]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run is everything one pass over an item needs, resolved from the site
// profile that was active when the pass was requested.
type run struct {
	generation int
	profile    profile.SiteProfile
	site       publish.Site
	opts       generator.Options
	keys       *credential.Rotator
	status     post.Status
}

// prepare checks the start preconditions against the active profile.
func (c *Controller) prepare() (*run, error) {
	p, err := c.sites.Active()
	if err != nil {
		if errors.Is(err, profile.ErrNoActiveProfile) || errors.Is(err, profile.ErrNotFound) {
			return nil, errNoProfile
		}
		return nil, err
	}

	keys := p.Config.Keys()
	var onChange func(int)
	if len(keys) > 0 {
		id := p.ID
		onChange = func(idx int) {
			if err := c.sites.SetKeyIndex(id, idx); err != nil {
				c.logger.Warn("batch: persisting key index failed", "profile", id, "key_index", idx, "error", err)
			}
		}
	} else {
		for _, k := range c.fallbackKeys {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		return nil, errNoKeys
	}
	if !p.Config.Complete() {
		return nil, errIncomplete
	}

	return &run{
		profile: p,
		site:    SiteFor(p.Config),
		opts:    OptionsFor(p.Config),
		keys:    credential.NewRotator(keys, p.Config.CurrentKeyIndex, onChange),
	}, nil
}

// Start validates the preconditions, replaces the queue with one pending
// item per topic line of input, and processes it in the background. The
// returned channel is closed when the batch finishes.
func (c *Controller) Start(ctx context.Context, input string, sc schedule.Config) (<-chan struct{}, error) {
	c.mu.RLock()
	busy := c.running
	c.mu.RUnlock()
	if busy {
		return nil, ErrBusy
	}

	r, err := c.prepare()
	if err != nil {
		return nil, err
	}
	topics := post.ParseTopics(input)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	sc = c.resolveSchedule(sc, r.profile.Config)
	r.status = sc.Status
	items := make([]Item, len(topics))
	var dates []time.Time
	if sc.Status != post.StatusDraft || !c.draftIgnoresSchedule {
		dates = schedule.Compute(len(topics), schedule.ParseStart(sc.StartTime, c.now(), c.loc), sc.IntervalMinutes)
	}
	for i, t := range topics {
		items[i] = Item{Index: i, Topic: t, Status: StatusPending}
		if dates != nil {
			d := dates[i]
			items[i].ScheduledAt = &d
		}
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.generation++
	r.generation = c.generation
	c.items = items
	c.running = true
	c.current = -1
	c.sched = sc
	c.retrying = make(map[int]bool)
	c.mu.Unlock()
	c.paused.Store(false)
	metrics.QueuePending.Set(float64(len(items)))

	c.logger.Info("batch: started", "items", len(items), "profile", r.profile.Name, "status", sc.Status, "interval", sc.IntervalMinutes)
	c.emit(ctx, notify.Event{Kind: notify.BatchStarted, Total: len(items)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.loop(ctx, r, len(items))
	}()
	return done, nil
}

// resolveSchedule fills blanks in sc from the profile defaults.
func (c *Controller) resolveSchedule(sc schedule.Config, cfg profile.SiteConfig) schedule.Config {
	if sc.Status == "" {
		sc.Status = post.Status(cfg.DefaultStatus)
	}
	if sc.Status == "" {
		sc.Status = post.StatusDraft
	}
	if strings.TrimSpace(sc.StartTime) == "" {
		sc.StartTime = cfg.StartTime
	}
	if sc.IntervalMinutes < 0 {
		sc.IntervalMinutes = 0
	}
	return sc
}

func (c *Controller) loop(ctx context.Context, r *run, n int) {
	succeeded, failed := 0, 0
	defer func() {
		c.mu.Lock()
		c.running = false
		c.current = -1
		c.mu.Unlock()
	}()

	for i := range n {
		if err := c.waitWhilePaused(ctx); err != nil {
			c.logger.Warn("batch: stopped", "remaining", n-i, "error", err)
			return
		}
		if c.processItem(ctx, r, i) {
			succeeded++
		} else {
			failed++
		}
	}

	c.logger.Info("batch: completed", "succeeded", succeeded, "failed", failed)
	c.emit(ctx, notify.Event{Kind: notify.BatchCompleted, Succeeded: succeeded, Failed: failed})
}

// waitWhilePaused blocks between items until the pause flag is cleared.
func (c *Controller) waitWhilePaused(ctx context.Context) error {
	if !c.paused.Load() {
		return ctx.Err()
	}
	ticker := time.NewTicker(c.pausePoll)
	defer ticker.Stop()
	for c.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ctx.Err()
}

// processItem generates and publishes item idx. It reports whether the item
// completed. Failures never escape: they are recorded on the item.
func (c *Controller) processItem(ctx context.Context, r *run, idx int) bool {
	c.work.Lock()
	defer c.work.Unlock()

	item, ok := c.item(r.generation, idx)
	if !ok {
		return false
	}
	c.update(r.generation, idx, func(it *Item) {
		it.Status = StatusGenerating
		it.Error = ""
	})

	c.mu.Lock()
	if c.generation == r.generation {
		c.current = idx
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.current == idx && c.generation == r.generation {
			c.current = -1
		}
		c.mu.Unlock()
	}()

	p, err := c.gen.Generate(ctx, item.Topic.Raw, r.opts, r.keys)
	if err != nil {
		c.fail(ctx, r, idx, item, err)
		return false
	}

	result := audit.Audit(p.Content)
	if !result.Passed {
		c.logger.Warn("batch: post failed audit", "index", idx, "topic", item.Topic.Title,
			"html_valid", result.HTMLValid, "broken_links", len(result.BrokenLinks))
	}

	mode := schedule.DecideMode(item.ScheduledAt, c.now(), r.status)
	p.Status = mode.Status
	p.Date = mode.Date

	c.update(r.generation, idx, func(it *Item) {
		it.Status = StatusPublishing
		it.Result = p
		it.Audit = &result
	})

	published, err := c.pub.Publish(ctx, r.site, p)
	if err != nil {
		c.fail(ctx, r, idx, item, err)
		return false
	}

	c.update(r.generation, idx, func(it *Item) {
		it.Status = StatusCompleted
		it.Result = published
	})
	metrics.ItemsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	c.logger.Info("batch: item completed", "index", idx, "topic", item.Topic.Title, "remote_id", published.RemoteID, "status", published.Status)

	c.refreshStats(ctx, r)
	c.record(r, item, published, "completed", "")
	c.emit(ctx, notify.Event{Kind: notify.ItemSucceeded, Title: published.Title, Site: r.site.URL})
	return true
}

func (c *Controller) fail(ctx context.Context, r *run, idx int, item Item, err error) {
	msg := err.Error()
	c.update(r.generation, idx, func(it *Item) {
		it.Status = StatusFailed
		it.Error = msg
	})
	metrics.ItemsTotal.WithLabelValues(string(StatusFailed)).Inc()
	c.logger.Warn("batch: item failed", "index", idx, "topic", item.Topic.Title, "error", err)

	c.record(r, item, nil, "failed", msg)
	c.emit(ctx, notify.Event{Kind: notify.ItemFailed, Title: item.Topic.Title, Error: msg})
}

func (c *Controller) refreshStats(ctx context.Context, r *run) {
	stats, err := c.pub.Stats(ctx, r.site)
	if err != nil {
		c.logger.Debug("batch: refreshing stats failed", "error", err)
		return
	}
	c.mu.Lock()
	c.stats = &stats
	c.mu.Unlock()
}

func (c *Controller) record(r *run, item Item, p *post.Post, status, errMsg string) {
	if c.history == nil {
		return
	}
	rec := storage.PublishRecord{
		ProfileID:   r.profile.ID,
		Topic:       item.Topic.Raw,
		Title:       item.Topic.Title,
		Status:      status,
		ScheduledAt: item.ScheduledAt,
		Error:       errMsg,
	}
	if p != nil {
		rec.Title = p.Title
		rec.RemoteID = p.RemoteID
	}
	if err := c.history.RecordPublish(rec); err != nil {
		c.logger.Warn("batch: recording history failed", "topic", item.Topic.Title, "error", err)
	}
}

func (c *Controller) emit(ctx context.Context, ev notify.Event) {
	if err := c.notifier.Notify(ctx, ev); err != nil {
		c.logger.Debug("batch: notification failed", "kind", ev.Kind, "error", err)
	}
}

// item returns a copy of item idx if the queue is still generation gen.
func (c *Controller) item(gen, idx int) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.generation != gen || idx < 0 || idx >= len(c.items) {
		return Item{}, false
	}
	return c.items[idx], true
}

// update applies fn to item idx unless the queue was replaced since gen.
func (c *Controller) update(gen, idx int, fn func(*Item)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || idx < 0 || idx >= len(c.items) {
		return
	}
	fn(&c.items[idx])
	metrics.QueuePending.Set(float64(c.pendingLocked()))
}

func (c *Controller) pendingLocked() int {
	n := 0
	for _, it := range c.items {
		if !it.Status.Terminal() {
			n++
		}
	}
	return n
}

// Retry reprocesses one failed item in the background against the profile
// active now. No other item is touched. The returned channel is closed when
// the retry finishes.
func (c *Controller) Retry(ctx context.Context, idx int) (<-chan struct{}, error) {
	c.mu.Lock()
	if idx < 0 || idx >= len(c.items) {
		c.mu.Unlock()
		return nil, ErrNoItem
	}
	if c.items[idx].Status != StatusFailed || c.retrying[idx] {
		c.mu.Unlock()
		return nil, ErrNotRetryable
	}
	gen := c.generation
	status := c.sched.Status
	c.retrying[idx] = true
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		if c.generation == gen {
			delete(c.retrying, idx)
		}
		c.mu.Unlock()
	}

	r, err := c.prepare()
	if err != nil {
		release()
		return nil, err
	}
	r.generation = gen
	r.status = status

	c.logger.Info("batch: retrying item", "index", idx, "profile", r.profile.Name)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer release()
		c.processItem(ctx, r, idx)
	}()
	return done, nil
}

// Pause stops the batch before its next item. It reports whether the flag
// changed.
func (c *Controller) Pause(ctx context.Context) bool {
	changed := c.paused.CompareAndSwap(false, true)
	if changed {
		c.logger.Info("batch: paused")
	}
	c.emit(ctx, notify.Event{Kind: notify.Paused})
	return changed
}

// Resume clears the pause flag. It reports whether the flag changed.
func (c *Controller) Resume(ctx context.Context) bool {
	changed := c.paused.CompareAndSwap(true, false)
	if changed {
		c.logger.Info("batch: resumed")
	}
	c.emit(ctx, notify.Event{Kind: notify.Resumed})
	return changed
}

func (c *Controller) Paused() bool { return c.paused.Load() }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Running:  c.running,
		Paused:   c.paused.Load(),
		Total:    len(c.items),
		Schedule: c.sched,
		Items:    make([]Item, len(c.items)),
	}
	if c.stats != nil {
		st := *c.stats
		s.Stats = &st
	}
	for i, it := range c.items {
		s.Items[i] = it.clone()
		switch it.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	if c.current >= 0 && c.current < len(c.items) {
		s.Current = c.items[c.current].Topic.Title
	}
	return s
}

// StatusEvent summarizes the queue as a status notification.
func (c *Controller) StatusEvent() notify.Event {
	s := c.Snapshot()
	return notify.Event{
		Kind:      notify.Status,
		Paused:    s.Paused,
		Pending:   s.Pending,
		Succeeded: s.Completed,
		Failed:    s.Failed,
		Current:   s.Current,
	}
}

// SiteFor maps a profile's connection fields to a publish target.
func SiteFor(cfg profile.SiteConfig) publish.Site {
	return publish.Site{
		URL:               cfg.SiteURL,
		Username:          cfg.Username,
		AppPassword:       cfg.AppPassword,
		DefaultCategoryID: cfg.DefaultCategoryID,
	}
}

// OptionsFor maps a profile's generation settings to generator options.
func OptionsFor(cfg profile.SiteConfig) generator.Options {
	return generator.Options{
		CustomInstruction: cfg.CustomInstruction,
		AdCode1:           cfg.AdCode1,
		AdCode2:           cfg.AdCode2,
		EnableImage:       cfg.EnableAIImage,
	}
}
