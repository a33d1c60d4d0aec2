package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/wpbatch/internal/storage"
)

const currentProfileKey = "current_profile_id"

const defaultProfileName = "Default Site"

var (
	ErrNotFound        = errors.New("profile not found")
	ErrNoActiveProfile = errors.New("no active site profile")
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SaveSiteProfile(p storage.SiteProfile) error
	GetSiteProfile(id string) (storage.SiteProfile, error)
	ListSiteProfiles() ([]storage.SiteProfile, error)
	DeleteSiteProfile(id string) error
	SetSetting(key, value string) error
	GetSetting(key string) (string, error)
	DeleteSetting(key string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to the site profiles stored in SQLite.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Settings
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// Settings returns every profile and the current selection.
func (m *Manager) Settings() (Settings, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		s := copySettings(m.cached)
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copySettings(m.cached), nil
	}

	s, err := m.load()
	if err != nil {
		return Settings{}, err
	}
	m.cached = &s
	m.cachedAt = m.clock.Now()
	return copySettings(&s), nil
}

func (m *Manager) load() (Settings, error) {
	records, err := m.store.ListSiteProfiles()
	if err != nil {
		return Settings{}, fmt.Errorf("listing site profiles: %w", err)
	}
	var s Settings
	for _, r := range records {
		p, err := fromRecord(r)
		if err != nil {
			return Settings{}, err
		}
		s.Profiles = append(s.Profiles, p)
	}
	current, err := m.store.GetSetting(currentProfileKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Settings{}, fmt.Errorf("loading current profile: %w", err)
	}
	s.CurrentProfileID = current
	return s, nil
}

// invalidate must be called with mu held.
func (m *Manager) invalidate() {
	m.cached = nil
}

// List returns all profiles, oldest first.
func (m *Manager) List() ([]SiteProfile, error) {
	s, err := m.Settings()
	if err != nil {
		return nil, err
	}
	return s.Profiles, nil
}

func (m *Manager) Get(id string) (SiteProfile, error) {
	s, err := m.Settings()
	if err != nil {
		return SiteProfile{}, err
	}
	for _, p := range s.Profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return SiteProfile{}, ErrNotFound
}

// Active returns the currently selected profile.
func (m *Manager) Active() (SiteProfile, error) {
	s, err := m.Settings()
	if err != nil {
		return SiteProfile{}, err
	}
	if s.CurrentProfileID == "" {
		return SiteProfile{}, ErrNoActiveProfile
	}
	for _, p := range s.Profiles {
		if p.ID == s.CurrentProfileID {
			return p, nil
		}
	}
	return SiteProfile{}, ErrNoActiveProfile
}

// Save creates p when its ID is empty and updates it otherwise. The first
// profile ever saved becomes the active one.
func (m *Manager) Save(p SiteProfile) (SiteProfile, error) {
	if err := p.Config.Validate(); err != nil {
		return SiteProfile{}, fmt.Errorf("invalid site config: %w", err)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = nameFor(p.Config.SiteURL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if existing, err := m.store.GetSiteProfile(p.ID); err == nil {
		p.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return SiteProfile{}, fmt.Errorf("loading profile %s: %w", p.ID, err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.clock.Now()
	}

	rec, err := toRecord(p)
	if err != nil {
		return SiteProfile{}, err
	}
	if err := m.store.SaveSiteProfile(rec); err != nil {
		return SiteProfile{}, fmt.Errorf("saving profile %s: %w", p.ID, err)
	}
	current, err := m.store.GetSetting(currentProfileKey)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && current == "") {
		if err := m.store.SetSetting(currentProfileKey, p.ID); err != nil {
			return SiteProfile{}, fmt.Errorf("activating profile %s: %w", p.ID, err)
		}
	} else if err != nil {
		return SiteProfile{}, fmt.Errorf("loading current profile: %w", err)
	}
	m.invalidate()
	return p, nil
}

// Delete removes a profile. When it was the current one, the oldest
// remaining profile becomes current.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteSiteProfile(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	m.invalidate()

	current, err := m.store.GetSetting(currentProfileKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("loading current profile: %w", err)
	}
	if current != id {
		return nil
	}
	remaining, err := m.store.ListSiteProfiles()
	if err != nil {
		return fmt.Errorf("listing site profiles: %w", err)
	}
	if len(remaining) == 0 {
		return m.store.DeleteSetting(currentProfileKey)
	}
	return m.store.SetSetting(currentProfileKey, remaining[0].ID)
}

// Switch makes id the active profile and stamps its last-used time.
func (m *Manager) Switch(id string) (SiteProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.getLocked(id)
	if err != nil {
		return SiteProfile{}, err
	}
	now := m.clock.Now()
	p.LastUsedAt = &now
	rec, err := toRecord(p)
	if err != nil {
		return SiteProfile{}, err
	}
	if err := m.store.SaveSiteProfile(rec); err != nil {
		return SiteProfile{}, fmt.Errorf("saving profile %s: %w", id, err)
	}
	if err := m.store.SetSetting(currentProfileKey, id); err != nil {
		return SiteProfile{}, fmt.Errorf("activating profile %s: %w", id, err)
	}
	m.invalidate()
	return p, nil
}

// SetKeyIndex persists the API key cursor of a profile.
func (m *Manager) SetKeyIndex(id string, idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.getLocked(id)
	if err != nil {
		return err
	}
	if p.Config.CurrentKeyIndex == idx {
		return nil
	}
	p.Config.CurrentKeyIndex = idx
	rec, err := toRecord(p)
	if err != nil {
		return err
	}
	if err := m.store.SaveSiteProfile(rec); err != nil {
		return fmt.Errorf("saving key index for %s: %w", id, err)
	}
	m.invalidate()
	return nil
}

// MigrateLegacy turns a standalone site configuration into the first
// profile. It does nothing when profiles already exist or cfg has no site.
func (m *Manager) MigrateLegacy(cfg SiteConfig) (bool, error) {
	if strings.TrimSpace(cfg.SiteURL) == "" {
		return false, nil
	}
	existing, err := m.List()
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	if _, err := m.Save(SiteProfile{Name: nameFor(cfg.SiteURL), Config: cfg}); err != nil {
		return false, fmt.Errorf("migrating legacy config: %w", err)
	}
	return true, nil
}

// Export writes all profiles and the current selection as YAML.
func (m *Manager) Export(w io.Writer) error {
	s, err := m.Settings()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}
	return enc.Close()
}

// Import saves every profile in a YAML export, keeping IDs so that
// importing the same document twice updates in place. The exported
// selection is applied only when no profile is active yet.
func (m *Manager) Import(r io.Reader) (int, error) {
	var s Settings
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return 0, fmt.Errorf("decoding profiles: %w", err)
	}
	_, activeErr := m.Active()

	n := 0
	for _, p := range s.Profiles {
		if _, err := m.Save(p); err != nil {
			return n, fmt.Errorf("importing %q: %w", p.Name, err)
		}
		n++
	}
	if errors.Is(activeErr, ErrNoActiveProfile) && s.CurrentProfileID != "" {
		if _, err := m.Get(s.CurrentProfileID); err == nil {
			if _, err := m.Switch(s.CurrentProfileID); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (m *Manager) getLocked(id string) (SiteProfile, error) {
	rec, err := m.store.GetSiteProfile(id)
	if errors.Is(err, storage.ErrNotFound) {
		return SiteProfile{}, ErrNotFound
	}
	if err != nil {
		return SiteProfile{}, fmt.Errorf("loading profile %s: %w", id, err)
	}
	return fromRecord(rec)
}

func nameFor(siteURL string) string {
	raw := strings.TrimSpace(siteURL)
	if raw == "" {
		return defaultProfileName
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return defaultProfileName
	}
	return u.Hostname()
}

func fromRecord(r storage.SiteProfile) (SiteProfile, error) {
	p := SiteProfile{
		ID:         r.ID,
		Name:       r.Name,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
	}
	if r.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(r.ConfigJSON), &p.Config); err != nil {
			return SiteProfile{}, fmt.Errorf("decoding config of profile %s: %w", r.ID, err)
		}
	}
	return p, nil
}

func toRecord(p SiteProfile) (storage.SiteProfile, error) {
	b, err := json.Marshal(p.Config)
	if err != nil {
		return storage.SiteProfile{}, fmt.Errorf("encoding config of profile %s: %w", p.ID, err)
	}
	return storage.SiteProfile{
		ID:         p.ID,
		Name:       p.Name,
		ConfigJSON: string(b),
		CreatedAt:  p.CreatedAt,
		LastUsedAt: p.LastUsedAt,
	}, nil
}

func copySettings(s *Settings) Settings {
	cp := Settings{CurrentProfileID: s.CurrentProfileID}
	if s.Profiles != nil {
		cp.Profiles = make([]SiteProfile, len(s.Profiles))
		for i, p := range s.Profiles {
			cp.Profiles[i] = copyProfile(p)
		}
	}
	return cp
}

func copyProfile(p SiteProfile) SiteProfile {
	cp := p
	if p.Config.APIKeys != nil {
		cp.Config.APIKeys = make([]string, len(p.Config.APIKeys))
		copy(cp.Config.APIKeys, p.Config.APIKeys)
	}
	if p.LastUsedAt != nil {
		t := *p.LastUsedAt
		cp.LastUsedAt = &t
	}
	return cp
}
