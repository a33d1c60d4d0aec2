package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding site profiles, settings, remote
// commands and the publish history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "wpbatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Site Profiles ---

// SaveSiteProfile inserts p or replaces the stored profile with the same ID.
func (s *Store) SaveSiteProfile(p SiteProfile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO site_profiles (id, name, config_json, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			last_used_at = excluded.last_used_at`,
		p.ID, p.Name, p.ConfigJSON, formatTime(createdAt), nullTime(p.LastUsedAt),
	)
	return err
}

func (s *Store) GetSiteProfile(id string) (SiteProfile, error) {
	var p SiteProfile
	var createdAt string
	var lastUsed sql.NullString
	err := s.db.QueryRow(`
		SELECT id, name, config_json, created_at, last_used_at
		FROM site_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.ConfigJSON, &createdAt, &lastUsed)
	if err == sql.ErrNoRows {
		return SiteProfile{}, ErrNotFound
	}
	if err != nil {
		return SiteProfile{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SiteProfile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
		return SiteProfile{}, fmt.Errorf("parsing last_used_at: %w", err)
	}
	return p, nil
}

// ListSiteProfiles returns all profiles, oldest first.
func (s *Store) ListSiteProfiles() ([]SiteProfile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, config_json, created_at, last_used_at
		FROM site_profiles ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SiteProfile
	for rows.Next() {
		var p SiteProfile
		var createdAt string
		var lastUsed sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.ConfigJSON, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if p.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
			return nil, fmt.Errorf("parsing last_used_at: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *Store) DeleteSiteProfile(id string) error {
	res, err := s.db.Exec(`DELETE FROM site_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// --- Settings ---

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	return err
}

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) DeleteSetting(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// --- Commands ---

// EnqueueCommand stores a pending command and returns it with its ID and
// timestamp filled in.
func (s *Store) EnqueueCommand(c Command) (Command, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Status = CommandPending
	c.ProcessedAt = nil
	_, err := s.db.Exec(`
		INSERT INTO commands (id, user_id, command, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, strings.ToLower(strings.TrimSpace(c.Command)), c.Status, formatTime(c.CreatedAt),
	)
	if err != nil {
		return Command{}, err
	}
	c.Command = strings.ToLower(strings.TrimSpace(c.Command))
	return c, nil
}

// PendingCommands returns userID's unprocessed commands in arrival order.
func (s *Store) PendingCommands(userID string) ([]Command, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, command, status, created_at
		FROM commands WHERE user_id = ? AND status = ?
		ORDER BY created_at ASC, rowid ASC`, userID, CommandPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Command
	for rows.Next() {
		var c Command
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Command, &c.Status, &createdAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// MarkCommandProcessed acknowledges a pending command. Acknowledging an
// already processed command returns ErrNotFound.
func (s *Store) MarkCommandProcessed(id string) error {
	res, err := s.db.Exec(`UPDATE commands SET status = ?, processed_at = ? WHERE id = ? AND status = ?`,
		CommandProcessed, formatTime(time.Now()), id, CommandPending)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// --- Publish Log ---

func (s *Store) RecordPublish(r PublishRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO publish_log (id, profile_id, topic, title, remote_id, status, scheduled_at, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProfileID, r.Topic, r.Title, r.RemoteID, r.Status, nullTime(r.ScheduledAt), r.Error, formatTime(r.CreatedAt),
	)
	return err
}

// RecentPublishes returns up to limit records, newest first.
func (s *Store) RecentPublishes(limit int) ([]PublishRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, profile_id, topic, title, remote_id, status, scheduled_at, error, created_at
		FROM publish_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PublishRecord
	for rows.Next() {
		var r PublishRecord
		var scheduled sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.ProfileID, &r.Topic, &r.Title, &r.RemoteID, &r.Status, &scheduled, &r.Error, &createdAt); err != nil {
			return nil, err
		}
		if r.ScheduledAt, err = parseNullTime(scheduled); err != nil {
			return nil, fmt.Errorf("parsing scheduled_at: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
