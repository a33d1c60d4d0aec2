package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_commands_user_status", "idx_publish_log_created"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestSiteProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)

	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	want := SiteProfile{ID: "p1", Name: "Blog", ConfigJSON: `{"site_url":"https://a.test"}`, CreatedAt: created}
	if err := s.SaveSiteProfile(want); err != nil {
		t.Fatalf("SaveSiteProfile: %v", err)
	}

	got, err := s.GetSiteProfile("p1")
	if err != nil {
		t.Fatalf("GetSiteProfile: %v", err)
	}
	if got.Name != want.Name || got.ConfigJSON != want.ConfigJSON || !got.CreatedAt.Equal(created) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.LastUsedAt != nil {
		t.Errorf("LastUsedAt = %v, want nil", got.LastUsedAt)
	}

	used := created.Add(time.Hour)
	want.Name = "Renamed"
	want.LastUsedAt = &used
	want.CreatedAt = created.Add(48 * time.Hour)
	if err := s.SaveSiteProfile(want); err != nil {
		t.Fatalf("SaveSiteProfile update: %v", err)
	}
	got, err = s.GetSiteProfile("p1")
	if err != nil {
		t.Fatalf("GetSiteProfile: %v", err)
	}
	if got.Name != "Renamed" || got.LastUsedAt == nil || !got.LastUsedAt.Equal(used) {
		t.Errorf("after update got %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v", got.CreatedAt)
	}
}

func TestListAndDeleteSiteProfiles(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		p := SiteProfile{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("site %d", i), ConfigJSON: "{}", CreatedAt: base.Add(time.Duration(2-i) * time.Hour)}
		if err := s.SaveSiteProfile(p); err != nil {
			t.Fatalf("SaveSiteProfile: %v", err)
		}
	}

	list, err := s.ListSiteProfiles()
	if err != nil {
		t.Fatalf("ListSiteProfiles: %v", err)
	}
	if len(list) != 3 || list[0].ID != "p2" || list[2].ID != "p0" {
		t.Fatalf("order = %v, want oldest first", list)
	}

	if err := s.DeleteSiteProfile("p1"); err != nil {
		t.Fatalf("DeleteSiteProfile: %v", err)
	}
	if err := s.DeleteSiteProfile("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetSiteProfile("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSiteProfile after delete err = %v, want ErrNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetSetting("current_profile_id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.SetSetting("current_profile_id", "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("current_profile_id", "b"); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetSetting("current_profile_id")
	if err != nil || v != "b" {
		t.Errorf("GetSetting = %q, %v; want b", v, err)
	}
	if err := s.DeleteSetting("current_profile_id"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSetting("current_profile_id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestCommandQueue(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, cmd := range []string{"pause", " STATUS ", "resume"} {
		c, err := s.EnqueueCommand(Command{UserID: "u1", Command: cmd, CreatedAt: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("EnqueueCommand: %v", err)
		}
		if c.ID == "" || c.Status != CommandPending {
			t.Errorf("enqueued = %+v", c)
		}
		ids = append(ids, c.ID)
	}
	if _, err := s.EnqueueCommand(Command{UserID: "other", Command: "pause"}); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingCommands("u1")
	if err != nil {
		t.Fatalf("PendingCommands: %v", err)
	}
	if len(pending) != 3 || pending[0].Command != "pause" || pending[1].Command != "status" || pending[2].Command != "resume" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := s.MarkCommandProcessed(ids[0]); err != nil {
		t.Fatalf("MarkCommandProcessed: %v", err)
	}
	if err := s.MarkCommandProcessed(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ack err = %v, want ErrNotFound", err)
	}

	pending, err = s.PendingCommands("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != ids[1] {
		t.Errorf("pending after ack = %+v", pending)
	}
}

func TestPublishLog(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sched := base.Add(24 * time.Hour)
	records := []PublishRecord{
		{ProfileID: "p", Topic: "a///a", Title: "A", RemoteID: 10, Status: "completed", ScheduledAt: &sched, CreatedAt: base},
		{ProfileID: "p", Topic: "b///b", Status: "failed", Error: "auth", CreatedAt: base.Add(time.Minute)},
		{ProfileID: "p", Topic: "c///c", Title: "C", RemoteID: 12, Status: "completed", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		if err := s.RecordPublish(r); err != nil {
			t.Fatalf("RecordPublish: %v", err)
		}
	}

	got, err := s.RecentPublishes(2)
	if err != nil {
		t.Fatalf("RecentPublishes: %v", err)
	}
	if len(got) != 2 || got[0].Topic != "c///c" || got[1].Topic != "b///b" {
		t.Fatalf("got %+v, want newest two", got)
	}
	if got[1].Error != "auth" || got[1].ScheduledAt != nil {
		t.Errorf("failed record = %+v", got[1])
	}

	all, _ := s.RecentPublishes(10)
	last := all[len(all)-1]
	if last.RemoteID != 10 || last.ScheduledAt == nil || !last.ScheduledAt.Equal(sched) {
		t.Errorf("oldest record = %+v", last)
	}
}
