package db

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func writeMigrations(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, "/migrations/"+name, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return fs
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fs := writeMigrations(t, map[string]string{
		"010_exports.sql": "SELECT 10;",
		"002_reviews.sql": "SELECT 2;",
		"001_schema.sql":  "CREATE TABLE events (id SERIAL PRIMARY KEY);",
	})

	migrations, err := NewMigratorFS(nil, fs, "/migrations").LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].SQL != "CREATE TABLE events (id SERIAL PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrations(t *testing.T) {
	fs := writeMigrations(t, map[string]string{
		"001_schema.sql": "SELECT 1;",
		"README.md":      "docs",
		"noprefix.sql":   "SELECT 0;",
		"abc_bad.sql":    "SELECT 0;",
	})

	migrations, err := NewMigratorFS(nil, fs, "/migrations").LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Name != "001_schema.sql" {
		t.Errorf("expected only 001_schema.sql, got %+v", migrations)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fs := writeMigrations(t, map[string]string{
		"001_schema.sql": "SELECT 1;",
		"001_other.sql":  "SELECT 1;",
	})
	if _, err := NewMigratorFS(nil, fs, "/migrations").LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigratorFS(nil, afero.NewMemMapFs(), "/nope").LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestPendingAndStatus(t *testing.T) {
	all := []Migration{{Version: 1, Name: "001_schema.sql"}, {Version: 2, Name: "002_reviews.sql"}}
	applied := map[int]time.Time{1: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	pending := PendingMigrations(all, applied)
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Fatalf("expected only version 2 pending, got %+v", pending)
	}

	statuses := BuildStatus(all, applied)
	if !statuses[0].Applied || statuses[0].AppliedAt == nil {
		t.Error("expected version 1 applied with timestamp")
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected version 2 pending")
	}
}
