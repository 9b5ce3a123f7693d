package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateFS(Migrations, EmbeddedDir); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestEmbeddedMigrationsDefineAccountTables(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(Migrations, EmbeddedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := fs.ReadFile(Migrations, p)
		if err != nil {
			return err
		}
		all.Write(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk migrations: %v", err)
	}

	content := all.String()
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS identities",
		"CREATE UNIQUE INDEX IF NOT EXISTS identities_email_key",
		"CREATE TABLE IF NOT EXISTS users",
		"role text NOT NULL DEFAULT 'customer'",
		"avatar_url text",
		"CREATE TABLE IF NOT EXISTS orders",
		"total numeric(12,2)",
		"orders_user_created_idx ON orders (user_id, created_at DESC)",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {"m/create_users.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"no down":  {"m/20250101000000_x.sql": {Data: []byte("-- +goose Up\n")}},
		"duplicate": {
			"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"m/20250101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		if err := ValidateFS(fsys, "m"); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateSQLMigration(dir, "Add Avatar Index!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(p, "_add_avatar_index.sql") {
		t.Fatalf("unexpected filename %s", filepath.Base(p))
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationOrdersAfterExisting(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	future := filepath.Join(dir, "20300501120010_later.sql")
	if err := os.WriteFile(future, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, err := createSQLMigration(dir, "next", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(p) != "20300501120011_next.sql" {
		t.Fatalf("expected version after the newest file, got %s", filepath.Base(p))
	}

	p, err = createSQLMigration(dir, "again", now)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if filepath.Base(p) != "20300501120012_again.sql" {
		t.Fatalf("expected monotonic versions, got %s", filepath.Base(p))
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "!!!"); err == nil {
		t.Fatal("expected error for a name with no usable characters")
	}
}
