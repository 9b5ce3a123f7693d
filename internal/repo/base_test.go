package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
)

type widget struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	Name      string
	UpdatedAt time.Time
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&widget{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestUpdateColumnsStampsUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	stamp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	base := NewBase(db)
	base.now = func() time.Time { return stamp }

	row := widget{ID: uuid.New(), Name: "old"}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	columns := map[string]any{"name": "new"}
	n, err := base.UpdateColumns(context.Background(), &widget{}, row.ID, columns)
	if err != nil || n != 1 {
		t.Fatalf("expected one row updated, got %d, %v", n, err)
	}
	if _, ok := columns["updated_at"]; ok {
		t.Fatal("caller's column map must not be modified")
	}

	var got widget
	if err := db.Take(&got, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Name != "new" || !got.UpdatedAt.Equal(stamp) {
		t.Fatalf("unexpected row %+v", got)
	}

	if n, err := base.UpdateColumns(context.Background(), &widget{}, uuid.New(), columns); err != nil || n != 0 {
		t.Fatalf("expected no rows for unknown id, got %d, %v", n, err)
	}
	if n, err := base.UpdateColumns(context.Background(), &widget{}, row.ID, nil); err != nil || n != 0 {
		t.Fatalf("expected empty change set to be a no-op, got %d, %v", n, err)
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil, "op", "missing", "dup") != nil {
		t.Fatal("nil error must stay nil")
	}

	err := Classify(gorm.ErrRecordNotFound, "load", "User not found", "")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound || pkgerrors.MessageOr(err, "") != "User not found" {
		t.Fatalf("unexpected not found mapping: %v", err)
	}

	err = Classify(errors.New("UNIQUE constraint failed: widgets.name"), "insert", "", "already exists")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	err = Classify(gorm.ErrRecordNotFound, "list", "", "")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency when not-found is not expected, got %v", err)
	}
}
