// Package repo holds the pieces every gorm repository in the service shares.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacare-storefront/pkg/db"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db, now: time.Now}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// UpdateColumns writes columns on the row of model with the given id and
// stamps updated_at. It returns the number of rows touched; an empty change
// set touches nothing.
func (b Base) UpdateColumns(ctx context.Context, model any, id uuid.UUID, columns map[string]any) (int64, error) {
	if len(columns) == 0 {
		return 0, nil
	}
	stamped := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		stamped[k] = v
	}
	stamped["updated_at"] = b.now().UTC()

	res := b.DB(ctx).Model(model).Where("id = ?", id).Updates(stamped)
	return res.RowsAffected, res.Error
}

// Classify maps a gorm error onto the service error codes. Missing rows become
// NotFound carrying notFound, unique violations become Conflict carrying
// conflict, and anything else is a Dependency failure labelled op.
func Classify(err error, op, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case notFound != "" && db.IsNotFound(err):
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	case conflict != "" && db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, conflict)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
