package identity

import (
	"context"
	"strings"

	"github.com/angelmondragon/pharmacare-storefront/internal/repo"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists identities.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// Create inserts an identity; a duplicate email yields a conflict.
func (r *Repository) Create(ctx context.Context, identity *models.Identity) error {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	return repo.Classify(r.DB(ctx).Create(identity).Error, "create identity", "", "User already registered")
}

// FindByEmail matches the email case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var identity models.Identity
	err := r.DB(ctx).Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).Take(&identity).Error
	return found(&identity, err)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var identity models.Identity
	err := r.DB(ctx).Where("id = ?", id).Take(&identity).Error
	return found(&identity, err)
}

// UpdateFields writes the given columns and bumps updated_at.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	n, err := r.UpdateColumns(ctx, &models.Identity{}, id, fields)
	if err != nil {
		return repo.Classify(err, "update identity", "", "")
	}
	if n == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}
	return nil
}

func found(identity *models.Identity, err error) (*models.Identity, error) {
	if err != nil {
		return nil, repo.Classify(err, "load identity", "User not found", "")
	}
	return identity, nil
}
