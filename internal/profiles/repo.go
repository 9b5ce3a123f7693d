package profiles

import (
	"context"

	"github.com/angelmondragon/pharmacare-storefront/internal/repo"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads and writes rows of the users profile table.
type Repository struct {
	repo.Base
}

// NewRepository constructs a profiles repo bound to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// Insert creates the profile row for a freshly registered identity.
func (r *Repository) Insert(ctx context.Context, profile *models.User) error {
	if profile.Role == "" {
		profile.Role = models.RoleCustomer
	}
	return repo.Classify(r.DB(ctx).Create(profile).Error, "insert profile", "", "profile already exists")
}

// FindByID loads the profile row for an identity id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var profile models.User
	if err := r.DB(ctx).Where("id = ?", id).Take(&profile).Error; err != nil {
		return nil, repo.Classify(err, "load profile", "profile not found", "")
	}
	return &profile, nil
}

// Update writes only the provided fields; a missing row is NotFound.
// Concurrent updates are last-write-wins.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, changes Changes) error {
	if changes.Empty() {
		return nil
	}
	rows, err := r.UpdateColumns(ctx, &models.User{}, id, changes.columns())
	if err != nil {
		return repo.Classify(err, "update profile", "", "")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return nil
}

// SetAvatarURL points the profile at a newly uploaded avatar.
func (r *Repository) SetAvatarURL(ctx context.Context, id uuid.UUID, url string) error {
	_, err := r.UpdateColumns(ctx, &models.User{}, id, map[string]any{"avatar_url": url})
	return repo.Classify(err, "update avatar url", "", "")
}
