package orders

import (
	"context"

	"github.com/angelmondragon/pharmacare-storefront/internal/repo"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads the orders table. Orders are written by checkout, never here.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// ListByUser returns every order placed by userID, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, repo.Classify(err, "list orders", "", "")
	}
	return rows, nil
}
