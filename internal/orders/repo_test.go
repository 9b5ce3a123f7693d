package orders

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_number TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  total TEXT NOT NULL,
  items TEXT NOT NULL DEFAULT '[]',
  created_at DATETIME
);`
	require.NoError(t, db.Exec(orders).Error)
	return db
}

func TestListByUserNewestFirst(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	other := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	number := "PC-1001"

	rows := []models.Order{
		{ID: uuid.New(), UserID: userID, Status: "delivered", Total: decimal.RequireFromString("12.50"), Items: models.OrderItems{{Name: "Aspirin", Quantity: 1}}, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: uuid.New(), UserID: userID, OrderNumber: &number, Status: "pending", Total: decimal.RequireFromString("40"), Items: models.OrderItems{{Name: "Vitamin C", Quantity: 2}, {Name: "Bandages", Quantity: 1}}, CreatedAt: now},
		{ID: uuid.New(), UserID: other, Status: "shipped", Total: decimal.RequireFromString("5"), CreatedAt: now.Add(time.Hour)},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	got, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pending", got[0].Status)
	assert.Equal(t, "delivered", got[1].Status)
	assert.Len(t, got[0].Items, 2)
	assert.True(t, got[1].Total.Equal(decimal.RequireFromString("12.5")))

	empty, err := repo.ListByUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSummarize(t *testing.T) {
	id := uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001")
	order := models.Order{
		ID:     id,
		Status: "cancelled",
		Total:  decimal.RequireFromString("9.5"),
		Items:  models.OrderItems{{Name: "Cough syrup", Quantity: 1}},
	}

	s := Summarize(order, "$")
	assert.Equal(t, "3f2a9c1e", s.Number)
	assert.Equal(t, "danger", s.StatusBadge)
	assert.Equal(t, "$9.50", s.TotalDisplay)
	assert.Equal(t, 1, s.ItemCount)

	number := "PC-7"
	order.OrderNumber = &number
	order.Status = "on-hold"
	s = Summarize(order, "€")
	assert.Equal(t, "PC-7", s.Number)
	assert.Equal(t, "secondary", s.StatusBadge)
	assert.Equal(t, "€9.50", s.TotalDisplay)
}
