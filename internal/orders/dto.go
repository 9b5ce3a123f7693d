package orders

import (
	"time"

	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Summary is one row of the profile order history.
type Summary struct {
	ID           uuid.UUID       `json:"id"`
	Number       string          `json:"order_number"`
	Status       string          `json:"status"`
	StatusBadge  string          `json:"status_badge"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
	ItemCount    int             `json:"item_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

var statusBadges = map[string]string{
	"pending":    "warning",
	"processing": "info",
	"shipped":    "primary",
	"delivered":  "success",
	"cancelled":  "danger",
}

// StatusBadge maps an order status to its display colour.
func StatusBadge(status string) string {
	if badge, ok := statusBadges[status]; ok {
		return badge
	}
	return "secondary"
}

// Summarize builds the history view of an order. Orders without a number show
// the first eight characters of their id.
func Summarize(order models.Order, currencySymbol string) Summary {
	number := ""
	if order.OrderNumber != nil {
		number = *order.OrderNumber
	}
	if number == "" {
		number = order.ID.String()[:8]
	}
	return Summary{
		ID:           order.ID,
		Number:       number,
		Status:       order.Status,
		StatusBadge:  StatusBadge(order.Status),
		Total:        order.Total,
		TotalDisplay: currencySymbol + order.Total.StringFixed(2),
		ItemCount:    len(order.Items),
		CreatedAt:    order.CreatedAt,
	}
}

// SummarizeAll keeps the input order.
func SummarizeAll(rows []models.Order, currencySymbol string) []Summary {
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, Summarize(row, currencySymbol))
	}
	return out
}
