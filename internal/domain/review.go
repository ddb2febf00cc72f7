package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus is the moderation state of a review
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewAccepted ReviewStatus = "accepted"
	ReviewRejected ReviewStatus = "rejected"
)

// Review is a buyer's product review. Only users with a delivered order
// containing the product may review it, once per product. Accepted reviews
// feed the product's rating.
type Review struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	UserID    uuid.UUID    `json:"user_id" db:"user_id"`
	ProductID uuid.UUID    `json:"product_id" db:"product_id"`
	OrderID   uuid.UUID    `json:"order_id" db:"order_id"`
	Rate      int          `json:"rate" db:"rate"`
	Body      string       `json:"body" db:"body"`
	Status    ReviewStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}
