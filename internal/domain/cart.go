package domain

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a cart line item. Price is a snapshot of the product's applied
// price at the time the item was added. Product is hydrated by queries that
// join the catalog (see Ref).
type CartItem struct {
	CartID    uuid.UUID    `json:"-" db:"cart_id"`
	ProductID uuid.UUID    `json:"product_id" db:"product_id"`
	Product   Ref[Product] `json:"-"`
	Quantity  int          `json:"quantity" db:"quantity"`
	Price     float64      `json:"price" db:"price"`
}

// Cart holds a user's open cart. At most one cart exists per user; the cart
// is deleted implicitly when its last item is removed.
type Cart struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}
