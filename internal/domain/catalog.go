package domain

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType identifies how a product discount descriptor is interpreted
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Discount describes a product-level price reduction
type Discount struct {
	Amount float64      `json:"amount" db:"discount_amount"`
	Type   DiscountType `json:"type" db:"discount_type"`
}

// Category is the top level of the catalog hierarchy
type Category struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CustomID  string    `json:"custom_id" db:"custom_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	CreatedBy uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SubCategory belongs to exactly one category
type SubCategory struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CategoryID uuid.UUID `json:"category_id" db:"category_id"`
	Name       string    `json:"name" db:"name"`
	Slug       string    `json:"slug" db:"slug"`
	CustomID   string    `json:"custom_id" db:"custom_id"`
	ImageURL   string    `json:"image_url" db:"image_url"`
	CreatedBy  uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Brand belongs to a sub-category and carries the owning category id for
// scoped cascade deletes
type Brand struct {
	ID            uuid.UUID `json:"id" db:"id"`
	CategoryID    uuid.UUID `json:"category_id" db:"category_id"`
	SubCategoryID uuid.UUID `json:"sub_category_id" db:"sub_category_id"`
	Name          string    `json:"name" db:"name"`
	Slug          string    `json:"slug" db:"slug"`
	CustomID      string    `json:"custom_id" db:"custom_id"`
	LogoURL       string    `json:"logo_url" db:"logo_url"`
	CreatedBy     uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Product represents a sellable item. AppliedPrice is derived from BasePrice
// and Discount and is recomputed whenever either changes. Stock is the
// available quantity; Reserved tracks quantities held by orders that have not
// been confirmed yet. Both are non-negative at all times.
type Product struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Slug          string    `json:"slug" db:"slug"`
	Overview      string    `json:"overview" db:"overview"`
	BasePrice     float64   `json:"base_price" db:"base_price"`
	Discount      Discount  `json:"discount"`
	AppliedPrice  float64   `json:"applied_price" db:"applied_price"`
	Stock         int       `json:"stock" db:"stock"`
	Reserved      int       `json:"reserved" db:"reserved"`
	Rating        float64   `json:"rating" db:"rating"`
	CategoryID    uuid.UUID `json:"category_id" db:"category_id"`
	SubCategoryID uuid.UUID `json:"sub_category_id" db:"sub_category_id"`
	BrandID       uuid.UUID `json:"brand_id" db:"brand_id"`
	CustomID      string    `json:"custom_id" db:"custom_id"`
	ImageURL      string    `json:"image_url" db:"image_url"`
	CreatedBy     uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
