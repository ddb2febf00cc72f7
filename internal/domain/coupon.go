package domain

import (
	"time"

	"github.com/google/uuid"
)

// CouponType identifies how a coupon amount is interpreted
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponAmount     CouponType = "amount"
)

// CouponUser is a per-user redemption allowance. Invariant:
// 0 <= UsageCount <= MaxCount, MaxCount >= 1.
type CouponUser struct {
	CouponID   uuid.UUID `json:"-" db:"coupon_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	MaxCount   int       `json:"max_count" db:"max_count"`
	UsageCount int       `json:"usage_count" db:"usage_count"`
}

// Coupon is redeemable inside [From, Till) while enabled, by users holding an
// allowance with tries left.
type Coupon struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Code      string       `json:"code" db:"code"`
	Amount    float64      `json:"amount" db:"amount"`
	Type      CouponType   `json:"type" db:"type"`
	From      time.Time    `json:"from" db:"valid_from"`
	Till      time.Time    `json:"till" db:"valid_till"`
	IsEnable  bool         `json:"is_enable" db:"is_enable"`
	Users     []CouponUser `json:"users"`
	CreatedBy uuid.UUID    `json:"created_by" db:"created_by"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// AllowanceFor returns the caller's allowance entry, if any.
func (c *Coupon) AllowanceFor(userID uuid.UUID) (CouponUser, bool) {
	for _, u := range c.Users {
		if u.UserID == userID {
			return u, true
		}
	}
	return CouponUser{}, false
}

// CouponLog records a single coupon mutation for auditing.
type CouponLog struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	CouponID  uuid.UUID      `json:"coupon_id" db:"coupon_id"`
	UpdatedBy uuid.UUID      `json:"updated_by" db:"updated_by"`
	Changes   map[string]any `json:"changes" db:"changes"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
