package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderStatus values form a one-directional workflow; terminal states have no
// outgoing transitions.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPlaced    OrderStatus = "placed"
	OrderConfirmed OrderStatus = "confirmed"
	OrderOnWay     OrderStatus = "on_way"
	OrderDelivered OrderStatus = "delivered"
	OrderCanceled  OrderStatus = "canceled"
	OrderRefunded  OrderStatus = "refunded"
	OrderReturned  OrderStatus = "returned"
	OrderDropped   OrderStatus = "dropped"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderConfirmed: true, OrderCanceled: true},
	OrderPlaced:    {OrderOnWay: true, OrderDelivered: true, OrderCanceled: true},
	OrderConfirmed: {OrderOnWay: true, OrderDelivered: true, OrderCanceled: true, OrderRefunded: true},
	OrderOnWay:     {OrderDelivered: true, OrderDropped: true},
	OrderDelivered: {},
	OrderCanceled:  {},
	OrderRefunded:  {},
	OrderReturned:  {},
	OrderDropped:   {},
}

// CanTransition reports whether the status workflow permits from -> to.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// IsTerminal reports whether no transition leaves the given status.
func (s OrderStatus) IsTerminal() bool {
	return len(validNext[s]) == 0
}

// PaymentMethod selects the payment flow for an order
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentStripe PaymentMethod = "stripe"
	PaymentPaymob PaymentMethod = "paymob"
)

// CancelWindowDays is the number of days after creation during which an order
// may still be canceled.
const CancelWindowDays = 3

// CancelableAt reports whether an order created at createdAt can still be
// canceled at now. The window is computed at day granularity, rounding the
// elapsed time up.
func CancelableAt(createdAt, now time.Time) bool {
	days := math.Ceil(now.Sub(createdAt).Hours() / 24)
	return days <= CancelWindowDays
}

// OrderItem is an immutable snapshot of a cart line item taken at order
// creation time. Title and Price are copied so later catalog edits cannot
// change what the customer bought.
type OrderItem struct {
	OrderID   uuid.UUID `json:"-" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Title     string    `json:"title" db:"title"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Price     float64   `json:"price" db:"price"`
}

// Order is created from a cart snapshot and advances through the status
// workflow above.
type Order struct {
	ID                    uuid.UUID     `json:"id" db:"id"`
	UserID                uuid.UUID     `json:"user_id" db:"user_id"`
	Items                 []OrderItem   `json:"items"`
	Address               string        `json:"address,omitempty" db:"address"`
	AddressID             *uuid.UUID    `json:"address_id,omitempty" db:"address_id"`
	ContactNumber         string        `json:"contact_number" db:"contact_number"`
	SubTotal              float64       `json:"sub_total" db:"sub_total"`
	ShippingFee           float64       `json:"shipping_fee" db:"shipping_fee"`
	VAT                   float64       `json:"vat" db:"vat"`
	Total                 float64       `json:"total" db:"total"`
	CouponID              *uuid.UUID    `json:"coupon_id,omitempty" db:"coupon_id"`
	PaymentMethod         PaymentMethod `json:"payment_method" db:"payment_method"`
	Status                OrderStatus   `json:"status" db:"status"`
	EstimatedDeliveryDate time.Time     `json:"estimated_delivery_date" db:"estimated_delivery_date"`
	PaymentIntent         string        `json:"payment_intent,omitempty" db:"payment_intent"`
	DeliveredBy           *uuid.UUID    `json:"delivered_by,omitempty" db:"delivered_by"`
	DeliveredAt           *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	CanceledBy            *uuid.UUID    `json:"canceled_by,omitempty" db:"canceled_by"`
	CanceledAt            *time.Time    `json:"canceled_at,omitempty" db:"canceled_at"`
	CreatedAt             time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at" db:"updated_at"`
}
