package events

import (
	"encoding/json"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// Topics carrying storefront events, one per aggregate
const (
	TopicOrders  = "storefront.orders"
	TopicCatalog = "storefront.catalog"
	TopicCoupons = "storefront.coupons"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCanceled      = "OrderCanceled"
	EventProductDeleted     = "ProductDeleted"
	EventCatalogPruned      = "CatalogPruned"
	EventCouponIssued       = "CouponIssued"
)

// Envelope wraps every published event. CorrelationID is the aggregate ID and
// doubles as the partition key so events for one aggregate stay ordered.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload, stamping identity and time
func NewEnvelope(eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "storefront-api",
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

type OrderPlacedPayload struct {
	OrderID       string  `json:"order_id"`
	UserID        string  `json:"user_id"`
	Total         float64 `json:"total"`
	PaymentMethod string  `json:"payment_method"`
	ItemCount     int     `json:"item_count"`
}

type OrderStatusChangedPayload struct {
	OrderID string             `json:"order_id"`
	From    domain.OrderStatus `json:"from"`
	To      domain.OrderStatus `json:"to"`
}

type OrderCanceledPayload struct {
	OrderID    string `json:"order_id"`
	CanceledBy string `json:"canceled_by"`
	Refunded   bool   `json:"refunded"`
}

type ProductDeletedPayload struct {
	ProductID string `json:"product_id"`
}

// CatalogPrunedPayload reports one cascade deletion: the root entity and how
// many rows went with it.
type CatalogPrunedPayload struct {
	Level           string `json:"level"` // category | sub_category | brand
	RootID          string `json:"root_id"`
	ProductsRemoved int    `json:"products_removed"`
}

type CouponIssuedPayload struct {
	CouponID string   `json:"coupon_id"`
	Code     string   `json:"code"`
	UserIDs  []string `json:"user_ids"`
}

// UnwrapPayload decodes an envelope payload into its concrete type
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	err := json.Unmarshal(payload, &t)
	return t, err
}
