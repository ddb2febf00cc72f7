package notify

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notification is the payload pushed to a user's realtime channel
type Notification struct {
	Kind      string    `json:"kind"`
	OrderID   string    `json:"order_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	CouponID  string    `json:"coupon_id,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	KindOrderStatus  = "order_status"
	KindCouponIssued = "coupon_issued"
)

// Broadcaster pushes realtime notifications to users. Services receive it by
// injection; delivery failures are logged, never surfaced to the request that
// triggered them.
type Broadcaster interface {
	OrderStatusChanged(ctx context.Context, userID, orderID uuid.UUID, status domain.OrderStatus)
	CouponIssued(ctx context.Context, userID, couponID uuid.UUID, code string)
}

// UserChannel is the pub/sub channel carrying one user's notifications
func UserChannel(userID uuid.UUID) string {
	return "notify:user:" + userID.String()
}

type redisBroadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroadcaster creates a Broadcaster that fans out over Redis pub/sub,
// so every gateway instance holding the user's connection gets the message.
func NewRedisBroadcaster(client *redis.Client, logger *zap.Logger) Broadcaster {
	return &redisBroadcaster{client: client, logger: logger}
}

func (b *redisBroadcaster) publish(ctx context.Context, userID uuid.UUID, n Notification) {
	n.CreatedAt = time.Now()

	payload, err := json.Marshal(n)
	if err != nil {
		b.logger.Error("Failed to marshal notification", zap.Error(err))
		return
	}

	if err := b.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		b.logger.Error("Failed to publish notification",
			zap.String("user_id", userID.String()),
			zap.String("kind", n.Kind),
			zap.Error(err))
	}
}

// OrderStatusChanged notifies the order's owner about a workflow move
func (b *redisBroadcaster) OrderStatusChanged(ctx context.Context, userID, orderID uuid.UUID, status domain.OrderStatus) {
	b.publish(ctx, userID, Notification{
		Kind:    KindOrderStatus,
		OrderID: orderID.String(),
		Status:  string(status),
		Message: "your order is now " + string(status),
	})
}

// CouponIssued notifies a user that a coupon was created for them
func (b *redisBroadcaster) CouponIssued(ctx context.Context, userID, couponID uuid.UUID, code string) {
	b.publish(ctx, userID, Notification{
		Kind:     KindCouponIssued,
		CouponID: couponID.String(),
		Code:     code,
		Message:  "a new coupon is available: " + code,
	})
}

// NopBroadcaster drops notifications, used in tests and one-off tooling
type NopBroadcaster struct{}

func (NopBroadcaster) OrderStatusChanged(context.Context, uuid.UUID, uuid.UUID, domain.OrderStatus) {
}

func (NopBroadcaster) CouponIssued(context.Context, uuid.UUID, uuid.UUID, string) {}
