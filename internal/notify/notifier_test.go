package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupBroadcaster(t *testing.T) (Broadcaster, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisBroadcaster(client, zap.NewNop()), client
}

func TestOrderStatusChangedReachesOnlyOwnerChannel(t *testing.T) {
	broadcaster, client := setupBroadcaster(t)
	ctx := context.Background()

	owner := uuid.New()
	other := uuid.New()
	orderID := uuid.New()

	ownerSub := client.Subscribe(ctx, UserChannel(owner))
	defer ownerSub.Close()
	otherSub := client.Subscribe(ctx, UserChannel(other))
	defer otherSub.Close()

	// Wait for subscriptions before publishing
	if _, err := ownerSub.Receive(ctx); err != nil {
		t.Fatalf("owner subscribe failed: %v", err)
	}
	if _, err := otherSub.Receive(ctx); err != nil {
		t.Fatalf("other subscribe failed: %v", err)
	}

	broadcaster.OrderStatusChanged(ctx, owner, orderID, domain.OrderOnWay)

	select {
	case msg := <-ownerSub.Channel():
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			t.Fatalf("failed to decode notification: %v", err)
		}
		if n.Kind != KindOrderStatus {
			t.Errorf("expected kind %q, got %q", KindOrderStatus, n.Kind)
		}
		if n.OrderID != orderID.String() {
			t.Errorf("expected order %s, got %s", orderID, n.OrderID)
		}
		if n.Status != string(domain.OrderOnWay) {
			t.Errorf("expected status %s, got %s", domain.OrderOnWay, n.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("owner never received the notification")
	}

	select {
	case msg := <-otherSub.Channel():
		t.Fatalf("unrelated user received a notification: %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCouponIssuedNotification(t *testing.T) {
	broadcaster, client := setupBroadcaster(t)
	ctx := context.Background()

	userID := uuid.New()
	couponID := uuid.New()

	sub := client.Subscribe(ctx, UserChannel(userID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	broadcaster.CouponIssued(ctx, userID, couponID, "WELCOME10")

	select {
	case msg := <-sub.Channel():
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			t.Fatalf("failed to decode notification: %v", err)
		}
		if n.Kind != KindCouponIssued {
			t.Errorf("expected kind %q, got %q", KindCouponIssued, n.Kind)
		}
		if n.Code != "WELCOME10" {
			t.Errorf("expected code WELCOME10, got %s", n.Code)
		}
		if n.CreatedAt.IsZero() {
			t.Error("notification timestamp not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("user never received the notification")
	}
}
