package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newCartFixture(t *testing.T) (CartService, *mockProductRepository, uuid.UUID) {
	t.Helper()
	products := newMockProductRepository()
	service := NewCartService(newMockCartRepository(), products, zap.NewNop())
	return service, products, uuid.New()
}

func seedCartProduct(t *testing.T, products *mockProductRepository, price float64, stock int) *domain.Product {
	t.Helper()
	product := &domain.Product{ID: uuid.New(), Title: "Kettle", AppliedPrice: price, Stock: stock}
	if err := products.Create(context.Background(), product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return product
}

func TestCartAddSnapshotsPrice(t *testing.T) {
	service, products, userID := newCartFixture(t)
	ctx := context.Background()

	product := seedCartProduct(t, products, 120, 5)

	cart, err := service.AddItem(ctx, userID, product.ID, 2)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(cart.Items))
	}
	if cart.Items[0].Price != 120 {
		t.Errorf("expected snapshot price 120, got %v", cart.Items[0].Price)
	}

	// A later price change does not touch the snapshot
	product.AppliedPrice = 99
	if err := products.Update(ctx, product); err != nil {
		t.Fatalf("failed to reprice product: %v", err)
	}
	fetched, err := service.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if fetched.Items[0].Price != 120 {
		t.Errorf("snapshot must survive repricing, got %v", fetched.Items[0].Price)
	}
}

func TestCartAddChecksStock(t *testing.T) {
	service, products, userID := newCartFixture(t)
	ctx := context.Background()

	product := seedCartProduct(t, products, 50, 3)

	if _, err := service.AddItem(ctx, userID, product.ID, 4); !errors.Is(err, ErrNotEnoughStock) {
		t.Fatalf("expected ErrNotEnoughStock, got %v", err)
	}
	if _, err := service.AddItem(ctx, userID, product.ID, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := service.AddItem(ctx, userID, uuid.New(), 1); !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCartDuplicateAddRejected(t *testing.T) {
	service, products, userID := newCartFixture(t)
	ctx := context.Background()

	product := seedCartProduct(t, products, 50, 10)

	if _, err := service.AddItem(ctx, userID, product.ID, 1); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if _, err := service.AddItem(ctx, userID, product.ID, 1); !errors.Is(err, repository.ErrCartItemAlreadyExists) {
		t.Fatalf("expected ErrCartItemAlreadyExists, got %v", err)
	}
}

func TestCartUpdateQuantity(t *testing.T) {
	service, products, userID := newCartFixture(t)
	ctx := context.Background()

	product := seedCartProduct(t, products, 50, 10)
	if _, err := service.AddItem(ctx, userID, product.ID, 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	cart, err := service.UpdateItemQuantity(ctx, userID, product.ID, 5)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if cart.Items[0].Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", cart.Items[0].Quantity)
	}

	if _, err := service.UpdateItemQuantity(ctx, userID, product.ID, 11); !errors.Is(err, ErrNotEnoughStock) {
		t.Fatalf("expected ErrNotEnoughStock, got %v", err)
	}

	// Zero quantity removes the item, which empties the cart
	cart, err = service.UpdateItemQuantity(ctx, userID, product.ID, 0)
	if err != nil {
		t.Fatalf("zero-quantity update failed: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(cart.Items))
	}
}

func TestCartRemoveMissingProduct(t *testing.T) {
	service, _, userID := newCartFixture(t)

	if _, err := service.RemoveItem(context.Background(), userID, uuid.New()); !errors.Is(err, ErrProductNotInCart) {
		t.Fatalf("expected ErrProductNotInCart, got %v", err)
	}
}

func TestCartGetWithoutCartReturnsEmpty(t *testing.T) {
	service, _, userID := newCartFixture(t)

	cart, err := service.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(cart.Items))
	}
}
