package repository

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
)

func TestCartLifecycle(t *testing.T) {
	repo := NewCartRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t)
	first := seedCatalog(t, 10)
	second := seedCatalog(t, 10)

	if _, err := repo.FindByUser(ctx, user.ID); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound before first add, got: %v", err)
	}

	// First add creates the cart implicitly
	cart, err := repo.AddItem(ctx, user.ID, domain.CartItem{
		ProductID: first.Product.ID, Quantity: 2, Price: first.Product.AppliedPrice,
	})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(cart.Items))
	}
	product, err := cart.Items[0].Product.Value()
	if err != nil {
		t.Fatalf("cart item product not hydrated: %v", err)
	}
	if product.ID != first.Product.ID {
		t.Errorf("hydrated wrong product")
	}

	// Same product twice is rejected; the quantity endpoint exists for that
	if _, err := repo.AddItem(ctx, user.ID, domain.CartItem{
		ProductID: first.Product.ID, Quantity: 1, Price: first.Product.AppliedPrice,
	}); !errors.Is(err, ErrCartItemAlreadyExists) {
		t.Fatalf("expected ErrCartItemAlreadyExists, got: %v", err)
	}

	cart, err = repo.AddItem(ctx, user.ID, domain.CartItem{
		ProductID: second.Product.ID, Quantity: 1, Price: second.Product.AppliedPrice,
	})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(cart.Items))
	}

	cart, err = repo.UpdateItemQuantity(ctx, user.ID, first.Product.ID, 5)
	if err != nil {
		t.Fatalf("quantity update failed: %v", err)
	}
	for _, item := range cart.Items {
		if item.ProductID == first.Product.ID && item.Quantity != 5 {
			t.Errorf("expected quantity 5, got %d", item.Quantity)
		}
	}

	cart, err = repo.RemoveItem(ctx, user.ID, second.Product.ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if cart == nil || len(cart.Items) != 1 {
		t.Fatalf("expected cart with 1 item after removal")
	}

	// Removing the last item deletes the cart itself
	cart, err = repo.RemoveItem(ctx, user.ID, first.Product.ID)
	if err != nil {
		t.Fatalf("final remove failed: %v", err)
	}
	if cart != nil {
		t.Error("expected nil cart after removing the last item")
	}
	if _, err := repo.FindByUser(ctx, user.ID); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound after cart emptied, got: %v", err)
	}
}

func TestCartClearRemovesCartRow(t *testing.T) {
	repo := NewCartRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t)
	fixture := seedCatalog(t, 10)

	cart, err := repo.AddItem(ctx, user.ID, domain.CartItem{
		ProductID: fixture.Product.ID, Quantity: 3, Price: fixture.Product.AppliedPrice,
	})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	if err := repo.Clear(ctx, cart.ID); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if _, err := repo.FindByUser(ctx, user.ID); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound after clear, got: %v", err)
	}
	if n := countRows(t, "cart_items", "cart_id", cart.ID); n != 0 {
		t.Errorf("cart items survived clear: %d left", n)
	}
}

// When a product deletion cascades through cart_items, a cart emptied by the
// cascade must disappear the same way it would on a last-item removal.
func TestCartPrunedWhenCascadeEmptiesIt(t *testing.T) {
	repo := NewCartRepository(testDB)
	productRepo := NewProductRepository(testDB)
	ctx := context.Background()

	soloUser := createTestUser(t)
	mixedUser := createTestUser(t)
	doomed := seedCatalog(t, 10)
	kept := seedCatalog(t, 10)

	if _, err := repo.AddItem(ctx, soloUser.ID, domain.CartItem{
		ProductID: doomed.Product.ID, Quantity: 1, Price: doomed.Product.AppliedPrice,
	}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	mixedCart, err := repo.AddItem(ctx, mixedUser.ID, domain.CartItem{
		ProductID: doomed.Product.ID, Quantity: 2, Price: doomed.Product.AppliedPrice,
	})
	if err != nil {
		t.Fatalf("add item failed: %v", err)
	}
	if _, err := repo.AddItem(ctx, mixedUser.ID, domain.CartItem{
		ProductID: kept.Product.ID, Quantity: 1, Price: kept.Product.AppliedPrice,
	}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	if err := productRepo.Delete(ctx, doomed.Product.ID); err != nil {
		t.Fatalf("product delete failed: %v", err)
	}

	// The cart holding only the deleted product is gone
	if _, err := repo.FindByUser(ctx, soloUser.ID); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected emptied cart to be pruned, got: %v", err)
	}

	// The cart that still has other items survives with one line
	cart, err := repo.FindByUser(ctx, mixedUser.ID)
	if err != nil {
		t.Fatalf("mixed cart should survive: %v", err)
	}
	if cart.ID != mixedCart.ID || len(cart.Items) != 1 {
		t.Fatalf("expected surviving cart with 1 item, got %d", len(cart.Items))
	}
	if cart.Items[0].ProductID != kept.Product.ID {
		t.Error("surviving item is not the remaining product")
	}
}

func TestCartRemoveMissingItem(t *testing.T) {
	repo := NewCartRepository(testDB)
	ctx := context.Background()

	user := createTestUser(t)
	fixture := seedCatalog(t, 10)
	other := seedCatalog(t, 10)

	if _, err := repo.AddItem(ctx, user.ID, domain.CartItem{
		ProductID: fixture.Product.ID, Quantity: 1, Price: fixture.Product.AppliedPrice,
	}); err != nil {
		t.Fatalf("add item failed: %v", err)
	}

	if _, err := repo.RemoveItem(ctx, user.ID, other.Product.ID); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got: %v", err)
	}
	if _, err := repo.UpdateItemQuantity(ctx, user.ID, other.Product.ID, 2); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound on quantity update, got: %v", err)
	}
}
