package service

import (
	"context"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrNotEnoughStock   = errors.New("not enough stock for the requested quantity")
	ErrProductNotInCart = errors.New("product is not in the cart")
)

// CartService manages the user's open cart. Line prices are snapshots of the
// product's applied price taken when the item is added; changing the quantity
// later keeps the original snapshot.
type CartService interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error)
}

type cartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(carts repository.CartRepository, products repository.ProductRepository, logger *zap.Logger) CartService {
	return &cartService{carts: carts, products: products, logger: logger}
}

// Get returns the user's cart. A user with no cart gets an empty one rather
// than an error.
func (s *cartService) Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
		}
		return nil, err
	}
	return cart, nil
}

// AddItem puts a product in the cart with a price snapshot. Stock is checked
// against what is currently available; the hard guarantee comes later from
// the reservation made at order placement.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock < quantity {
		return nil, ErrNotEnoughStock
	}

	item := domain.CartItem{
		ProductID: product.ID,
		Quantity:  quantity,
		Price:     product.AppliedPrice,
	}
	return s.carts.AddItem(ctx, userID, item)
}

// UpdateItemQuantity changes a line item's quantity, keeping its price
// snapshot. Setting the quantity to zero removes the item.
func (s *cartService) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock < quantity {
		return nil, ErrNotEnoughStock
	}

	cart, err := s.carts.UpdateItemQuantity(ctx, userID, productID, quantity)
	if err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) || errors.Is(err, repository.ErrCartNotFound) {
			return nil, ErrProductNotInCart
		}
		return nil, err
	}
	return cart, nil
}

// RemoveItem drops a line item. Removing the last item deletes the cart and
// returns an empty one.
func (s *cartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) || errors.Is(err, repository.ErrCartNotFound) {
			return nil, ErrProductNotInCart
		}
		return nil, err
	}
	if cart == nil {
		cart = &domain.Cart{UserID: userID, Items: []domain.CartItem{}}
	}
	return cart, nil
}
