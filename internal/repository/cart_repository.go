package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCartNotFound          = errors.New("cart not found")
	ErrCartItemNotFound      = errors.New("product not found in cart")
	ErrCartItemAlreadyExists = errors.New("product is already added to the cart")
)

// CartRepository defines the interface for cart data access. A user has at
// most one cart (enforced by a unique constraint); the cart row is removed
// when its last item is.
type CartRepository interface {
	WithTx(tx *sql.Tx) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	AddItem(ctx context.Context, userID uuid.UUID, item domain.CartItem) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type cartRepository struct {
	db *sql.DB
	q  Querier
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db, q: db}
}

// WithTx returns a repository bound to the given transaction
func (r *cartRepository) WithTx(tx *sql.Tx) CartRepository {
	return &cartRepository{db: r.db, q: tx}
}

// FindByUser loads the user's cart with its items, hydrating each item's
// product reference from the catalog.
func (r *cartRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart := &domain.Cart{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	items, err := r.loadItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func (r *cartRepository) loadItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT ci.cart_id, ci.product_id, ci.quantity, ci.price,
		       p.id, p.title, p.slug, p.overview, p.base_price, p.discount_amount, p.discount_type,
		       p.applied_price, p.stock, p.reserved, p.rating, p.category_id, p.sub_category_id,
		       p.brand_id, p.custom_id, p.image_url, p.created_by, p.created_at, p.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		product := &domain.Product{}
		err := rows.Scan(
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&product.ID,
			&product.Title,
			&product.Slug,
			&product.Overview,
			&product.BasePrice,
			&product.Discount.Amount,
			&product.Discount.Type,
			&product.AppliedPrice,
			&product.Stock,
			&product.Reserved,
			&product.Rating,
			&product.CategoryID,
			&product.SubCategoryID,
			&product.BrandID,
			&product.CustomID,
			&product.ImageURL,
			&product.CreatedBy,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.Product = domain.ResolvedRef(product.ID, product)
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

// AddItem appends a line item to the user's cart, creating the cart first if
// the user has none. Adding a product that is already in the cart fails.
func (r *cartRepository) AddItem(ctx context.Context, userID uuid.UUID, item domain.CartItem) (*domain.Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cartID uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
	if err == sql.ErrNoRows {
		cartID = uuid.New()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
		`, cartID, userID); err != nil {
			return nil, fmt.Errorf("failed to create cart: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, price) VALUES ($1, $2, $3, $4)
	`, cartID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCartItemAlreadyExists
		}
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart update: %w", err)
	}

	return r.FindByUser(ctx, userID)
}

// RemoveItem deletes a line item; when it was the last one the cart itself is
// deleted and nil is returned.
func (r *cartRepository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cartID uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
	if err == sql.ErrNoRows {
		return nil, ErrCartItemNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrCartItemNotFound
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cart_items WHERE cart_id = $1
	`, cartID).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("failed to count cart items: %w", err)
	}

	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
			return nil, fmt.Errorf("failed to delete empty cart: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit cart update: %w", err)
		}
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart update: %w", err)
	}

	return r.FindByUser(ctx, userID)
}

// UpdateItemQuantity changes a line item's quantity
func (r *cartRepository) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE cart_items ci
		SET quantity = $3
		FROM carts c
		WHERE ci.cart_id = c.id AND c.user_id = $1 AND ci.product_id = $2
	`, userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrCartItemNotFound
	}

	return r.FindByUser(ctx, userID)
}

// Clear removes every item and the cart row itself. Run inside the order
// placement transaction so the snapshot and the clearing commit together.
func (r *cartRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
