package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductSlugTaken     = errors.New("product with this slug already exists")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrNothingReserved      = errors.New("no matching reservation to commit")
	ErrProductStillReferred = errors.New("product is referenced by open orders")
)

// ProductFilter narrows product listings to a level of the catalog hierarchy
type ProductFilter struct {
	CategoryID    *uuid.UUID
	SubCategoryID *uuid.UUID
	BrandID       *uuid.UUID
}

// ProductRepository defines the interface for product data access. Reserve,
// CommitReservation, Release and Restock are single conditional statements so
// concurrent orders can never oversell: the stock check and the decrement
// happen in one atomic write.
type ProductRepository interface {
	WithTx(tx *sql.Tx) ProductRepository
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter ProductFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)
	Reserve(ctx context.Context, id uuid.UUID, quantity int) error
	CommitReservation(ctx context.Context, id uuid.UUID, quantity int) error
	Release(ctx context.Context, id uuid.UUID, quantity int) error
	Restock(ctx context.Context, id uuid.UUID, quantity int) error
	UpdateRating(ctx context.Context, id uuid.UUID, rating float64) error
}

type productRepository struct {
	db *sql.DB
	q  Querier
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db, q: db}
}

// WithTx returns a repository bound to the given transaction
func (r *productRepository) WithTx(tx *sql.Tx) ProductRepository {
	return &productRepository{db: r.db, q: tx}
}

const productColumns = `id, title, slug, overview, base_price, discount_amount, discount_type,
		applied_price, stock, reserved, rating, category_id, sub_category_id, brand_id,
		custom_id, image_url, created_by, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
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
	return product, err
}

// Create inserts a new product using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		product.ID,
		product.Title,
		product.Slug,
		product.Overview,
		product.BasePrice,
		product.Discount.Amount,
		product.Discount.Type,
		product.AppliedPrice,
		product.Stock,
		product.Reserved,
		product.Rating,
		product.CategoryID,
		product.SubCategoryID,
		product.BrandID,
		product.CustomID,
		product.ImageURL,
		product.CreatedBy,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrProductSlugTaken
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update updates a product's catalog attributes. Stock movements go through
// the reservation methods instead.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET title = $2, slug = $3, overview = $4, base_price = $5, discount_amount = $6,
		    discount_type = $7, applied_price = $8, stock = $9, category_id = $10,
		    sub_category_id = $11, brand_id = $12, image_url = $13, updated_at = $14
		WHERE id = $1
	`

	result, err := r.q.ExecContext(
		ctx,
		query,
		product.ID,
		product.Title,
		product.Slug,
		product.Overview,
		product.BasePrice,
		product.Discount.Amount,
		product.Discount.Type,
		product.AppliedPrice,
		product.Stock,
		product.CategoryID,
		product.SubCategoryID,
		product.BrandID,
		product.ImageURL,
		product.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrProductSlugTaken
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Delete removes a product from the catalog. Products that open orders still
// refer to stay put until those orders reach a terminal status.
func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var referred bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.product_id = $1
			AND o.status IN ('pending', 'placed', 'confirmed', 'on_way')
		)`, id).Scan(&referred)
	if err != nil {
		return fmt.Errorf("failed to check order references: %w", err)
	}
	if referred {
		return ErrProductStillReferred
	}

	result, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// List retrieves products with hierarchy filtering, pagination, and sorting
func (r *productRepository) List(ctx context.Context, filter ProductFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"title":         true,
		"applied_price": true,
		"rating":        true,
		"created_at":    true,
		"stock":         true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	conditions := []string{}
	args := []any{}
	argIndex := 1

	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argIndex))
		args = append(args, *filter.CategoryID)
		argIndex++
	}
	if filter.SubCategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("sub_category_id = $%d", argIndex))
		args = append(args, *filter.SubCategoryID)
		argIndex++
	}
	if filter.BrandID != nil {
		conditions = append(conditions, fmt.Sprintf("brand_id = $%d", argIndex))
		args = append(args, *filter.BrandID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT `+productColumns+`
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

// Search searches for products by title or overview with pagination
func (r *productRepository) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	if strings.TrimSpace(query) == "" {
		return r.List(ctx, ProductFilter{}, page, pageSize, "created_at", SortOrderDesc)
	}

	searchPattern := "%" + query + "%"

	countQuery := `
		SELECT COUNT(*)
		FROM products
		WHERE title ILIKE $1 OR overview ILIKE $1
	`
	var total int
	if err := r.q.QueryRowContext(ctx, countQuery, searchPattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	offset := (page - 1) * pageSize

	searchQuery := `
		SELECT ` + productColumns + `
		FROM products
		WHERE title ILIKE $1 OR overview ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.QueryContext(ctx, searchQuery, searchPattern, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating search results: %w", err)
	}

	return products, total, nil
}

// Reserve moves quantity from available stock to the reserved counter, in one
// conditional statement. Zero rows affected means the live stock was below
// the requested quantity.
func (r *productRepository) Reserve(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, reserved = reserved + $2
		WHERE id = $1 AND stock >= $2
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

// CommitReservation converts a reservation into a permanent stock decrement
func (r *productRepository) CommitReservation(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET reserved = reserved - $2
		WHERE id = $1 AND reserved >= $2
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNothingReserved
	}

	return nil
}

// Release returns a still-reserved quantity to available stock
func (r *productRepository) Release(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, reserved = reserved - $2
		WHERE id = $1 AND reserved >= $2
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNothingReserved
	}

	return nil
}

// Restock returns an already-committed quantity to available stock, used when
// a placed or confirmed order is canceled
func (r *productRepository) Restock(ctx context.Context, id uuid.UUID, quantity int) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products SET stock = stock + $2 WHERE id = $1
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to restock product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// UpdateRating stores the recomputed mean rating for a product
func (r *productRepository) UpdateRating(ctx context.Context, id uuid.UUID, rating float64) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products SET rating = $2 WHERE id = $1
	`, id, rating)
	if err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// isUniqueViolation reports whether the error is a unique constraint breach
// (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SQLSTATE 23505")
}
