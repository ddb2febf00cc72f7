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
	ErrBrandNotFound  = errors.New("brand not found")
	ErrBrandSlugTaken = errors.New("brand with this slug already exists in the sub-category")
)

// BrandRepository defines the interface for brand data access
type BrandRepository interface {
	Create(ctx context.Context, brand *domain.Brand) error
	Update(ctx context.Context, brand *domain.Brand) error
	DeleteCascade(ctx context.Context, id uuid.UUID) (*domain.Brand, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Brand, error)
	ListBySubCategory(ctx context.Context, subCategoryID uuid.UUID) ([]*domain.Brand, error)
	List(ctx context.Context, page, pageSize int) ([]*domain.Brand, int, error)
}

type brandRepository struct {
	db *sql.DB
}

// NewBrandRepository creates a new instance of BrandRepository
func NewBrandRepository(db *sql.DB) BrandRepository {
	return &brandRepository{db: db}
}

const brandColumns = `id, category_id, sub_category_id, name, slug, custom_id, logo_url, created_by, created_at, updated_at`

func scanBrand(row interface{ Scan(...any) error }) (*domain.Brand, error) {
	brand := &domain.Brand{}
	err := row.Scan(
		&brand.ID,
		&brand.CategoryID,
		&brand.SubCategoryID,
		&brand.Name,
		&brand.Slug,
		&brand.CustomID,
		&brand.LogoURL,
		&brand.CreatedBy,
		&brand.CreatedAt,
		&brand.UpdatedAt,
	)
	return brand, err
}

// Create inserts a new brand
func (r *brandRepository) Create(ctx context.Context, brand *domain.Brand) error {
	query := `
		INSERT INTO brands (` + brandColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		brand.ID,
		brand.CategoryID,
		brand.SubCategoryID,
		brand.Name,
		brand.Slug,
		brand.CustomID,
		brand.LogoURL,
		brand.CreatedBy,
		brand.CreatedAt,
		brand.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrBrandSlugTaken
		}
		return fmt.Errorf("failed to create brand: %w", err)
	}

	return nil
}

// Update updates a brand's name, slug and logo
func (r *brandRepository) Update(ctx context.Context, brand *domain.Brand) error {
	query := `
		UPDATE brands
		SET name = $2, slug = $3, logo_url = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		brand.ID, brand.Name, brand.Slug, brand.LogoURL, brand.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrBrandSlugTaken
		}
		return fmt.Errorf("failed to update brand: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrBrandNotFound
	}

	return nil
}

// DeleteCascade deletes the brand and its products in one transaction
func (r *brandRepository) DeleteCascade(ctx context.Context, id uuid.UUID) (*domain.Brand, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cascade transaction: %w", err)
	}
	defer tx.Rollback()

	brand, err := scanBrand(tx.QueryRowContext(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBrandNotFound
		}
		return nil, fmt.Errorf("failed to load brand for delete: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE brand_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed cascade delete step: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed cascade delete step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cascade delete: %w", err)
	}

	return brand, nil
}

// FindByID retrieves a brand by ID
func (r *brandRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Brand, error) {
	brand, err := scanBrand(r.db.QueryRowContext(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBrandNotFound
		}
		return nil, fmt.Errorf("failed to find brand by ID: %w", err)
	}
	return brand, nil
}

// ListBySubCategory retrieves the brands under one sub-category
func (r *brandRepository) ListBySubCategory(ctx context.Context, subCategoryID uuid.UUID) ([]*domain.Brand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+brandColumns+`
		FROM brands
		WHERE sub_category_id = $1
		ORDER BY name ASC
	`, subCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	brands := []*domain.Brand{}
	for rows.Next() {
		brand, err := scanBrand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, brand)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating brands: %w", err)
	}

	return brands, nil
}

// List retrieves brands ordered by name with pagination
func (r *brandRepository) List(ctx context.Context, page, pageSize int) ([]*domain.Brand, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM brands`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count brands: %w", err)
	}

	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+brandColumns+`
		FROM brands
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	brands := []*domain.Brand{}
	for rows.Next() {
		brand, err := scanBrand(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, brand)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating brands: %w", err)
	}

	return brands, total, nil
}
