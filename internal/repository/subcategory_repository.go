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
	ErrSubCategoryNotFound  = errors.New("sub-category not found")
	ErrSubCategorySlugTaken = errors.New("sub-category with this slug already exists")
)

// SubCategoryRepository defines the interface for sub-category data access
type SubCategoryRepository interface {
	Create(ctx context.Context, subCategory *domain.SubCategory) error
	Update(ctx context.Context, subCategory *domain.SubCategory) error
	DeleteCascade(ctx context.Context, id uuid.UUID) (*domain.SubCategory, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.SubCategory, error)
	ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]*domain.SubCategory, error)
	List(ctx context.Context, page, pageSize int) ([]*domain.SubCategory, int, error)
}

type subCategoryRepository struct {
	db *sql.DB
}

// NewSubCategoryRepository creates a new instance of SubCategoryRepository
func NewSubCategoryRepository(db *sql.DB) SubCategoryRepository {
	return &subCategoryRepository{db: db}
}

const subCategoryColumns = `id, category_id, name, slug, custom_id, image_url, created_by, created_at, updated_at`

func scanSubCategory(row interface{ Scan(...any) error }) (*domain.SubCategory, error) {
	sub := &domain.SubCategory{}
	err := row.Scan(
		&sub.ID,
		&sub.CategoryID,
		&sub.Name,
		&sub.Slug,
		&sub.CustomID,
		&sub.ImageURL,
		&sub.CreatedBy,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	return sub, err
}

// Create inserts a new sub-category
func (r *subCategoryRepository) Create(ctx context.Context, subCategory *domain.SubCategory) error {
	query := `
		INSERT INTO sub_categories (` + subCategoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		subCategory.ID,
		subCategory.CategoryID,
		subCategory.Name,
		subCategory.Slug,
		subCategory.CustomID,
		subCategory.ImageURL,
		subCategory.CreatedBy,
		subCategory.CreatedAt,
		subCategory.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrSubCategorySlugTaken
		}
		return fmt.Errorf("failed to create sub-category: %w", err)
	}

	return nil
}

// Update updates a sub-category's name, slug and image
func (r *subCategoryRepository) Update(ctx context.Context, subCategory *domain.SubCategory) error {
	query := `
		UPDATE sub_categories
		SET name = $2, slug = $3, image_url = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		subCategory.ID, subCategory.Name, subCategory.Slug, subCategory.ImageURL, subCategory.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSubCategorySlugTaken
		}
		return fmt.Errorf("failed to update sub-category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSubCategoryNotFound
	}

	return nil
}

// DeleteCascade deletes the sub-category with its brands and products in one
// transaction, attempting every level unconditionally.
func (r *subCategoryRepository) DeleteCascade(ctx context.Context, id uuid.UUID) (*domain.SubCategory, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cascade transaction: %w", err)
	}
	defer tx.Rollback()

	sub, err := scanSubCategory(tx.QueryRowContext(ctx,
		`SELECT `+subCategoryColumns+` FROM sub_categories WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubCategoryNotFound
		}
		return nil, fmt.Errorf("failed to load sub-category for delete: %w", err)
	}

	statements := []string{
		`DELETE FROM products WHERE sub_category_id = $1`,
		`DELETE FROM brands WHERE sub_category_id = $1`,
		`DELETE FROM sub_categories WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return nil, fmt.Errorf("failed cascade delete step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cascade delete: %w", err)
	}

	return sub, nil
}

// FindByID retrieves a sub-category by ID
func (r *subCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.SubCategory, error) {
	sub, err := scanSubCategory(r.db.QueryRowContext(ctx,
		`SELECT `+subCategoryColumns+` FROM sub_categories WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find sub-category by ID: %w", err)
	}
	return sub, nil
}

// ListByCategory retrieves the sub-categories under one category
func (r *subCategoryRepository) ListByCategory(ctx context.Context, categoryID uuid.UUID) ([]*domain.SubCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subCategoryColumns+`
		FROM sub_categories
		WHERE category_id = $1
		ORDER BY name ASC
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-categories: %w", err)
	}
	defer rows.Close()

	subs := []*domain.SubCategory{}
	for rows.Next() {
		sub, err := scanSubCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sub-category: %w", err)
		}
		subs = append(subs, sub)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sub-categories: %w", err)
	}

	return subs, nil
}

// List retrieves sub-categories ordered by name with pagination
func (r *subCategoryRepository) List(ctx context.Context, page, pageSize int) ([]*domain.SubCategory, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sub_categories`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sub-categories: %w", err)
	}

	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subCategoryColumns+`
		FROM sub_categories
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sub-categories: %w", err)
	}
	defer rows.Close()

	subs := []*domain.SubCategory{}
	for rows.Next() {
		sub, err := scanSubCategory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan sub-category: %w", err)
		}
		subs = append(subs, sub)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating sub-categories: %w", err)
	}

	return subs, total, nil
}
