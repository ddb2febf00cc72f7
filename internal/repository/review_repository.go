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
	ErrReviewNotFound      = errors.New("review not found")
	ErrReviewAlreadyExists = errors.New("product already reviewed by this user")
)

// ReviewRepository defines the interface for review data access
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	Update(ctx context.Context, review *domain.Review) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	ListForProduct(ctx context.Context, productID uuid.UUID, acceptedOnly bool) ([]*domain.Review, error)
	AverageRating(ctx context.Context, productID uuid.UUID) (float64, error)
}

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new instance of ReviewRepository
func NewReviewRepository(db *sql.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

const reviewColumns = `id, user_id, product_id, order_id, rate, body, status, created_at, updated_at`

func scanReview(row interface{ Scan(...any) error }) (*domain.Review, error) {
	review := &domain.Review{}
	err := row.Scan(
		&review.ID,
		&review.UserID,
		&review.ProductID,
		&review.OrderID,
		&review.Rate,
		&review.Body,
		&review.Status,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	return review, err
}

// Create inserts a new review, one per user and product
func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		review.ID,
		review.UserID,
		review.ProductID,
		review.OrderID,
		review.Rate,
		review.Body,
		review.Status,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrReviewAlreadyExists
		}
		return fmt.Errorf("failed to create review: %w", err)
	}

	return nil
}

// Update edits the author's own review and resets it to pending moderation
func (r *reviewRepository) Update(ctx context.Context, review *domain.Review) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET rate = $3, body = $4, status = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
	`, review.ID, review.UserID, review.Rate, review.Body, review.Status, review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrReviewNotFound
	}

	return nil
}

// UpdateStatus moderates a review
func (r *reviewRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reviews SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update review status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrReviewNotFound
	}

	return nil
}

// Delete removes the author's own review
func (r *reviewRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM reviews WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrReviewNotFound
	}

	return nil
}

// FindByID retrieves a review by ID
func (r *reviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	review, err := scanReview(r.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to find review by ID: %w", err)
	}
	return review, nil
}

// ListForProduct retrieves a product's reviews, newest first
func (r *reviewRepository) ListForProduct(ctx context.Context, productID uuid.UUID, acceptedOnly bool) ([]*domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE product_id = $1`
	if acceptedOnly {
		query += ` AND status = 'accepted'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*domain.Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

// AverageRating computes the mean accepted rate for a product, zero when the
// product has no accepted reviews yet.
func (r *reviewRepository) AverageRating(ctx context.Context, productID uuid.UUID) (float64, error) {
	var rating float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(rate), 0) FROM reviews WHERE product_id = $1 AND status = 'accepted'
	`, productID).Scan(&rating)
	if err != nil {
		return 0, fmt.Errorf("failed to compute average rating: %w", err)
	}
	return rating, nil
}
