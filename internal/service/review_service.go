package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrReviewNotEligible = errors.New("only buyers of a delivered order can review this product")
)

// ReviewService handles buyer reviews and their moderation. Only accepted
// reviews count toward a product's rating.
type ReviewService interface {
	Create(ctx context.Context, userID, productID uuid.UUID, rate int, body string) (*domain.Review, error)
	Update(ctx context.Context, userID, reviewID uuid.UUID, rate int, body string) (*domain.Review, error)
	Delete(ctx context.Context, userID, reviewID uuid.UUID) error
	Moderate(ctx context.Context, reviewID uuid.UUID, status domain.ReviewStatus) error
	ListForProduct(ctx context.Context, productID uuid.UUID, acceptedOnly bool) ([]*domain.Review, error)
}

type reviewService struct {
	reviews  repository.ReviewRepository
	orders   repository.OrderRepository
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewReviewService creates a new instance of ReviewService
func NewReviewService(
	reviews repository.ReviewRepository,
	orders repository.OrderRepository,
	products repository.ProductRepository,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{reviews: reviews, orders: orders, products: products, logger: logger}
}

// Create adds a review after checking the author actually received the
// product: some delivered order of theirs must contain it.
func (s *reviewService) Create(ctx context.Context, userID, productID uuid.UUID, rate int, body string) (*domain.Review, error) {
	if rate < 1 || rate > 5 {
		return nil, ErrInvalidRating
	}

	orderID, err := s.deliveredOrderWithProduct(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	review := &domain.Review{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		OrderID:   orderID,
		Rate:      rate,
		Body:      body,
		Status:    domain.ReviewPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// deliveredOrderWithProduct finds a delivered order of the user containing
// the product, or ErrReviewNotEligible.
func (s *reviewService) deliveredOrderWithProduct(ctx context.Context, userID, productID uuid.UUID) (uuid.UUID, error) {
	status := domain.OrderDelivered
	page := 1
	for {
		orders, total, err := s.orders.List(ctx, repository.OrderFilter{UserID: &userID, Status: &status}, page, 50)
		if err != nil {
			return uuid.Nil, err
		}
		for _, order := range orders {
			for _, item := range order.Items {
				if item.ProductID == productID {
					return order.ID, nil
				}
			}
		}
		if page*50 >= total || len(orders) == 0 {
			return uuid.Nil, ErrReviewNotEligible
		}
		page++
	}
}

// Update edits the author's own review and sends it back to moderation
func (s *reviewService) Update(ctx context.Context, userID, reviewID uuid.UUID, rate int, body string) (*domain.Review, error) {
	if rate < 1 || rate > 5 {
		return nil, ErrInvalidRating
	}

	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	wasAccepted := review.Status == domain.ReviewAccepted

	review.UserID = userID
	review.Rate = rate
	review.Body = body
	review.Status = domain.ReviewPending
	review.UpdatedAt = time.Now()

	if err := s.reviews.Update(ctx, review); err != nil {
		return nil, err
	}

	// An edited accepted review no longer counts until re-accepted
	if wasAccepted {
		s.refreshRating(ctx, review.ProductID)
	}
	return review, nil
}

// Delete removes the author's own review
func (s *reviewService) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return err
	}

	if err := s.reviews.Delete(ctx, reviewID, userID); err != nil {
		return err
	}

	if review.Status == domain.ReviewAccepted {
		s.refreshRating(ctx, review.ProductID)
	}
	return nil
}

// Moderate accepts or rejects a review and refreshes the product rating
func (s *reviewService) Moderate(ctx context.Context, reviewID uuid.UUID, status domain.ReviewStatus) error {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return err
	}

	if err := s.reviews.UpdateStatus(ctx, reviewID, status); err != nil {
		return err
	}

	s.refreshRating(ctx, review.ProductID)
	return nil
}

func (s *reviewService) ListForProduct(ctx context.Context, productID uuid.UUID, acceptedOnly bool) ([]*domain.Review, error) {
	return s.reviews.ListForProduct(ctx, productID, acceptedOnly)
}

func (s *reviewService) refreshRating(ctx context.Context, productID uuid.UUID) {
	rating, err := s.reviews.AverageRating(ctx, productID)
	if err != nil {
		s.logger.Error("Failed to compute product rating", zap.String("product_id", productID.String()), zap.Error(err))
		return
	}
	if err := s.products.UpdateRating(ctx, productID, rating); err != nil {
		s.logger.Error("Failed to store product rating", zap.String("product_id", productID.String()), zap.Error(err))
	}
}
