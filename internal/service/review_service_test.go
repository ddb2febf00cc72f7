package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockReviewRepository struct {
	reviews map[uuid.UUID]*domain.Review
}

func newMockReviewRepository() *mockReviewRepository {
	return &mockReviewRepository{reviews: make(map[uuid.UUID]*domain.Review)}
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	for _, existing := range m.reviews {
		if existing.UserID == review.UserID && existing.ProductID == review.ProductID {
			return repository.ErrReviewAlreadyExists
		}
	}
	m.reviews[review.ID] = review
	return nil
}

func (m *mockReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	existing, ok := m.reviews[review.ID]
	if !ok || existing.UserID != review.UserID {
		return repository.ErrReviewNotFound
	}
	m.reviews[review.ID] = review
	return nil
}

func (m *mockReviewRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) error {
	review, ok := m.reviews[id]
	if !ok {
		return repository.ErrReviewNotFound
	}
	review.Status = status
	return nil
}

func (m *mockReviewRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	review, ok := m.reviews[id]
	if !ok || review.UserID != userID {
		return repository.ErrReviewNotFound
	}
	delete(m.reviews, id)
	return nil
}

func (m *mockReviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	review, ok := m.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	return review, nil
}

func (m *mockReviewRepository) ListForProduct(ctx context.Context, productID uuid.UUID, acceptedOnly bool) ([]*domain.Review, error) {
	var out []*domain.Review
	for _, review := range m.reviews {
		if review.ProductID != productID {
			continue
		}
		if acceptedOnly && review.Status != domain.ReviewAccepted {
			continue
		}
		out = append(out, review)
	}
	return out, nil
}

func (m *mockReviewRepository) AverageRating(ctx context.Context, productID uuid.UUID) (float64, error) {
	var sum, count float64
	for _, review := range m.reviews {
		if review.ProductID == productID && review.Status == domain.ReviewAccepted {
			sum += float64(review.Rate)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return sum / count, nil
}

var _ repository.ReviewRepository = (*mockReviewRepository)(nil)

type reviewFixture struct {
	service  ReviewService
	reviews  *mockReviewRepository
	orders   *mockOrderRepository
	products *mockProductRepository
	userID   uuid.UUID
	product  *domain.Product
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	f := &reviewFixture{
		reviews:  newMockReviewRepository(),
		orders:   newMockOrderRepository(),
		products: newMockProductRepository(),
		userID:   uuid.New(),
	}
	f.service = NewReviewService(f.reviews, f.orders, f.products, zap.NewNop())

	f.product = &domain.Product{ID: uuid.New(), Title: "Reviewed Pot", AppliedPrice: 30, Stock: 10}
	if err := f.products.Create(context.Background(), f.product); err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return f
}

// deliverOrderWith seeds a delivered order containing the fixture product
func (f *reviewFixture) deliverOrderWith(t *testing.T, productID uuid.UUID) {
	t.Helper()
	order := &domain.Order{
		ID:        uuid.New(),
		UserID:    f.userID,
		Items:     []domain.OrderItem{{ProductID: productID, Title: "x", Quantity: 1, Price: 30}},
		Status:    domain.OrderDelivered,
		CreatedAt: time.Now(),
	}
	if err := f.orders.Create(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
}

func TestReviewRequiresDeliveredPurchase(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	// No order at all
	if _, err := f.service.Create(ctx, f.userID, f.product.ID, 4, "nice"); !errors.Is(err, ErrReviewNotEligible) {
		t.Fatalf("expected ErrReviewNotEligible, got %v", err)
	}

	// An undelivered order does not qualify
	pending := &domain.Order{
		ID:        uuid.New(),
		UserID:    f.userID,
		Items:     []domain.OrderItem{{ProductID: f.product.ID, Quantity: 1}},
		Status:    domain.OrderPlaced,
		CreatedAt: time.Now(),
	}
	if err := f.orders.Create(ctx, pending); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	if _, err := f.service.Create(ctx, f.userID, f.product.ID, 4, "nice"); !errors.Is(err, ErrReviewNotEligible) {
		t.Fatalf("expected ErrReviewNotEligible for undelivered order, got %v", err)
	}

	// A delivered order with a different product does not qualify either
	f.deliverOrderWith(t, uuid.New())
	if _, err := f.service.Create(ctx, f.userID, f.product.ID, 4, "nice"); !errors.Is(err, ErrReviewNotEligible) {
		t.Fatalf("expected ErrReviewNotEligible for unrelated delivery, got %v", err)
	}

	f.deliverOrderWith(t, f.product.ID)
	review, err := f.service.Create(ctx, f.userID, f.product.ID, 4, "nice")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if review.Status != domain.ReviewPending {
		t.Errorf("new reviews start pending, got %s", review.Status)
	}

	// One review per product
	if _, err := f.service.Create(ctx, f.userID, f.product.ID, 5, "again"); !errors.Is(err, repository.ErrReviewAlreadyExists) {
		t.Fatalf("expected ErrReviewAlreadyExists, got %v", err)
	}
}

func TestReviewModerationDrivesRating(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	f.deliverOrderWith(t, f.product.ID)
	review, err := f.service.Create(ctx, f.userID, f.product.ID, 4, "solid")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Pending reviews do not count
	stored, _ := f.products.FindByID(ctx, f.product.ID)
	if stored.Rating != 0 {
		t.Errorf("pending review must not affect rating, got %v", stored.Rating)
	}

	if err := f.service.Moderate(ctx, review.ID, domain.ReviewAccepted); err != nil {
		t.Fatalf("moderate failed: %v", err)
	}
	stored, _ = f.products.FindByID(ctx, f.product.ID)
	if stored.Rating != 4 {
		t.Errorf("expected rating 4, got %v", stored.Rating)
	}

	if err := f.service.Moderate(ctx, review.ID, domain.ReviewRejected); err != nil {
		t.Fatalf("moderate failed: %v", err)
	}
	stored, _ = f.products.FindByID(ctx, f.product.ID)
	if stored.Rating != 0 {
		t.Errorf("rejected review must reset rating, got %v", stored.Rating)
	}
}

func TestReviewRateBounds(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	f.deliverOrderWith(t, f.product.ID)
	if _, err := f.service.Create(ctx, f.userID, f.product.ID, 0, "bad"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := f.service.Create(ctx, f.userID, f.product.ID, 6, "bad"); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
}

func TestReviewDeleteRefreshesRating(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	f.deliverOrderWith(t, f.product.ID)
	review, err := f.service.Create(ctx, f.userID, f.product.ID, 5, "great")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := f.service.Moderate(ctx, review.ID, domain.ReviewAccepted); err != nil {
		t.Fatalf("moderate failed: %v", err)
	}

	// Only the author may delete
	if err := f.service.Delete(ctx, uuid.New(), review.ID); !errors.Is(err, repository.ErrReviewNotFound) {
		t.Fatalf("expected ErrReviewNotFound for foreign delete, got %v", err)
	}

	if err := f.service.Delete(ctx, f.userID, review.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	stored, _ := f.products.FindByID(ctx, f.product.ID)
	if stored.Rating != 0 {
		t.Errorf("expected rating reset after delete, got %v", stored.Rating)
	}
}
