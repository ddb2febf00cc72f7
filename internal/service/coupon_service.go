package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/mailer"
	"storefront/internal/notify"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCouponInvalid     = errors.New("invalid coupon code")
	ErrCouponExpired     = errors.New("coupon is expired")
	ErrCouponNotEligible = errors.New("user is not eligible to use this coupon or you redeem all your tries")
	ErrCouponBadWindow   = errors.New("coupon start date must be before its end date")
)

// CouponNotStartedError reports a coupon redeemed before its window opens
type CouponNotStartedError struct {
	From time.Time
}

func (e *CouponNotStartedError) Error() string {
	return fmt.Sprintf("coupon is not started yet, coupon will start on %s", e.From.Format("2006-01-02"))
}

// CouponInput carries the writable coupon fields
type CouponInput struct {
	Code   string
	Amount float64
	Type   domain.CouponType
	From   time.Time
	Till   time.Time
	Users  []domain.CouponUser
}

// CouponService owns coupon lifecycle and redemption checks. Validate decides
// eligibility; the usage counters themselves only move inside the order
// placement and cancellation transactions.
type CouponService interface {
	Create(ctx context.Context, input CouponInput, createdBy uuid.UUID) (*domain.Coupon, error)
	Update(ctx context.Context, id uuid.UUID, input CouponInput, updatedBy uuid.UUID) (*domain.Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	List(ctx context.Context, enabledOnly bool, page, pageSize int) ([]*domain.Coupon, int, error)
	Logs(ctx context.Context, couponID uuid.UUID) ([]*domain.CouponLog, error)
	Validate(ctx context.Context, code string, userID uuid.UUID, now time.Time) (*domain.Coupon, error)
}

type couponService struct {
	coupons     repository.CouponRepository
	users       repository.UserRepository
	broadcaster notify.Broadcaster
	mail        mailer.Mailer
	publisher   events.Publisher
	logger      *zap.Logger
}

// NewCouponService creates a new instance of CouponService
func NewCouponService(
	coupons repository.CouponRepository,
	users repository.UserRepository,
	broadcaster notify.Broadcaster,
	mail mailer.Mailer,
	publisher events.Publisher,
	logger *zap.Logger,
) CouponService {
	return &couponService{
		coupons:     coupons,
		users:       users,
		broadcaster: broadcaster,
		mail:        mail,
		publisher:   publisher,
		logger:      logger,
	}
}

// Create stores a coupon with its per-user allowances and notifies every
// assigned user.
func (s *couponService) Create(ctx context.Context, input CouponInput, createdBy uuid.UUID) (*domain.Coupon, error) {
	if !input.From.Before(input.Till) {
		return nil, ErrCouponBadWindow
	}

	assigned := make([]*domain.User, 0, len(input.Users))
	for _, u := range input.Users {
		user, err := s.users.FindByID(ctx, u.UserID)
		if err != nil {
			return nil, fmt.Errorf("coupon user %s: %w", u.UserID, err)
		}
		assigned = append(assigned, user)
	}

	now := time.Now()
	coupon := &domain.Coupon{
		ID:        uuid.New(),
		Code:      input.Code,
		Amount:    input.Amount,
		Type:      input.Type,
		From:      input.From,
		Till:      input.Till,
		IsEnable:  true,
		Users:     input.Users,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.coupons.Create(ctx, coupon); err != nil {
		return nil, err
	}

	s.notifyAssigned(coupon, assigned)

	return coupon, nil
}

func (s *couponService) notifyAssigned(coupon *domain.Coupon, assigned []*domain.User) {
	userIDs := make([]string, 0, len(assigned))
	for _, user := range assigned {
		userIDs = append(userIDs, user.ID.String())
		s.broadcaster.CouponIssued(context.Background(), user.ID, coupon.ID, coupon.Code)

		email := user.Email
		go func() {
			if err := s.mail.SendCouponNotification(email, coupon.Code, coupon.Amount, coupon.Till.Format("2006-01-02")); err != nil {
				s.logger.Error("Failed to send coupon email", zap.String("email", email), zap.Error(err))
			}
		}()
	}

	envelope, err := events.NewEnvelope(events.EventCouponIssued, coupon.ID.String(), events.CouponIssuedPayload{
		CouponID: coupon.ID.String(),
		Code:     coupon.Code,
		UserIDs:  userIDs,
	})
	if err != nil {
		s.logger.Error("Failed to build event", zap.Error(err))
		return
	}
	s.publisher.Publish(events.TopicCoupons, envelope)
}

// Update edits a coupon and records the change set in the audit log
func (s *couponService) Update(ctx context.Context, id uuid.UUID, input CouponInput, updatedBy uuid.UUID) (*domain.Coupon, error) {
	coupon, err := s.coupons.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if input.Code != "" && input.Code != coupon.Code {
		changes["code"] = map[string]any{"old": coupon.Code, "new": input.Code}
		coupon.Code = input.Code
	}
	if input.Amount > 0 && input.Amount != coupon.Amount {
		changes["amount"] = map[string]any{"old": coupon.Amount, "new": input.Amount}
		coupon.Amount = input.Amount
	}
	if input.Type != "" && input.Type != coupon.Type {
		changes["type"] = map[string]any{"old": coupon.Type, "new": input.Type}
		coupon.Type = input.Type
	}
	if !input.From.IsZero() && !input.From.Equal(coupon.From) {
		changes["valid_from"] = map[string]any{"old": coupon.From, "new": input.From}
		coupon.From = input.From
	}
	if !input.Till.IsZero() && !input.Till.Equal(coupon.Till) {
		changes["valid_till"] = map[string]any{"old": coupon.Till, "new": input.Till}
		coupon.Till = input.Till
	}
	if len(input.Users) > 0 {
		changes["users"] = map[string]any{"count": len(input.Users)}
		coupon.Users = input.Users
	}

	if !coupon.From.Before(coupon.Till) {
		return nil, ErrCouponBadWindow
	}

	if len(changes) == 0 {
		return coupon, nil
	}
	coupon.UpdatedAt = time.Now()

	log := &domain.CouponLog{
		ID:        uuid.New(),
		CouponID:  coupon.ID,
		UpdatedBy: updatedBy,
		Changes:   changes,
		CreatedAt: time.Now(),
	}

	if err := s.coupons.Update(ctx, coupon, log); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *couponService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.coupons.Delete(ctx, id)
}

func (s *couponService) Get(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return s.coupons.FindByID(ctx, id)
}

func (s *couponService) List(ctx context.Context, enabledOnly bool, page, pageSize int) ([]*domain.Coupon, int, error) {
	return s.coupons.List(ctx, enabledOnly, page, pageSize)
}

func (s *couponService) Logs(ctx context.Context, couponID uuid.UUID) ([]*domain.CouponLog, error) {
	return s.coupons.ListLogs(ctx, couponID)
}

// Validate checks a coupon for one user at one moment. The checks run in a
// fixed order: existence, enablement and expiry, start date, then the user's
// allowance.
func (s *couponService) Validate(ctx context.Context, code string, userID uuid.UUID, now time.Time) (*domain.Coupon, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if err == repository.ErrCouponNotFound {
			return nil, ErrCouponInvalid
		}
		return nil, fmt.Errorf("failed to look up coupon: %w", err)
	}

	if !coupon.IsEnable || !now.Before(coupon.Till) {
		return nil, ErrCouponExpired
	}
	if now.Before(coupon.From) {
		return nil, &CouponNotStartedError{From: coupon.From}
	}

	allowance, ok := coupon.AllowanceFor(userID)
	if !ok || allowance.UsageCount >= allowance.MaxCount {
		return nil, ErrCouponNotEligible
	}

	return coupon, nil
}
