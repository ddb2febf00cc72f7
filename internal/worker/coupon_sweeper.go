package worker

import (
	"context"
	"time"

	"storefront/internal/repository"

	"go.uber.org/zap"
)

// CouponSweeper periodically disables coupons whose validity window has
// passed. The sweep is one conditional UPDATE, so multiple instances running
// it concurrently do no harm.
type CouponSweeper struct {
	coupons  repository.CouponRepository
	interval time.Duration
	logger   *zap.Logger
}

// NewCouponSweeper creates a sweeper with the given interval
func NewCouponSweeper(coupons repository.CouponRepository, interval time.Duration, logger *zap.Logger) *CouponSweeper {
	return &CouponSweeper{coupons: coupons, interval: interval, logger: logger}
}

// Run sweeps once immediately, then on every tick until the context ends
func (s *CouponSweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Coupon sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CouponSweeper) sweep(ctx context.Context) {
	disabled, err := s.coupons.DisableExpired(ctx)
	if err != nil {
		s.logger.Error("Coupon sweep failed", zap.Error(err))
		return
	}
	if disabled > 0 {
		s.logger.Info("Disabled expired coupons", zap.Int64("count", disabled))
	}
}
