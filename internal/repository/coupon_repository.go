package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrCouponCodeTaken   = errors.New("coupon with this code already exists")
	ErrCouponExhausted   = errors.New("coupon allowance exhausted")
	ErrCouponNotRedeemed = errors.New("coupon has no usage to return")
)

// CouponRepository defines the interface for coupon data access. The usage
// counters move only through conditional updates so concurrent redemptions
// can never push a counter outside [0, max_count].
type CouponRepository interface {
	WithTx(tx *sql.Tx) CouponRepository
	Create(ctx context.Context, coupon *domain.Coupon) error
	Update(ctx context.Context, coupon *domain.Coupon, log *domain.CouponLog) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
	List(ctx context.Context, enabledOnly bool, page, pageSize int) ([]*domain.Coupon, int, error)
	IncrementUsage(ctx context.Context, couponID, userID uuid.UUID) error
	DecrementUsage(ctx context.Context, couponID, userID uuid.UUID) error
	DisableExpired(ctx context.Context) (int64, error)
	ListLogs(ctx context.Context, couponID uuid.UUID) ([]*domain.CouponLog, error)
}

type couponRepository struct {
	db *sql.DB
	q  Querier
}

// NewCouponRepository creates a new instance of CouponRepository
func NewCouponRepository(db *sql.DB) CouponRepository {
	return &couponRepository{db: db, q: db}
}

// WithTx returns a repository bound to the given transaction
func (r *couponRepository) WithTx(tx *sql.Tx) CouponRepository {
	return &couponRepository{db: r.db, q: tx}
}

const couponColumns = `id, code, amount, type, valid_from, valid_till, is_enable, created_by, created_at, updated_at`

func scanCoupon(row interface{ Scan(...any) error }) (*domain.Coupon, error) {
	coupon := &domain.Coupon{}
	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Amount,
		&coupon.Type,
		&coupon.From,
		&coupon.Till,
		&coupon.IsEnable,
		&coupon.CreatedBy,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)
	return coupon, err
}

// Create inserts a coupon together with its per-user allowances
func (r *couponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		coupon.ID,
		coupon.Code,
		coupon.Amount,
		coupon.Type,
		coupon.From,
		coupon.Till,
		coupon.IsEnable,
		coupon.CreatedBy,
		coupon.CreatedAt,
		coupon.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCouponCodeTaken
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	for _, u := range coupon.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coupon_users (coupon_id, user_id, max_count, usage_count)
			VALUES ($1, $2, $3, 0)
		`, coupon.ID, u.UserID, u.MaxCount); err != nil {
			return fmt.Errorf("failed to create coupon allowance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit coupon create: %w", err)
	}

	return nil
}

// Update edits the coupon and appends an audit log entry in one transaction
func (r *couponRepository) Update(ctx context.Context, coupon *domain.Coupon, log *domain.CouponLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE coupons
		SET code = $2, amount = $3, type = $4, valid_from = $5, valid_till = $6,
		    is_enable = $7, updated_at = $8
		WHERE id = $1
	`,
		coupon.ID,
		coupon.Code,
		coupon.Amount,
		coupon.Type,
		coupon.From,
		coupon.Till,
		coupon.IsEnable,
		coupon.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCouponCodeTaken
		}
		return fmt.Errorf("failed to update coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCouponNotFound
	}

	for _, u := range coupon.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coupon_users (coupon_id, user_id, max_count, usage_count)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (coupon_id, user_id) DO UPDATE SET max_count = EXCLUDED.max_count
		`, coupon.ID, u.UserID, u.MaxCount); err != nil {
			return fmt.Errorf("failed to upsert coupon allowance: %w", err)
		}
	}

	if log != nil {
		changes, err := json.Marshal(log.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal coupon log: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coupon_logs (id, coupon_id, updated_by, changes, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, log.ID, log.CouponID, log.UpdatedBy, changes, log.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert coupon log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit coupon update: %w", err)
	}

	return nil
}

// Delete removes a coupon and, through FK cascade, its allowances and logs
func (r *couponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCouponNotFound
	}

	return nil
}

// FindByID retrieves a coupon with its allowances
func (r *couponRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	coupon, err := scanCoupon(r.q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to find coupon by ID: %w", err)
	}

	if coupon.Users, err = r.loadAllowances(ctx, coupon.ID); err != nil {
		return nil, err
	}

	return coupon, nil
}

// FindByCode retrieves a coupon by its unique code, with allowances
func (r *couponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon, err := scanCoupon(r.q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to find coupon by code: %w", err)
	}

	if coupon.Users, err = r.loadAllowances(ctx, coupon.ID); err != nil {
		return nil, err
	}

	return coupon, nil
}

func (r *couponRepository) loadAllowances(ctx context.Context, couponID uuid.UUID) ([]domain.CouponUser, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT coupon_id, user_id, max_count, usage_count
		FROM coupon_users
		WHERE coupon_id = $1
	`, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon allowances: %w", err)
	}
	defer rows.Close()

	users := []domain.CouponUser{}
	for rows.Next() {
		var u domain.CouponUser
		if err := rows.Scan(&u.CouponID, &u.UserID, &u.MaxCount, &u.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan coupon allowance: %w", err)
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coupon allowances: %w", err)
	}

	return users, nil
}

// List retrieves coupons with pagination, optionally only the enabled ones
func (r *couponRepository) List(ctx context.Context, enabledOnly bool, page, pageSize int) ([]*domain.Coupon, int, error) {
	where := ""
	if enabledOnly {
		where = " WHERE is_enable = TRUE"
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupons`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	offset := (page - 1) * pageSize

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons`+where+`
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []*domain.Coupon{}
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, coupon)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating coupons: %w", err)
	}

	return coupons, total, nil
}

// IncrementUsage consumes one try from the user's allowance. The guard in the
// WHERE clause makes the counter safe under concurrent redemptions.
func (r *couponRepository) IncrementUsage(ctx context.Context, couponID, userID uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE coupon_users
		SET usage_count = usage_count + 1
		WHERE coupon_id = $1 AND user_id = $2 AND usage_count < max_count
	`, couponID, userID)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCouponExhausted
	}

	return nil
}

// DecrementUsage returns one try after a cancellation, never below zero
func (r *couponRepository) DecrementUsage(ctx context.Context, couponID, userID uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE coupon_users
		SET usage_count = usage_count - 1
		WHERE coupon_id = $1 AND user_id = $2 AND usage_count > 0
	`, couponID, userID)
	if err != nil {
		return fmt.Errorf("failed to decrement coupon usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCouponNotRedeemed
	}

	return nil
}

// DisableExpired flips is_enable off for every coupon whose window has
// passed. One conditional statement, so overlapping sweeps are harmless.
func (r *couponRepository) DisableExpired(ctx context.Context) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE coupons
		SET is_enable = FALSE, updated_at = NOW()
		WHERE is_enable = TRUE AND valid_till <= NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to disable expired coupons: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ListLogs retrieves the audit trail of a coupon, newest first
func (r *couponRepository) ListLogs(ctx context.Context, couponID uuid.UUID) ([]*domain.CouponLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, coupon_id, updated_by, changes, created_at
		FROM coupon_logs
		WHERE coupon_id = $1
		ORDER BY created_at DESC
	`, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupon logs: %w", err)
	}
	defer rows.Close()

	logs := []*domain.CouponLog{}
	for rows.Next() {
		log := &domain.CouponLog{}
		var changes []byte
		if err := rows.Scan(&log.ID, &log.CouponID, &log.UpdatedBy, &changes, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coupon log: %w", err)
		}
		if err := json.Unmarshal(changes, &log.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal coupon log: %w", err)
		}
		logs = append(logs, log)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coupon logs: %w", err)
	}

	return logs, nil
}
