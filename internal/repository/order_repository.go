package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderInvalidTransition = errors.New("order status transition not allowed")
)

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID *uuid.UUID
	Status *domain.OrderStatus
}

// OrderRepository defines the interface for order data access. Status moves
// through UpdateStatus and the cancel/deliver variants, each a single
// conditional UPDATE keyed on the expected current status so two concurrent
// transitions cannot both win.
type OrderRepository interface {
	WithTx(tx *sql.Tx) OrderRepository
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error)
	FindByPaymentIntent(ctx context.Context, paymentIntent string) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error
	MarkCanceled(ctx context.Context, id uuid.UUID, from domain.OrderStatus, canceledBy uuid.UUID, canceledAt time.Time) error
	MarkDelivered(ctx context.Context, id uuid.UUID, from domain.OrderStatus, deliveredBy uuid.UUID, deliveredAt time.Time) error
	SetPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntent string) error
}

type orderRepository struct {
	db *sql.DB
	q  Querier
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db, q: db}
}

// WithTx returns a repository bound to the given transaction
func (r *orderRepository) WithTx(tx *sql.Tx) OrderRepository {
	return &orderRepository{db: r.db, q: tx}
}

const orderColumns = `id, user_id, address, address_id, contact_number, sub_total, shipping_fee, vat, total, coupon_id, payment_method, status, estimated_delivery_date, payment_intent, delivered_by, delivered_at, canceled_by, canceled_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Address,
		&order.AddressID,
		&order.ContactNumber,
		&order.SubTotal,
		&order.ShippingFee,
		&order.VAT,
		&order.Total,
		&order.CouponID,
		&order.PaymentMethod,
		&order.Status,
		&order.EstimatedDeliveryDate,
		&order.PaymentIntent,
		&order.DeliveredBy,
		&order.DeliveredAt,
		&order.CanceledBy,
		&order.CanceledAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	return order, err
}

// Create inserts the order and its item snapshot. Call inside the placement
// transaction alongside stock reservation and cart clearing.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		order.ID,
		order.UserID,
		order.Address,
		order.AddressID,
		order.ContactNumber,
		order.SubTotal,
		order.ShippingFee,
		order.VAT,
		order.Total,
		order.CouponID,
		order.PaymentMethod,
		order.Status,
		order.EstimatedDeliveryDate,
		order.PaymentIntent,
		order.DeliveredBy,
		order.DeliveredAt,
		order.CanceledBy,
		order.CanceledAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, title, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, item.ProductID, item.Title, item.Quantity, item.Price); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return nil
}

// FindByID retrieves an order with its item snapshot
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

// FindByIDForUser retrieves an order only when the given user owns it
func (r *orderRepository) FindByIDForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

// FindByPaymentIntent retrieves the order a gateway webhook refers to
func (r *orderRepository) FindByPaymentIntent(ctx context.Context, paymentIntent string) (*domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_intent = $1`, paymentIntent))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by payment intent: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, product_id, title, quantity, price
		FROM order_items
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Title, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// List retrieves orders newest first, optionally filtered by user and status
func (r *orderRepository) List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	where := ""
	args := []any{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE 1=1`+where+`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// UpdateStatus moves the order from one status to another. The current status
// sits in the WHERE clause, so a stale caller loses the race and gets
// ErrOrderInvalidTransition.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	if !domain.CanTransition(from, to) {
		return ErrOrderInvalidTransition
	}

	return r.transition(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
}

// MarkCanceled records who canceled and when, guarded on the expected status
func (r *orderRepository) MarkCanceled(ctx context.Context, id uuid.UUID, from domain.OrderStatus, canceledBy uuid.UUID, canceledAt time.Time) error {
	if !domain.CanTransition(from, domain.OrderCanceled) {
		return ErrOrderInvalidTransition
	}

	return r.transition(ctx, `
		UPDATE orders
		SET status = $3, canceled_by = $4, canceled_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, domain.OrderCanceled, canceledBy, canceledAt)
}

// MarkDelivered records who delivered and when, guarded on the expected status
func (r *orderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, from domain.OrderStatus, deliveredBy uuid.UUID, deliveredAt time.Time) error {
	if !domain.CanTransition(from, domain.OrderDelivered) {
		return ErrOrderInvalidTransition
	}

	return r.transition(ctx, `
		UPDATE orders
		SET status = $3, delivered_by = $4, delivered_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, domain.OrderDelivered, deliveredBy, deliveredAt)
}

func (r *orderRepository) transition(ctx context.Context, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderInvalidTransition
	}

	return nil
}

// SetPaymentIntent attaches the gateway session identifier to the order
func (r *orderRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, paymentIntent string) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE orders SET payment_intent = $2, updated_at = NOW() WHERE id = $1
	`, id, paymentIntent)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}
