package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/mailer"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	// ShippingFee is the flat delivery charge added to every order
	ShippingFee = 50.0
	// VATRate is applied to the pre-coupon subtotal
	VATRate = 0.14
	// DeliveryEstimateDays feeds the estimated_delivery_date shown to the user
	DeliveryEstimateDays = 3
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOrderNotCancelable = errors.New("order can no longer be canceled")
	ErrRefundFailed       = errors.New("payment refund failed")
	ErrStatusManaged      = errors.New("status is set by its own workflow")
)

// dispatchStatuses are the only targets UpdateStatus accepts. Every other
// status has a dedicated entry point that carries its side effects:
// confirmation settles through the payment webhook, delivery goes through
// Deliver, cancellation and refunds through Cancel. Flipping those statuses
// directly would skip the stock and coupon bookkeeping.
var dispatchStatuses = map[domain.OrderStatus]bool{
	domain.OrderOnWay:   true,
	domain.OrderDropped: true,
}

// InsufficientStockError names the product that could not be reserved
type InsufficientStockError struct {
	Title string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %q", e.Title)
}

// OrderInput carries everything the user supplies at checkout
type OrderInput struct {
	AddressID     uuid.UUID
	ContactNumber string
	CouponCode    string
	PaymentMethod domain.PaymentMethod
}

// PlacedOrder is the creation result. CheckoutURL is set only for card
// payments; the caller redirects the user there.
type PlacedOrder struct {
	Order       *domain.Order
	CheckoutURL string
}

// OrderService drives the order workflow. Placement reserves stock, snapshots
// the cart and clears it in one transaction; cash orders start at placed with
// the reservation committed and the coupon counted, card orders start at
// pending and settle through the payment webhook.
type OrderService interface {
	Create(ctx context.Context, userID uuid.UUID, input OrderInput) (*PlacedOrder, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (*domain.Order, error)
	Deliver(ctx context.Context, orderID, deliveredBy uuid.UUID) (*domain.Order, error)
	HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error
	TrackingQR(ctx context.Context, userID, orderID uuid.UUID) ([]byte, error)
}

type orderService struct {
	tx          repository.TxRunner
	orders      repository.OrderRepository
	carts       repository.CartRepository
	products    repository.ProductRepository
	coupons     repository.CouponRepository
	addresses   repository.AddressRepository
	users       repository.UserRepository
	couponSvc   CouponService
	gateway     payment.Gateway
	mail        mailer.Mailer
	publisher   events.Publisher
	broadcaster notify.Broadcaster
	logger      *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	tx repository.TxRunner,
	orders repository.OrderRepository,
	carts repository.CartRepository,
	products repository.ProductRepository,
	coupons repository.CouponRepository,
	addresses repository.AddressRepository,
	users repository.UserRepository,
	couponSvc CouponService,
	gateway payment.Gateway,
	mail mailer.Mailer,
	publisher events.Publisher,
	broadcaster notify.Broadcaster,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		tx:          tx,
		orders:      orders,
		carts:       carts,
		products:    products,
		coupons:     coupons,
		addresses:   addresses,
		users:       users,
		couponSvc:   couponSvc,
		gateway:     gateway,
		mail:        mail,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Create places an order from the user's cart
func (s *orderService) Create(ctx context.Context, userID uuid.UUID, input OrderInput) (*PlacedOrder, error) {
	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	address, err := s.addresses.FindByID(ctx, userID, input.AddressID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	var coupon *domain.Coupon
	if input.CouponCode != "" {
		coupon, err = s.couponSvc.Validate(ctx, input.CouponCode, userID, now)
		if err != nil {
			return nil, err
		}
	}

	subTotal := pricing.Subtotal(cart.Items)
	vat := subTotal * VATRate
	var total float64
	if coupon != nil {
		total = pricing.ApplyCoupon(subTotal, coupon, ShippingFee, vat)
	} else {
		total = pricing.Total(subTotal, ShippingFee, vat)
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, err := item.Product.Value()
		if err != nil {
			return nil, fmt.Errorf("cart item %s: %w", item.ProductID, err)
		}
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Title:     product.Title,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	// Cash orders settle immediately; card orders wait for the webhook
	status := domain.OrderPending
	if input.PaymentMethod == domain.PaymentCash {
		status = domain.OrderPlaced
	}

	order := &domain.Order{
		ID:                    uuid.New(),
		UserID:                userID,
		Items:                 items,
		Address:               formatAddress(address),
		AddressID:             &address.ID,
		ContactNumber:         input.ContactNumber,
		SubTotal:              subTotal,
		ShippingFee:           ShippingFee,
		VAT:                   vat,
		Total:                 total,
		PaymentMethod:         input.PaymentMethod,
		Status:                status,
		EstimatedDeliveryDate: now.AddDate(0, 0, DeliveryEstimateDays),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
	}

	if err := s.placeInTx(ctx, order, cart, coupon); err != nil {
		return nil, err
	}

	placed := &PlacedOrder{Order: order}

	if input.PaymentMethod == domain.PaymentStripe {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		session, err := s.gateway.CreateCheckoutSession(ctx, order, user.Email)
		if err != nil {
			// The order stays pending; the user can retry payment or the
			// cancellation window reclaims the stock.
			return nil, fmt.Errorf("failed to create checkout session: %w", err)
		}
		// The session id is the lookup key until the webhook delivers the
		// real payment intent.
		if err := s.orders.SetPaymentIntent(ctx, order.ID, session.ID); err != nil {
			return nil, err
		}
		order.PaymentIntent = session.ID
		placed.CheckoutURL = session.URL
	}

	s.afterPlacement(order)

	return placed, nil
}

// placeInTx runs the atomic part of placement: stock reservation, the order
// rows, the coupon counter and the cart wipe all commit or roll back together.
func (s *orderService) placeInTx(ctx context.Context, order *domain.Order, cart *domain.Cart, coupon *domain.Coupon) error {
	return s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		txProducts := s.products.WithTx(tx)
		for _, item := range order.Items {
			if err := txProducts.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return &InsufficientStockError{Title: item.Title}
				}
				return err
			}
			if order.Status == domain.OrderPlaced {
				if err := txProducts.CommitReservation(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		if coupon != nil && order.Status == domain.OrderPlaced {
			if err := s.coupons.WithTx(tx).IncrementUsage(ctx, coupon.ID, order.UserID); err != nil {
				return err
			}
		}

		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.carts.WithTx(tx).Clear(ctx, cart.ID)
	})
}

func (s *orderService) afterPlacement(order *domain.Order) {
	envelope, err := events.NewEnvelope(events.EventOrderPlaced, order.ID.String(), events.OrderPlacedPayload{
		OrderID:       order.ID.String(),
		UserID:        order.UserID.String(),
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		ItemCount:     len(order.Items),
	})
	if err != nil {
		s.logger.Error("Failed to build event", zap.Error(err))
	} else {
		s.publisher.Publish(events.TopicOrders, envelope)
	}

	s.broadcaster.OrderStatusChanged(context.Background(), order.UserID, order.ID, order.Status)

	orderID := order.ID
	userID := order.UserID
	total := order.Total
	go func() {
		user, err := s.users.FindByID(context.Background(), userID)
		if err != nil {
			s.logger.Error("Failed to load user for order email", zap.Error(err))
			return
		}
		png, err := qrcode.Encode(orderID.String(), qrcode.Medium, 256)
		if err != nil {
			s.logger.Error("Failed to render order QR", zap.Error(err))
			png = nil
		}
		if err := s.mail.SendOrderConfirmation(user.Email, orderID.String(), total, png); err != nil {
			s.logger.Error("Failed to send order confirmation", zap.String("email", user.Email), zap.Error(err))
		}
	}()
}

func (s *orderService) Get(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByIDForUser(ctx, orderID, userID)
}

func (s *orderService) List(ctx context.Context, filter repository.OrderFilter, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orders.List(ctx, filter, page, pageSize)
}

// Cancel voids an order within the cancellation window. Stock goes back on
// the shelf, the coupon use is returned, and paid card orders are refunded.
func (s *orderService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !domain.CanTransition(order.Status, domain.OrderCanceled) &&
		!domain.CanTransition(order.Status, domain.OrderRefunded) {
		return nil, repository.ErrOrderInvalidTransition
	}
	if !domain.CancelableAt(order.CreatedAt, now) {
		return nil, ErrOrderNotCancelable
	}

	// Refund before touching local state: a failed refund must leave the
	// order untouched.
	refunded := order.Status == domain.OrderConfirmed && order.PaymentMethod == domain.PaymentStripe
	if refunded {
		if order.PaymentIntent == "" {
			return nil, ErrRefundFailed
		}
		if err := s.gateway.Refund(ctx, order.PaymentIntent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
		}
	}

	err = s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		txOrders := s.orders.WithTx(tx)
		var txErr error
		if refunded {
			txErr = txOrders.UpdateStatus(ctx, order.ID, order.Status, domain.OrderRefunded)
		} else {
			txErr = txOrders.MarkCanceled(ctx, order.ID, order.Status, userID, now)
		}
		if txErr != nil {
			return txErr
		}

		// Pending orders still hold a reservation; placed and confirmed ones
		// committed it at settlement.
		txProducts := s.products.WithTx(tx)
		for _, item := range order.Items {
			if order.Status == domain.OrderPending {
				txErr = txProducts.Release(ctx, item.ProductID, item.Quantity)
			} else {
				txErr = txProducts.Restock(ctx, item.ProductID, item.Quantity)
			}
			if txErr = s.skipVanishedProduct(txErr, order.ID, item.ProductID); txErr != nil {
				return txErr
			}
		}

		// The coupon was only counted once the order settled
		counted := order.Status == domain.OrderPlaced || order.Status == domain.OrderConfirmed
		if order.CouponID != nil && counted {
			return s.coupons.WithTx(tx).DecrementUsage(ctx, *order.CouponID, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	from := order.Status
	if refunded {
		order.Status = domain.OrderRefunded
	} else {
		order.Status = domain.OrderCanceled
		order.CanceledBy = &userID
		order.CanceledAt = &now
	}

	s.publishStatusChange(order, from, order.Status)
	s.publishCanceled(order, userID, refunded)

	return order, nil
}

// UpdateStatus applies an admin-driven dispatch transition such as
// confirmed -> on_way. Statuses owned by other flows are rejected.
func (s *orderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	if !dispatchStatuses[to] {
		return nil, ErrStatusManaged
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, order.Status, to); err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = to
	s.publishStatusChange(order, from, to)
	return order, nil
}

// Deliver marks an order delivered and records the courier
func (s *orderService) Deliver(ctx context.Context, orderID, deliveredBy uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.orders.MarkDelivered(ctx, order.ID, order.Status, deliveredBy, now); err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = domain.OrderDelivered
	order.DeliveredBy = &deliveredBy
	order.DeliveredAt = &now
	s.publishStatusChange(order, from, domain.OrderDelivered)
	return order, nil
}

// HandlePaymentWebhook settles or voids a pending card order based on the
// gateway notification. Events the workflow does not care about are ignored.
func (s *orderService) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownEvent) {
			return nil
		}
		return err
	}

	order, err := s.orders.FindByPaymentIntent(ctx, event.SessionID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPending {
		// Duplicate delivery; the first one already settled the order
		return nil
	}

	if event.Completed {
		return s.settle(ctx, order, event.PaymentIntent)
	}
	return s.voidExpired(ctx, order)
}

// settle confirms a paid order: the reservation becomes a sale and the coupon
// use is counted, atomically with the status flip.
func (s *orderService) settle(ctx context.Context, order *domain.Order, paymentIntent string) error {
	err := s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		if err := s.orders.WithTx(tx).UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderConfirmed); err != nil {
			return err
		}

		txProducts := s.products.WithTx(tx)
		for _, item := range order.Items {
			err := txProducts.CommitReservation(ctx, item.ProductID, item.Quantity)
			if err = s.skipVanishedProduct(err, order.ID, item.ProductID); err != nil {
				return err
			}
		}

		if order.CouponID != nil {
			return s.coupons.WithTx(tx).IncrementUsage(ctx, *order.CouponID, order.UserID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Swap the session id for the real payment intent so refunds can find it
	if paymentIntent != "" {
		if err := s.orders.SetPaymentIntent(ctx, order.ID, paymentIntent); err != nil {
			s.logger.Error("Failed to store payment intent", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}

	s.publishStatusChange(order, domain.OrderPending, domain.OrderConfirmed)
	return nil
}

// voidExpired cancels a pending order whose checkout session lapsed
func (s *orderService) voidExpired(ctx context.Context, order *domain.Order) error {
	now := time.Now()
	err := s.tx.RunTx(ctx, func(tx *sql.Tx) error {
		if err := s.orders.WithTx(tx).MarkCanceled(ctx, order.ID, domain.OrderPending, order.UserID, now); err != nil {
			return err
		}

		txProducts := s.products.WithTx(tx)
		for _, item := range order.Items {
			err := txProducts.Release(ctx, item.ProductID, item.Quantity)
			if err = s.skipVanishedProduct(err, order.ID, item.ProductID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishStatusChange(order, domain.OrderPending, domain.OrderCanceled)
	s.publishCanceled(order, order.UserID, false)
	return nil
}

// skipVanishedProduct swallows stock-counter errors for products that have
// left the catalog. Order items are snapshots and survive product deletion,
// so a missing counter row just means there is no stock left to move.
func (s *orderService) skipVanishedProduct(err error, orderID, productID uuid.UUID) error {
	if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrNothingReserved) {
		s.logger.Warn("Skipping stock adjustment for product no longer in catalog",
			zap.String("order_id", orderID.String()),
			zap.String("product_id", productID.String()),
		)
		return nil
	}
	return err
}

// TrackingQR renders the order's tracking code as a PNG
func (s *orderService) TrackingQR(ctx context.Context, userID, orderID uuid.UUID) ([]byte, error) {
	order, err := s.orders.FindByIDForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(order.ID.String(), qrcode.Medium, 256)
}

func (s *orderService) publishStatusChange(order *domain.Order, from, to domain.OrderStatus) {
	envelope, err := events.NewEnvelope(events.EventOrderStatusChanged, order.ID.String(), events.OrderStatusChangedPayload{
		OrderID: order.ID.String(),
		From:    from,
		To:      to,
	})
	if err != nil {
		s.logger.Error("Failed to build event", zap.Error(err))
	} else {
		s.publisher.Publish(events.TopicOrders, envelope)
	}

	s.broadcaster.OrderStatusChanged(context.Background(), order.UserID, order.ID, to)
}

func (s *orderService) publishCanceled(order *domain.Order, canceledBy uuid.UUID, refunded bool) {
	envelope, err := events.NewEnvelope(events.EventOrderCanceled, order.ID.String(), events.OrderCanceledPayload{
		OrderID:    order.ID.String(),
		CanceledBy: canceledBy.String(),
		Refunded:   refunded,
	})
	if err != nil {
		s.logger.Error("Failed to build event", zap.Error(err))
		return
	}
	s.publisher.Publish(events.TopicOrders, envelope)
}

func formatAddress(a *domain.Address) string {
	parts := []string{}
	for _, part := range []string{a.BuildingNo, a.FloorNo, a.City, a.PostalCode, a.Country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
