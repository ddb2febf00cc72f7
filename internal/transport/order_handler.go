package transport

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the payment webhook payload
const maxWebhookBody = 1 << 20

// OrderHandler handles HTTP requests for orders and payment webhooks
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// CreateOrderRequest is the checkout payload
type CreateOrderRequest struct {
	AddressID     string `json:"address_id" validate:"required,uuid"`
	ContactNumber string `json:"contact_number" validate:"required,min=7,max=20"`
	CouponCode    string `json:"coupon_code"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash stripe"`
}

// UpdateOrderStatusRequest moves an order along the dispatch leg of its
// lifecycle. The other statuses are set by their own endpoints: payment
// webhook, delivery close-out and cancellation.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=on_way dropped"`
}

// OrderResponse wraps an order with the checkout redirect for card payments
type OrderResponse struct {
	Order       *domain.Order `json:"order"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

// RegisterRoutes registers order routes. The payment webhook is public; the
// gateway signature is verified inside the service.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware, courierMiddleware func(http.Handler) http.Handler) {
	r.Post("/api/payments/webhook", h.PaymentWebhook)

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Create)
		r.Get("/", h.ListMine)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/qr", h.TrackingQR)
		r.Post("/{id}/cancel", h.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(courierMiddleware)
			r.Post("/{id}/deliver", h.Deliver)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Get("/all", h.ListAll)
			r.Put("/{id}/status", h.UpdateStatus)
		})
	})
}

func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error, action string) {
	var insufficientStock *service.InsufficientStockError
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrAddressNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "address not found")
	case errors.Is(err, service.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrOrderNotCancelable):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRefundFailed):
		middleware.RespondWithError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, repository.ErrOrderInvalidTransition):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrStatusManaged):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrCouponInvalid),
		errors.Is(err, service.ErrCouponExpired),
		errors.Is(err, service.ErrCouponNotEligible):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var notStarted *service.CouponNotStartedError
		if errors.As(err, &notStarted) {
			middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("Order operation failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	addressID, err := uuid.Parse(req.AddressID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	placed, err := h.orders.Create(r.Context(), userID, service.OrderInput{
		AddressID:     addressID,
		ContactNumber: req.ContactNumber,
		CouponCode:    req.CouponCode,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		h.respondOrderError(w, err, "create order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, OrderResponse{
		Order:       placed.Order,
		CheckoutURL: placed.CheckoutURL,
	})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orders.Get(r.Context(), userID, orderID)
	if err != nil {
		h.respondOrderError(w, err, "get order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// ListMine returns the caller's orders, optionally filtered by status
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, pageSize := pagination(r)

	filter := repository.OrderFilter{UserID: &userID}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.OrderStatus(v)
		filter.Status = &status
	}

	orders, total, err := h.orders.List(r.Context(), filter, page, pageSize)
	if err != nil {
		h.respondOrderError(w, err, "list orders")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listResponse{Items: orders, Total: total, Page: page, PageSize: pageSize})
}

// ListAll is the admin view across all users
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	var filter repository.OrderFilter
	q := r.URL.Query()
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = &id
	}
	if v := q.Get("status"); v != "" {
		status := domain.OrderStatus(v)
		filter.Status = &status
	}

	orders, total, err := h.orders.List(r.Context(), filter, page, pageSize)
	if err != nil {
		h.respondOrderError(w, err, "list orders")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listResponse{Items: orders, Total: total, Page: page, PageSize: pageSize})
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orders.Cancel(r.Context(), userID, orderID)
	if err != nil {
		h.respondOrderError(w, err, "cancel order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req UpdateOrderStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), orderID, domain.OrderStatus(req.Status))
	if err != nil {
		h.respondOrderError(w, err, "update order status")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// Deliver marks an order delivered, recording the courier who closed it
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	courierID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orders.Deliver(r.Context(), orderID, courierID)
	if err != nil {
		h.respondOrderError(w, err, "deliver order")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// TrackingQR renders the order's tracking code as a PNG
func (h *OrderHandler) TrackingQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	png, err := h.orders.TrackingQR(r.Context(), userID, orderID)
	if err != nil {
		h.respondOrderError(w, err, "render tracking code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// PaymentWebhook receives checkout session events from the payment gateway.
// The raw body and signature header go to the service untouched so the
// signature check covers exactly what the gateway signed.
func (h *OrderHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.orders.HandlePaymentWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.logger.Error("Payment webhook failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "webhook processing failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}
