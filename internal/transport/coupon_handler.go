package transport

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CouponHandler handles HTTP requests for coupon administration
type CouponHandler struct {
	coupons service.CouponService
	logger  *zap.Logger
}

// NewCouponHandler creates a new CouponHandler
func NewCouponHandler(coupons service.CouponService, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, logger: logger}
}

// CouponUserRequest grants a user a number of redemptions
type CouponUserRequest struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	MaxCount int    `json:"max_count" validate:"required,gt=0"`
}

// CouponRequest is the create/update payload
type CouponRequest struct {
	Code   string              `json:"code" validate:"required,min=3,max=32"`
	Amount float64             `json:"amount" validate:"required,gt=0"`
	Type   string              `json:"type" validate:"required,oneof=percentage amount"`
	From   time.Time           `json:"from" validate:"required"`
	Till   time.Time           `json:"till" validate:"required"`
	Users  []CouponUserRequest `json:"users" validate:"dive"`
}

// ValidateCouponRequest checks a code against the caller's allowance
type ValidateCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

// RegisterRoutes registers coupon routes. Administration requires an admin
// token; validation is available to any authenticated user.
func (h *CouponHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/coupons", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/validate", h.Validate)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware, adminMiddleware)
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Get("/{id}/logs", h.Logs)
		})
	})
}

func (h *CouponHandler) respondCouponError(w http.ResponseWriter, err error, action string) {
	var notStarted *service.CouponNotStartedError
	switch {
	case errors.Is(err, repository.ErrCouponNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, repository.ErrCouponCodeTaken):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCouponBadWindow):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCouponInvalid),
		errors.Is(err, service.ErrCouponExpired),
		errors.Is(err, service.ErrCouponNotEligible):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &notStarted):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("Coupon operation failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func couponInputFromRequest(req CouponRequest) (service.CouponInput, error) {
	input := service.CouponInput{
		Code:   req.Code,
		Amount: req.Amount,
		Type:   domain.CouponType(req.Type),
		From:   req.From,
		Till:   req.Till,
	}
	for _, u := range req.Users {
		userID, err := uuid.Parse(u.UserID)
		if err != nil {
			return input, err
		}
		input.Users = append(input.Users, domain.CouponUser{
			UserID:   userID,
			MaxCount: u.MaxCount,
		})
	}
	return input, nil
}

func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CouponRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input, err := couponInputFromRequest(req)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid user id in users list")
		return
	}

	coupon, err := h.coupons.Create(r.Context(), input, adminID)
	if err != nil {
		h.respondCouponError(w, err, "create coupon")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, coupon)
}

func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	var req CouponRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input, err := couponInputFromRequest(req)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid user id in users list")
		return
	}

	coupon, err := h.coupons.Update(r.Context(), id, input, adminID)
	if err != nil {
		h.respondCouponError(w, err, "update coupon")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, coupon)
}

func (h *CouponHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	if err := h.coupons.Delete(r.Context(), id); err != nil {
		h.respondCouponError(w, err, "delete coupon")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "coupon deleted"})
}

func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	coupon, err := h.coupons.Get(r.Context(), id)
	if err != nil {
		h.respondCouponError(w, err, "get coupon")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, coupon)
}

func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	coupons, total, err := h.coupons.List(r.Context(), enabledOnly, page, pageSize)
	if err != nil {
		h.respondCouponError(w, err, "list coupons")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listResponse{Items: coupons, Total: total, Page: page, PageSize: pageSize})
}

// Logs returns the audit trail of changes made to a coupon
func (h *CouponHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	logs, err := h.coupons.Logs(r.Context(), id)
	if err != nil {
		h.respondCouponError(w, err, "get coupon logs")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, logs)
}

// Validate lets a user check a coupon code before checkout
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ValidateCouponRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coupon, err := h.coupons.Validate(r.Context(), req.Code, userID, time.Now())
	if err != nil {
		h.respondCouponError(w, err, "validate coupon")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]any{
		"code":   coupon.Code,
		"amount": coupon.Amount,
		"type":   coupon.Type,
	})
}
