package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ReviewHandler handles HTTP requests for product reviews
type ReviewHandler struct {
	reviews service.ReviewService
	logger  *zap.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviews service.ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// ReviewRequest is the create/update payload
type ReviewRequest struct {
	Rate int    `json:"rate" validate:"required,gte=1,lte=5"`
	Body string `json:"body" validate:"max=2000"`
}

// ModerateReviewRequest accepts or rejects a pending review
type ModerateReviewRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

// RegisterRoutes registers review routes. Listing is public, writing requires
// a delivered purchase, moderation is admin-only.
func (h *ReviewHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Get("/api/products/{id}/reviews", h.ListForProduct)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/api/products/{id}/reviews", h.Create)
		r.Put("/api/reviews/{id}", h.Update)
		r.Delete("/api/reviews/{id}", h.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware, adminMiddleware)
		r.Put("/api/reviews/{id}/status", h.Moderate)
		r.Get("/api/products/{id}/reviews/all", h.ListAllForProduct)
	})
}

func (h *ReviewHandler) respondReviewError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, service.ErrInvalidRating):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrReviewNotEligible):
		middleware.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrReviewNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "review not found")
	case errors.Is(err, repository.ErrReviewAlreadyExists):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	default:
		h.logger.Error("Review operation failed", zap.String("action", action), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	productID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req ReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	review, err := h.reviews.Create(r.Context(), userID, productID, req.Rate, req.Body)
	if err != nil {
		h.respondReviewError(w, err, "create review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, review)
}

func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reviewID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var req ReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	review, err := h.reviews.Update(r.Context(), userID, reviewID, req.Rate, req.Body)
	if err != nil {
		h.respondReviewError(w, err, "update review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, review)
}

func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reviewID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	if err := h.reviews.Delete(r.Context(), userID, reviewID); err != nil {
		h.respondReviewError(w, err, "delete review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "review deleted"})
}

func (h *ReviewHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	reviewID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var req ModerateReviewRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.reviews.Moderate(r.Context(), reviewID, domain.ReviewStatus(req.Status)); err != nil {
		h.respondReviewError(w, err, "moderate review")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "review " + req.Status})
}

// ListForProduct returns the accepted reviews of a product
func (h *ReviewHandler) ListForProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	reviews, err := h.reviews.ListForProduct(r.Context(), productID, true)
	if err != nil {
		h.respondReviewError(w, err, "list reviews")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, reviews)
}

// ListAllForProduct includes pending and rejected reviews, for moderation
func (h *ReviewHandler) ListAllForProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	reviews, err := h.reviews.ListForProduct(r.Context(), productID, false)
	if err != nil {
		h.respondReviewError(w, err, "list reviews")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, reviews)
}
