package transport

import (
	"errors"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AddressHandler handles HTTP requests for delivery addresses
type AddressHandler struct {
	addresses service.AddressService
	logger    *zap.Logger
}

// NewAddressHandler creates a new AddressHandler
func NewAddressHandler(addresses service.AddressService, logger *zap.Logger) *AddressHandler {
	return &AddressHandler{addresses: addresses, logger: logger}
}

// AddressRequest is the create/update payload
type AddressRequest struct {
	Country      string `json:"country" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postal_code" validate:"required"`
	BuildingNo   string `json:"building_no" validate:"required"`
	FloorNo      string `json:"floor_no"`
	AddressLabel string `json:"address_label"`
	IsDefault    bool   `json:"is_default"`
}

// RegisterRoutes registers address routes, all behind authentication
func (h *AddressHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/addresses", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AddressRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	address, err := h.addresses.Create(r.Context(), userID, service.AddressInput{
		Country:      req.Country,
		City:         req.City,
		PostalCode:   req.PostalCode,
		BuildingNo:   req.BuildingNo,
		FloorNo:      req.FloorNo,
		AddressLabel: req.AddressLabel,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		h.logger.Error("Failed to create address", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create address")
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, address)
}

func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	addresses, err := h.addresses.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list addresses", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list addresses")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, addresses)
}

func (h *AddressHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	addressID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	address, err := h.addresses.Get(r.Context(), userID, addressID)
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "address not found")
			return
		}
		h.logger.Error("Failed to get address", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get address")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, address)
}

func (h *AddressHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	addressID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	var req AddressRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	address, err := h.addresses.Update(r.Context(), userID, addressID, service.AddressInput{
		Country:      req.Country,
		City:         req.City,
		PostalCode:   req.PostalCode,
		BuildingNo:   req.BuildingNo,
		FloorNo:      req.FloorNo,
		AddressLabel: req.AddressLabel,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "address not found")
			return
		}
		h.logger.Error("Failed to update address", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update address")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, address)
}

func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	addressID, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	if err := h.addresses.Delete(r.Context(), userID, addressID); err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "address not found")
			return
		}
		h.logger.Error("Failed to delete address", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete address")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "address deleted"})
}
