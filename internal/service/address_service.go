package service

import (
	"context"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// AddressInput carries the writable address fields
type AddressInput struct {
	Country      string
	City         string
	PostalCode   string
	BuildingNo   string
	FloorNo      string
	AddressLabel string
	IsDefault    bool
}

// AddressService manages a user's delivery addresses. Deletion is a soft
// mark so orders keep pointing at the address they shipped to.
type AddressService interface {
	Create(ctx context.Context, userID uuid.UUID, input AddressInput) (*domain.Address, error)
	Update(ctx context.Context, userID, addressID uuid.UUID, input AddressInput) (*domain.Address, error)
	Delete(ctx context.Context, userID, addressID uuid.UUID) error
	Get(ctx context.Context, userID, addressID uuid.UUID) (*domain.Address, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Address, error)
}

type addressService struct {
	addresses repository.AddressRepository
}

// NewAddressService creates a new instance of AddressService
func NewAddressService(addresses repository.AddressRepository) AddressService {
	return &addressService{addresses: addresses}
}

// Create stores a new address. A user's first address becomes the default.
func (s *addressService) Create(ctx context.Context, userID uuid.UUID, input AddressInput) (*domain.Address, error) {
	existing, err := s.addresses.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	address := &domain.Address{
		ID:           uuid.New(),
		UserID:       userID,
		Country:      input.Country,
		City:         input.City,
		PostalCode:   input.PostalCode,
		BuildingNo:   input.BuildingNo,
		FloorNo:      input.FloorNo,
		AddressLabel: input.AddressLabel,
		IsDefault:    input.IsDefault || len(existing) == 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.addresses.Create(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

// Update edits one of the user's addresses
func (s *addressService) Update(ctx context.Context, userID, addressID uuid.UUID, input AddressInput) (*domain.Address, error) {
	address, err := s.addresses.FindByID(ctx, userID, addressID)
	if err != nil {
		return nil, err
	}

	address.Country = input.Country
	address.City = input.City
	address.PostalCode = input.PostalCode
	address.BuildingNo = input.BuildingNo
	address.FloorNo = input.FloorNo
	address.AddressLabel = input.AddressLabel
	address.IsDefault = input.IsDefault
	address.UpdatedAt = time.Now()

	if err := s.addresses.Update(ctx, address); err != nil {
		return nil, err
	}
	return address, nil
}

// Delete marks the address as old without removing the row
func (s *addressService) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	return s.addresses.MarkAsOld(ctx, userID, addressID)
}

func (s *addressService) Get(ctx context.Context, userID, addressID uuid.UUID) (*domain.Address, error) {
	return s.addresses.FindByID(ctx, userID, addressID)
}

func (s *addressService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Address, error) {
	return s.addresses.ListForUser(ctx, userID)
}
