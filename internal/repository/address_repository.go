package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var ErrAddressNotFound = errors.New("address not found")

// AddressRepository defines the interface for address data access. Writes that
// touch the default flag run in one transaction so exactly one address per
// user stays default.
type AddressRepository interface {
	Create(ctx context.Context, address *domain.Address) error
	Update(ctx context.Context, address *domain.Address) error
	MarkAsOld(ctx context.Context, userID, id uuid.UUID) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Address, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Address, error)
}

type addressRepository struct {
	db *sql.DB
}

// NewAddressRepository creates a new instance of AddressRepository
func NewAddressRepository(db *sql.DB) AddressRepository {
	return &addressRepository{db: db}
}

const addressColumns = `id, user_id, country, city, postal_code, building_no, floor_no, address_label, is_default, is_marked_as_old, created_at, updated_at`

func scanAddress(row interface{ Scan(...any) error }) (*domain.Address, error) {
	address := &domain.Address{}
	err := row.Scan(
		&address.ID,
		&address.UserID,
		&address.Country,
		&address.City,
		&address.PostalCode,
		&address.BuildingNo,
		&address.FloorNo,
		&address.AddressLabel,
		&address.IsDefault,
		&address.IsMarkedAsOld,
		&address.CreatedAt,
		&address.UpdatedAt,
	)
	return address, err
}

// Create inserts a new address, clearing the previous default when the new
// one is flagged default.
func (r *addressRepository) Create(ctx context.Context, address *domain.Address) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if address.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE addresses SET is_default = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND is_default = TRUE
		`, address.UserID); err != nil {
			return fmt.Errorf("failed to clear default address: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO addresses (`+addressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		address.ID,
		address.UserID,
		address.Country,
		address.City,
		address.PostalCode,
		address.BuildingNo,
		address.FloorNo,
		address.AddressLabel,
		address.IsDefault,
		address.IsMarkedAsOld,
		address.CreatedAt,
		address.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit address create: %w", err)
	}

	return nil
}

// Update edits an address the user owns
func (r *addressRepository) Update(ctx context.Context, address *domain.Address) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if address.IsDefault {
		if _, err := tx.ExecContext(ctx, `
			UPDATE addresses SET is_default = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND is_default = TRUE AND id <> $2
		`, address.UserID, address.ID); err != nil {
			return fmt.Errorf("failed to clear default address: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE addresses
		SET country = $3, city = $4, postal_code = $5, building_no = $6,
		    floor_no = $7, address_label = $8, is_default = $9, updated_at = $10
		WHERE id = $1 AND user_id = $2 AND is_marked_as_old = FALSE
	`,
		address.ID,
		address.UserID,
		address.Country,
		address.City,
		address.PostalCode,
		address.BuildingNo,
		address.FloorNo,
		address.AddressLabel,
		address.IsDefault,
		address.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAddressNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit address update: %w", err)
	}

	return nil
}

// MarkAsOld soft-deletes an address. Orders keep referencing it, so the row
// is never removed.
func (r *addressRepository) MarkAsOld(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE addresses
		SET is_marked_as_old = TRUE, is_default = FALSE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_marked_as_old = FALSE
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark address as old: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAddressNotFound
	}

	return nil
}

// FindByID retrieves one of the user's addresses by ID
func (r *addressRepository) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Address, error) {
	address, err := scanAddress(r.db.QueryRowContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to find address by ID: %w", err)
	}
	return address, nil
}

// ListForUser retrieves the user's active addresses, default first
func (r *addressRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Address, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+addressColumns+`
		FROM addresses
		WHERE user_id = $1 AND is_marked_as_old = FALSE
		ORDER BY is_default DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []*domain.Address{}
	for rows.Next() {
		address, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, address)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}

	return addresses, nil
}
