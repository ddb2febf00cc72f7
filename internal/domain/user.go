package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a customer or admin account
type User struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Email           string     `json:"email" db:"email"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	FirstName       string     `json:"first_name" db:"first_name"`
	LastName        string     `json:"last_name" db:"last_name"`
	Role            string     `json:"role" db:"role"`
	IsEmailVerified bool       `json:"is_email_verified" db:"is_email_verified"`
	IsDeactivated   bool       `json:"is_deactivated" db:"is_deactivated"`
	OTPHash         string     `json:"-" db:"otp_hash"`
	OTPExpiresAt    *time.Time `json:"-" db:"otp_expires_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// RefreshToken is a long-lived credential backing the JWT refresh flow
type RefreshToken struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"token" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}

// Address is a saved shipping destination owned by a user
type Address struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Country       string    `json:"country" db:"country"`
	City          string    `json:"city" db:"city"`
	PostalCode    string    `json:"postal_code" db:"postal_code"`
	BuildingNo    string    `json:"building_no" db:"building_no"`
	FloorNo       string    `json:"floor_no" db:"floor_no"`
	AddressLabel  string    `json:"address_label" db:"address_label"`
	IsDefault     bool      `json:"is_default" db:"is_default"`
	IsMarkedAsOld bool      `json:"is_marked_as_old" db:"is_marked_as_old"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
