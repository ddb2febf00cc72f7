package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// Mock repositories for testing
type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	for _, user := range m.users {
		if user.ID == id {
			user.IsEmailVerified = true
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockUserRepository) SetOTP(ctx context.Context, id uuid.UUID, otpHash string, expiresAt time.Time) error {
	for _, user := range m.users {
		if user.ID == id {
			user.OTPHash = otpHash
			user.OTPExpiresAt = &expiresAt
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockUserRepository) ClearOTP(ctx context.Context, id uuid.UUID) error {
	for _, user := range m.users {
		if user.ID == id {
			user.OTPHash = ""
			user.OTPExpiresAt = nil
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	for _, user := range m.users {
		if user.ID == id {
			user.PasswordHash = passwordHash
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	for email, existing := range m.users {
		if existing.ID == user.ID {
			if email != user.Email {
				delete(m.users, email)
			}
			m.users[user.Email] = user
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *mockUserRepository) SetDeactivated(ctx context.Context, id uuid.UUID, deactivated bool) error {
	for _, user := range m.users {
		if user.ID == id {
			user.IsDeactivated = deactivated
			return nil
		}
	}
	return repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

// discardMailer satisfies the mailer interface without sending anything
type discardMailer struct{}

func (discardMailer) SendVerificationEmail(string, string) error { return nil }
func (discardMailer) SendPasswordResetOTP(string, string) error  { return nil }
func (discardMailer) SendOrderConfirmation(string, string, float64, []byte) error {
	return nil
}
func (discardMailer) SendCouponNotification(string, string, float64, string) error {
	return nil
}

func newTestUserHandler() *UserHandler {
	userRepo := newMockUserRepository()
	refreshTokenRepo := newMockRefreshTokenRepository()
	userService := service.NewUserService(
		userRepo, refreshTokenRepo, discardMailer{},
		"test-secret", "https://shop.example.com/verify", zap.NewNop(),
	)
	return NewUserHandler(userService, zap.NewNop())
}

func TestProperty_InvalidRegistrationDataIsRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration with invalid data returns validation errors", prop.ForAll(
		func(invalidCase int) bool {
			handler := newTestUserHandler()

			var reqBody RegisterRequest

			switch invalidCase % 4 {
			case 0:
				// Empty email
				reqBody = RegisterRequest{
					Email:     "",
					Password:  "ValidPass123",
					FirstName: "John",
					LastName:  "Doe",
				}
			case 1:
				// Invalid email format
				reqBody = RegisterRequest{
					Email:     "not-an-email",
					Password:  "ValidPass123",
					FirstName: "John",
					LastName:  "Doe",
				}
			case 2:
				// Password too short
				reqBody = RegisterRequest{
					Email:     "user@example.com",
					Password:  "short",
					FirstName: "John",
					LastName:  "Doe",
				}
			case 3:
				// Missing first name
				reqBody = RegisterRequest{
					Email:     "user@example.com",
					Password:  "ValidPass123",
					FirstName: "",
					LastName:  "Doe",
				}
			}

			body, _ := json.Marshal(reqBody)
			req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Logf("FAIL: case %d expected 400, got %d", invalidCase%4, rec.Code)
				return false
			}
			return true
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_RegisteredAccountsNeedVerificationBeforeLogin(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("login before verification returns 403, never a token", prop.ForAll(
		func(localPart string) bool {
			handler := newTestUserHandler()
			email := localPart + "@example.com"

			body, _ := json.Marshal(RegisterRequest{
				Email:     email,
				Password:  "ValidPass123",
				FirstName: "Jane",
				LastName:  "Doe",
			})
			req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			handler.Register(rec, req)
			if rec.Code != http.StatusCreated {
				t.Logf("FAIL: registration of %s returned %d", email, rec.Code)
				return false
			}

			body, _ = json.Marshal(LoginRequest{Email: email, Password: "ValidPass123"})
			req = httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec = httptest.NewRecorder()
			handler.Login(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Logf("FAIL: unverified login of %s returned %d, want 403", email, rec.Code)
				return false
			}
			return true
		},
		gen.RegexMatch(`[a-z]{3,12}`),
	))

	properties.TestingRun(t)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	handler := newTestUserHandler()

	register := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(RegisterRequest{
			Email:     "dup@example.com",
			Password:  "ValidPass123",
			FirstName: "Jane",
			LastName:  "Doe",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Register(rec, req)
		return rec
	}

	if rec := register(); rec.Code != http.StatusCreated {
		t.Fatalf("first registration returned %d, want 201", rec.Code)
	}
	if rec := register(); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate registration returned %d, want 409", rec.Code)
	}
}
