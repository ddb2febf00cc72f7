package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(users *mockUserRepository, tokens *mockRefreshTokenRepository, mail *mockMailer) UserService {
	return NewUserService(users, tokens, mail, "test-secret", "https://shop.example.com/verify", zap.NewNop())
}

// registerVerified creates an account and completes the email round
func registerVerified(t *testing.T, service UserService, mail *mockMailer, email, password string) *domain.User {
	t.Helper()
	ctx := context.Background()

	user, err := service.Register(ctx, email, password, "Test", "User")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	link := mail.lastVerifyLink()
	if link == "" {
		t.Fatal("verification email never sent")
	}
	token := link[strings.Index(link, "?token=")+len("?token="):]
	if err := service.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	return user
}

func TestProperty_RegistrationCreatesHashedPasswords(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("passwords are hashed with bcrypt and not stored as plaintext", prop.ForAll(
		func(email string, password string, firstName string, lastName string) bool {
			service := newTestUserService(newMockUserRepository(), newMockRefreshTokenRepository(), &mockMailer{})
			ctx := context.Background()

			user, err := service.Register(ctx, email, password, firstName, lastName)
			if err != nil {
				// If registration fails, skip this test case
				return true
			}

			if user.PasswordHash == password {
				t.Logf("FAIL: Password stored as plaintext for email %s", email)
				return false
			}

			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				t.Logf("FAIL: Password hash is not a valid bcrypt hash or doesn't match: %v", err)
				return false
			}
			return true
		},
		gen.RegexMatch(`[a-z]{3,10}@example\.com`),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) >= 8 }),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	service := newTestUserService(users, newMockRefreshTokenRepository(), mail)
	ctx := context.Background()

	if _, err := service.Register(ctx, "new@example.com", "password123", "New", "User"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, _, _, err := service.Login(ctx, "new@example.com", "password123")
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	link := mail.lastVerifyLink()
	token := link[strings.Index(link, "?token=")+len("?token="):]
	if err := service.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	access, refresh, user, err := service.Login(ctx, "new@example.com", "password123")
	if err != nil {
		t.Fatalf("login after verification failed: %v", err)
	}
	if access == "" || refresh == "" {
		t.Error("expected both tokens")
	}
	if !user.IsEmailVerified {
		t.Error("user should be marked verified")
	}
}

func TestVerifyEmailRejectsAccessToken(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	service := newTestUserService(users, newMockRefreshTokenRepository(), mail)
	ctx := context.Background()

	registerVerified(t, service, mail, "holder@example.com", "password123")
	access, _, _, err := service.Login(ctx, "holder@example.com", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// An ordinary access token must not pass as a verification token
	if err := service.VerifyEmail(ctx, access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	service := newTestUserService(users, newMockRefreshTokenRepository(), mail)

	registerVerified(t, service, mail, "wrong@example.com", "password123")

	_, _, _, err := service.Login(context.Background(), "wrong@example.com", "nope")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordRotatesCredentialAndSessions(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	tokens := newMockRefreshTokenRepository()
	service := newTestUserService(users, tokens, mail)
	ctx := context.Background()

	user := registerVerified(t, service, mail, "rotate@example.com", "password123")
	_, refreshToken, _, err := service.Login(ctx, "rotate@example.com", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := service.ChangePassword(ctx, user.ID, "nope", "newpassword456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong current password, got %v", err)
	}
	if err := service.ChangePassword(ctx, user.ID, "password123", "newpassword456"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, _, _, err := service.Login(ctx, "rotate@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, _, err := service.Login(ctx, "rotate@example.com", "newpassword456"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if _, err := service.RefreshToken(ctx, refreshToken); err == nil {
		t.Fatal("refresh token survived password change")
	}
}

func TestDeactivatedAccountIsLockedOut(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	tokens := newMockRefreshTokenRepository()
	service := newTestUserService(users, tokens, mail)
	ctx := context.Background()

	user := registerVerified(t, service, mail, "gone@example.com", "password123")
	_, refresh, _, err := service.Login(ctx, "gone@example.com", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := service.Deactivate(ctx, user.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	if _, _, _, err := service.Login(ctx, "gone@example.com", "password123"); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated on login, got %v", err)
	}
	if _, err := service.RefreshToken(ctx, refresh); err == nil {
		t.Error("refresh must fail for a deactivated account")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	tokens := newMockRefreshTokenRepository()
	service := newTestUserService(users, tokens, mail)
	ctx := context.Background()

	registerVerified(t, service, mail, "reset@example.com", "oldpassword")
	_, refresh, _, err := service.Login(ctx, "reset@example.com", "oldpassword")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := service.ForgotPassword(ctx, "reset@example.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	code := mail.lastOTP()
	if len(code) != 6 {
		t.Fatalf("expected a 6-digit code, got %q", code)
	}

	if err := service.ResetPassword(ctx, "reset@example.com", "000000", "newpassword"); !errors.Is(err, ErrInvalidOTP) {
		// Vanishingly unlikely collision with the real code
		t.Fatalf("expected ErrInvalidOTP for wrong code, got %v", err)
	}

	if err := service.ResetPassword(ctx, "reset@example.com", code, "newpassword"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// Old password out, new one in, sessions revoked, code single-use
	if _, _, _, err := service.Login(ctx, "reset@example.com", "oldpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password must stop working, got %v", err)
	}
	if _, _, _, err := service.Login(ctx, "reset@example.com", "newpassword"); err != nil {
		t.Errorf("new password must work, got %v", err)
	}
	if _, err := service.RefreshToken(ctx, refresh); err == nil {
		t.Error("existing sessions must be revoked by a password reset")
	}
	if err := service.ResetPassword(ctx, "reset@example.com", code, "again"); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("code must be single-use, got %v", err)
	}
}

func TestForgotPasswordHidesAccountExistence(t *testing.T) {
	service := newTestUserService(newMockUserRepository(), newMockRefreshTokenRepository(), &mockMailer{})

	if err := service.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown emails must not error, got %v", err)
	}
}

func TestResetPasswordRejectsExpiredCode(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	service := newTestUserService(users, newMockRefreshTokenRepository(), mail)
	ctx := context.Background()

	user := registerVerified(t, service, mail, "late@example.com", "password123")

	if err := service.ForgotPassword(ctx, "late@example.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	code := mail.lastOTP()

	// Age the code past its expiry
	expired := time.Now().Add(-time.Minute)
	stored, _ := users.FindByID(ctx, user.ID)
	stored.OTPExpiresAt = &expired

	if err := service.ResetPassword(ctx, "late@example.com", code, "newpassword"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for expired code, got %v", err)
	}
}

func TestUpdateProfileEmailChangeRequiresReverification(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	service := newTestUserService(users, newMockRefreshTokenRepository(), mail)
	ctx := context.Background()

	user := registerVerified(t, service, mail, "before@example.com", "password123")

	updated, err := service.UpdateProfile(ctx, user.ID, "after@example.com", "", "")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.IsEmailVerified {
		t.Error("email change must drop the verified flag")
	}

	if _, _, _, err := service.Login(ctx, "after@example.com", "password123"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified after email change, got %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	users := newMockUserRepository()
	mail := &mockMailer{}
	service := newTestUserService(users, newMockRefreshTokenRepository(), mail)
	ctx := context.Background()

	registerVerified(t, service, mail, "bye@example.com", "password123")
	_, refresh, _, err := service.Login(ctx, "bye@example.com", "password123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := service.RefreshToken(ctx, refresh); err != nil {
		t.Fatalf("refresh before logout failed: %v", err)
	}
	if err := service.Logout(ctx, refresh); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := service.RefreshToken(ctx, refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
	// Logging out twice is fine
	if err := service.Logout(ctx, refresh); err != nil {
		t.Fatalf("repeated logout should be a no-op, got %v", err)
	}
}
