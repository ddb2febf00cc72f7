package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"storefront/internal/domain"
	"storefront/internal/mailer"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	// Token expiration times
	AccessTokenExpiration       = 15 * time.Minute
	RefreshTokenExpiration      = 7 * 24 * time.Hour
	VerificationTokenExpiration = 24 * time.Hour
	OTPExpiration               = 10 * time.Minute

	otpDigits = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrInvalidOTP         = errors.New("invalid or expired reset code")
)

// UserService defines the interface for user business logic
type UserService interface {
	Register(ctx context.Context, email, password, firstName, lastName string) (*domain.User, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *domain.User, err error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (newAccessToken string, err error)
	ValidateToken(tokenString string) (*Claims, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, email, firstName, lastName string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, userID uuid.UUID) error
}

// Claims represents the JWT claims
type Claims struct {
	UserID  uuid.UUID `json:"user_id"`
	Role    string    `json:"role"`
	Purpose string    `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

const purposeVerifyEmail = "verify_email"

type userService struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	mail             mailer.Mailer
	jwtSecret        string
	verifyBaseURL    string
	logger           *zap.Logger
}

// NewUserService creates a new instance of UserService
func NewUserService(
	userRepo repository.UserRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	mail mailer.Mailer,
	jwtSecret string,
	verifyBaseURL string,
	logger *zap.Logger,
) UserService {
	return &userService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		mail:             mail,
		jwtSecret:        jwtSecret,
		verifyBaseURL:    verifyBaseURL,
		logger:           logger,
	}
}

// Register creates a new user account with hashed password and sends the
// verification link. The account stays unusable until the link is followed.
func (s *userService) Register(ctx context.Context, email, password, firstName, lastName string) (*domain.User, error) {
	existingUser, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && err != repository.ErrUserNotFound {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, repository.ErrUserAlreadyExists
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         "user",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.sendVerificationEmail(user)

	return user, nil
}

func (s *userService) sendVerificationEmail(user *domain.User) {
	token, err := s.generateVerificationToken(user)
	if err != nil {
		s.logger.Error("Failed to generate verification token",
			zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}

	link := s.verifyBaseURL + "?token=" + token
	go func() {
		if err := s.mail.SendVerificationEmail(user.Email, link); err != nil {
			s.logger.Error("Failed to send verification email",
				zap.String("user_id", user.ID.String()), zap.Error(err))
		}
	}()
}

// VerifyEmail consumes a verification token and activates the account
func (s *userService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.Purpose != purposeVerifyEmail {
		return ErrInvalidToken
	}

	if err := s.userRepo.MarkEmailVerified(ctx, claims.UserID); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

// Login authenticates a user and returns JWT tokens. Unverified and
// deactivated accounts are rejected before the tokens are minted.
func (s *userService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *domain.User, err error) {
	user, err = s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return "", "", nil, ErrInvalidCredentials
		}
		return "", "", nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		return "", "", nil, ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		return "", "", nil, ErrEmailNotVerified
	}
	if user.IsDeactivated {
		return "", "", nil, ErrAccountDeactivated
	}

	accessToken, err = s.generateAccessToken(user)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err = s.generateRefreshToken(ctx, user)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return accessToken, refreshToken, user, nil
}

// Logout invalidates the refresh token
func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.refreshTokenRepo.Revoke(ctx, refreshToken); err != nil {
		if err == repository.ErrRefreshTokenNotFound {
			// Token doesn't exist, consider it already logged out
			return nil
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RefreshToken generates a new access token using a valid refresh token
func (s *userService) RefreshToken(ctx context.Context, refreshTokenString string) (newAccessToken string, err error) {
	refreshToken, err := s.refreshTokenRepo.FindByToken(ctx, refreshTokenString)
	if err != nil {
		if err == repository.ErrRefreshTokenNotFound || err == repository.ErrRefreshTokenRevoked {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		return "", ErrTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, refreshToken.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user.IsDeactivated {
		return "", ErrAccountDeactivated
	}

	newAccessToken, err = s.generateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}

	return newAccessToken, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *userService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile edits the user's editable fields. Changing the email address
// drops the verified flag and triggers a fresh confirmation round.
func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, email, firstName, lastName string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	emailChanged := email != "" && email != user.Email
	if email != "" {
		user.Email = email
	}
	if firstName != "" {
		user.FirstName = firstName
	}
	if lastName != "" {
		user.LastName = lastName
	}
	if emailChanged {
		user.IsEmailVerified = false
	}
	user.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}

	if emailChanged {
		s.sendVerificationEmail(user)
	}

	return user, nil
}

// ForgotPassword issues a short-lived one-time code. Only its bcrypt hash is
// stored; the response does not reveal whether the email exists.
func (s *userService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}

	codeHash, err := s.hashPassword(code)
	if err != nil {
		return fmt.Errorf("failed to hash reset code: %w", err)
	}

	if err := s.userRepo.SetOTP(ctx, user.ID, codeHash, time.Now().Add(OTPExpiration)); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	go func() {
		if err := s.mail.SendPasswordResetOTP(user.Email, code); err != nil {
			s.logger.Error("Failed to send reset code",
				zap.String("user_id", user.ID.String()), zap.Error(err))
		}
	}()

	return nil
}

// ResetPassword consumes a valid one-time code, replaces the password and
// revokes every open session.
func (s *userService) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return ErrInvalidOTP
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	if user.OTPHash == "" || user.OTPExpiresAt == nil || time.Now().After(*user.OTPExpiresAt) {
		return ErrInvalidOTP
	}
	if err := s.verifyPassword(user.OTPHash, otp); err != nil {
		return ErrInvalidOTP
	}

	hashedPassword, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.userRepo.ClearOTP(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to clear reset code: %w", err)
	}
	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	return nil
}

// ChangePassword rotates the password of a logged-in user. Other sessions are
// revoked; the caller keeps their access token until it expires.
func (s *userService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, currentPassword); err != nil {
		return ErrInvalidCredentials
	}

	hashedPassword, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	return nil
}

// Deactivate soft-deletes the account and revokes every open session
func (s *userService) Deactivate(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.SetDeactivated(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

// hashPassword hashes a password using bcrypt
func (s *userService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// verifyPassword verifies a password against a bcrypt hash
func (s *userService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateAccessToken generates a JWT access token with user ID and role claims
func (s *userService) generateAccessToken(user *domain.User) (string, error) {
	expirationTime := time.Now().Add(AccessTokenExpiration)
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// generateVerificationToken mints the single-purpose token behind the email
// confirmation link
func (s *userService) generateVerificationToken(user *domain.User) (string, error) {
	claims := &Claims{
		UserID:  user.ID,
		Role:    user.Role,
		Purpose: purposeVerifyEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(VerificationTokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// generateRefreshToken generates a refresh token and stores it in the database
func (s *userService) generateRefreshToken(ctx context.Context, user *domain.User) (string, error) {
	tokenString := uuid.New().String()

	refreshToken := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     tokenString,
		ExpiresAt: time.Now().Add(RefreshTokenExpiration),
		CreatedAt: time.Now(),
		Revoked:   false,
	}

	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return "", err
	}

	return tokenString, nil
}

// generateOTP returns a random numeric code of otpDigits digits
func generateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
