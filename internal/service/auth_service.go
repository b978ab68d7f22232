package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/config"
	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/events"
	"github.com/fixmyward/ward-service/internal/repository"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

const minUsernameLength = 3

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	dispatcher events.Dispatcher
	logger     *zap.Logger

	resetURLBase string
	resetTTL     time.Duration
	now          func() time.Time
}

// AuthDependencies encapsulates requirements for auth service.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	ResetRepo    repository.PasswordResetRepository
	TokenManager *auth.TokenManager
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// SignupInput describes a new account.
type SignupInput struct {
	Username string
	Email    string
	Name     string
	Password string
	Role     string
	Ward     string
}

// AuthResult is an authenticated user with a fresh bearer token.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	tokens := deps.TokenManager
	if tokens == nil {
		tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:        deps.UserRepo,
		resets:       deps.ResetRepo,
		tokenMgr:     tokens,
		bcryptCost:   cfg.Auth.BcryptCost,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		resetURLBase: cfg.Auth.ResetURLBase,
		resetTTL:     cfg.Auth.ResetTokenTTL(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Signup creates an account and signs the caller in.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	user, err := normalizeSignup(in)
	if err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, user); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash

	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("user already exists", nil)
		}
		return nil, apperrors.MapError(err)
	}

	return s.issue(user)
}

// Login authenticates a user for the role they claim to be signing in as.
func (s *AuthService) Login(ctx context.Context, username, password, role string) (*AuthResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" || strings.TrimSpace(role) == "" {
		return nil, apperrors.NewValidationError("username, password, and role are required", nil)
	}
	wantRole, ok := domain.ParseRole(role)
	if !ok {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if user.Role != wantRole {
		return nil, apperrors.NewUnauthorized(fmt.Sprintf("Account registered as %s", user.Role))
	}

	match, err := auth.PasswordMatches(user.PasswordHash, password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !match {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.New(events.EventUserLoggedIn, "", user.ID, events.UserLoggedInPayload{
			Email:    user.Email,
			Username: user.Username,
			Role:     user.Role,
		}))
	}
	return result, nil
}

// RequestPasswordReset issues a single-use reset link for the account behind
// email and publishes it for delivery. Unknown emails succeed silently so the
// endpoint cannot be used to discover accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return apperrors.NewValidationError("a valid email is required", map[string]any{"email": "invalid format"})
	}
	if s.resets == nil {
		return apperrors.NewUnavailable("password reset is not configured", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return apperrors.MapError(err)
	}

	reset := &repository.PasswordReset{
		UserID:    user.ID,
		Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return apperrors.MapError(err)
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.New(events.EventPasswordReset, "", user.ID, events.PasswordResetPayload{
			ResetLink: s.resetURLBase + reset.Token,
			ExpiresAt: reset.ExpiresAt,
		}))
	}
	return nil
}

// ResetPassword spends a reset token and replaces the account password.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.NewValidationError("reset token is required", nil)
	}
	if len(password) < auth.MinPasswordLength {
		return apperrors.NewValidationError("invalid password", map[string]any{
			"password": fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength),
		})
	}
	if s.resets == nil {
		return apperrors.NewUnavailable("password reset is not configured", nil)
	}

	reset, err := s.resets.Consume(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("reset link is invalid or has expired", nil)
		}
		return apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.users.UpdatePassword(ctx, reset.UserID, hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("reset link is invalid or has expired", nil)
		}
		return apperrors.MapError(err)
	}
	return nil
}

// Verify resolves a token to the identity it was issued for.
func (s *AuthService) Verify(token string) (*auth.Claims, error) {
	claims, err := s.tokenMgr.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	return claims, nil
}

// CurrentUser loads the account behind a principal.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) ensureAvailable(ctx context.Context, user *domain.User) error {
	if _, err := s.users.GetByUsername(ctx, user.Username); err == nil {
		return apperrors.NewConflict("user already exists", map[string]any{"field": "username"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}
	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return apperrors.NewConflict("user already exists", map[string]any{"field": "email"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: exp}, nil
}

func normalizeSignup(in SignupInput) (*domain.User, error) {
	user := &domain.User{
		Username: strings.ToLower(strings.TrimSpace(in.Username)),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Name:     strings.TrimSpace(in.Name),
		Ward:     strings.TrimSpace(in.Ward),
	}

	details := map[string]any{}
	if user.Username == "" || user.Email == "" || user.Name == "" || in.Password == "" || in.Role == "" || user.Ward == "" {
		return nil, apperrors.NewValidationError("all fields are required", nil)
	}
	if len(user.Username) < minUsernameLength {
		details["username"] = fmt.Sprintf("must be at least %d characters", minUsernameLength)
	}
	if !emailPattern.MatchString(user.Email) {
		details["email"] = "invalid format"
	}
	if len(in.Password) < auth.MinPasswordLength {
		details["password"] = fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength)
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		details["role"] = "must be CITIZEN or COUNCILLOR"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid signup", details)
	}
	user.Role = role
	return user, nil
}
