package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/security"
)

type authService struct {
	userRepo repository.UserRepository
	tokens   security.TokenManager
	denylist security.Denylist
	now      func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, tokens security.TokenManager, denylist security.Denylist) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		denylist: denylist,
		now:      time.Now,
	}
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	logger.EnterMethod("authService.Register", "email", req.Email, "role", req.Role)

	if req.Role == "" {
		req.Role = domain.RoleCustomer
	}
	if req.Role != domain.RoleCustomer && req.Role != domain.RoleProvider {
		err := domain.ErrInvalidRole.WithMessage("role must be customer or provider")
		logger.ExitMethodWithError("authService.Register", err, true, "role", req.Role)
		return nil, err
	}

	user, err := s.createUser(ctx, req)
	if err != nil {
		logger.ExitMethodWithError("authService.Register", err, isExpected(err), "email", req.Email)
		return nil, err
	}

	res, err := s.issue(user)
	if err != nil {
		logger.ExitMethodWithError("authService.Register", err, false, "userID", user.ID)
		return nil, err
	}
	logger.ExitMethod("authService.Register", "userID", user.ID)
	return res, nil
}

func (s *authService) CreateUser(ctx context.Context, actorID int32, req RegisterRequest) (*domain.User, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionManageUsers); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = domain.RoleCustomer
	}
	if req.Role == domain.RoleAdmin {
		if err := authorize(actor, domain.ActionCreateAdmin); err != nil {
			return nil, err
		}
	}
	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("User created by admin", "adminID", actorID, "userID", user.ID, "role", user.Role)
	return user, nil
}

func (s *authService) createUser(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:     email,
		FirstName: domain.TitleCase(req.FirstName),
		LastName:  domain.TitleCase(req.LastName),
		Phone:     strings.TrimSpace(req.Phone),
		Role:      req.Role,
		IsActive:  true,
	}
	if user.FirstName == "" || user.LastName == "" {
		return nil, domain.NewValidationError("first_name and last_name are required")
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, storeErr(err, "user", email)
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	logger.EnterMethod("authService.Login", "email", email)

	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		logger.ExitMethodWithError("authService.Login", domain.ErrInvalidCredentials, true, "email", email)
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		logger.ExitMethodWithError("authService.Login", domain.ErrInvalidCredentials, true, "email", normalized)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		logger.ExitMethodWithError("authService.Login", err, false, "email", normalized)
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := security.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			logger.ExitMethodWithError("authService.Login", domain.ErrInvalidCredentials, true, "userID", user.ID)
			return nil, domain.ErrInvalidCredentials
		}
		logger.ExitMethodWithError("authService.Login", err, false, "userID", user.ID)
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !user.IsActive {
		logger.ExitMethodWithError("authService.Login", domain.ErrUserInactive, true, "userID", user.ID)
		return nil, domain.ErrUserInactive
	}

	now := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		logger.Warn("Failed to record last login", "userID", user.ID, "error", err)
	} else {
		user.LastLogin = &now
	}

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	logger.ExitMethod("authService.Login", "userID", user.ID)
	return res, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ValidateTokenType(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := loadActor(ctx, s.userRepo, claims.UserID)
	if err != nil {
		return nil, err
	}
	// the presented refresh token is single use: only the caller that revokes it wins
	consumed, err := s.denylist.Revoke(ctx, claims.ID, claims.Expiry())
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !consumed {
		return nil, domain.ErrInvalidToken
	}
	return s.issue(user)
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*security.UserClaims, error) {
	claims, err := s.tokens.ValidateTokenType(accessToken, security.TokenTypeAccess)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, raw := range []string{accessToken, refreshToken} {
		if raw == "" {
			continue
		}
		claims, err := s.tokens.ValidateToken(raw)
		if err != nil {
			// an expired or forged token needs no revocation
			continue
		}
		if _, err := s.denylist.Revoke(ctx, claims.ID, claims.Expiry()); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
		logger.Debug("Token revoked", "userID", claims.UserID, "type", claims.Type)
	}
	return nil
}

func (s *authService) ChangePassword(ctx context.Context, userID int32, current, next string) error {
	user, err := loadActor(ctx, s.userRepo, userID)
	if err != nil {
		return err
	}
	if err := security.CheckPassword(user.PasswordHash, current); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return domain.ErrWrongPassword
		}
		return fmt.Errorf("check password: %w", err)
	}
	return s.setPassword(ctx, userID, next)
}

func (s *authService) ResetPassword(ctx context.Context, actorID, userID int32, next string) error {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return err
	}
	if err := authorize(actor, domain.ActionResetPassword); err != nil {
		return err
	}
	if err := s.setPassword(ctx, userID, next); err != nil {
		return err
	}
	logger.Info("Password reset by admin", "adminID", actorID, "userID", userID)
	return nil
}

func (s *authService) setPassword(ctx context.Context, userID int32, password string) error {
	if err := domain.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return storeErr(s.userRepo.UpdatePassword(ctx, userID, hash), "user", userID)
}

func (s *authService) issue(user *domain.User) (*AuthResult, error) {
	access, err := s.tokens.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &AuthResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}
