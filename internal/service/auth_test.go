package service

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/security"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func newAuthService(userRepo *MockUserRepo) (*authService, security.TokenManager) {
	tokens := security.NewTokenManager(testSecret, time.Hour, 24*time.Hour)
	svc := NewAuthService(userRepo, tokens, security.NewMemoryDenylist()).(*authService)
	return svc, tokens
}

func hashed(t *testing.T, user *domain.User, password string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	user.PasswordHash = hash
	return user
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, tokens := newAuthService(userRepo)

		userRepo.On("GetByEmail", ctx, "jane@example.com").Return(nil, sql.ErrNoRows)
		userRepo.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
			return u.Email == "jane@example.com" && u.Role == domain.RoleCustomer &&
				u.FirstName == "Jane" && u.LastName == "Doe" && u.IsActive && u.PasswordHash != ""
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.User).ID = 5
		}).Return(nil)

		res, err := svc.Register(ctx, RegisterRequest{
			Email:     "  Jane@Example.com ",
			Password:  "password123",
			FirstName: "jane",
			LastName:  "doe",
		})
		require.NoError(t, err)
		assert.Equal(t, int32(5), res.User.ID)

		claims, err := tokens.ValidateTokenType(res.AccessToken, security.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, int32(5), claims.UserID)
		assert.Equal(t, "customer", claims.Role)

		_, err = tokens.ValidateTokenType(res.RefreshToken, security.TokenTypeRefresh)
		assert.NoError(t, err)
		userRepo.AssertExpectations(t)
	})

	t.Run("AdminRoleRejected", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)

		_, err := svc.Register(ctx, RegisterRequest{
			Email: "root@example.com", Password: "password123", FirstName: "Root", LastName: "User", Role: domain.RoleAdmin,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRole)
		userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)

		_, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: "short", FirstName: "A", LastName: "B"})
		assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
	})

	t.Run("PasswordBeyondBcryptLimit", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)

		_, err := svc.Register(ctx, RegisterRequest{Email: "a@example.com", Password: strings.Repeat("a", 80), FirstName: "A", LastName: "B"})
		assert.ErrorIs(t, err, domain.ErrPasswordTooLong)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
		userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("EmailTaken", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)
		userRepo.On("GetByEmail", ctx, "jane@example.com").Return(testUser(9, domain.RoleCustomer), nil)

		_, err := svc.Register(ctx, RegisterRequest{Email: "jane@example.com", Password: "password123", FirstName: "Jane", LastName: "Doe"})
		assert.ErrorIs(t, err, domain.ErrEmailTaken)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)
		svc.now = fixedClock(now)

		user := hashed(t, testUser(3, domain.RoleProvider), "password123")
		userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)
		userRepo.On("TouchLastLogin", ctx, int32(3), now).Return(nil)

		res, err := svc.Login(ctx, user.Email, "password123")
		require.NoError(t, err)
		require.NotNil(t, res.User.LastLogin)
		assert.Equal(t, now, *res.User.LastLogin)
		assert.NotEmpty(t, res.AccessToken)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)

		user := hashed(t, testUser(3, domain.RoleCustomer), "password123")
		userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

		_, err := svc.Login(ctx, user.Email, "not-the-password")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		userRepo.AssertNotCalled(t, "TouchLastLogin", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)
		userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, sql.ErrNoRows)

		_, err := svc.Login(ctx, "ghost@example.com", "password123")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("Deactivated", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc, _ := newAuthService(userRepo)

		user := hashed(t, testUser(3, domain.RoleCustomer), "password123")
		user.IsActive = false
		userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

		_, err := svc.Login(ctx, user.Email, "password123")
		assert.ErrorIs(t, err, domain.ErrUserInactive)
		assert.True(t, domain.IsKind(err, domain.KindUnauthenticated))
	})
}

func TestAuthService_RefreshRotation(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepo)
	svc, tokens := newAuthService(userRepo)

	user := testUser(4, domain.RoleCustomer)
	userRepo.On("GetByID", ctx, int32(4)).Return(user, nil)

	refresh, err := tokens.GenerateRefreshToken(user.ID, user.Email)
	require.NoError(t, err)

	res, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, res.RefreshToken)

	_, err = svc.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Refresh(ctx, res.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken, "access tokens cannot refresh")
}

func TestAuthService_RefreshConcurrentReuse(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepo)
	svc, tokens := newAuthService(userRepo)

	user := testUser(4, domain.RoleCustomer)
	userRepo.On("GetByID", ctx, int32(4)).Return(user, nil)

	refresh, err := tokens.GenerateRefreshToken(user.ID, user.Email)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, refresh)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	}
	assert.Equal(t, 1, succeeded, "a refresh token yields exactly one new pair")
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepo)
	svc, tokens := newAuthService(userRepo)

	access, err := tokens.GenerateAccessToken(4, "rider@example.com", "customer")
	require.NoError(t, err)
	refresh, err := tokens.GenerateRefreshToken(4, "rider@example.com")
	require.NoError(t, err)

	claims, err := svc.Authenticate(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, int32(4), claims.UserID)

	require.NoError(t, svc.Logout(ctx, access, refresh))

	_, err = svc.Authenticate(ctx, access)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = svc.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	assert.NoError(t, svc.Logout(ctx, "garbage", ""), "invalid tokens are ignored")
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepo)
	svc, _ := newAuthService(userRepo)

	user := hashed(t, testUser(6, domain.RoleCustomer), "password123")
	userRepo.On("GetByID", ctx, int32(6)).Return(user, nil)
	userRepo.On("UpdatePassword", ctx, int32(6), mock.MatchedBy(func(hash string) bool {
		return security.CheckPassword(hash, "newpassword1") == nil
	})).Return(nil)

	assert.ErrorIs(t, svc.ChangePassword(ctx, 6, "wrong-password", "newpassword1"), domain.ErrWrongPassword)
	assert.ErrorIs(t, svc.ChangePassword(ctx, 6, "password123", "short"), domain.ErrPasswordTooShort)
	assert.ErrorIs(t, svc.ChangePassword(ctx, 6, "password123", strings.Repeat("x", 73)), domain.ErrPasswordTooLong)
	assert.NoError(t, svc.ChangePassword(ctx, 6, "password123", "newpassword1"))
	userRepo.AssertNumberOfCalls(t, "UpdatePassword", 1)
}

func TestAuthService_ResetPasswordRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepo)
	svc, _ := newAuthService(userRepo)

	userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
	userRepo.On("GetByID", ctx, int32(1)).Return(testUser(1, domain.RoleAdmin), nil)
	userRepo.On("UpdatePassword", ctx, int32(7), mock.AnythingOfType("string")).Return(nil)

	err := svc.ResetPassword(ctx, 2, 7, "newpassword1")
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	assert.NoError(t, svc.ResetPassword(ctx, 1, 7, "newpassword1"))
}
