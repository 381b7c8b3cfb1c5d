package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/security"
	"scooter-share-pro/internal/service"
)

// The mocks embed the service interfaces so that only the methods a test
// exercises need an implementation.

type mockAuthService struct {
	service.AuthService
	mock.Mock
}

func (m *mockAuthService) Register(ctx context.Context, req service.RegisterRequest) (*service.AuthResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *mockAuthService) Authenticate(ctx context.Context, token string) (*security.UserClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*security.UserClaims), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return m.Called(ctx, accessToken, refreshToken).Error(0)
}

type mockUserService struct {
	service.UserService
	mock.Mock
}

func (m *mockUserService) GetProfile(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	args := m.Called(ctx, actorID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserService) PromoteToProvider(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	args := m.Called(ctx, actorID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockScooterService struct {
	service.ScooterService
	mock.Mock
}

func (m *mockScooterService) Get(ctx context.Context, id int32) (*domain.Scooter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Scooter), args.Error(1)
}

func (m *mockScooterService) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]service.NearbyScooter, error) {
	args := m.Called(ctx, lat, lon, radiusKm, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.NearbyScooter), args.Error(1)
}

func (m *mockScooterService) SetStatus(ctx context.Context, actorID, id int32, status domain.ScooterStatus) (*domain.Scooter, error) {
	args := m.Called(ctx, actorID, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Scooter), args.Error(1)
}

func (m *mockScooterService) QRImage(ctx context.Context, id int32, size int) ([]byte, error) {
	args := m.Called(ctx, id, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockRentalService struct {
	service.RentalService
	mock.Mock
}

func (m *mockRentalService) Start(ctx context.Context, actorID int32, req service.StartRentalRequest) (*domain.Rental, error) {
	args := m.Called(ctx, actorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *mockRentalService) End(ctx context.Context, actorID, rentalID int32, endLat, endLon *float64) (*domain.Rental, error) {
	args := m.Called(ctx, actorID, rentalID, endLat, endLon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *mockRentalService) Get(ctx context.Context, actorID, rentalID int32) (*domain.Rental, error) {
	args := m.Called(ctx, actorID, rentalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *mockRentalService) List(ctx context.Context, actorID int32, filter repository.RentalFilter) ([]domain.Rental, int32, error) {
	args := m.Called(ctx, actorID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Rental), args.Get(1).(int32), args.Error(2)
}

func (m *mockRentalService) Active(ctx context.Context, actorID int32) (*domain.Rental, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

type mockPaymentService struct {
	service.PaymentService
	mock.Mock
}

func (m *mockPaymentService) Refund(ctx context.Context, actorID, paymentID int32, amount *decimal.Decimal, reason string) (*domain.Payment, error) {
	args := m.Called(ctx, actorID, paymentID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

type testAPI struct {
	router   *mux.Router
	auth     *mockAuthService
	users    *mockUserService
	scooters *mockScooterService
	rentals  *mockRentalService
	payments *mockPaymentService
}

// newTestAPI wires the router to fresh mocks. Tokens of the form
// "<role>-<id>" authenticate as that user.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{
		router:   mux.NewRouter(),
		auth:     new(mockAuthService),
		users:    new(mockUserService),
		scooters: new(mockScooterService),
		rentals:  new(mockRentalService),
		payments: new(mockPaymentService),
	}
	for token, claims := range map[string]*security.UserClaims{
		"admin-1":    {UserID: 1, Role: string(domain.RoleAdmin), Type: security.TokenTypeAccess},
		"provider-2": {UserID: 2, Role: string(domain.RoleProvider), Type: security.TokenTypeAccess},
		"customer-7": {UserID: 7, Role: string(domain.RoleCustomer), Type: security.TokenTypeAccess},
	} {
		api.auth.On("Authenticate", mock.Anything, token).Return(claims, nil).Maybe()
	}
	api.auth.On("Authenticate", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidToken).Maybe()

	RegisterRoutes(api.router, Services{
		Auth:    api.auth,
		User:    api.users,
		Scooter: api.scooters,
		Rental:  api.rentals,
		Payment: api.payments,
	})
	return api
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
