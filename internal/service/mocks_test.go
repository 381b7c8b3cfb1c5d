package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
)

// MockUserRepo
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
func (m *MockUserRepo) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
func (m *MockUserRepo) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
func (m *MockUserRepo) UpdatePassword(ctx context.Context, id int32, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}
func (m *MockUserRepo) TouchLastLogin(ctx context.Context, id int32, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}
func (m *MockUserRepo) Delete(ctx context.Context, id int32) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockUserRepo) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, int32, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.User), args.Get(1).(int32), args.Error(2)
}
func (m *MockUserRepo) Stats(ctx context.Context) (*domain.UserStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserStats), args.Error(1)
}

// MockScooterRepo
type MockScooterRepo struct {
	mock.Mock
}

func (m *MockScooterRepo) Create(ctx context.Context, scooter *domain.Scooter) error {
	args := m.Called(ctx, scooter)
	return args.Error(0)
}
func (m *MockScooterRepo) GetByID(ctx context.Context, id int32) (*domain.Scooter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Scooter), args.Error(1)
}
func (m *MockScooterRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.Scooter, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Scooter), args.Error(1)
}
func (m *MockScooterRepo) GetByQRCode(ctx context.Context, qrCode string) (*domain.Scooter, error) {
	args := m.Called(ctx, qrCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Scooter), args.Error(1)
}
func (m *MockScooterRepo) Update(ctx context.Context, scooter *domain.Scooter) error {
	args := m.Called(ctx, scooter)
	return args.Error(0)
}
func (m *MockScooterRepo) SetStatus(ctx context.Context, id int32, status domain.ScooterStatus, maintainedAt *time.Time) error {
	args := m.Called(ctx, id, status, maintainedAt)
	return args.Error(0)
}
func (m *MockScooterRepo) Delete(ctx context.Context, id int32) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockScooterRepo) List(ctx context.Context, filter repository.ScooterFilter) ([]domain.Scooter, int32, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Scooter), args.Get(1).(int32), args.Error(2)
}
func (m *MockScooterRepo) WithinBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]domain.Scooter, error) {
	args := m.Called(ctx, minLat, maxLat, minLon, maxLon)
	return args.Get(0).([]domain.Scooter), args.Error(1)
}
func (m *MockScooterRepo) CountByProvider(ctx context.Context, providerID int32) (int64, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockScooterRepo) Stats(ctx context.Context, id int32) (*domain.ScooterStats, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScooterStats), args.Error(1)
}
func (m *MockScooterRepo) ProviderStats(ctx context.Context, providerID int32) (*domain.ProviderStats, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderStats), args.Error(1)
}

// MockRentalRepo
type MockRentalRepo struct {
	mock.Mock
}

func (m *MockRentalRepo) Start(ctx context.Context, rental *domain.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}
func (m *MockRentalRepo) Finish(ctx context.Context, rental *domain.Rental) error {
	args := m.Called(ctx, rental)
	return args.Error(0)
}
func (m *MockRentalRepo) GetByID(ctx context.Context, id int32) (*domain.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) GetByCode(ctx context.Context, code string) (*domain.Rental, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) GetOpenByUser(ctx context.Context, userID int32) (*domain.Rental, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) UpdateRating(ctx context.Context, id int32, rating int32, feedback string) error {
	args := m.Called(ctx, id, rating, feedback)
	return args.Error(0)
}
func (m *MockRentalRepo) MarkOverdue(ctx context.Context, id int32) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
func (m *MockRentalRepo) ListOverdueCandidates(ctx context.Context, startedBefore time.Time) ([]domain.Rental, error) {
	args := m.Called(ctx, startedBefore)
	return args.Get(0).([]domain.Rental), args.Error(1)
}
func (m *MockRentalRepo) List(ctx context.Context, filter repository.RentalFilter) ([]domain.Rental, int32, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Rental), args.Get(1).(int32), args.Error(2)
}
func (m *MockRentalRepo) Statistics(ctx context.Context) (*domain.RentalStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RentalStatistics), args.Error(1)
}
func (m *MockRentalRepo) UserStatistics(ctx context.Context, userID int32) (*domain.UserRentalStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserRentalStats), args.Error(1)
}

// MockPaymentRepo
type MockPaymentRepo struct {
	mock.Mock
}

func (m *MockPaymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}
func (m *MockPaymentRepo) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) UpdateStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error {
	args := m.Called(ctx, payment, from)
	return args.Error(0)
}
func (m *MockPaymentRepo) ApplyRefund(ctx context.Context, payment *domain.Payment, refund decimal.Decimal) error {
	args := m.Called(ctx, payment, refund)
	return args.Error(0)
}
func (m *MockPaymentRepo) List(ctx context.Context, filter repository.PaymentFilter) ([]domain.Payment, int32, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Payment), args.Get(1).(int32), args.Error(2)
}
func (m *MockPaymentRepo) ListRefundable(ctx context.Context, userID int32, since time.Time) ([]domain.Payment, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).([]domain.Payment), args.Error(1)
}
func (m *MockPaymentRepo) SumPaidForRental(ctx context.Context, rentalID int32) (decimal.Decimal, error) {
	args := m.Called(ctx, rentalID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}
func (m *MockPaymentRepo) Statistics(ctx context.Context) (*domain.PaymentStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentStatistics), args.Error(1)
}
func (m *MockPaymentRepo) RevenueByMethod(ctx context.Context) (map[domain.PaymentMethod]decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[domain.PaymentMethod]decimal.Decimal), args.Error(1)
}

// MockNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRentalReceipt(ctx context.Context, user *domain.User, rental *domain.Rental, scooter *domain.Scooter) error {
	args := m.Called(ctx, user, rental, scooter)
	return args.Error(0)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testUser(id int32, role domain.Role) *domain.User {
	return &domain.User{
		ID:        id,
		Email:     fmt.Sprintf("user%d@example.com", id),
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		IsActive:  true,
	}
}
