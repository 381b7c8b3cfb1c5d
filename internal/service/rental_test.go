package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
)

var testPricing = domain.Pricing{
	BaseFee:        decimal.RequireFromString("1.00"),
	PerMinuteRate:  decimal.RequireFromString("0.25"),
	Currency:       "EUR",
	MaxRentalHours: 24,
}

type rentalDeps struct {
	rentals  *MockRentalRepo
	scooters *MockScooterRepo
	users    *MockUserRepo
	payments *MockPaymentRepo
	notifier *MockNotifier
}

func newRentalService(now time.Time) (*rentalService, rentalDeps) {
	deps := rentalDeps{
		rentals:  new(MockRentalRepo),
		scooters: new(MockScooterRepo),
		users:    new(MockUserRepo),
		payments: new(MockPaymentRepo),
		notifier: new(MockNotifier),
	}
	svc := NewRentalService(deps.rentals, deps.scooters, deps.users, deps.payments, testPricing, deps.notifier).(*rentalService)
	svc.now = fixedClock(now)
	return svc, deps
}

func activeRental(id, userID, scooterID int32, start time.Time) *domain.Rental {
	return &domain.Rental{
		ID:             id,
		RentalCode:     "R-0000000A",
		UserID:         userID,
		ScooterID:      scooterID,
		StartTime:      start,
		StartLatitude:  52.52,
		StartLongitude: 13.405,
		Status:         domain.RentalStatusActive,
		BaseFee:        testPricing.BaseFee,
		PerMinuteRate:  testPricing.PerMinuteRate,
	}
}

func TestRentalService_Start(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		svc, deps := newRentalService(now)
		sc := testScooter(7, 2, 52.52, 13.405, 80)

		deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
		deps.rentals.On("GetOpenByUser", ctx, int32(3)).Return(nil, sql.ErrNoRows)
		deps.scooters.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		deps.rentals.On("Start", ctx, mock.MatchedBy(func(r *domain.Rental) bool {
			return r.UserID == 3 && r.ScooterID == 7 && r.Status == domain.RentalStatusActive &&
				r.StartTime.Equal(now) && r.BaseFee.Equal(testPricing.BaseFee)
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Rental).ID = 100
		}).Return(nil)

		rental, err := svc.Start(ctx, 3, StartRentalRequest{ScooterID: 7, Latitude: 52.52, Longitude: 13.405})
		require.NoError(t, err)
		assert.Equal(t, int32(100), rental.ID)
		assert.Regexp(t, `^R-[0-9A-F]{8}$`, rental.RentalCode)
	})

	t.Run("AlreadyRiding", func(t *testing.T) {
		svc, deps := newRentalService(now)
		deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
		deps.rentals.On("GetOpenByUser", ctx, int32(3)).Return(activeRental(1, 3, 9, now.Add(-time.Hour)), nil)

		_, err := svc.Start(ctx, 3, StartRentalRequest{ScooterID: 7, Latitude: 52.52, Longitude: 13.405})
		assert.ErrorIs(t, err, domain.ErrConcurrentRentalExists)
		deps.rentals.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	})

	t.Run("BatteryTooLow", func(t *testing.T) {
		svc, deps := newRentalService(now)
		sc := testScooter(7, 2, 52.52, 13.405, domain.MinRentableBattery)

		deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
		deps.rentals.On("GetOpenByUser", ctx, int32(3)).Return(nil, sql.ErrNoRows)
		deps.scooters.On("GetByID", ctx, int32(7)).Return(&sc, nil)

		_, err := svc.Start(ctx, 3, StartRentalRequest{ScooterID: 7, Latitude: 52.52, Longitude: 13.405})
		assert.ErrorIs(t, err, domain.ErrScooterUnavailable)
	})

	t.Run("LostRaceInStore", func(t *testing.T) {
		svc, deps := newRentalService(now)
		sc := testScooter(7, 2, 52.52, 13.405, 80)

		deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
		deps.rentals.On("GetOpenByUser", ctx, int32(3)).Return(nil, sql.ErrNoRows)
		deps.scooters.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		deps.rentals.On("Start", ctx, mock.Anything).Return(domain.ErrScooterUnavailable)

		_, err := svc.Start(ctx, 3, StartRentalRequest{ScooterID: 7, Latitude: 52.52, Longitude: 13.405})
		assert.ErrorIs(t, err, domain.ErrScooterUnavailable)
	})
}

func TestRentalService_End(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	t.Run("ChargesBaseFeePlusMinutes", func(t *testing.T) {
		svc, deps := newRentalService(start.Add(45 * time.Minute))
		rental := activeRental(10, 3, 7, start)
		rider := testUser(3, domain.RoleCustomer)
		sc := testScooter(7, 2, 52.52, 13.405, 70)

		deps.users.On("GetByID", ctx, int32(3)).Return(rider, nil)
		deps.rentals.On("GetByID", ctx, int32(10)).Return(rental, nil)
		deps.rentals.On("Finish", ctx, rental).Return(nil)
		deps.scooters.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		deps.notifier.On("SendRentalReceipt", ctx, rider, rental, &sc).Return(errors.New("smtp unavailable"))

		lat, lon := 52.53, 13.41
		ended, err := svc.End(ctx, 3, 10, &lat, &lon)
		require.NoError(t, err, "receipt failures never fail the rental")
		assert.Equal(t, domain.RentalStatusCompleted, ended.Status)
		assert.Equal(t, int32(45), *ended.DurationMinutes)
		assert.Equal(t, "12.25", ended.TotalCost.Decimal.StringFixed(2))
		assert.Equal(t, 52.53, *ended.EndLatitude)
		deps.notifier.AssertExpectations(t)
	})

	t.Run("OverdueCanStillEnd", func(t *testing.T) {
		svc, deps := newRentalService(start.Add(30 * time.Hour))
		rental := activeRental(10, 3, 7, start)
		rental.Status = domain.RentalStatusOverdue
		rider := testUser(3, domain.RoleCustomer)
		sc := testScooter(7, 2, 52.52, 13.405, 70)

		deps.users.On("GetByID", ctx, int32(3)).Return(rider, nil)
		deps.rentals.On("GetByID", ctx, int32(10)).Return(rental, nil)
		deps.rentals.On("Finish", ctx, rental).Return(nil)
		deps.scooters.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		deps.notifier.On("SendRentalReceipt", ctx, rider, rental, &sc).Return(nil)

		ended, err := svc.End(ctx, 3, 10, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "451.00", ended.TotalCost.Decimal.StringFixed(2))
	})

	t.Run("AlreadyCompleted", func(t *testing.T) {
		svc, deps := newRentalService(start.Add(time.Hour))
		rental := activeRental(10, 3, 7, start)
		rental.Status = domain.RentalStatusCompleted

		deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
		deps.rentals.On("GetByID", ctx, int32(10)).Return(rental, nil)

		_, err := svc.End(ctx, 3, 10, nil, nil)
		assert.ErrorIs(t, err, domain.ErrRentalNotActive)
		deps.rentals.AssertNotCalled(t, "Finish", mock.Anything, mock.Anything)
	})

	t.Run("StrangerForbidden", func(t *testing.T) {
		svc, deps := newRentalService(start.Add(time.Hour))
		deps.users.On("GetByID", ctx, int32(4)).Return(testUser(4, domain.RoleProvider), nil)
		deps.rentals.On("GetByID", ctx, int32(10)).Return(activeRental(10, 3, 7, start), nil)

		_, err := svc.End(ctx, 4, 10, nil, nil)
		assert.True(t, domain.IsKind(err, domain.KindForbidden))
	})
}

func TestRentalService_Cancel(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	svc, deps := newRentalService(start.Add(20 * time.Minute))

	rental := activeRental(10, 3, 7, start)
	deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
	deps.rentals.On("GetByID", ctx, int32(10)).Return(rental, nil)
	deps.rentals.On("Finish", ctx, rental).Return(nil)

	cancelled, err := svc.Cancel(ctx, 3, 10, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RentalStatusCancelled, cancelled.Status)
	assert.Equal(t, "1.00", cancelled.TotalCost.Decimal.StringFixed(2))
	assert.Equal(t, domain.DefaultCancelReason, cancelled.Notes)
	deps.notifier.AssertNotCalled(t, "SendRentalReceipt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRentalService_Rate(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	svc, deps := newRentalService(start.Add(2 * time.Hour))

	rental := activeRental(10, 3, 7, start)
	rental.Status = domain.RentalStatusCompleted
	deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
	deps.users.On("GetByID", ctx, int32(1)).Return(testUser(1, domain.RoleAdmin), nil)
	deps.rentals.On("GetByID", ctx, int32(10)).Return(rental, nil)
	deps.rentals.On("UpdateRating", ctx, int32(10), int32(4), "smooth ride").Return(nil)

	_, err := svc.Rate(ctx, 3, 10, 6, "")
	assert.ErrorIs(t, err, domain.ErrRatingOutOfRange)

	_, err = svc.Rate(ctx, 1, 10, 4, "smooth ride")
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "only the rider rates")

	rated, err := svc.Rate(ctx, 3, 10, 4, "  smooth ride ")
	require.NoError(t, err)
	assert.Equal(t, int32(4), *rated.Rating)
}

func TestRentalService_ListScoping(t *testing.T) {
	ctx := context.Background()
	svc, deps := newRentalService(time.Now())

	deps.users.On("GetByID", ctx, int32(1)).Return(testUser(1, domain.RoleAdmin), nil)
	deps.users.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
	deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
	deps.rentals.On("List", ctx, mock.Anything).Return([]domain.Rental{}, int32(0), nil)

	_, _, err := svc.List(ctx, 3, repository.RentalFilter{UserID: 99})
	require.NoError(t, err)
	deps.rentals.AssertCalled(t, "List", ctx, repository.RentalFilter{UserID: 3})

	_, _, err = svc.List(ctx, 2, repository.RentalFilter{})
	require.NoError(t, err)
	deps.rentals.AssertCalled(t, "List", ctx, repository.RentalFilter{ProviderID: 2})

	_, _, err = svc.List(ctx, 2, repository.RentalFilter{UserID: 2})
	require.NoError(t, err)
	deps.rentals.AssertCalled(t, "List", ctx, repository.RentalFilter{UserID: 2})

	_, _, err = svc.List(ctx, 1, repository.RentalFilter{Status: domain.RentalStatusOverdue})
	require.NoError(t, err)
	deps.rentals.AssertCalled(t, "List", ctx, repository.RentalFilter{Status: domain.RentalStatusOverdue})
}

func TestRentalService_PaymentStatus(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	svc, deps := newRentalService(start.Add(2 * time.Hour))

	rental := activeRental(10, 3, 7, start)
	rental.Status = domain.RentalStatusCompleted
	rental.TotalCost = decimal.NewNullDecimal(decimal.RequireFromString("12.25"))
	deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
	deps.rentals.On("GetByID", ctx, int32(10)).Return(rental, nil)
	deps.payments.On("SumPaidForRental", ctx, int32(10)).Return(decimal.RequireFromString("5.00"), nil)

	status, err := svc.PaymentStatus(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, "7.25", status.Outstanding.StringFixed(2))
	assert.False(t, status.IsFullyPaid)
}

func TestRentalService_SweepOverdue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc, deps := newRentalService(now)

	stale := activeRental(1, 3, 7, now.Add(-25*time.Hour))
	raced := activeRental(2, 4, 8, now.Add(-30*time.Hour))
	deps.rentals.On("ListOverdueCandidates", ctx, now.Add(-24*time.Hour)).Return([]domain.Rental{*stale, *raced}, nil)
	deps.rentals.On("MarkOverdue", ctx, int32(1)).Return(true, nil)
	deps.rentals.On("MarkOverdue", ctx, int32(2)).Return(false, nil)

	marked, err := svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	deps.users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
	_, err = svc.TriggerOverdueSweep(ctx, 3)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
}

// memoryRentalStore enforces the same open-rental uniqueness the database does.
type memoryRentalStore struct {
	MockRentalRepo
	mu          sync.Mutex
	nextID      int32
	openUser    map[int32]bool
	openScooter map[int32]bool
}

func newMemoryRentalStore() *memoryRentalStore {
	return &memoryRentalStore{openUser: map[int32]bool{}, openScooter: map[int32]bool{}}
}

func (s *memoryRentalStore) GetOpenByUser(ctx context.Context, userID int32) (*domain.Rental, error) {
	return nil, sql.ErrNoRows
}

func (s *memoryRentalStore) Start(ctx context.Context, rental *domain.Rental) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openScooter[rental.ScooterID] {
		return domain.ErrScooterUnavailable
	}
	if s.openUser[rental.UserID] {
		return domain.ErrConcurrentRentalExists
	}
	s.nextID++
	rental.ID = s.nextID
	s.openScooter[rental.ScooterID] = true
	s.openUser[rental.UserID] = true
	return nil
}

func TestRentalService_ConcurrentStarts(t *testing.T) {
	ctx := context.Background()
	const riders = 20

	t.Run("OneScooterManyRiders", func(t *testing.T) {
		store := newMemoryRentalStore()
		users := new(MockUserRepo)
		scooters := new(MockScooterRepo)
		svc := NewRentalService(store, scooters, users, new(MockPaymentRepo), testPricing, new(MockNotifier))

		sc := testScooter(7, 2, 52.52, 13.405, 80)
		scooters.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		for id := int32(1); id <= riders; id++ {
			users.On("GetByID", ctx, id).Return(testUser(id, domain.RoleCustomer), nil)
		}

		var wg sync.WaitGroup
		errs := make([]error, riders)
		for i := 0; i < riders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Start(ctx, int32(i+1), StartRentalRequest{ScooterID: 7, Latitude: 52.52, Longitude: 13.405})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrScooterUnavailable)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("OneRiderManyScooters", func(t *testing.T) {
		store := newMemoryRentalStore()
		users := new(MockUserRepo)
		scooters := new(MockScooterRepo)
		svc := NewRentalService(store, scooters, users, new(MockPaymentRepo), testPricing, new(MockNotifier))

		users.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)
		fleet := make([]domain.Scooter, riders)
		for i := range fleet {
			fleet[i] = testScooter(int32(i+1), 2, 52.52, 13.405, 80)
			scooters.On("GetByID", ctx, int32(i+1)).Return(&fleet[i], nil)
		}

		var wg sync.WaitGroup
		errs := make([]error, riders)
		for i := 0; i < riders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Start(ctx, 3, StartRentalRequest{ScooterID: int32(i + 1), Latitude: 52.52, Longitude: 13.405})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrConcurrentRentalExists)
		}
		assert.Equal(t, 1, succeeded)
	})
}
