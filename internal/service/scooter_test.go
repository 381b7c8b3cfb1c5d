package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
)

func testScooter(id, providerID int32, lat, lon float64, battery int32) domain.Scooter {
	return domain.Scooter{
		ID:           id,
		Identifier:   "SC-" + string(rune('A'+id)),
		Model:        "Max G30",
		Brand:        "Segway",
		Latitude:     lat,
		Longitude:    lon,
		Status:       domain.ScooterStatusAvailable,
		BatteryLevel: battery,
		ProviderID:   providerID,
		QRCode:       "SCOOT-0A1B2C3D-SC",
	}
}

func TestScooterService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("ProviderCreatesWithDefaults", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)

		userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
		scooterRepo.On("Create", ctx, mock.MatchedBy(func(s *domain.Scooter) bool {
			return s.Identifier == "SC-001" && s.Brand == "Xiaomi" && s.ProviderID == 2 &&
				s.BatteryLevel == 100 && s.Status == domain.ScooterStatusAvailable &&
				strings.HasPrefix(s.QRCode, "SCOOT-") && strings.HasSuffix(s.QRCode, "-SC-001") &&
				s.Geohash != ""
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Scooter).ID = 11
		}).Return(nil)

		sc, err := svc.Create(ctx, 2, CreateScooterRequest{
			Identifier: " sc-001 ",
			Model:      "mi pro 2",
			Brand:      "xiaomi",
			Latitude:   52.52,
			Longitude:  13.405,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(11), sc.ID)
		assert.Equal(t, "Mi Pro 2", sc.Model)
		assert.True(t, sc.IsAvailable())
	})

	t.Run("CustomerForbidden", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)
		userRepo.On("GetByID", ctx, int32(3)).Return(testUser(3, domain.RoleCustomer), nil)

		_, err := svc.Create(ctx, 3, CreateScooterRequest{Identifier: "SC-1", Model: "M", Brand: "B"})
		assert.True(t, domain.IsKind(err, domain.KindForbidden))
		scooterRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("InvalidCoordinates", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		svc := NewScooterService(new(MockScooterRepo), userRepo)
		userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)

		_, err := svc.Create(ctx, 2, CreateScooterRequest{Identifier: "SC-1", Model: "M", Brand: "B", Latitude: 95})
		assert.ErrorIs(t, err, domain.ErrInvalidCoordinates)
	})

	t.Run("DuplicateIdentifier", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)
		userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
		scooterRepo.On("Create", ctx, mock.Anything).Return(domain.ErrIdentifierTaken)

		_, err := svc.Create(ctx, 2, CreateScooterRequest{Identifier: "SC-1", Model: "M", Brand: "B"})
		assert.ErrorIs(t, err, domain.ErrIdentifierTaken)
	})
}

func TestScooterService_Nearby(t *testing.T) {
	ctx := context.Background()
	scooterRepo := new(MockScooterRepo)
	svc := NewScooterService(scooterRepo, new(MockUserRepo))

	far := testScooter(4, 2, 52.5330, 13.405, 80)    // ~1.45 km
	near := testScooter(1, 2, 52.5210, 13.405, 80)   // ~0.11 km
	flat := testScooter(2, 2, 52.5201, 13.405, 5)    // too little battery
	corner := testScooter(3, 2, 52.5370, 13.433, 80) // inside the box, outside the radius
	scooterRepo.On("WithinBox", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Scooter{far, near, flat, corner}, nil)

	results, err := svc.Nearby(ctx, 52.52, 13.405, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(1), results[0].ID)
	assert.Equal(t, int32(4), results[1].ID)
	assert.Less(t, results[0].DistanceKm, results[1].DistanceKm)
	for _, r := range results {
		assert.LessOrEqual(t, r.DistanceKm, 2.0)
	}

	limited, err := svc.Nearby(ctx, 52.52, 13.405, 2, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int32(1), limited[0].ID)

	_, err = svc.Nearby(ctx, 52.52, 13.405, 80, 0)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = svc.Nearby(ctx, 91, 13.405, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinates)
}

func TestScooterService_UpdateBattery(t *testing.T) {
	ctx := context.Background()

	t.Run("LowBatterySendsToMaintenance", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)

		sc := testScooter(7, 2, 52.52, 13.405, 80)
		userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
		scooterRepo.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		scooterRepo.On("Update", ctx, mock.AnythingOfType("*domain.Scooter")).Return(nil)
		scooterRepo.On("SetStatus", ctx, int32(7), domain.ScooterStatusMaintenance, (*time.Time)(nil)).Return(nil)

		updated, err := svc.UpdateBattery(ctx, 2, 7, 15)
		require.NoError(t, err)
		assert.Equal(t, int32(15), updated.BatteryLevel)
		assert.Equal(t, domain.ScooterStatusMaintenance, updated.Status)
	})

	t.Run("HealthyBatteryStaysAvailable", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)

		sc := testScooter(7, 2, 52.52, 13.405, 80)
		userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
		scooterRepo.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		scooterRepo.On("Update", ctx, mock.AnythingOfType("*domain.Scooter")).Return(nil)

		updated, err := svc.UpdateBattery(ctx, 2, 7, 60)
		require.NoError(t, err)
		assert.Equal(t, domain.ScooterStatusAvailable, updated.Status)
		scooterRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		svc := NewScooterService(new(MockScooterRepo), new(MockUserRepo))
		_, err := svc.UpdateBattery(ctx, 2, 7, 101)
		assert.ErrorIs(t, err, domain.ErrBatteryOutOfRange)
	})

	t.Run("OtherProviderForbidden", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)

		sc := testScooter(7, 2, 52.52, 13.405, 80)
		userRepo.On("GetByID", ctx, int32(9)).Return(testUser(9, domain.RoleProvider), nil)
		scooterRepo.On("GetByID", ctx, int32(7)).Return(&sc, nil)

		_, err := svc.UpdateBattery(ctx, 9, 7, 50)
		assert.True(t, domain.IsKind(err, domain.KindForbidden))
	})
}

func TestScooterService_StatusChanges(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("InUseIsReserved", func(t *testing.T) {
		svc := NewScooterService(new(MockScooterRepo), new(MockUserRepo))
		_, err := svc.SetStatus(ctx, 1, 7, domain.ScooterStatusInUse)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})

	t.Run("BlockedByOpenRental", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)

		sc := testScooter(7, 2, 52.52, 13.405, 80)
		sc.Status = domain.ScooterStatusInUse
		userRepo.On("GetByID", ctx, int32(1)).Return(testUser(1, domain.RoleAdmin), nil)
		scooterRepo.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		scooterRepo.On("SetStatus", ctx, int32(7), domain.ScooterStatusOffline, (*time.Time)(nil)).Return(domain.ErrScooterHasActiveRental)

		_, err := svc.SetStatus(ctx, 1, 7, domain.ScooterStatusOffline)
		assert.ErrorIs(t, err, domain.ErrScooterHasActiveRental)
	})

	t.Run("CompleteMaintenance", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo).(*scooterService)
		svc.now = fixedClock(now)

		sc := testScooter(7, 2, 52.52, 13.405, 90)
		sc.Status = domain.ScooterStatusMaintenance
		userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
		scooterRepo.On("GetByID", ctx, int32(7)).Return(&sc, nil)
		scooterRepo.On("SetStatus", ctx, int32(7), domain.ScooterStatusAvailable, mock.MatchedBy(func(at *time.Time) bool {
			return at != nil && at.Equal(now)
		})).Return(nil)

		updated, err := svc.CompleteMaintenance(ctx, 2, 7)
		require.NoError(t, err)
		assert.Equal(t, domain.ScooterStatusAvailable, updated.Status)
		require.NotNil(t, updated.LastMaintenance)
		assert.Equal(t, now, *updated.LastMaintenance)

		_, err = svc.CompleteMaintenance(ctx, 2, 7)
		assert.ErrorIs(t, err, domain.ErrNotInMaintenance)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		userRepo := new(MockUserRepo)
		scooterRepo := new(MockScooterRepo)
		svc := NewScooterService(scooterRepo, userRepo)
		userRepo.On("GetByID", ctx, int32(1)).Return(testUser(1, domain.RoleAdmin), nil)
		scooterRepo.On("GetByID", ctx, int32(404)).Return(nil, sql.ErrNoRows)

		err := svc.Delete(ctx, 1, 404)
		assert.True(t, domain.IsKind(err, domain.KindNotFound))
	})
}

func TestScooterService_FlagLowBattery(t *testing.T) {
	ctx := context.Background()
	scooterRepo := new(MockScooterRepo)
	svc := NewScooterService(scooterRepo, new(MockUserRepo))

	threshold := int32(domain.LowBatteryThreshold)
	filter := repository.ScooterFilter{
		Status:     domain.ScooterStatusAvailable,
		MaxBattery: &threshold,
		Page:       repository.Page{Limit: repository.MaxPageSize},
	}
	scooterRepo.On("List", ctx, filter).Return([]domain.Scooter{
		testScooter(1, 2, 52.52, 13.405, 12),
		testScooter(2, 2, 52.52, 13.405, 8),
	}, int32(2), nil)
	scooterRepo.On("SetStatus", ctx, int32(1), domain.ScooterStatusMaintenance, (*time.Time)(nil)).Return(nil)
	scooterRepo.On("SetStatus", ctx, int32(2), domain.ScooterStatusMaintenance, (*time.Time)(nil)).Return(domain.ErrScooterHasActiveRental)

	flagged, err := svc.FlagLowBattery(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
}

func TestScooterService_ProviderStatistics(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepo)
	scooterRepo := new(MockScooterRepo)
	svc := NewScooterService(scooterRepo, userRepo)

	userRepo.On("GetByID", ctx, int32(2)).Return(testUser(2, domain.RoleProvider), nil)
	userRepo.On("GetByID", ctx, int32(1)).Return(testUser(1, domain.RoleAdmin), nil)
	scooterRepo.On("ProviderStats", ctx, int32(2)).Return(&domain.ProviderStats{ProviderID: 2, TotalScooters: 4, InUseScooters: 1}, nil)

	stats, err := svc.ProviderStatistics(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 25.0, stats.UtilizationRate())

	_, err = svc.ProviderStatistics(ctx, 1, 2)
	assert.NoError(t, err)

	_, err = svc.ProviderStatistics(ctx, 2, 3)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestScooterService_QRImage(t *testing.T) {
	ctx := context.Background()
	scooterRepo := new(MockScooterRepo)
	svc := NewScooterService(scooterRepo, new(MockUserRepo))

	sc := testScooter(7, 2, 52.52, 13.405, 80)
	scooterRepo.On("GetByID", ctx, int32(7)).Return(&sc, nil)

	png, err := svc.QRImage(ctx, 7, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	_, err = svc.QRImage(ctx, 7, 5000)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}
