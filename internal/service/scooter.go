package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/skip2/go-qrcode"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/utils"
)

const (
	DefaultNearbyRadiusKm = 5.0
	MaxNearbyRadiusKm     = 50.0
	DefaultNearbyLimit    = 50

	defaultBattery  int32 = 100
	defaultMaxSpeed       = 25.0
	defaultRangeKm        = 30.0

	DefaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

type scooterService struct {
	scooterRepo repository.ScooterRepository
	userRepo    repository.UserRepository
	now         func() time.Time
}

func NewScooterService(scooterRepo repository.ScooterRepository, userRepo repository.UserRepository) ScooterService {
	return &scooterService{
		scooterRepo: scooterRepo,
		userRepo:    userRepo,
		now:         time.Now,
	}
}

func (s *scooterService) Create(ctx context.Context, actorID int32, req CreateScooterRequest) (*domain.Scooter, error) {
	logger.EnterMethod("scooterService.Create", "actorID", actorID, "identifier", req.Identifier)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionCreateScooter); err != nil {
		logger.ExitMethodWithError("scooterService.Create", err, true, "actorID", actorID)
		return nil, err
	}

	providerID := actor.ID
	if req.ProviderID != 0 && req.ProviderID != actor.ID {
		if err := authorize(actor, domain.ActionManageAnyScooter); err != nil {
			return nil, err
		}
		provider, err := s.userRepo.GetByID(ctx, req.ProviderID)
		if err != nil {
			return nil, storeErr(err, "user", req.ProviderID)
		}
		if !provider.CanManageScooters() {
			return nil, domain.ErrNotAProvider
		}
		providerID = provider.ID
	}

	scooter := &domain.Scooter{
		Identifier:   req.Identifier,
		Model:        req.Model,
		Brand:        req.Brand,
		Address:      req.Address,
		Status:       domain.ScooterStatusAvailable,
		BatteryLevel: defaultBattery,
		MaxSpeed:     defaultMaxSpeed,
		RangeKm:      defaultRangeKm,
		ProviderID:   providerID,
	}
	if req.BatteryLevel != nil {
		scooter.BatteryLevel = *req.BatteryLevel
	}
	if req.MaxSpeed != nil {
		scooter.MaxSpeed = *req.MaxSpeed
	}
	if req.RangeKm != nil {
		scooter.RangeKm = *req.RangeKm
	}
	domain.NormalizeScooter(scooter)
	if err := scooter.SetLocation(req.Latitude, req.Longitude, "", s.now()); err != nil {
		return nil, err
	}
	if err := scooter.Validate(); err != nil {
		logger.ExitMethodWithError("scooterService.Create", err, true, "identifier", scooter.Identifier)
		return nil, err
	}
	scooter.QRCode = domain.NewQRCode(scooter.Identifier)

	if err := s.scooterRepo.Create(ctx, scooter); err != nil {
		err = storeErr(err, "scooter", scooter.Identifier)
		logger.ExitMethodWithError("scooterService.Create", err, isExpected(err), "identifier", scooter.Identifier)
		return nil, err
	}
	logger.ExitMethod("scooterService.Create", "scooterID", scooter.ID, "providerID", providerID)
	return scooter, nil
}

func (s *scooterService) Get(ctx context.Context, id int32) (*domain.Scooter, error) {
	scooter, err := s.scooterRepo.GetByID(ctx, id)
	return scooter, storeErr(err, "scooter", id)
}

func (s *scooterService) GetByIdentifier(ctx context.Context, identifier string) (*domain.Scooter, error) {
	scooter, err := s.scooterRepo.GetByIdentifier(ctx, identifier)
	return scooter, storeErr(err, "scooter", identifier)
}

func (s *scooterService) GetByQRCode(ctx context.Context, qrCode string) (*domain.Scooter, error) {
	scooter, err := s.scooterRepo.GetByQRCode(ctx, qrCode)
	return scooter, storeErr(err, "scooter", qrCode)
}

func (s *scooterService) List(ctx context.Context, filter repository.ScooterFilter) ([]domain.Scooter, int32, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ErrInvalidScooterStatus
	}
	scooters, count, err := s.scooterRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list scooters: %w", err)
	}
	return scooters, count, nil
}

// ListAvailable returns rentable scooters; the battery floor is applied here so
// that the predicate lives in one place.
func (s *scooterService) ListAvailable(ctx context.Context, page repository.Page) ([]domain.Scooter, error) {
	scooters, _, err := s.scooterRepo.List(ctx, repository.ScooterFilter{Status: domain.ScooterStatusAvailable, Page: page})
	if err != nil {
		return nil, fmt.Errorf("list available scooters: %w", err)
	}
	available := scooters[:0]
	for _, sc := range scooters {
		if sc.IsAvailable() {
			available = append(available, sc)
		}
	}
	return available, nil
}

// Nearby pre-filters with a bounding box, then keeps only scooters within the
// exact haversine radius, nearest first.
func (s *scooterService) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]NearbyScooter, error) {
	if !utils.ValidCoordinates(lat, lon) {
		return nil, domain.ErrInvalidCoordinates
	}
	if radiusKm == 0 {
		radiusKm = DefaultNearbyRadiusKm
	}
	if radiusKm < 0 || radiusKm > MaxNearbyRadiusKm {
		return nil, domain.NewValidationError("radius must be between 0 and %.0f km", MaxNearbyRadiusKm)
	}
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}

	box := utils.BoundingBoxAround(utils.GeoPoint{Latitude: lat, Longitude: lon}, radiusKm)
	candidates, err := s.scooterRepo.WithinBox(ctx, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("nearby scooters: %w", err)
	}

	nearby := make([]NearbyScooter, 0, len(candidates))
	for _, sc := range candidates {
		if !sc.IsAvailable() {
			continue
		}
		d := sc.DistanceFrom(lat, lon)
		if d <= radiusKm {
			nearby = append(nearby, NearbyScooter{Scooter: sc, DistanceKm: d})
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool { return nearby[i].DistanceKm < nearby[j].DistanceKm })
	if len(nearby) > limit {
		nearby = nearby[:limit]
	}
	logger.Debug("Nearby search", "lat", lat, "lon", lon, "radiusKm", radiusKm, "candidates", len(candidates), "results", len(nearby))
	return nearby, nil
}

// loadManaged returns the scooter if actor may manage it.
func (s *scooterService) loadManaged(ctx context.Context, actorID, id int32) (*domain.User, *domain.Scooter, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, nil, err
	}
	scooter, err := s.scooterRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "scooter", id)
	}
	if !domain.CanManageScooter(actor, scooter) {
		return nil, nil, domain.NewForbiddenError("not authorized to manage scooter %d", id)
	}
	return actor, scooter, nil
}

func (s *scooterService) Update(ctx context.Context, actorID, id int32, update domain.ScooterUpdate) (*domain.Scooter, error) {
	_, scooter, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if update.Empty() {
		return nil, domain.NewValidationError("no valid fields to update")
	}
	if err := update.Apply(scooter); err != nil {
		return nil, err
	}
	if err := scooter.Validate(); err != nil {
		return nil, err
	}
	if err := s.scooterRepo.Update(ctx, scooter); err != nil {
		return nil, storeErr(err, "scooter", id)
	}
	if update.BatteryLevel != nil {
		s.maintainIfLow(ctx, scooter)
	}
	return scooter, nil
}

func (s *scooterService) UpdateLocation(ctx context.Context, actorID, id int32, lat, lon float64, address string) (*domain.Scooter, error) {
	_, scooter, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if err := scooter.SetLocation(lat, lon, address, s.now()); err != nil {
		return nil, err
	}
	if err := s.scooterRepo.Update(ctx, scooter); err != nil {
		return nil, storeErr(err, "scooter", id)
	}
	return scooter, nil
}

func (s *scooterService) UpdateBattery(ctx context.Context, actorID, id int32, level int32) (*domain.Scooter, error) {
	if level < 0 || level > 100 {
		return nil, domain.ErrBatteryOutOfRange
	}
	_, scooter, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	scooter.BatteryLevel = level
	if err := s.scooterRepo.Update(ctx, scooter); err != nil {
		return nil, storeErr(err, "scooter", id)
	}
	s.maintainIfLow(ctx, scooter)
	return scooter, nil
}

// maintainIfLow sends an idle scooter with a low battery to maintenance.
func (s *scooterService) maintainIfLow(ctx context.Context, scooter *domain.Scooter) {
	if scooter.BatteryLevel >= domain.LowBatteryThreshold || scooter.Status != domain.ScooterStatusAvailable {
		return
	}
	if err := s.scooterRepo.SetStatus(ctx, scooter.ID, domain.ScooterStatusMaintenance, nil); err != nil {
		logger.Warn("Failed to move low-battery scooter to maintenance", "scooterID", scooter.ID, "error", err)
		return
	}
	scooter.Status = domain.ScooterStatusMaintenance
	logger.Info("Scooter moved to maintenance for low battery", "scooterID", scooter.ID, "battery", scooter.BatteryLevel)
}

func (s *scooterService) SetStatus(ctx context.Context, actorID, id int32, status domain.ScooterStatus) (*domain.Scooter, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidScooterStatus
	}
	if status == domain.ScooterStatusInUse {
		return nil, domain.NewValidationError("in_use is set by starting a rental")
	}
	_, scooter, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	return s.setStatus(ctx, scooter, status, nil)
}

func (s *scooterService) setStatus(ctx context.Context, scooter *domain.Scooter, status domain.ScooterStatus, maintainedAt *time.Time) (*domain.Scooter, error) {
	if err := s.scooterRepo.SetStatus(ctx, scooter.ID, status, maintainedAt); err != nil {
		return nil, storeErr(err, "scooter", scooter.ID)
	}
	scooter.Status = status
	if maintainedAt != nil {
		scooter.LastMaintenance = maintainedAt
	}
	logger.Info("Scooter status changed", "scooterID", scooter.ID, "status", status)
	return scooter, nil
}

func (s *scooterService) SetMaintenance(ctx context.Context, actorID, id int32) (*domain.Scooter, error) {
	return s.SetStatus(ctx, actorID, id, domain.ScooterStatusMaintenance)
}

func (s *scooterService) CompleteMaintenance(ctx context.Context, actorID, id int32) (*domain.Scooter, error) {
	_, scooter, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if scooter.Status != domain.ScooterStatusMaintenance {
		return nil, domain.ErrNotInMaintenance
	}
	now := s.now()
	return s.setStatus(ctx, scooter, domain.ScooterStatusAvailable, &now)
}

func (s *scooterService) Delete(ctx context.Context, actorID, id int32) error {
	_, _, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return err
	}
	if err := s.scooterRepo.Delete(ctx, id); err != nil {
		return storeErr(err, "scooter", id)
	}
	logger.Info("Scooter deleted", "actorID", actorID, "scooterID", id)
	return nil
}

// fleetFilter scopes a listing to the actor's own scooters unless they may manage any.
func (s *scooterService) fleetFilter(ctx context.Context, actorID int32) (repository.ScooterFilter, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return repository.ScooterFilter{}, err
	}
	if actor.Can(domain.ActionManageAnyScooter) {
		return repository.ScooterFilter{}, nil
	}
	if !actor.IsProvider() {
		return repository.ScooterFilter{}, domain.NewForbiddenError("only providers and admins manage fleets")
	}
	return repository.ScooterFilter{ProviderID: actor.ID}, nil
}

// eachScooter pages through every scooter matching filter.
func (s *scooterService) eachScooter(ctx context.Context, filter repository.ScooterFilter, fn func(domain.Scooter)) error {
	filter.Page = repository.Page{Limit: repository.MaxPageSize}
	for {
		batch, _, err := s.scooterRepo.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, sc := range batch {
			fn(sc)
		}
		if len(batch) < repository.MaxPageSize {
			return nil
		}
		filter.Page.Offset += len(batch)
	}
}

func (s *scooterService) NeedingMaintenance(ctx context.Context, actorID int32) ([]domain.Scooter, error) {
	filter, err := s.fleetFilter(ctx, actorID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []domain.Scooter
	err = s.eachScooter(ctx, filter, func(sc domain.Scooter) {
		if sc.NeedsMaintenance(now) {
			out = append(out, sc)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan fleet: %w", err)
	}
	return out, nil
}

func (s *scooterService) LowBattery(ctx context.Context, actorID int32, threshold int32) ([]domain.Scooter, error) {
	if threshold == 0 {
		threshold = domain.LowBatteryThreshold
	}
	if threshold < 1 || threshold > 100 {
		return nil, domain.NewValidationError("threshold must be between 1 and 100")
	}
	filter, err := s.fleetFilter(ctx, actorID)
	if err != nil {
		return nil, err
	}
	filter.MaxBattery = &threshold

	var out []domain.Scooter
	if err := s.eachScooter(ctx, filter, func(sc domain.Scooter) { out = append(out, sc) }); err != nil {
		return nil, fmt.Errorf("scan fleet: %w", err)
	}
	return out, nil
}

func (s *scooterService) FlagLowBattery(ctx context.Context) (int, error) {
	threshold := int32(domain.LowBatteryThreshold)
	filter := repository.ScooterFilter{Status: domain.ScooterStatusAvailable, MaxBattery: &threshold}
	flagged, skipped := 0, 0
	for {
		// flagged scooters drop out of the filter, so only skipped ones shift the offset
		filter.Page = repository.Page{Limit: repository.MaxPageSize, Offset: skipped}
		batch, _, err := s.scooterRepo.List(ctx, filter)
		if err != nil {
			return flagged, fmt.Errorf("list low-battery scooters: %w", err)
		}
		for _, sc := range batch {
			err := s.scooterRepo.SetStatus(ctx, sc.ID, domain.ScooterStatusMaintenance, nil)
			if err != nil {
				if !errors.Is(err, domain.ErrScooterHasActiveRental) {
					logger.Warn("Failed to flag scooter", "scooterID", sc.ID, "error", err)
				}
				skipped++
				continue
			}
			flagged++
		}
		if len(batch) < repository.MaxPageSize {
			return flagged, nil
		}
	}
}

func (s *scooterService) Statistics(ctx context.Context, actorID, id int32) (*domain.ScooterStats, error) {
	_, scooter, err := s.loadManaged(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.scooterRepo.Stats(ctx, id)
	if err != nil {
		return nil, storeErr(err, "scooter", id)
	}
	stats.NeedsMaintenance = scooter.NeedsMaintenance(s.now())
	return stats, nil
}

func (s *scooterService) ProviderStatistics(ctx context.Context, actorID, providerID int32) (*domain.ProviderStats, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != providerID && !actor.Can(domain.ActionManageAnyScooter) {
		return nil, domain.NewForbiddenError("cannot view another provider's statistics")
	}
	stats, err := s.scooterRepo.ProviderStats(ctx, providerID)
	if err != nil {
		return nil, storeErr(err, "provider", providerID)
	}
	return stats, nil
}

func (s *scooterService) QRImage(ctx context.Context, id int32, size int) ([]byte, error) {
	scooter, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = DefaultQRSize
	}
	if size < minQRSize || size > maxQRSize {
		return nil, domain.NewValidationError("size must be between %d and %d", minQRSize, maxQRSize)
	}
	png, err := qrcode.Encode(scooter.QRCode, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}
