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
	"scooter-share-pro/internal/utils"
)

type rentalService struct {
	rentalRepo  repository.RentalRepository
	scooterRepo repository.ScooterRepository
	userRepo    repository.UserRepository
	paymentRepo repository.PaymentRepository
	pricing     domain.Pricing
	notifier    Notifier
	now         func() time.Time
}

func NewRentalService(
	rentalRepo repository.RentalRepository,
	scooterRepo repository.ScooterRepository,
	userRepo repository.UserRepository,
	paymentRepo repository.PaymentRepository,
	pricing domain.Pricing,
	notifier Notifier,
) RentalService {
	return &rentalService{
		rentalRepo:  rentalRepo,
		scooterRepo: scooterRepo,
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		pricing:     pricing,
		notifier:    notifier,
		now:         time.Now,
	}
}

func (s *rentalService) Start(ctx context.Context, actorID int32, req StartRentalRequest) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.Start", "actorID", actorID, "scooterID", req.ScooterID)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionRentScooter); err != nil {
		return nil, err
	}
	if !utils.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, domain.ErrInvalidCoordinates
	}

	// Fast rejections; the store re-checks both conditions atomically.
	if open, err := s.rentalRepo.GetOpenByUser(ctx, actor.ID); err == nil {
		err := domain.ErrConcurrentRentalExists.WithMessage("rental %s is still open", open.RentalCode)
		logger.ExitMethodWithError("rentalService.Start", err, true, "actorID", actorID)
		return nil, err
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check open rental: %w", err)
	}
	scooter, err := s.scooterRepo.GetByID(ctx, req.ScooterID)
	if err != nil {
		return nil, storeErr(err, "scooter", req.ScooterID)
	}
	if !scooter.IsAvailable() {
		logger.ExitMethodWithError("rentalService.Start", domain.ErrScooterUnavailable, true,
			"scooterID", scooter.ID, "status", scooter.Status, "battery", scooter.BatteryLevel)
		return nil, domain.ErrScooterUnavailable
	}

	rental := domain.NewRental(actor.ID, scooter.ID, req.Latitude, req.Longitude, s.pricing, s.now())
	if err := s.rentalRepo.Start(ctx, rental); err != nil {
		err = storeErr(err, "rental", rental.RentalCode)
		logger.ExitMethodWithError("rentalService.Start", err, isExpected(err), "scooterID", scooter.ID)
		return nil, err
	}
	logger.ExitMethod("rentalService.Start", "rentalID", rental.ID, "code", rental.RentalCode)
	return rental, nil
}

// loadOperable returns the rental if actor may end or cancel it.
func (s *rentalService) loadOperable(ctx context.Context, actorID, rentalID int32) (*domain.User, *domain.Rental, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, nil, err
	}
	rental, err := s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, nil, storeErr(err, "rental", rentalID)
	}
	if !domain.CanOperateRental(actor, rental) {
		return nil, nil, domain.NewForbiddenError("not authorized to operate rental %d", rentalID)
	}
	return actor, rental, nil
}

func (s *rentalService) End(ctx context.Context, actorID, rentalID int32, endLat, endLon *float64) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.End", "actorID", actorID, "rentalID", rentalID)

	actor, rental, err := s.loadOperable(ctx, actorID, rentalID)
	if err != nil {
		return nil, err
	}
	if err := rental.Complete(s.now(), endLat, endLon); err != nil {
		logger.ExitMethodWithError("rentalService.End", err, true, "rentalID", rentalID, "status", rental.Status)
		return nil, err
	}
	if err := s.rentalRepo.Finish(ctx, rental); err != nil {
		err = storeErr(err, "rental", rentalID)
		logger.ExitMethodWithError("rentalService.End", err, isExpected(err), "rentalID", rentalID)
		return nil, err
	}
	s.sendReceipt(ctx, actor, rental)

	logger.ExitMethod("rentalService.End", "rentalID", rentalID, "minutes", *rental.DurationMinutes, "cost", rental.TotalCost.Decimal.StringFixed(2))
	return rental, nil
}

// sendReceipt never fails the rental; delivery problems are only logged.
func (s *rentalService) sendReceipt(ctx context.Context, actor *domain.User, rental *domain.Rental) {
	rider := actor
	if rental.UserID != actor.ID {
		u, err := s.userRepo.GetByID(ctx, rental.UserID)
		if err != nil {
			logger.Warn("Receipt skipped, rider not loaded", "rentalID", rental.ID, "error", err)
			return
		}
		rider = u
	}
	scooter, err := s.scooterRepo.GetByID(ctx, rental.ScooterID)
	if err != nil {
		logger.Warn("Receipt skipped, scooter not loaded", "rentalID", rental.ID, "error", err)
		return
	}
	if err := s.notifier.SendRentalReceipt(ctx, rider, rental, scooter); err != nil {
		logger.Warn("Failed to send rental receipt", "rentalID", rental.ID, "email", rider.Email, "error", err)
	}
}

func (s *rentalService) Cancel(ctx context.Context, actorID, rentalID int32, reason string) (*domain.Rental, error) {
	logger.EnterMethod("rentalService.Cancel", "actorID", actorID, "rentalID", rentalID)

	_, rental, err := s.loadOperable(ctx, actorID, rentalID)
	if err != nil {
		return nil, err
	}
	if err := rental.Cancel(s.now(), reason); err != nil {
		logger.ExitMethodWithError("rentalService.Cancel", err, true, "rentalID", rentalID, "status", rental.Status)
		return nil, err
	}
	if err := s.rentalRepo.Finish(ctx, rental); err != nil {
		err = storeErr(err, "rental", rentalID)
		logger.ExitMethodWithError("rentalService.Cancel", err, isExpected(err), "rentalID", rentalID)
		return nil, err
	}
	logger.ExitMethod("rentalService.Cancel", "rentalID", rentalID)
	return rental, nil
}

func (s *rentalService) Rate(ctx context.Context, actorID, rentalID int32, rating int32, feedback string) (*domain.Rental, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	rental, err := s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, storeErr(err, "rental", rentalID)
	}
	if !domain.CanRateRental(actor, rental) {
		return nil, domain.NewForbiddenError("only the rider can rate rental %d", rentalID)
	}
	if err := rental.Rate(rating, feedback); err != nil {
		return nil, err
	}
	if err := s.rentalRepo.UpdateRating(ctx, rental.ID, *rental.Rating, rental.Feedback); err != nil {
		return nil, storeErr(err, "rental", rentalID)
	}
	logger.Info("Rental rated", "rentalID", rentalID, "rating", rating)
	return rental, nil
}

func (s *rentalService) Get(ctx context.Context, actorID, rentalID int32) (*domain.Rental, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	rental, err := s.rentalRepo.GetByID(ctx, rentalID)
	if err != nil {
		return nil, storeErr(err, "rental", rentalID)
	}
	if err := s.checkView(ctx, actor, rental); err != nil {
		return nil, err
	}
	return rental, nil
}

func (s *rentalService) GetByCode(ctx context.Context, actorID int32, code string) (*domain.Rental, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	rental, err := s.rentalRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, storeErr(err, "rental", code)
	}
	if err := s.checkView(ctx, actor, rental); err != nil {
		return nil, err
	}
	return rental, nil
}

func (s *rentalService) checkView(ctx context.Context, actor *domain.User, rental *domain.Rental) error {
	var scooter *domain.Scooter
	if actor.IsProvider() && rental.UserID != actor.ID {
		sc, err := s.scooterRepo.GetByID(ctx, rental.ScooterID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load scooter: %w", err)
		}
		scooter = sc
	}
	if !domain.CanViewRental(actor, rental, scooter) {
		return domain.NewForbiddenError("not authorized to view rental %d", rental.ID)
	}
	return nil
}

func (s *rentalService) List(ctx context.Context, actorID int32, filter repository.RentalFilter) ([]domain.Rental, int32, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.NewValidationError("invalid rental status %q", filter.Status)
	}
	switch {
	case actor.Can(domain.ActionViewAllRentals):
	case actor.IsProvider() && filter.UserID != actor.ID:
		filter.ProviderID = actor.ID
	default:
		filter.UserID = actor.ID
	}
	rentals, count, err := s.rentalRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list rentals: %w", err)
	}
	return rentals, count, nil
}

func (s *rentalService) Active(ctx context.Context, actorID int32) (*domain.Rental, error) {
	if _, err := loadActor(ctx, s.userRepo, actorID); err != nil {
		return nil, err
	}
	rental, err := s.rentalRepo.GetOpenByUser(ctx, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("rental", "for user "+fmt.Sprint(actorID))
	}
	return rental, storeErr(err, "rental", actorID)
}

func (s *rentalService) PaymentStatus(ctx context.Context, actorID, rentalID int32) (*domain.RentalPaymentStatus, error) {
	rental, err := s.Get(ctx, actorID, rentalID)
	if err != nil {
		return nil, err
	}
	paid, err := s.paymentRepo.SumPaidForRental(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}
	status := rental.PaymentStatus(paid, s.now())
	return &status, nil
}

func (s *rentalService) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-time.Duration(s.pricing.MaxRentalHours) * time.Hour)
	candidates, err := s.rentalRepo.ListOverdueCandidates(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list overdue candidates: %w", err)
	}

	marked := 0
	for _, r := range candidates {
		if !r.IsOverdue(now, s.pricing.MaxRentalHours) {
			continue
		}
		ok, err := s.rentalRepo.MarkOverdue(ctx, r.ID)
		if err != nil {
			logger.Error("Failed to mark rental overdue", "rentalID", r.ID, "error", err)
			continue
		}
		if ok {
			marked++
			logger.Info("Rental marked overdue", "rentalID", r.ID, "code", r.RentalCode, "userID", r.UserID)
		}
	}
	return marked, nil
}

func (s *rentalService) TriggerOverdueSweep(ctx context.Context, actorID int32) (int, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return 0, err
	}
	if err := authorize(actor, domain.ActionSweepOverdue); err != nil {
		return 0, err
	}
	return s.SweepOverdue(ctx)
}

func (s *rentalService) Statistics(ctx context.Context, actorID int32) (*domain.RentalStatistics, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionViewPlatformStat); err != nil {
		return nil, err
	}
	stats, err := s.rentalRepo.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("rental statistics: %w", err)
	}
	return stats, nil
}

func (s *rentalService) UserStatistics(ctx context.Context, actorID, userID int32) (*domain.UserRentalStats, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != userID && !actor.Can(domain.ActionViewAllRentals) {
		return nil, domain.NewForbiddenError("cannot view another user's rental statistics")
	}
	stats, err := s.rentalRepo.UserStatistics(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user", userID)
	}
	return stats, nil
}
