package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
)

type userService struct {
	userRepo    repository.UserRepository
	scooterRepo repository.ScooterRepository
}

func NewUserService(userRepo repository.UserRepository, scooterRepo repository.ScooterRepository) UserService {
	return &userService{
		userRepo:    userRepo,
		scooterRepo: scooterRepo,
	}
}

func (s *userService) GetProfile(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if !domain.CanViewUser(actor, userID) {
		return nil, domain.NewForbiddenError("cannot view another user's profile")
	}
	if actorID == userID {
		return actor, nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	return user, storeErr(err, "user", userID)
}

func (s *userService) UpdateProfile(ctx context.Context, actorID, userID int32, update domain.UserUpdate) (*domain.User, error) {
	logger.EnterMethod("userService.UpdateProfile", "actorID", actorID, "userID", userID)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if actorID != userID && !actor.Can(domain.ActionManageUsers) {
		return nil, domain.NewForbiddenError("cannot edit another user's profile")
	}
	if update.Empty() {
		return nil, domain.NewValidationError("no valid fields to update")
	}

	user := actor
	if actorID != userID {
		if user, err = s.userRepo.GetByID(ctx, userID); err != nil {
			return nil, storeErr(err, "user", userID)
		}
	}
	previousEmail := user.Email
	if err := update.Apply(user); err != nil {
		logger.ExitMethodWithError("userService.UpdateProfile", err, true, "userID", userID)
		return nil, err
	}
	if user.Email != previousEmail {
		other, err := s.userRepo.GetByEmail(ctx, user.Email)
		if err == nil && other.ID != user.ID {
			return nil, domain.ErrEmailTaken
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check email: %w", err)
		}
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		err = storeErr(err, "user", userID)
		logger.ExitMethodWithError("userService.UpdateProfile", err, isExpected(err), "userID", userID)
		return nil, err
	}
	logger.ExitMethod("userService.UpdateProfile", "userID", userID)
	return user, nil
}

func (s *userService) List(ctx context.Context, actorID int32, filter repository.UserFilter) ([]domain.User, int32, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, 0, err
	}
	if err := authorize(actor, domain.ActionListUsers); err != nil {
		return nil, 0, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, domain.ErrInvalidRole
	}
	users, count, err := s.userRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, count, nil
}

func (s *userService) Activate(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	return s.manage(ctx, "userService.Activate", actorID, userID, func(u *domain.User) error {
		u.IsActive = true
		return nil
	})
}

func (s *userService) Deactivate(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	if actorID == userID {
		return nil, domain.NewValidationError("cannot deactivate your own account")
	}
	return s.manage(ctx, "userService.Deactivate", actorID, userID, func(u *domain.User) error {
		u.IsActive = false
		return nil
	})
}

func (s *userService) Verify(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	return s.manage(ctx, "userService.Verify", actorID, userID, func(u *domain.User) error {
		u.IsVerified = true
		return nil
	})
}

func (s *userService) PromoteToProvider(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	return s.manage(ctx, "userService.PromoteToProvider", actorID, userID, func(u *domain.User) error {
		switch u.Role {
		case domain.RoleAdmin:
			return domain.ErrAdminRoleImmutable
		case domain.RoleProvider:
			return domain.ErrNotACustomer.WithMessage("user is already a provider")
		}
		u.Role = domain.RoleProvider
		return nil
	})
}

func (s *userService) DemoteToCustomer(ctx context.Context, actorID, userID int32) (*domain.User, error) {
	return s.manage(ctx, "userService.DemoteToCustomer", actorID, userID, func(u *domain.User) error {
		switch u.Role {
		case domain.RoleAdmin:
			return domain.ErrAdminRoleImmutable
		case domain.RoleCustomer:
			return domain.ErrNotAProvider
		}
		owned, err := s.scooterRepo.CountByProvider(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("count scooters: %w", err)
		}
		if owned > 0 {
			return domain.ErrProviderOwnsScooters.WithMessage("provider still owns %d scooters", owned)
		}
		u.Role = domain.RoleCustomer
		return nil
	})
}

// manage loads the target for an admin, applies change and persists it.
func (s *userService) manage(ctx context.Context, method string, actorID, userID int32, change func(*domain.User) error) (*domain.User, error) {
	logger.EnterMethod(method, "actorID", actorID, "userID", userID)

	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionManageUsers); err != nil {
		logger.ExitMethodWithError(method, err, true, "actorID", actorID)
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user", userID)
	}
	if err := change(user); err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "userID", userID)
		return nil, err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, storeErr(err, "user", userID)
	}
	logger.ExitMethod(method, "userID", userID, "role", user.Role, "active", user.IsActive)
	return user, nil
}

func (s *userService) Delete(ctx context.Context, actorID, userID int32) error {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return err
	}
	if err := authorize(actor, domain.ActionManageUsers); err != nil {
		return err
	}
	if actorID == userID {
		return domain.NewValidationError("cannot delete your own account")
	}
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return storeErr(err, "user", userID)
	}
	logger.Info("User deleted", "adminID", actorID, "userID", userID)
	return nil
}

func (s *userService) Stats(ctx context.Context, actorID int32) (*domain.UserStats, error) {
	actor, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, domain.ActionViewPlatformStat); err != nil {
		return nil, err
	}
	stats, err := s.userRepo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}
