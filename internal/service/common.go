package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
)

// storeErr passes business errors through, turns a missing row into a not-found
// error for entity and wraps anything else as an internal failure.
func storeErr(err error, entity string, key any) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(entity, key)
	}
	return fmt.Errorf("%s %v: %w", entity, key, err)
}

// loadActor re-reads the caller on every call so that role and activation
// changes take effect immediately.
func loadActor(ctx context.Context, users repository.UserRepository, id int32) (*domain.User, error) {
	actor, err := users.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load actor %d: %w", id, err)
	}
	if !actor.IsActive {
		return nil, domain.ErrUserInactive
	}
	return actor, nil
}

func authorize(actor *domain.User, action domain.Action) error {
	if !actor.Can(action) {
		return domain.NewForbiddenError("%s is not permitted for role %s", action, actor.Role)
	}
	return nil
}

// isExpected tells the method tracer whether err is a business outcome.
func isExpected(err error) bool {
	_, ok := domain.AsError(err)
	return ok
}
