package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies business-rule failures. Anything that is not a *Error
// is treated as an internal failure by the boundary layer.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindConflict        ErrorKind = "state_conflict"
)

type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so that wrapped or re-messaged errors still compare equal
// to the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(entity string, key any) *Error {
	return &Error{Kind: KindNotFound, Code: entity + "_not_found", Message: fmt.Sprintf("%s %v not found", entity, key)}
}

func NewForbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a business error, if it is one.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a business error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsError(err)
	return ok && de.Kind == kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Code: "invalid_credentials", Message: "invalid email or password"}
	ErrUserInactive       = &Error{Kind: KindUnauthenticated, Code: "user_inactive", Message: "account is deactivated"}
	ErrInvalidToken       = &Error{Kind: KindUnauthenticated, Code: "invalid_token", Message: "invalid or expired token"}
	ErrEmailTaken         = &Error{Kind: KindValidation, Code: "email_taken", Message: "email is already registered"}
	ErrInvalidRole        = &Error{Kind: KindValidation, Code: "invalid_role", Message: "role must be one of admin, provider, customer"}
	ErrPasswordTooShort   = &Error{Kind: KindValidation, Code: "password_too_short", Message: "password must be at least 8 characters"}
	ErrPasswordTooLong    = &Error{Kind: KindValidation, Code: "password_too_long", Message: "password must be at most 72 bytes"}
	ErrWrongPassword      = &Error{Kind: KindValidation, Code: "wrong_password", Message: "current password is incorrect"}

	ErrAdminRoleImmutable   = &Error{Kind: KindConflict, Code: "admin_role_immutable", Message: "admin role cannot be changed"}
	ErrProviderOwnsScooters = &Error{Kind: KindConflict, Code: "provider_owns_scooters", Message: "provider still owns scooters"}
	ErrNotAProvider         = &Error{Kind: KindConflict, Code: "not_a_provider", Message: "user is not a provider"}
	ErrNotACustomer         = &Error{Kind: KindConflict, Code: "not_a_customer", Message: "only customers can be promoted to provider"}

	ErrScooterUnavailable     = &Error{Kind: KindConflict, Code: "scooter_unavailable", Message: "scooter is not available for rental"}
	ErrScooterHasActiveRental = &Error{Kind: KindConflict, Code: "scooter_has_active_rental", Message: "scooter has an active rental"}
	ErrIdentifierTaken        = &Error{Kind: KindValidation, Code: "identifier_taken", Message: "scooter identifier already exists"}
	ErrInvalidCoordinates     = &Error{Kind: KindValidation, Code: "invalid_coordinates", Message: "latitude must be within [-90,90] and longitude within [-180,180]"}
	ErrBatteryOutOfRange      = &Error{Kind: KindValidation, Code: "battery_out_of_range", Message: "battery level must be between 0 and 100"}
	ErrInvalidScooterStatus   = &Error{Kind: KindValidation, Code: "invalid_scooter_status", Message: "status must be one of available, in_use, maintenance, offline"}
	ErrNotInMaintenance       = &Error{Kind: KindConflict, Code: "not_in_maintenance", Message: "scooter is not in maintenance mode"}
	ErrConcurrentRentalExists = &Error{Kind: KindConflict, Code: "concurrent_rental_exists", Message: "user already has an active rental"}
	ErrRentalNotActive        = &Error{Kind: KindConflict, Code: "rental_not_active", Message: "rental is not active"}
	ErrRentalNotCompleted     = &Error{Kind: KindConflict, Code: "rental_not_completed", Message: "rental is not completed"}
	ErrRentalNotSettleable    = &Error{Kind: KindConflict, Code: "rental_not_settleable", Message: "only completed or cancelled rentals can be paid"}
	ErrRatingOutOfRange       = &Error{Kind: KindValidation, Code: "rating_out_of_range", Message: "rating must be between 1 and 5"}
	ErrInvalidAmount          = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "amount must be greater than zero"}
	ErrInvalidPaymentMethod   = &Error{Kind: KindValidation, Code: "invalid_payment_method", Message: "method must be one of credit_card, paypal, bank_transfer, cash"}
	ErrPaymentStateConflict   = &Error{Kind: KindConflict, Code: "payment_state_conflict", Message: "payment cannot transition from its current status"}
	ErrPaymentNotRefundable   = &Error{Kind: KindConflict, Code: "payment_not_refundable", Message: "payment is not refundable"}
	ErrRefundExceedsAmount    = &Error{Kind: KindValidation, Code: "refund_exceeds_amount", Message: "refund exceeds the refundable amount"}
	ErrRentalAlreadySettled   = &Error{Kind: KindConflict, Code: "rental_already_settled", Message: "rental has no outstanding balance"}
)
