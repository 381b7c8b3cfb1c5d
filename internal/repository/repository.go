package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page normalises a limit/offset pair
type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type UserFilter struct {
	Role       domain.Role
	Query      string // matched against email, first and last name
	ActiveOnly bool
	Page
}

type ScooterFilter struct {
	Status        domain.ScooterStatus
	ProviderID    int32
	GeohashPrefix string
	Query         string // matched against identifier, model, brand
	MaxBattery    *int32
	Page
}

type RentalFilter struct {
	UserID     int32
	ScooterID  int32
	ProviderID int32 // rentals of scooters owned by this provider
	Status     domain.RentalStatus
	Page
}

type PaymentFilter struct {
	UserID   int32
	RentalID int32
	Status   domain.PaymentStatus
	Page
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, id int32, passwordHash string) error
	TouchLastLogin(ctx context.Context, id int32, at time.Time) error
	Delete(ctx context.Context, id int32) error
	List(ctx context.Context, filter UserFilter) ([]domain.User, int32, error)
	Stats(ctx context.Context) (*domain.UserStats, error)
}

type ScooterRepository interface {
	Create(ctx context.Context, scooter *domain.Scooter) error
	GetByID(ctx context.Context, id int32) (*domain.Scooter, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Scooter, error)
	GetByQRCode(ctx context.Context, qrCode string) (*domain.Scooter, error)
	Update(ctx context.Context, scooter *domain.Scooter) error
	// SetStatus is refused while an open rental holds the scooter.
	SetStatus(ctx context.Context, id int32, status domain.ScooterStatus, maintainedAt *time.Time) error
	// Delete refuses to remove a scooter with an open rental.
	Delete(ctx context.Context, id int32) error
	List(ctx context.Context, filter ScooterFilter) ([]domain.Scooter, int32, error)
	// WithinBox returns available scooters inside the box.
	WithinBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]domain.Scooter, error)
	CountByProvider(ctx context.Context, providerID int32) (int64, error)
	Stats(ctx context.Context, id int32) (*domain.ScooterStats, error)
	ProviderStats(ctx context.Context, providerID int32) (*domain.ProviderStats, error)
}

type RentalRepository interface {
	// Start claims the scooter and inserts the rental in one transaction.
	Start(ctx context.Context, rental *domain.Rental) error
	// Finish persists a closed rental and releases its scooter in one transaction.
	Finish(ctx context.Context, rental *domain.Rental) error
	GetByID(ctx context.Context, id int32) (*domain.Rental, error)
	GetByCode(ctx context.Context, code string) (*domain.Rental, error)
	GetOpenByUser(ctx context.Context, userID int32) (*domain.Rental, error)
	UpdateRating(ctx context.Context, id int32, rating int32, feedback string) error
	// MarkOverdue flips a single active rental to overdue; false if it was no longer active.
	MarkOverdue(ctx context.Context, id int32) (bool, error)
	ListOverdueCandidates(ctx context.Context, startedBefore time.Time) ([]domain.Rental, error)
	List(ctx context.Context, filter RentalFilter) ([]domain.Rental, int32, error)
	Statistics(ctx context.Context) (*domain.RentalStatistics, error)
	UserStatistics(ctx context.Context, userID int32) (*domain.UserRentalStats, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id int32) (*domain.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	// UpdateStatus writes a lifecycle transition guarded by the expected previous status.
	UpdateStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error
	// ApplyRefund adds refund to the refunded total unless that would exceed the amount.
	ApplyRefund(ctx context.Context, payment *domain.Payment, refund decimal.Decimal) error
	List(ctx context.Context, filter PaymentFilter) ([]domain.Payment, int32, error)
	ListRefundable(ctx context.Context, userID int32, since time.Time) ([]domain.Payment, error)
	// SumPaidForRental is the net amount collected for a rental, after refunds.
	SumPaidForRental(ctx context.Context, rentalID int32) (decimal.Decimal, error)
	Statistics(ctx context.Context) (*domain.PaymentStatistics, error)
	RevenueByMethod(ctx context.Context) (map[domain.PaymentMethod]decimal.Decimal, error)
}
