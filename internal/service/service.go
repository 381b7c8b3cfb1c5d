package service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/security"
)

// AuthResult is returned by every operation that issues a token pair.
type AuthResult struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *domain.User `json:"user"`
}

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      domain.Role // empty means customer
}

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	// CreateUser is the admin path for accounts of any role, including admin.
	CreateUser(ctx context.Context, actorID int32, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	// Authenticate validates an access token and rejects revoked ones.
	Authenticate(ctx context.Context, accessToken string) (*security.UserClaims, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	ChangePassword(ctx context.Context, userID int32, current, next string) error
	ResetPassword(ctx context.Context, actorID, userID int32, next string) error
}

type UserService interface {
	GetProfile(ctx context.Context, actorID, userID int32) (*domain.User, error)
	UpdateProfile(ctx context.Context, actorID, userID int32, update domain.UserUpdate) (*domain.User, error)
	List(ctx context.Context, actorID int32, filter repository.UserFilter) ([]domain.User, int32, error)
	Activate(ctx context.Context, actorID, userID int32) (*domain.User, error)
	Deactivate(ctx context.Context, actorID, userID int32) (*domain.User, error)
	Verify(ctx context.Context, actorID, userID int32) (*domain.User, error)
	PromoteToProvider(ctx context.Context, actorID, userID int32) (*domain.User, error)
	DemoteToCustomer(ctx context.Context, actorID, userID int32) (*domain.User, error)
	Delete(ctx context.Context, actorID, userID int32) error
	Stats(ctx context.Context, actorID int32) (*domain.UserStats, error)
}

type CreateScooterRequest struct {
	Identifier   string
	Model        string
	Brand        string
	Latitude     float64
	Longitude    float64
	Address      string
	BatteryLevel *int32
	MaxSpeed     *float64
	RangeKm      *float64
	// ProviderID lets an admin create a scooter on behalf of a provider.
	ProviderID int32
}

// NearbyScooter pairs a scooter with its distance from the search point.
type NearbyScooter struct {
	domain.Scooter
	DistanceKm float64 `json:"distance_km"`
}

type ScooterService interface {
	Create(ctx context.Context, actorID int32, req CreateScooterRequest) (*domain.Scooter, error)
	Get(ctx context.Context, id int32) (*domain.Scooter, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Scooter, error)
	GetByQRCode(ctx context.Context, qrCode string) (*domain.Scooter, error)
	List(ctx context.Context, filter repository.ScooterFilter) ([]domain.Scooter, int32, error)
	ListAvailable(ctx context.Context, page repository.Page) ([]domain.Scooter, error)
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]NearbyScooter, error)
	Update(ctx context.Context, actorID, id int32, update domain.ScooterUpdate) (*domain.Scooter, error)
	UpdateLocation(ctx context.Context, actorID, id int32, lat, lon float64, address string) (*domain.Scooter, error)
	UpdateBattery(ctx context.Context, actorID, id int32, level int32) (*domain.Scooter, error)
	SetStatus(ctx context.Context, actorID, id int32, status domain.ScooterStatus) (*domain.Scooter, error)
	SetMaintenance(ctx context.Context, actorID, id int32) (*domain.Scooter, error)
	CompleteMaintenance(ctx context.Context, actorID, id int32) (*domain.Scooter, error)
	Delete(ctx context.Context, actorID, id int32) error
	NeedingMaintenance(ctx context.Context, actorID int32) ([]domain.Scooter, error)
	LowBattery(ctx context.Context, actorID int32, threshold int32) ([]domain.Scooter, error)
	// FlagLowBattery moves idle scooters below the low-battery threshold into maintenance.
	FlagLowBattery(ctx context.Context) (int, error)
	Statistics(ctx context.Context, actorID, id int32) (*domain.ScooterStats, error)
	ProviderStatistics(ctx context.Context, actorID, providerID int32) (*domain.ProviderStats, error)
	QRImage(ctx context.Context, id int32, size int) ([]byte, error)
}

type StartRentalRequest struct {
	ScooterID int32
	Latitude  float64
	Longitude float64
}

type RentalService interface {
	Start(ctx context.Context, actorID int32, req StartRentalRequest) (*domain.Rental, error)
	End(ctx context.Context, actorID, rentalID int32, endLat, endLon *float64) (*domain.Rental, error)
	Cancel(ctx context.Context, actorID, rentalID int32, reason string) (*domain.Rental, error)
	Rate(ctx context.Context, actorID, rentalID int32, rating int32, feedback string) (*domain.Rental, error)
	Get(ctx context.Context, actorID, rentalID int32) (*domain.Rental, error)
	GetByCode(ctx context.Context, actorID int32, code string) (*domain.Rental, error)
	// List scopes the filter to what the actor may see.
	List(ctx context.Context, actorID int32, filter repository.RentalFilter) ([]domain.Rental, int32, error)
	Active(ctx context.Context, actorID int32) (*domain.Rental, error)
	PaymentStatus(ctx context.Context, actorID, rentalID int32) (*domain.RentalPaymentStatus, error)
	// SweepOverdue flips every active rental past the maximum duration to overdue.
	SweepOverdue(ctx context.Context) (int, error)
	// TriggerOverdueSweep runs the sweep on behalf of an admin.
	TriggerOverdueSweep(ctx context.Context, actorID int32) (int, error)
	Statistics(ctx context.Context, actorID int32) (*domain.RentalStatistics, error)
	UserStatistics(ctx context.Context, actorID, userID int32) (*domain.UserRentalStats, error)
}

type CreatePaymentRequest struct {
	RentalID int32
	Amount   decimal.Decimal
	Currency string // empty means the configured currency
	Method   domain.PaymentMethod
}

type PaymentService interface {
	Create(ctx context.Context, actorID int32, req CreatePaymentRequest) (*domain.Payment, error)
	Process(ctx context.Context, actorID, paymentID int32) (*domain.Payment, error)
	Complete(ctx context.Context, actorID, paymentID int32, gatewayTxID string, gatewayResponse json.RawMessage) (*domain.Payment, error)
	Fail(ctx context.Context, actorID, paymentID int32, gatewayResponse json.RawMessage) (*domain.Payment, error)
	Refund(ctx context.Context, actorID, paymentID int32, amount *decimal.Decimal, reason string) (*domain.Payment, error)
	// PayRental settles a closed rental's outstanding balance in one completed payment.
	PayRental(ctx context.Context, actorID, rentalID int32, method domain.PaymentMethod) (*domain.Payment, error)
	Get(ctx context.Context, actorID, paymentID int32) (*domain.Payment, error)
	GetByTransactionID(ctx context.Context, actorID int32, transactionID string) (*domain.Payment, error)
	List(ctx context.Context, actorID int32, filter repository.PaymentFilter) ([]domain.Payment, int32, error)
	Refundable(ctx context.Context, actorID int32) ([]domain.Payment, error)
	Statistics(ctx context.Context, actorID int32) (*domain.PaymentStatistics, error)
	RevenueByMethod(ctx context.Context, actorID int32) (map[domain.PaymentMethod]decimal.Decimal, error)
}

// Notifier delivers user-facing messages. Delivery is best effort.
type Notifier interface {
	SendRentalReceipt(ctx context.Context, user *domain.User, rental *domain.Rental, scooter *domain.Scooter) error
}
