package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scooter-share-pro/internal/utils"
)

type ScooterStatus string

const (
	ScooterStatusAvailable   ScooterStatus = "available"
	ScooterStatusInUse       ScooterStatus = "in_use"
	ScooterStatusMaintenance ScooterStatus = "maintenance"
	ScooterStatusOffline     ScooterStatus = "offline"
)

const (
	// MinRentableBattery is the level a scooter must exceed to be rented.
	MinRentableBattery = 10
	// LowBatteryThreshold flags a scooter for maintenance.
	LowBatteryThreshold = 20
	MaintenanceInterval = 30 * 24 * time.Hour
)

func (s ScooterStatus) Valid() bool {
	switch s {
	case ScooterStatusAvailable, ScooterStatusInUse, ScooterStatusMaintenance, ScooterStatusOffline:
		return true
	}
	return false
}

type Scooter struct {
	ID                 int32         `json:"id"`
	Identifier         string        `json:"identifier"`
	Model              string        `json:"model"`
	Brand              string        `json:"brand"`
	Latitude           float64       `json:"latitude"`
	Longitude          float64       `json:"longitude"`
	Geohash            string        `json:"geohash"`
	Address            string        `json:"address,omitempty"`
	LastLocationUpdate time.Time     `json:"last_location_update"`
	Status             ScooterStatus `json:"status"`
	BatteryLevel       int32         `json:"battery_level"`
	MaxSpeed           float64       `json:"max_speed"`
	RangeKm            float64       `json:"range_km"`
	QRCode             string        `json:"qr_code"`
	ProviderID         int32         `json:"provider_id"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	LastMaintenance    *time.Time    `json:"last_maintenance,omitempty"`
}

// IsAvailable is evaluated on every call; it is never stored.
func (s *Scooter) IsAvailable() bool {
	return s.Status == ScooterStatusAvailable && s.BatteryLevel > MinRentableBattery
}

func (s *Scooter) NeedsMaintenance(now time.Time) bool {
	if s.BatteryLevel < LowBatteryThreshold {
		return true
	}
	return s.LastMaintenance != nil && now.Sub(*s.LastMaintenance) > MaintenanceInterval
}

// DistanceFrom returns the haversine distance in kilometers.
func (s *Scooter) DistanceFrom(lat, lon float64) float64 {
	return utils.CalculateDistance(
		utils.GeoPoint{Latitude: s.Latitude, Longitude: s.Longitude},
		utils.GeoPoint{Latitude: lat, Longitude: lon},
	)
}

func (s *Scooter) SetLocation(lat, lon float64, address string, at time.Time) error {
	if !utils.ValidCoordinates(lat, lon) {
		return ErrInvalidCoordinates
	}
	s.Latitude = lat
	s.Longitude = lon
	s.Geohash = utils.EncodeLocation(lat, lon)
	if address != "" {
		s.Address = address
	}
	s.LastLocationUpdate = at
	return nil
}

// Validate checks the invariants every persisted scooter must satisfy.
func (s *Scooter) Validate() error {
	if s.Identifier == "" {
		return NewValidationError("identifier is required")
	}
	if s.Model == "" || s.Brand == "" {
		return NewValidationError("model and brand are required")
	}
	if s.BatteryLevel < 0 || s.BatteryLevel > 100 {
		return ErrBatteryOutOfRange
	}
	if !s.Status.Valid() {
		return ErrInvalidScooterStatus
	}
	if !utils.ValidCoordinates(s.Latitude, s.Longitude) {
		return ErrInvalidCoordinates
	}
	if s.MaxSpeed < 0 || s.RangeKm < 0 {
		return NewValidationError("max_speed and range_km cannot be negative")
	}
	return nil
}

// NormalizeScooter applies the canonical casing rules before a scooter is stored.
func NormalizeScooter(s *Scooter) {
	s.Identifier = strings.ToUpper(strings.TrimSpace(s.Identifier))
	s.Model = TitleCase(s.Model)
	s.Brand = TitleCase(s.Brand)
	s.Address = strings.TrimSpace(s.Address)
}

// NewQRCode mints the opaque code printed on a scooter: SCOOT-<8 hex>-<IDENTIFIER>.
func NewQRCode(identifier string) string {
	return fmt.Sprintf("SCOOT-%s-%s", randomHex(8), identifier)
}

func randomHex(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n])
}

// ScooterUpdate lists the scooter fields an owner may edit directly. Status,
// location and ownership have dedicated operations.
type ScooterUpdate struct {
	Model        *string
	Brand        *string
	Address      *string
	BatteryLevel *int32
	MaxSpeed     *float64
	RangeKm      *float64
}

func (u ScooterUpdate) Empty() bool {
	return u.Model == nil && u.Brand == nil && u.Address == nil && u.BatteryLevel == nil && u.MaxSpeed == nil && u.RangeKm == nil
}

func (u ScooterUpdate) Apply(s *Scooter) error {
	if u.Model != nil {
		model := TitleCase(*u.Model)
		if model == "" {
			return NewValidationError("model cannot be empty")
		}
		s.Model = model
	}
	if u.Brand != nil {
		brand := TitleCase(*u.Brand)
		if brand == "" {
			return NewValidationError("brand cannot be empty")
		}
		s.Brand = brand
	}
	if u.Address != nil {
		s.Address = strings.TrimSpace(*u.Address)
	}
	if u.BatteryLevel != nil {
		if *u.BatteryLevel < 0 || *u.BatteryLevel > 100 {
			return ErrBatteryOutOfRange
		}
		s.BatteryLevel = *u.BatteryLevel
	}
	if u.MaxSpeed != nil {
		if *u.MaxSpeed < 0 {
			return NewValidationError("max_speed cannot be negative")
		}
		s.MaxSpeed = *u.MaxSpeed
	}
	if u.RangeKm != nil {
		if *u.RangeKm < 0 {
			return NewValidationError("range_km cannot be negative")
		}
		s.RangeKm = *u.RangeKm
	}
	return nil
}
