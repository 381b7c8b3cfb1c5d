package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/utils"
)

type RentalStatus string

const (
	RentalStatusActive    RentalStatus = "active"
	RentalStatusCompleted RentalStatus = "completed"
	RentalStatusCancelled RentalStatus = "cancelled"
	RentalStatusOverdue   RentalStatus = "overdue"
)

// OpenRentalStatuses are the states in which a rental still holds its scooter.
var OpenRentalStatuses = []RentalStatus{RentalStatusActive, RentalStatusOverdue}

const DefaultCancelReason = "Cancelled by user"

func (s RentalStatus) Valid() bool {
	switch s {
	case RentalStatusActive, RentalStatusCompleted, RentalStatusCancelled, RentalStatusOverdue:
		return true
	}
	return false
}

// Pricing is the tariff in effect when a rental starts. Rentals keep their own
// copy so later tariff changes never touch them.
type Pricing struct {
	BaseFee        decimal.Decimal
	PerMinuteRate  decimal.Decimal
	Currency       string
	MaxRentalHours int
}

type Rental struct {
	ID              int32               `json:"id"`
	RentalCode      string              `json:"rental_code"`
	UserID          int32               `json:"user_id"`
	ScooterID       int32               `json:"scooter_id"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         *time.Time          `json:"end_time,omitempty"`
	DurationMinutes *int32              `json:"duration_minutes,omitempty"`
	StartLatitude   float64             `json:"start_latitude"`
	StartLongitude  float64             `json:"start_longitude"`
	EndLatitude     *float64            `json:"end_latitude,omitempty"`
	EndLongitude    *float64            `json:"end_longitude,omitempty"`
	Status          RentalStatus        `json:"status"`
	BaseFee         decimal.Decimal     `json:"base_fee"`
	PerMinuteRate   decimal.Decimal     `json:"per_minute_rate"`
	TotalCost       decimal.NullDecimal `json:"total_cost"`
	Rating          *int32              `json:"rating,omitempty"`
	Feedback        string              `json:"feedback,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func NewRental(userID, scooterID int32, lat, lon float64, pricing Pricing, now time.Time) *Rental {
	return &Rental{
		RentalCode:     NewRentalCode(),
		UserID:         userID,
		ScooterID:      scooterID,
		StartTime:      now,
		StartLatitude:  lat,
		StartLongitude: lon,
		Status:         RentalStatusActive,
		BaseFee:        pricing.BaseFee,
		PerMinuteRate:  pricing.PerMinuteRate,
	}
}

// NewRentalCode mints a rental code of the form R-<8 hex>.
func NewRentalCode() string {
	return "R-" + randomHex(8)
}

func (r *Rental) IsOpen() bool {
	return r.Status == RentalStatusActive || r.Status == RentalStatusOverdue
}

// ElapsedMinutes is the stored duration for closed rentals and the running
// duration for open ones.
func (r *Rental) ElapsedMinutes(now time.Time) int {
	if r.DurationMinutes != nil {
		return int(*r.DurationMinutes)
	}
	if r.EndTime != nil {
		return utils.DurationMinutes(r.StartTime, *r.EndTime)
	}
	return utils.DurationMinutes(r.StartTime, now)
}

func (r *Rental) FormattedDuration(now time.Time) string {
	return utils.FormatDuration(r.ElapsedMinutes(now))
}

// CurrentCost is the final cost once closed, or what the rental would cost if ended now.
func (r *Rental) CurrentCost(now time.Time) decimal.Decimal {
	if r.TotalCost.Valid {
		return r.TotalCost.Decimal
	}
	return utils.CalculateRentalCost(r.BaseFee, r.PerMinuteRate, r.ElapsedMinutes(now))
}

// IsOverdue reports whether an active rental has run past maxHours.
func (r *Rental) IsOverdue(now time.Time, maxHours int) bool {
	return r.Status == RentalStatusActive && now.After(r.StartTime.Add(time.Duration(maxHours)*time.Hour))
}

// Complete closes the rental and charges base fee plus elapsed minutes.
func (r *Rental) Complete(at time.Time, endLat, endLon *float64) error {
	if !r.IsOpen() {
		return ErrRentalNotActive
	}
	if (endLat == nil) != (endLon == nil) {
		return NewValidationError("end_latitude and end_longitude must be given together")
	}
	if endLat != nil && !utils.ValidCoordinates(*endLat, *endLon) {
		return ErrInvalidCoordinates
	}
	minutes := r.stamp(at)
	r.EndLatitude = endLat
	r.EndLongitude = endLon
	r.TotalCost = decimal.NewNullDecimal(utils.CalculateRentalCost(r.BaseFee, r.PerMinuteRate, minutes))
	r.Status = RentalStatusCompleted
	return nil
}

// Cancel closes the rental charging only the base fee.
func (r *Rental) Cancel(at time.Time, reason string) error {
	if !r.IsOpen() {
		return ErrRentalNotActive
	}
	r.stamp(at)
	r.TotalCost = decimal.NewNullDecimal(utils.RoundMoney(r.BaseFee))
	r.Status = RentalStatusCancelled
	r.Notes = strings.TrimSpace(reason)
	if r.Notes == "" {
		r.Notes = DefaultCancelReason
	}
	return nil
}

func (r *Rental) stamp(at time.Time) int {
	minutes := utils.DurationMinutes(r.StartTime, at)
	d := int32(minutes)
	r.EndTime = &at
	r.DurationMinutes = &d
	return minutes
}

// Rate overwrites any previous rating and feedback.
func (r *Rental) Rate(rating int32, feedback string) error {
	if r.Status != RentalStatusCompleted {
		return ErrRentalNotCompleted
	}
	if rating < 1 || rating > 5 {
		return ErrRatingOutOfRange
	}
	r.Rating = &rating
	r.Feedback = strings.TrimSpace(feedback)
	return nil
}

// RentalPaymentStatus compares what a rental costs with what has been paid for it.
type RentalPaymentStatus struct {
	TotalCost   decimal.Decimal `json:"total_cost"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	IsFullyPaid bool            `json:"is_fully_paid"`
}

func (r *Rental) PaymentStatus(paid decimal.Decimal, now time.Time) RentalPaymentStatus {
	total := r.CurrentCost(now)
	outstanding := total.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return RentalPaymentStatus{
		TotalCost:   total,
		Paid:        paid,
		Outstanding: outstanding,
		IsFullyPaid: !outstanding.IsPositive(),
	}
}
