package domain

import "github.com/shopspring/decimal"

type RentalStatistics struct {
	TotalRentals           int64           `json:"total_rentals"`
	ActiveRentals          int64           `json:"active_rentals"`
	CompletedRentals       int64           `json:"completed_rentals"`
	CancelledRentals       int64           `json:"cancelled_rentals"`
	OverdueRentals         int64           `json:"overdue_rentals"`
	TotalRevenue           decimal.Decimal `json:"total_revenue"`
	AverageDurationMinutes float64         `json:"average_duration_minutes"`
}

// CompletionRate is the share of all rentals that completed, in percent.
func (s RentalStatistics) CompletionRate() float64 {
	if s.TotalRentals == 0 {
		return 0
	}
	return float64(s.CompletedRentals) / float64(s.TotalRentals) * 100
}

type UserRentalStats struct {
	UserID           int32           `json:"user_id"`
	TotalRentals     int64           `json:"total_rentals"`
	CompletedRentals int64           `json:"completed_rentals"`
	TotalMinutes     int64           `json:"total_minutes"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	AverageRating    *float64        `json:"average_rating,omitempty"`
}

type ScooterStats struct {
	ScooterID        int32           `json:"scooter_id"`
	TotalRentals     int64           `json:"total_rentals"`
	CompletedRentals int64           `json:"completed_rentals"`
	TotalMinutes     int64           `json:"total_minutes"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	AverageRating    *float64        `json:"average_rating,omitempty"`
	NeedsMaintenance bool            `json:"needs_maintenance"`
}

type ProviderStats struct {
	ProviderID          int32           `json:"provider_id"`
	TotalScooters       int64           `json:"total_scooters"`
	AvailableScooters   int64           `json:"available_scooters"`
	InUseScooters       int64           `json:"in_use_scooters"`
	MaintenanceScooters int64           `json:"maintenance_scooters"`
	OfflineScooters     int64           `json:"offline_scooters"`
	TotalRentals        int64           `json:"total_rentals"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
}

// UtilizationRate is the share of the fleet currently rented, in percent.
func (s ProviderStats) UtilizationRate() float64 {
	if s.TotalScooters == 0 {
		return 0
	}
	return float64(s.InUseScooters) / float64(s.TotalScooters) * 100
}

type PaymentStatistics struct {
	TotalPayments     int64           `json:"total_payments"`
	CompletedPayments int64           `json:"completed_payments"`
	PendingPayments   int64           `json:"pending_payments"`
	FailedPayments    int64           `json:"failed_payments"`
	RefundedPayments  int64           `json:"refunded_payments"`
	TotalCollected    decimal.Decimal `json:"total_collected"`
	TotalRefunded     decimal.Decimal `json:"total_refunded"`
}

func (s PaymentStatistics) NetRevenue() decimal.Decimal {
	return s.TotalCollected.Sub(s.TotalRefunded)
}

type UserStats struct {
	TotalUsers    int64          `json:"total_users"`
	ActiveUsers   int64          `json:"active_users"`
	VerifiedUsers int64          `json:"verified_users"`
	ByRole        map[Role]int64 `json:"by_role"`
}
