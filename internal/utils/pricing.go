package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places money is stored with
const MoneyPlaces int32 = 2

// DurationMinutes returns the whole minutes elapsed between start and end.
// Partial minutes are dropped; an end before start yields 0.
func DurationMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// CalculateRentalCost charges baseFee plus minutes * ratePerMinute.
// A rental of zero minutes or less pays the base fee only.
func CalculateRentalCost(baseFee, ratePerMinute decimal.Decimal, minutes int) decimal.Decimal {
	if minutes <= 0 {
		return RoundMoney(baseFee)
	}
	usage := ratePerMinute.Mul(decimal.NewFromInt(int64(minutes)))
	return RoundMoney(baseFee.Add(usage))
}

// RoundMoney rounds half away from zero to MoneyPlaces
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseMoney parses a decimal string such as "12.25"
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FormatDuration renders minutes as "45 minutes" or "1h 5m"
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
