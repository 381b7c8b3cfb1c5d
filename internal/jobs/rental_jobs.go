package jobs

import (
	"context"

	"scooter-share-pro/internal/logger"
)

// MarkOverdueRentals flags active rentals that ran past the maximum rental duration
func (jr *JobRunner) MarkOverdueRentals() {
	jr.runWithRecovery("MarkOverdueRentals", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		count, err := jr.services.Rental.SweepOverdue(ctx)
		if err != nil {
			logger.Error("Failed to mark overdue rentals", "error", err)
			return
		}
		logger.Info("Marked rentals as overdue", "count", count, "max_rental_hours", jr.config.Pricing.MaxRentalHours)
	})
}
