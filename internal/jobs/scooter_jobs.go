package jobs

import (
	"context"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
)

// FlagLowBatteryScooters moves idle scooters with a nearly empty battery into maintenance
func (jr *JobRunner) FlagLowBatteryScooters() {
	jr.runWithRecovery("FlagLowBatteryScooters", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		count, err := jr.services.Scooter.FlagLowBattery(ctx)
		if err != nil {
			logger.Error("Failed to flag low battery scooters", "error", err)
			return
		}
		logger.Info("Flagged low battery scooters for maintenance", "count", count, "threshold", domain.LowBatteryThreshold)
	})
}
