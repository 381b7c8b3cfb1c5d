package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/utils"
)

const rentalColumns = `id, rental_code, user_id, scooter_id, start_time, end_time, duration_minutes, start_latitude, start_longitude,
	end_latitude, end_longitude, status, base_fee, per_minute_rate, total_cost, rating, feedback, notes, created_at, updated_at`

type rentalRepository struct {
	db *sql.DB
}

func NewRentalRepository(db *sql.DB) repository.RentalRepository {
	return &rentalRepository{db: db}
}

func scanRental(row rowScanner) (*domain.Rental, error) {
	rt := &domain.Rental{}
	err := row.Scan(&rt.ID, &rt.RentalCode, &rt.UserID, &rt.ScooterID, &rt.StartTime, &rt.EndTime, &rt.DurationMinutes,
		&rt.StartLatitude, &rt.StartLongitude, &rt.EndLatitude, &rt.EndLongitude, &rt.Status, &rt.BaseFee,
		&rt.PerMinuteRate, &rt.TotalCost, &rt.Rating, &rt.Feedback, &rt.Notes, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Start claims the scooter only if it is still rentable, then inserts the rental.
// The partial unique indexes on open rentals catch a racing second start.
func (r *rentalRepository) Start(ctx context.Context, rt *domain.Rental) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		claim := `UPDATE scooters SET status='in_use', updated_at=NOW()
		          WHERE id=$1 AND status='available' AND battery_level > $2`
		logger.DatabaseCall("rentals.start.claim", claim, "scooter_id", rt.ScooterID)
		res, err := tx.ExecContext(ctx, claim, rt.ScooterID, domain.MinRentableBattery)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrScooterUnavailable
		}

		insert := `INSERT INTO rentals (rental_code, user_id, scooter_id, start_time, start_latitude, start_longitude, status, base_fee, per_minute_rate)
		           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`
		logger.DatabaseCall("rentals.start.insert", insert, "user_id", rt.UserID, "scooter_id", rt.ScooterID)
		err = tx.QueryRowContext(ctx, insert, rt.RentalCode, rt.UserID, rt.ScooterID, rt.StartTime, rt.StartLatitude,
			rt.StartLongitude, rt.Status, rt.BaseFee, rt.PerMinuteRate).Scan(&rt.ID, &rt.CreatedAt, &rt.UpdatedAt)
		if name, ok := uniqueConstraint(err); ok {
			switch name {
			case "ux_rentals_open_user":
				return domain.ErrConcurrentRentalExists
			case "ux_rentals_open_scooter":
				return domain.ErrScooterUnavailable
			}
		}
		return err
	})
}

// Finish writes the closing fields of a completed or cancelled rental and frees the
// scooter, moving it to the drop-off point when one was reported.
func (r *rentalRepository) Finish(ctx context.Context, rt *domain.Rental) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		closeQuery := `UPDATE rentals SET status=$1, end_time=$2, duration_minutes=$3, end_latitude=$4, end_longitude=$5,
		               total_cost=$6, notes=$7, updated_at=NOW()
		               WHERE id=$8 AND status IN ('active', 'overdue') RETURNING updated_at`
		logger.DatabaseCall("rentals.finish", closeQuery, "rental_id", rt.ID, "status", rt.Status)
		err := tx.QueryRowContext(ctx, closeQuery, rt.Status, rt.EndTime, rt.DurationMinutes, rt.EndLatitude,
			rt.EndLongitude, rt.TotalCost, rt.Notes, rt.ID).Scan(&rt.UpdatedAt)
		if err == sql.ErrNoRows {
			return domain.ErrRentalNotActive
		}
		if err != nil {
			return err
		}

		if rt.EndLatitude != nil && rt.EndLongitude != nil {
			release := `UPDATE scooters SET status='available', latitude=$1, longitude=$2, geohash=$3,
			            last_location_update=$4, updated_at=NOW() WHERE id=$5`
			_, err = tx.ExecContext(ctx, release, *rt.EndLatitude, *rt.EndLongitude,
				utils.EncodeLocation(*rt.EndLatitude, *rt.EndLongitude), rt.EndTime, rt.ScooterID)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE scooters SET status='available', updated_at=NOW() WHERE id=$1`, rt.ScooterID)
		}
		return err
	})
}

func (r *rentalRepository) GetByID(ctx context.Context, id int32) (*domain.Rental, error) {
	return scanRental(r.db.QueryRowContext(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE id = $1`, id))
}

func (r *rentalRepository) GetByCode(ctx context.Context, code string) (*domain.Rental, error) {
	return scanRental(r.db.QueryRowContext(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE rental_code = $1`, code))
}

func (r *rentalRepository) GetOpenByUser(ctx context.Context, userID int32) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE user_id = $1 AND status IN ('active', 'overdue')`
	return scanRental(r.db.QueryRowContext(ctx, query, userID))
}

func (r *rentalRepository) UpdateRating(ctx context.Context, id int32, rating int32, feedback string) error {
	query := `UPDATE rentals SET rating=$1, feedback=$2, updated_at=NOW() WHERE id=$3 AND status='completed'`
	res, err := r.db.ExecContext(ctx, query, rating, feedback, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return domain.ErrRentalNotCompleted
	}
	return nil
}

func (r *rentalRepository) MarkOverdue(ctx context.Context, id int32) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE rentals SET status='overdue', updated_at=NOW() WHERE id=$1 AND status='active'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *rentalRepository) ListOverdueCandidates(ctx context.Context, startedBefore time.Time) ([]domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE status = 'active' AND start_time < $1 ORDER BY start_time`
	logger.DatabaseCall("rentals.overdue_candidates", query, "started_before", startedBefore)
	return r.query(ctx, query, startedBefore)
}

func (r *rentalRepository) List(ctx context.Context, f repository.RentalFilter) ([]domain.Rental, int32, error) {
	page := f.Page.Normalize()
	where := []string{"1=1"}
	var args []any
	if f.UserID != 0 {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.ScooterID != 0 {
		args = append(args, f.ScooterID)
		where = append(where, fmt.Sprintf("scooter_id = $%d", len(args)))
	}
	if f.ProviderID != 0 {
		args = append(args, f.ProviderID)
		where = append(where, fmt.Sprintf("scooter_id IN (SELECT id FROM scooters WHERE provider_id = $%d)", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM rentals WHERE "+cond, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM rentals WHERE %s ORDER BY start_time DESC LIMIT $%d OFFSET $%d",
		rentalColumns, cond, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)
	logger.DatabaseCall("rentals.list", query)

	rentals, err := r.query(ctx, query, args...)
	return rentals, count, err
}

func (r *rentalRepository) query(ctx context.Context, query string, args ...any) ([]domain.Rental, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []domain.Rental
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, *rt)
	}
	return rentals, rows.Err()
}

func (r *rentalRepository) Statistics(ctx context.Context) (*domain.RentalStatistics, error) {
	stats := &domain.RentalStatistics{}
	var revenue decimal.Decimal
	query := `SELECT count(*),
	                 count(*) FILTER (WHERE status = 'active'),
	                 count(*) FILTER (WHERE status = 'completed'),
	                 count(*) FILTER (WHERE status = 'cancelled'),
	                 count(*) FILTER (WHERE status = 'overdue'),
	                 COALESCE(SUM(total_cost) FILTER (WHERE status IN ('completed', 'cancelled')), 0),
	                 COALESCE(AVG(duration_minutes) FILTER (WHERE status = 'completed'), 0)
	          FROM rentals`
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalRentals, &stats.ActiveRentals, &stats.CompletedRentals,
		&stats.CancelledRentals, &stats.OverdueRentals, &revenue, &stats.AverageDurationMinutes)
	if err != nil {
		return nil, err
	}
	stats.TotalRevenue = revenue
	return stats, nil
}

func (r *rentalRepository) UserStatistics(ctx context.Context, userID int32) (*domain.UserRentalStats, error) {
	stats := &domain.UserRentalStats{UserID: userID}
	var avgRating sql.NullFloat64
	query := `SELECT count(*),
	                 count(*) FILTER (WHERE status = 'completed'),
	                 COALESCE(SUM(duration_minutes), 0),
	                 COALESCE(SUM(total_cost) FILTER (WHERE status IN ('completed', 'cancelled')), 0),
	                 AVG(rating)
	          FROM rentals WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&stats.TotalRentals, &stats.CompletedRentals, &stats.TotalMinutes, &stats.TotalSpent, &avgRating)
	if err != nil {
		return nil, err
	}
	if avgRating.Valid {
		v := avgRating.Float64
		stats.AverageRating = &v
	}
	return stats, nil
}
