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
)

const scooterColumns = `id, identifier, model, brand, latitude, longitude, geohash, address, last_location_update, status,
	battery_level, max_speed, range_km, qr_code, provider_id, created_at, updated_at, last_maintenance`

const openRentalExists = `EXISTS (SELECT 1 FROM rentals WHERE rentals.scooter_id = scooters.id AND rentals.status IN ('active', 'overdue'))`

type scooterRepository struct {
	db *sql.DB
}

func NewScooterRepository(db *sql.DB) repository.ScooterRepository {
	return &scooterRepository{db: db}
}

func scanScooter(row rowScanner) (*domain.Scooter, error) {
	s := &domain.Scooter{}
	var lastMaintenance sql.NullTime
	err := row.Scan(&s.ID, &s.Identifier, &s.Model, &s.Brand, &s.Latitude, &s.Longitude, &s.Geohash, &s.Address,
		&s.LastLocationUpdate, &s.Status, &s.BatteryLevel, &s.MaxSpeed, &s.RangeKm, &s.QRCode, &s.ProviderID,
		&s.CreatedAt, &s.UpdatedAt, &lastMaintenance)
	if err != nil {
		return nil, err
	}
	if lastMaintenance.Valid {
		t := lastMaintenance.Time
		s.LastMaintenance = &t
	}
	return s, nil
}

func (r *scooterRepository) Create(ctx context.Context, s *domain.Scooter) error {
	query := `INSERT INTO scooters (identifier, model, brand, latitude, longitude, geohash, address, last_location_update, status,
	          battery_level, max_speed, range_km, qr_code, provider_id)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id, created_at, updated_at`
	logger.DatabaseCall("scooters.create", query, "identifier", s.Identifier)
	err := r.db.QueryRowContext(ctx, query, s.Identifier, s.Model, s.Brand, s.Latitude, s.Longitude, s.Geohash, s.Address,
		s.LastLocationUpdate, s.Status, s.BatteryLevel, s.MaxSpeed, s.RangeKm, s.QRCode, s.ProviderID).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if name, ok := uniqueConstraint(err); ok && strings.Contains(name, "identifier") {
		return domain.ErrIdentifierTaken
	}
	return err
}

func (r *scooterRepository) GetByID(ctx context.Context, id int32) (*domain.Scooter, error) {
	return scanScooter(r.db.QueryRowContext(ctx, `SELECT `+scooterColumns+` FROM scooters WHERE id = $1`, id))
}

func (r *scooterRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Scooter, error) {
	return scanScooter(r.db.QueryRowContext(ctx, `SELECT `+scooterColumns+` FROM scooters WHERE identifier = UPPER($1)`, identifier))
}

func (r *scooterRepository) GetByQRCode(ctx context.Context, qrCode string) (*domain.Scooter, error) {
	return scanScooter(r.db.QueryRowContext(ctx, `SELECT `+scooterColumns+` FROM scooters WHERE qr_code = $1`, qrCode))
}

// Update writes descriptive fields, location and battery. Status has its own guarded path.
func (r *scooterRepository) Update(ctx context.Context, s *domain.Scooter) error {
	query := `UPDATE scooters SET model=$1, brand=$2, latitude=$3, longitude=$4, geohash=$5, address=$6, last_location_update=$7,
	          battery_level=$8, max_speed=$9, range_km=$10, updated_at=NOW()
	          WHERE id=$11 RETURNING updated_at`
	logger.DatabaseCall("scooters.update", query, "scooter_id", s.ID)
	return r.db.QueryRowContext(ctx, query, s.Model, s.Brand, s.Latitude, s.Longitude, s.Geohash, s.Address,
		s.LastLocationUpdate, s.BatteryLevel, s.MaxSpeed, s.RangeKm, s.ID).Scan(&s.UpdatedAt)
}

func (r *scooterRepository) SetStatus(ctx context.Context, id int32, status domain.ScooterStatus, maintainedAt *time.Time) error {
	query := `UPDATE scooters SET status=$1, last_maintenance=COALESCE($2, last_maintenance), updated_at=NOW()
	          WHERE id=$3 AND NOT ` + openRentalExists
	logger.DatabaseCall("scooters.set_status", query, "scooter_id", id, "status", status)
	res, err := r.db.ExecContext(ctx, query, status, maintainedAt, id)
	if err != nil {
		return err
	}
	return r.explainMiss(ctx, id, res)
}

func (r *scooterRepository) Delete(ctx context.Context, id int32) error {
	query := `DELETE FROM scooters WHERE id=$1 AND NOT ` + openRentalExists
	logger.DatabaseCall("scooters.delete", query, "scooter_id", id)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return r.explainMiss(ctx, id, res)
}

// explainMiss distinguishes a missing scooter from one blocked by an open rental.
func (r *scooterRepository) explainMiss(ctx context.Context, id int32, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM scooters WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return sql.ErrNoRows
	}
	return domain.ErrScooterHasActiveRental
}

func (r *scooterRepository) List(ctx context.Context, f repository.ScooterFilter) ([]domain.Scooter, int32, error) {
	page := f.Page.Normalize()
	where := []string{"1=1"}
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ProviderID != 0 {
		args = append(args, f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.GeohashPrefix != "" {
		args = append(args, f.GeohashPrefix+"%")
		where = append(where, fmt.Sprintf("geohash LIKE $%d", len(args)))
	}
	if f.MaxBattery != nil {
		args = append(args, *f.MaxBattery)
		where = append(where, fmt.Sprintf("battery_level < $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(identifier ILIKE $%d OR model ILIKE $%d OR brand ILIKE $%d)", n, n, n))
	}
	cond := strings.Join(where, " AND ")

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM scooters WHERE "+cond, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM scooters WHERE %s ORDER BY id LIMIT $%d OFFSET $%d",
		scooterColumns, cond, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)
	logger.DatabaseCall("scooters.list", query)

	scooters, err := r.query(ctx, query, args...)
	return scooters, count, err
}

func (r *scooterRepository) WithinBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]domain.Scooter, error) {
	query := `SELECT ` + scooterColumns + ` FROM scooters
	          WHERE status = 'available' AND latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4`
	logger.DatabaseCall("scooters.within_box", query)
	return r.query(ctx, query, minLat, maxLat, minLon, maxLon)
}

func (r *scooterRepository) query(ctx context.Context, query string, args ...any) ([]domain.Scooter, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scooters []domain.Scooter
	for rows.Next() {
		s, err := scanScooter(rows)
		if err != nil {
			return nil, err
		}
		scooters = append(scooters, *s)
	}
	return scooters, rows.Err()
}

func (r *scooterRepository) CountByProvider(ctx context.Context, providerID int32) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM scooters WHERE provider_id = $1`, providerID).Scan(&n)
	return n, err
}

func (r *scooterRepository) Stats(ctx context.Context, id int32) (*domain.ScooterStats, error) {
	stats := &domain.ScooterStats{ScooterID: id}
	var revenue decimal.Decimal
	var avgRating sql.NullFloat64
	query := `SELECT count(*),
	                 count(*) FILTER (WHERE status = 'completed'),
	                 COALESCE(SUM(duration_minutes), 0),
	                 COALESCE(SUM(total_cost) FILTER (WHERE status IN ('completed', 'cancelled')), 0),
	                 AVG(rating)
	          FROM rentals WHERE scooter_id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&stats.TotalRentals, &stats.CompletedRentals, &stats.TotalMinutes, &revenue, &avgRating)
	if err != nil {
		return nil, err
	}
	stats.TotalRevenue = revenue
	if avgRating.Valid {
		v := avgRating.Float64
		stats.AverageRating = &v
	}
	return stats, nil
}

func (r *scooterRepository) ProviderStats(ctx context.Context, providerID int32) (*domain.ProviderStats, error) {
	stats := &domain.ProviderStats{ProviderID: providerID}
	fleet := `SELECT count(*),
	                 count(*) FILTER (WHERE status = 'available'),
	                 count(*) FILTER (WHERE status = 'in_use'),
	                 count(*) FILTER (WHERE status = 'maintenance'),
	                 count(*) FILTER (WHERE status = 'offline')
	          FROM scooters WHERE provider_id = $1`
	err := r.db.QueryRowContext(ctx, fleet, providerID).Scan(&stats.TotalScooters, &stats.AvailableScooters,
		&stats.InUseScooters, &stats.MaintenanceScooters, &stats.OfflineScooters)
	if err != nil {
		return nil, err
	}

	usage := `SELECT count(r.id), COALESCE(SUM(r.total_cost) FILTER (WHERE r.status IN ('completed', 'cancelled')), 0)
	          FROM rentals r JOIN scooters s ON s.id = r.scooter_id WHERE s.provider_id = $1`
	if err := r.db.QueryRowContext(ctx, usage, providerID).Scan(&stats.TotalRentals, &stats.TotalRevenue); err != nil {
		return nil, err
	}
	return stats, nil
}
