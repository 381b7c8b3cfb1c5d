package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, is_active, is_verified, created_at, updated_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &u.Role,
		&u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (email, password_hash, first_name, last_name, phone, role, is_active, is_verified)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`
	logger.DatabaseCall("users.create", query, "email", u.Email)
	err := r.db.QueryRowContext(ctx, query, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Role, u.IsActive, u.IsVerified).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if _, ok := uniqueConstraint(err); ok {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *userRepository) Update(ctx context.Context, u *domain.User) error {
	query := `UPDATE users SET email=$1, first_name=$2, last_name=$3, phone=$4, role=$5, is_active=$6, is_verified=$7, updated_at=NOW()
	          WHERE id=$8 RETURNING updated_at`
	logger.DatabaseCall("users.update", query, "user_id", u.ID)
	err := r.db.QueryRowContext(ctx, query, u.Email, u.FirstName, u.LastName, u.Phone, u.Role, u.IsActive, u.IsVerified, u.ID).
		Scan(&u.UpdatedAt)
	if _, ok := uniqueConstraint(err); ok {
		return domain.ErrEmailTaken
	}
	return err
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int32, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=$1, updated_at=NOW() WHERE id=$2`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id int32, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login=$1 WHERE id=$2`, at, id)
	return err
}

func (r *userRepository) Delete(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *userRepository) List(ctx context.Context, f repository.UserFilter) ([]domain.User, int32, error) {
	page := f.Page.Normalize()
	where := []string{"1=1"}
	var args []any
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", n, n, n))
	}
	cond := strings.Join(where, " AND ")

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM users WHERE "+cond, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		userColumns, cond, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)
	logger.DatabaseCall("users.list", query)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, count, rows.Err()
}

func (r *userRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	stats := &domain.UserStats{ByRole: make(map[domain.Role]int64)}
	err := r.db.QueryRowContext(ctx, `SELECT count(*), count(*) FILTER (WHERE is_active), count(*) FILTER (WHERE is_verified) FROM users`).
		Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.VerifiedUsers)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT role, count(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var role domain.Role
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		stats.ByRole[role] = n
	}
	return stats, rows.Err()
}
