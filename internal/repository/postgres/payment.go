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

const paymentColumns = `id, transaction_id, user_id, rental_id, amount, currency, payment_method, status, gateway_transaction_id,
	gateway_response, refund_amount, refund_reason, refunded_at, processed_at, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var gatewayResponse []byte
	err := row.Scan(&p.ID, &p.TransactionID, &p.UserID, &p.RentalID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&p.GatewayTransactionID, &gatewayResponse, &p.RefundAmount, &p.RefundReason, &p.RefundedAt, &p.ProcessedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(gatewayResponse) > 0 {
		p.GatewayResponse = gatewayResponse
	}
	return p, nil
}

func gatewayJSON(p *domain.Payment) any {
	if len(p.GatewayResponse) == 0 {
		return nil
	}
	return []byte(p.GatewayResponse)
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (transaction_id, user_id, rental_id, amount, currency, payment_method, status, refund_amount)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`
	logger.DatabaseCall("payments.create", query, "transaction_id", p.TransactionID, "rental_id", p.RentalID)
	return r.db.QueryRowContext(ctx, query, p.TransactionID, p.UserID, p.RentalID, p.Amount, p.Currency, p.Method,
		p.Status, p.RefundAmount).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *paymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *paymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID))
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, p *domain.Payment, from domain.PaymentStatus) error {
	query := `UPDATE payments SET status=$1, gateway_transaction_id=$2, gateway_response=$3, processed_at=$4, updated_at=NOW()
	          WHERE id=$5 AND status=$6 RETURNING updated_at`
	logger.DatabaseCall("payments.update_status", query, "payment_id", p.ID, "from", from, "to", p.Status)
	err := r.db.QueryRowContext(ctx, query, p.Status, p.GatewayTransactionID, gatewayJSON(p), p.ProcessedAt, p.ID, from).
		Scan(&p.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.ErrPaymentStateConflict.WithMessage("payment %d is no longer %s", p.ID, from)
	}
	return err
}

// ApplyRefund increments the refunded total in place so concurrent refunds cannot
// together exceed the amount.
func (r *paymentRepository) ApplyRefund(ctx context.Context, p *domain.Payment, refund decimal.Decimal) error {
	query := `UPDATE payments SET refund_amount = refund_amount + $1,
	                 status = CASE WHEN refund_amount + $1 = amount THEN 'refunded' ELSE status END,
	                 refund_reason=$2, refunded_at=$3, updated_at=NOW()
	          WHERE id=$4 AND status='completed' AND refund_amount + $1 <= amount
	          RETURNING refund_amount, status, updated_at`
	logger.DatabaseCall("payments.apply_refund", query, "payment_id", p.ID, "refund", refund.StringFixed(2))
	err := r.db.QueryRowContext(ctx, query, refund, p.RefundReason, p.RefundedAt, p.ID).
		Scan(&p.RefundAmount, &p.Status, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.ErrPaymentNotRefundable
	}
	return err
}

func (r *paymentRepository) List(ctx context.Context, f repository.PaymentFilter) ([]domain.Payment, int32, error) {
	page := f.Page.Normalize()
	where := []string{"1=1"}
	var args []any
	if f.UserID != 0 {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.RentalID != 0 {
		args = append(args, f.RentalID)
		where = append(where, fmt.Sprintf("rental_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM payments WHERE "+cond, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM payments WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		paymentColumns, cond, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)
	logger.DatabaseCall("payments.list", query)

	payments, err := r.query(ctx, query, args...)
	return payments, count, err
}

func (r *paymentRepository) ListRefundable(ctx context.Context, userID int32, since time.Time) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE user_id = $1 AND status = 'completed' AND refund_amount < amount
	            AND COALESCE(processed_at, created_at) >= $2
	          ORDER BY created_at DESC`
	return r.query(ctx, query, userID, since)
}

func (r *paymentRepository) query(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *paymentRepository) SumPaidForRental(ctx context.Context, rentalID int32) (decimal.Decimal, error) {
	var paid decimal.Decimal
	query := `SELECT COALESCE(SUM(amount - refund_amount), 0) FROM payments
	          WHERE rental_id = $1 AND status IN ('completed', 'refunded')`
	err := r.db.QueryRowContext(ctx, query, rentalID).Scan(&paid)
	return paid, err
}

func (r *paymentRepository) Statistics(ctx context.Context) (*domain.PaymentStatistics, error) {
	stats := &domain.PaymentStatistics{}
	query := `SELECT count(*),
	                 count(*) FILTER (WHERE status = 'completed'),
	                 count(*) FILTER (WHERE status IN ('pending', 'processing')),
	                 count(*) FILTER (WHERE status = 'failed'),
	                 count(*) FILTER (WHERE status = 'refunded'),
	                 COALESCE(SUM(amount) FILTER (WHERE status IN ('completed', 'refunded')), 0),
	                 COALESCE(SUM(refund_amount), 0)
	          FROM payments`
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalPayments, &stats.CompletedPayments, &stats.PendingPayments,
		&stats.FailedPayments, &stats.RefundedPayments, &stats.TotalCollected, &stats.TotalRefunded)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *paymentRepository) RevenueByMethod(ctx context.Context) (map[domain.PaymentMethod]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payment_method, SUM(amount - refund_amount) FROM payments
	                                     WHERE status IN ('completed', 'refunded') GROUP BY payment_method`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	revenue := make(map[domain.PaymentMethod]decimal.Decimal)
	for rows.Next() {
		var method domain.PaymentMethod
		var total decimal.Decimal
		if err := rows.Scan(&method, &total); err != nil {
			return nil, err
		}
		revenue[method] = total
	}
	return revenue, rows.Err()
}
