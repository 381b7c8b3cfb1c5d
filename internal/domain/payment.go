package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/utils"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
)

const RefundWindow = 30 * 24 * time.Hour

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodBankTransfer, PaymentMethodCash:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

type Payment struct {
	ID                   int32           `json:"id"`
	TransactionID        string          `json:"transaction_id"`
	UserID               int32           `json:"user_id"`
	RentalID             int32           `json:"rental_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Method               PaymentMethod   `json:"payment_method"`
	Status               PaymentStatus   `json:"status"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	GatewayResponse      json.RawMessage `json:"gateway_response,omitempty"`
	RefundAmount         decimal.Decimal `json:"refund_amount"`
	RefundReason         string          `json:"refund_reason,omitempty"`
	RefundedAt           *time.Time      `json:"refunded_at,omitempty"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func NewPayment(userID, rentalID int32, amount decimal.Decimal, currency string, method PaymentMethod) (*Payment, error) {
	amount = utils.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, NewValidationError("currency must be a 3-letter ISO code")
	}
	return &Payment{
		TransactionID: NewTransactionID(),
		UserID:        userID,
		RentalID:      rentalID,
		Amount:        amount,
		Currency:      currency,
		Method:        method,
		Status:        PaymentStatusPending,
		RefundAmount:  decimal.Zero,
	}, nil
}

// NewTransactionID mints an id of the form PAY-<12 hex>.
func NewTransactionID() string {
	return "PAY-" + randomHex(12)
}

func (p *Payment) Process() error {
	if p.Status != PaymentStatusPending {
		return ErrPaymentStateConflict.WithMessage("cannot process a %s payment", p.Status)
	}
	p.Status = PaymentStatusProcessing
	return nil
}

func (p *Payment) Complete(at time.Time, gatewayTxID string, gatewayResponse json.RawMessage) error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return ErrPaymentStateConflict.WithMessage("cannot complete a %s payment", p.Status)
	}
	p.Status = PaymentStatusCompleted
	p.ProcessedAt = &at
	if gatewayTxID != "" {
		p.GatewayTransactionID = gatewayTxID
	}
	if len(gatewayResponse) > 0 {
		p.GatewayResponse = gatewayResponse
	}
	return nil
}

func (p *Payment) Fail(at time.Time, gatewayResponse json.RawMessage) error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return ErrPaymentStateConflict.WithMessage("cannot fail a %s payment", p.Status)
	}
	p.Status = PaymentStatusFailed
	p.ProcessedAt = &at
	if len(gatewayResponse) > 0 {
		p.GatewayResponse = gatewayResponse
	}
	return nil
}

// completedAt anchors the refund window.
func (p *Payment) completedAt() time.Time {
	if p.ProcessedAt != nil {
		return *p.ProcessedAt
	}
	return p.CreatedAt
}

func (p *Payment) IsRefundable(now time.Time) bool {
	if p.Status != PaymentStatusCompleted {
		return false
	}
	if now.Sub(p.completedAt()) > RefundWindow {
		return false
	}
	return p.RefundAmount.LessThan(p.Amount)
}

func (p *Payment) RefundableAmount(now time.Time) decimal.Decimal {
	if !p.IsRefundable(now) {
		return decimal.Zero
	}
	return p.Amount.Sub(p.RefundAmount)
}

// Refund adds amount to the refunded total. A nil amount refunds whatever is left.
// The payment becomes refunded once the whole amount has been returned.
func (p *Payment) Refund(amount *decimal.Decimal, reason string, at time.Time) (decimal.Decimal, error) {
	if !p.IsRefundable(at) {
		return decimal.Zero, ErrPaymentNotRefundable
	}
	remaining := p.Amount.Sub(p.RefundAmount)
	refund := remaining
	if amount != nil {
		refund = utils.RoundMoney(*amount)
	}
	if !refund.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if refund.GreaterThan(remaining) {
		return decimal.Zero, ErrRefundExceedsAmount
	}

	p.RefundAmount = p.RefundAmount.Add(refund)
	p.RefundReason = strings.TrimSpace(reason)
	p.RefundedAt = &at
	if p.RefundAmount.Equal(p.Amount) {
		p.Status = PaymentStatusRefunded
	}
	return refund, nil
}
