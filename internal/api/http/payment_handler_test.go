package http

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scooter-share-pro/internal/domain"
)

func TestPaymentHandler_Refund(t *testing.T) {
	api := newTestAPI(t)
	refunded := &domain.Payment{ID: 4, Status: domain.PaymentStatusCompleted, Amount: decimal.NewFromInt(12), RefundAmount: decimal.NewFromInt(5)}
	api.payments.On("Refund", mock.Anything, int32(1), int32(4),
		mock.MatchedBy(func(a *decimal.Decimal) bool { return a != nil && a.Equal(decimal.NewFromInt(5)) }),
		"scooter was faulty",
	).Return(refunded, nil)
	api.payments.On("Refund", mock.Anything, int32(1), int32(5), (*decimal.Decimal)(nil), "").Return(nil, domain.ErrPaymentNotRefundable)

	rec := api.do(t, http.MethodPost, "/api/v1/payments/4/refund", "admin-1", `{"amount":"5.00","reason":"scooter was faulty"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", decodeBody[map[string]any](t, rec)["refund_amount"])

	rec = api.do(t, http.MethodPost, "/api/v1/payments/5/refund", "admin-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payment_not_refundable", decodeBody[ErrorResponse](t, rec).Error)
}
