package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/service"
)

type PaymentHandler struct {
	paymentSvc service.PaymentService
}

func NewPaymentHandler(paymentSvc service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

type createPaymentRequest struct {
	RentalID      int32           `json:"rental_id" validate:"required,min=1"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=credit_card paypal bank_transfer cash"`
}

type completePaymentRequest struct {
	GatewayTransactionID string          `json:"gateway_transaction_id" validate:"omitempty,max=100"`
	GatewayResponse      json.RawMessage `json:"gateway_response"`
}

type failPaymentRequest struct {
	GatewayResponse json.RawMessage `json:"gateway_response"`
}

type refundRequest struct {
	// Amount defaults to whatever is still refundable.
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"omitempty,max=500"`
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	payment, err := h.paymentSvc.Create(r.Context(), actorID(r), service.CreatePaymentRequest{
		RentalID: req.RentalID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Method:   domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := repository.PaymentFilter{Status: domain.PaymentStatus(q.Get("status")), Page: page}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, r, domain.NewValidationError("invalid payment status %q", filter.Status))
		return
	}
	for name, dst := range map[string]*int32{"user_id": &filter.UserID, "rental_id": &filter.RentalID} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || id <= 0 {
			writeError(w, r, domain.NewValidationError("invalid %s: %q", name, raw))
			return
		}
		*dst = int32(id)
	}
	payments, total, err := h.paymentSvc.List(r.Context(), actorID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, nonNil(payments), total)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.paymentSvc.Get(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) GetByTransactionID(w http.ResponseWriter, r *http.Request) {
	payment, err := h.paymentSvc.GetByTransactionID(r.Context(), actorID(r), mux.Vars(r)["tx"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.paymentSvc.Process(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req completePaymentRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	payment, err := h.paymentSvc.Complete(r.Context(), actorID(r), id, req.GatewayTransactionID, req.GatewayResponse)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req failPaymentRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	payment, err := h.paymentSvc.Fail(r.Context(), actorID(r), id, req.GatewayResponse)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req refundRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	payment, err := h.paymentSvc.Refund(r.Context(), actorID(r), id, req.Amount, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) Refundable(w http.ResponseWriter, r *http.Request) {
	payments, err := h.paymentSvc.Refundable(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, nonNil(payments), int32(len(payments)))
}

type paymentStatsResponse struct {
	*domain.PaymentStatistics
	NetRevenue decimal.Decimal `json:"net_revenue"`
}

func (h *PaymentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.paymentSvc.Statistics(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatsResponse{PaymentStatistics: stats, NetRevenue: stats.NetRevenue()})
}

func (h *PaymentHandler) RevenueByMethod(w http.ResponseWriter, r *http.Request) {
	revenue, err := h.paymentSvc.RevenueByMethod(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revenue)
}
