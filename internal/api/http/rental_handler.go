package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/service"
)

type RentalHandler struct {
	rentalSvc  service.RentalService
	paymentSvc service.PaymentService
	now        func() time.Time
}

func NewRentalHandler(rentalSvc service.RentalService, paymentSvc service.PaymentService) *RentalHandler {
	return &RentalHandler{rentalSvc: rentalSvc, paymentSvc: paymentSvc, now: time.Now}
}

// rentalResponse adds the live duration and running cost to a rental.
type rentalResponse struct {
	*domain.Rental
	Duration    string          `json:"duration"`
	CurrentCost decimal.Decimal `json:"current_cost"`
}

func (h *RentalHandler) view(r *domain.Rental) rentalResponse {
	now := h.now()
	return rentalResponse{Rental: r, Duration: r.FormattedDuration(now), CurrentCost: r.CurrentCost(now)}
}

func (h *RentalHandler) views(rentals []domain.Rental) []rentalResponse {
	out := make([]rentalResponse, 0, len(rentals))
	for i := range rentals {
		out = append(out, h.view(&rentals[i]))
	}
	return out
}

type startRentalRequest struct {
	ScooterID      int32    `json:"scooter_id" validate:"required,min=1"`
	StartLatitude  *float64 `json:"start_latitude" validate:"required,min=-90,max=90"`
	StartLongitude *float64 `json:"start_longitude" validate:"required,min=-180,max=180"`
}

type endRentalRequest struct {
	EndLatitude  *float64 `json:"end_latitude" validate:"omitempty,min=-90,max=90"`
	EndLongitude *float64 `json:"end_longitude" validate:"omitempty,min=-180,max=180"`
}

type cancelRentalRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type rateRentalRequest struct {
	Rating   int32  `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"omitempty,max=2000"`
}

type payRentalRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=credit_card paypal bank_transfer cash"`
}

// List accepts status, user_id, scooter_id, limit and offset. What the caller
// sees is narrowed by the service to their own scope.
func (h *RentalHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := repository.RentalFilter{Status: domain.RentalStatus(q.Get("status")), Page: page}
	for name, dst := range map[string]*int32{"user_id": &filter.UserID, "scooter_id": &filter.ScooterID} {
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
	rentals, total, err := h.rentalSvc.List(r.Context(), actorID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, h.views(rentals), total)
}

func (h *RentalHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRentalRequest
	if !decode(w, r, &req) {
		return
	}
	rental, err := h.rentalSvc.Start(r.Context(), actorID(r), service.StartRentalRequest{
		ScooterID: req.ScooterID,
		Latitude:  *req.StartLatitude,
		Longitude: *req.StartLongitude,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(rental))
}

func (h *RentalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rental, err := h.rentalSvc.Get(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rental))
}

func (h *RentalHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	rental, err := h.rentalSvc.GetByCode(r.Context(), actorID(r), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rental))
}

// Active returns the caller's open rental, or 404 when they are not riding.
func (h *RentalHandler) Active(w http.ResponseWriter, r *http.Request) {
	rental, err := h.rentalSvc.Active(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rental))
}

func (h *RentalHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req endRentalRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	rental, err := h.rentalSvc.End(r.Context(), actorID(r), id, req.EndLatitude, req.EndLongitude)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rental))
}

func (h *RentalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req cancelRentalRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	rental, err := h.rentalSvc.Cancel(r.Context(), actorID(r), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rental))
}

func (h *RentalHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rateRentalRequest
	if !decode(w, r, &req) {
		return
	}
	rental, err := h.rentalSvc.Rate(r.Context(), actorID(r), id, req.Rating, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(rental))
}

func (h *RentalHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := h.rentalSvc.PaymentStatus(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Pay settles the outstanding balance of a finished rental.
func (h *RentalHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req payRentalRequest
	if !decode(w, r, &req) {
		return
	}
	payment, err := h.paymentSvc.PayRental(r.Context(), actorID(r), id, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

type sweepResponse struct {
	Marked int `json:"marked"`
}

func (h *RentalHandler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	marked, err := h.rentalSvc.TriggerOverdueSweep(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Marked: marked})
}

type rentalStatsResponse struct {
	*domain.RentalStatistics
	CompletionRate float64 `json:"completion_rate"`
}

func (h *RentalHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.rentalSvc.Statistics(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rentalStatsResponse{RentalStatistics: stats, CompletionRate: stats.CompletionRate()})
}

func (h *RentalHandler) MyStatistics(w http.ResponseWriter, r *http.Request) {
	h.userStatistics(w, r, actorID(r))
}

func (h *RentalHandler) UserStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.userStatistics(w, r, id)
}

func (h *RentalHandler) userStatistics(w http.ResponseWriter, r *http.Request, userID int32) {
	stats, err := h.rentalSvc.UserStatistics(r.Context(), actorID(r), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
