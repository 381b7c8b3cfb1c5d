package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/service"
)

type ScooterHandler struct {
	scooterSvc service.ScooterService
}

func NewScooterHandler(scooterSvc service.ScooterService) *ScooterHandler {
	return &ScooterHandler{scooterSvc: scooterSvc}
}

// publicScooter is what riders see: no QR code, owner or service history.
type publicScooter struct {
	ID           int32                `json:"id"`
	Identifier   string               `json:"identifier"`
	Model        string               `json:"model"`
	Brand        string               `json:"brand"`
	Latitude     float64              `json:"latitude"`
	Longitude    float64              `json:"longitude"`
	Address      string               `json:"address,omitempty"`
	Status       domain.ScooterStatus `json:"status"`
	BatteryLevel int32                `json:"battery_level"`
	MaxSpeed     float64              `json:"max_speed"`
	RangeKm      float64              `json:"range_km"`
	IsAvailable  bool                 `json:"is_available"`
	DistanceKm   *float64             `json:"distance_km,omitempty"`
}

type fullScooter struct {
	domain.Scooter
	IsAvailable bool     `json:"is_available"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

// canSeeSensitive reports whether the caller administers or owns the scooter.
func canSeeSensitive(r *http.Request, sc *domain.Scooter) bool {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return false
	}
	return claims.Role == string(domain.RoleAdmin) || claims.UserID == sc.ProviderID
}

func scooterView(r *http.Request, sc *domain.Scooter, distance *float64) any {
	if canSeeSensitive(r, sc) {
		return fullScooter{Scooter: *sc, IsAvailable: sc.IsAvailable(), DistanceKm: distance}
	}
	return publicScooter{
		ID:           sc.ID,
		Identifier:   sc.Identifier,
		Model:        sc.Model,
		Brand:        sc.Brand,
		Latitude:     sc.Latitude,
		Longitude:    sc.Longitude,
		Address:      sc.Address,
		Status:       sc.Status,
		BatteryLevel: sc.BatteryLevel,
		MaxSpeed:     sc.MaxSpeed,
		RangeKm:      sc.RangeKm,
		IsAvailable:  sc.IsAvailable(),
		DistanceKm:   distance,
	}
}

func scooterViews(r *http.Request, scooters []domain.Scooter) []any {
	out := make([]any, 0, len(scooters))
	for i := range scooters {
		out = append(out, scooterView(r, &scooters[i], nil))
	}
	return out
}

type createScooterRequest struct {
	Identifier   string   `json:"identifier" validate:"required,max=50"`
	Model        string   `json:"model" validate:"required,max=100"`
	Brand        string   `json:"brand" validate:"required,max=50"`
	Latitude     *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude    *float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Address      string   `json:"address" validate:"omitempty,max=255"`
	BatteryLevel *int32   `json:"battery_level" validate:"omitempty,min=0,max=100"`
	MaxSpeed     *float64 `json:"max_speed" validate:"omitempty,min=0"`
	RangeKm      *float64 `json:"range_km" validate:"omitempty,min=0"`
	ProviderID   int32    `json:"provider_id" validate:"omitempty,min=1"`
}

type updateScooterRequest struct {
	Model        *string  `json:"model" validate:"omitempty,max=100"`
	Brand        *string  `json:"brand" validate:"omitempty,max=50"`
	Address      *string  `json:"address" validate:"omitempty,max=255"`
	BatteryLevel *int32   `json:"battery_level" validate:"omitempty,min=0,max=100"`
	MaxSpeed     *float64 `json:"max_speed" validate:"omitempty,min=0"`
	RangeKm      *float64 `json:"range_km" validate:"omitempty,min=0"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Address   string   `json:"address" validate:"omitempty,max=255"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=available in_use maintenance offline"`
}

type batteryRequest struct {
	BatteryLevel *int32 `json:"battery_level" validate:"required,min=0,max=100"`
}

func (h *ScooterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScooterRequest
	if !decode(w, r, &req) {
		return
	}
	sc, err := h.scooterSvc.Create(r.Context(), actorID(r), service.CreateScooterRequest{
		Identifier:   req.Identifier,
		Model:        req.Model,
		Brand:        req.Brand,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		Address:      req.Address,
		BatteryLevel: req.BatteryLevel,
		MaxSpeed:     req.MaxSpeed,
		RangeKm:      req.RangeKm,
		ProviderID:   req.ProviderID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, scooterView(r, sc, nil))
}

// List supports status, provider_id, geohash, q, limit and offset filters.
func (h *ScooterHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := repository.ScooterFilter{
		Status:        domain.ScooterStatus(q.Get("status")),
		GeohashPrefix: strings.ToLower(strings.TrimSpace(q.Get("geohash"))),
		Query:         strings.TrimSpace(q.Get("q")),
		Page:          page,
	}
	if raw := q.Get("provider_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || id <= 0 {
			writeError(w, r, domain.NewValidationError("invalid provider_id: %q", raw))
			return
		}
		filter.ProviderID = int32(id)
	}
	scooters, total, err := h.scooterSvc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, scooterViews(r, scooters), total)
}

func (h *ScooterHandler) Search(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.URL.Query().Get("q")) == "" {
		writeError(w, r, domain.NewValidationError("q is required"))
		return
	}
	h.List(w, r)
}

func (h *ScooterHandler) Available(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	scooters, err := h.scooterSvc.ListAvailable(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, scooterViews(r, scooters), int32(len(scooters)))
}

// Nearby returns available scooters within radius km, closest first.
func (h *ScooterHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, okLat, err := queryFloat(r, "latitude")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lon, okLon, err := queryFloat(r, "longitude")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !okLat || !okLon {
		writeError(w, r, domain.NewValidationError("latitude and longitude are required"))
		return
	}
	radius, _, err := queryFloat(r, "radius")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultNearbyLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	nearby, err := h.scooterSvc.Nearby(r.Context(), lat, lon, radius, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]any, 0, len(nearby))
	for i := range nearby {
		distance := nearby[i].DistanceKm
		out = append(out, scooterView(r, &nearby[i].Scooter, &distance))
	}
	writeList(w, out, int32(len(out)))
}

func (h *ScooterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sc, err := h.scooterSvc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) GetByIdentifier(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scooterSvc.GetByIdentifier(r.Context(), mux.Vars(r)["identifier"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

// GetByQRCode resolves a scanned code.
func (h *ScooterHandler) GetByQRCode(w http.ResponseWriter, r *http.Request) {
	sc, err := h.scooterSvc.GetByQRCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateScooterRequest
	if !decode(w, r, &req) {
		return
	}
	sc, err := h.scooterSvc.Update(r.Context(), actorID(r), id, domain.ScooterUpdate{
		Model:        req.Model,
		Brand:        req.Brand,
		Address:      req.Address,
		BatteryLevel: req.BatteryLevel,
		MaxSpeed:     req.MaxSpeed,
		RangeKm:      req.RangeKm,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req locationRequest
	if !decode(w, r, &req) {
		return
	}
	sc, err := h.scooterSvc.UpdateLocation(r.Context(), actorID(r), id, *req.Latitude, *req.Longitude, req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) UpdateBattery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req batteryRequest
	if !decode(w, r, &req) {
		return
	}
	sc, err := h.scooterSvc.UpdateBattery(r.Context(), actorID(r), id, *req.BatteryLevel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	sc, err := h.scooterSvc.SetStatus(r.Context(), actorID(r), id, domain.ScooterStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sc, err := h.scooterSvc.SetMaintenance(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) CompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sc, err := h.scooterSvc.CompleteMaintenance(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scooterView(r, sc, nil))
}

func (h *ScooterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.scooterSvc.Delete(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScooterHandler) MaintenanceDue(w http.ResponseWriter, r *http.Request) {
	scooters, err := h.scooterSvc.NeedingMaintenance(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, scooterViews(r, scooters), int32(len(scooters)))
}

func (h *ScooterHandler) LowBattery(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryInt(r, "threshold", domain.LowBatteryThreshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	scooters, err := h.scooterSvc.LowBattery(r.Context(), actorID(r), int32(threshold))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, scooterViews(r, scooters), int32(len(scooters)))
}

func (h *ScooterHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stats, err := h.scooterSvc.Statistics(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type providerStatsResponse struct {
	*domain.ProviderStats
	UtilizationRate float64 `json:"utilization_rate"`
}

func (h *ScooterHandler) ProviderStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stats, err := h.scooterSvc.ProviderStatistics(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, providerStatsResponse{ProviderStats: stats, UtilizationRate: stats.UtilizationRate()})
}

// QRImage renders the scooter's QR code as a PNG for its owner or an admin.
func (h *ScooterHandler) QRImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	size, err := queryInt(r, "size", service.DefaultQRSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sc, err := h.scooterSvc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !canSeeSensitive(r, sc) {
		writeError(w, r, domain.NewForbiddenError("only the owning provider can print this QR code"))
		return
	}
	png, err := h.scooterSvc.QRImage(r.Context(), id, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WritePNG(w, png, time.Hour)
}

// WritePNG serves an image that browsers may cache privately.
func WritePNG(w http.ResponseWriter, png []byte, maxAge time.Duration) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(maxAge.Seconds())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
