package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
)

// pathID parses the named route variable as a positive ID, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int32, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		writeError(w, r, domain.NewValidationError("invalid %s: %q", name, raw))
		return 0, false
	}
	return int32(id), true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("%s must be an integer", name)
	}
	return v, nil
}

func queryFloat(r *http.Request, name string) (float64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, domain.NewValidationError("%s must be a number", name)
	}
	return v, true, nil
}

// queryPage reads limit and offset, clamping them to the repository bounds.
func queryPage(r *http.Request) (repository.Page, error) {
	limit, err := queryInt(r, "limit", repository.DefaultPageSize)
	if err != nil {
		return repository.Page{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return repository.Page{}, err
	}
	return repository.Page{Limit: limit, Offset: offset}.Normalize(), nil
}

func writeList(w http.ResponseWriter, items any, total int32) {
	w.Header().Set("X-Total-Count", strconv.Itoa(int(total)))
	writeJSON(w, http.StatusOK, items)
}

// nonNil keeps empty lists serialising as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
