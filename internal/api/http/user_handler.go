package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/service"
)

type UserHandler struct {
	userSvc service.UserService
	authSvc service.AuthService
}

func NewUserHandler(userSvc service.UserService, authSvc service.AuthService) *UserHandler {
	return &UserHandler{userSvc: userSvc, authSvc: authSvc}
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,max=50"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Email     *string `json:"email" validate:"omitempty,email,max=120"`
}

func (req updateProfileRequest) toDomain() domain.UserUpdate {
	return domain.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// List returns users filtered by role, free-text query and activity.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := userFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, total, err := h.userSvc.List(r.Context(), actorID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, nonNil(users), total)
}

// Search is List with a mandatory query.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.URL.Query().Get("q")) == "" {
		writeError(w, r, domain.NewValidationError("q is required"))
		return
	}
	h.List(w, r)
}

func userFilter(r *http.Request) (repository.UserFilter, error) {
	page, err := queryPage(r)
	if err != nil {
		return repository.UserFilter{}, err
	}
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active_only"))
	return repository.UserFilter{
		Role:       domain.Role(q.Get("role")),
		Query:      strings.TrimSpace(q.Get("q")),
		ActiveOnly: activeOnly,
		Page:       page,
	}, nil
}

// Create lets an admin open an account of any role.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.authSvc.CreateUser(r.Context(), actorID(r), req.toService())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.userSvc.GetProfile(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	id := actorID(r)
	user, err := h.userSvc.GetProfile(r.Context(), id, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.update(w, r, id)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, actorID(r))
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, userID int32) {
	var req updateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.userSvc.UpdateProfile(r.Context(), actorID(r), userID, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.authSvc.ChangePassword(r.Context(), actorID(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.authSvc.ResetPassword(r.Context(), actorID(r), id, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.userSvc.Delete(r.Context(), actorID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, h.userSvc.Activate)
}

func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, h.userSvc.Deactivate)
}

func (h *UserHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, h.userSvc.Verify)
}

func (h *UserHandler) Promote(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, h.userSvc.PromoteToProvider)
}

func (h *UserHandler) Demote(w http.ResponseWriter, r *http.Request) {
	h.manage(w, r, h.userSvc.DemoteToCustomer)
}

type userAction func(ctx context.Context, actorID, userID int32) (*domain.User, error)

func (h *UserHandler) manage(w http.ResponseWriter, r *http.Request, action userAction) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := action(r.Context(), actorID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.userSvc.Stats(r.Context(), actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
