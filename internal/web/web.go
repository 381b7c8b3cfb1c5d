// Package web serves the browser views: login, logout and a role-specific
// dashboard. The session is the API access token kept in an HttpOnly cookie.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	apihttp "scooter-share-pro/internal/api/http"
	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository"
	"scooter-share-pro/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

const recentRentals = 10

type Handler struct {
	svcs         apihttp.Services
	pages        map[string]*template.Template
	cookieSecure bool
	sessionTTL   time.Duration
	now          func() time.Time
}

// NewHandler parses the page templates. cookieSecure should be true whenever
// the site is served over TLS.
func NewHandler(svcs apihttp.Services, cookieSecure bool, sessionTTL time.Duration) (*Handler, error) {
	h := &Handler{
		svcs:         svcs,
		pages:        make(map[string]*template.Template),
		cookieSecure: cookieSecure,
		sessionTTL:   sessionTTL,
		now:          time.Now,
	}
	funcs := template.FuncMap{
		"money":   func(d decimal.Decimal) string { return d.StringFixed(2) },
		"percent": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" },
		"date":    func(t time.Time) string { return t.Format("2006-01-02 15:04") },
		"duration": func(r domain.Rental) string {
			return r.FormattedDuration(h.now())
		},
		"cost": func(r domain.Rental) decimal.Decimal {
			return r.CurrentCost(h.now())
		},
	}
	for _, page := range []string{"login", "dashboard_admin", "dashboard_provider", "dashboard_customer"} {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS,
			"templates/base.html", "templates/rentals.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		h.pages[page] = tmpl
	}
	return h, nil
}

// RegisterRoutes mounts the browser views on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/login", h.loginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodGet, http.MethodPost)

	session := r.NewRoute().Subrouter()
	session.Use(h.requireSession)
	session.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
	session.HandleFunc("/scooters/{id:[0-9]+}/qr.png", h.qrImage).Methods(http.MethodGet)
}

// requireSession redirects to the login page when the cookie is missing or stale.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := apihttp.BearerToken(r)
		if token == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		claims, err := h.svcs.Auth.Authenticate(r.Context(), token)
		if err != nil {
			h.clearSession(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(apihttp.WithClaims(r.Context(), claims)))
	})
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

type loginPage struct {
	User  *domain.User
	Email string
	Error string
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login", loginPage{})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", loginPage{Error: "Invalid form submission."})
		return
	}
	email := r.PostForm.Get("email")
	res, err := h.svcs.Auth.Login(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		msg := "Login failed, please try again."
		if de, ok := domain.AsError(err); ok {
			msg = de.Message
		} else {
			logger.Error("Web login failed", "error", err)
		}
		h.render(w, apihttp.StatusFor(err), "login", loginPage{Email: email, Error: msg})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     apihttp.AccessTokenCookie,
		Value:    res.AccessToken,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := apihttp.BearerToken(r); token != "" {
		if err := h.svcs.Auth.Logout(r.Context(), token, ""); err != nil {
			logger.Warn("Web logout could not revoke token", "error", err)
		}
	}
	h.clearSession(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     apihttp.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

type adminDashboard struct {
	User     *domain.User
	Users    *domain.UserStats
	Rentals  *domain.RentalStatistics
	Payments *domain.PaymentStatistics
	Recent   []domain.Rental
}

type providerDashboard struct {
	User     *domain.User
	Fleet    *domain.ProviderStats
	Scooters []domain.Scooter
	Recent   []domain.Rental
}

type customerDashboard struct {
	User   *domain.User
	Active *domain.Rental
	Stats  *domain.UserRentalStats
	Recent []domain.Rental
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	claims, _ := apihttp.ClaimsFromContext(r.Context())
	ctx := r.Context()
	user, err := h.svcs.User.GetProfile(ctx, claims.UserID, claims.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recent, _, err := h.svcs.Rental.List(ctx, user.ID, repository.RentalFilter{Page: repository.Page{Limit: recentRentals}})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	switch user.Role {
	case domain.RoleAdmin:
		page, err := h.adminPage(ctx, user)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		page.Recent = recent
		h.render(w, http.StatusOK, "dashboard_admin", page)
	case domain.RoleProvider:
		fleet, err := h.svcs.Scooter.ProviderStatistics(ctx, user.ID, user.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		scooters, _, err := h.svcs.Scooter.List(ctx, repository.ScooterFilter{ProviderID: user.ID, Page: repository.Page{Limit: repository.MaxPageSize}})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.render(w, http.StatusOK, "dashboard_provider", providerDashboard{User: user, Fleet: fleet, Scooters: scooters, Recent: recent})
	default:
		page := customerDashboard{User: user, Recent: recent}
		page.Active, err = h.svcs.Rental.Active(ctx, user.ID)
		if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			h.fail(w, r, err)
			return
		}
		page.Stats, err = h.svcs.Rental.UserStatistics(ctx, user.ID, user.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.render(w, http.StatusOK, "dashboard_customer", page)
	}
}

func (h *Handler) adminPage(ctx context.Context, user *domain.User) (adminDashboard, error) {
	page := adminDashboard{User: user}
	var err error
	if page.Users, err = h.svcs.User.Stats(ctx, user.ID); err != nil {
		return page, err
	}
	if page.Rentals, err = h.svcs.Rental.Statistics(ctx, user.ID); err != nil {
		return page, err
	}
	if page.Payments, err = h.svcs.Payment.Statistics(ctx, user.ID); err != nil {
		return page, err
	}
	return page, nil
}

// qrImage serves a printable QR code to the scooter's owner or an admin.
func (h *Handler) qrImage(w http.ResponseWriter, r *http.Request) {
	claims, _ := apihttp.ClaimsFromContext(r.Context())
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	sc, err := h.svcs.Scooter.Get(r.Context(), int32(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if claims.Role != string(domain.RoleAdmin) && claims.UserID != sc.ProviderID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	png, err := h.svcs.Scooter.QRImage(r.Context(), sc.ID, service.DefaultQRSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apihttp.WritePNG(w, png, time.Hour)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apihttp.StatusFor(err)
	if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrUserInactive) {
		h.clearSession(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if status == http.StatusInternalServerError {
		logger.Error("Web view failed", "path", r.URL.Path, "error", err)
	}
	http.Error(w, http.StatusText(status), status)
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := h.pages[page]
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		logger.Error("Failed to render page", "page", page, "error", err)
	}
}
