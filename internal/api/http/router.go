package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"scooter-share-pro/internal/service"
)

// Services bundles what the JSON API is built on.
type Services struct {
	Auth    service.AuthService
	User    service.UserService
	Scooter service.ScooterService
	Rental  service.RentalService
	Payment service.PaymentService
}

// RegisterRoutes mounts the JSON API under /api/v1 on r.
func RegisterRoutes(r *mux.Router, svcs Services) {
	authH := NewAuthHandler(svcs.Auth, svcs.User)
	userH := NewUserHandler(svcs.User, svcs.Auth)
	scooterH := NewScooterHandler(svcs.Scooter)
	rentalH := NewRentalHandler(svcs.Rental, svcs.Payment)
	paymentH := NewPaymentHandler(svcs.Payment)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route_not_found", "no such endpoint")
	})

	public := api.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/register", authH.Register).Methods(http.MethodPost)
	public.HandleFunc("/login", authH.Login).Methods(http.MethodPost)
	public.HandleFunc("/refresh", authH.Refresh).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(RequireAuth(svcs.Auth))

	protected.HandleFunc("/auth/logout", authH.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/me", authH.Me).Methods(http.MethodGet)

	users := protected.PathPrefix("/users").Subrouter()
	collection(users, userH.List, userH.Create)
	users.HandleFunc("/search", userH.Search).Methods(http.MethodGet)
	users.HandleFunc("/statistics", userH.Statistics).Methods(http.MethodGet)
	users.HandleFunc("/me", userH.GetMe).Methods(http.MethodGet)
	users.HandleFunc("/me", userH.UpdateMe).Methods(http.MethodPut)
	users.HandleFunc("/me/password", userH.ChangePassword).Methods(http.MethodPut)
	users.HandleFunc("/{id:[0-9]+}", userH.Get).Methods(http.MethodGet)
	users.HandleFunc("/{id:[0-9]+}", userH.Update).Methods(http.MethodPut)
	users.HandleFunc("/{id:[0-9]+}", userH.Delete).Methods(http.MethodDelete)
	users.HandleFunc("/{id:[0-9]+}/activate", userH.Activate).Methods(http.MethodPost)
	users.HandleFunc("/{id:[0-9]+}/deactivate", userH.Deactivate).Methods(http.MethodPost)
	users.HandleFunc("/{id:[0-9]+}/verify", userH.Verify).Methods(http.MethodPost)
	users.HandleFunc("/{id:[0-9]+}/promote", userH.Promote).Methods(http.MethodPost)
	users.HandleFunc("/{id:[0-9]+}/demote", userH.Demote).Methods(http.MethodPost)
	users.HandleFunc("/{id:[0-9]+}/password", userH.ResetPassword).Methods(http.MethodPost)

	scooters := protected.PathPrefix("/scooters").Subrouter()
	collection(scooters, scooterH.List, scooterH.Create)
	scooters.HandleFunc("/available", scooterH.Available).Methods(http.MethodGet)
	scooters.HandleFunc("/nearby", scooterH.Nearby).Methods(http.MethodGet)
	scooters.HandleFunc("/search", scooterH.Search).Methods(http.MethodGet)
	scooters.HandleFunc("/maintenance-due", scooterH.MaintenanceDue).Methods(http.MethodGet)
	scooters.HandleFunc("/low-battery", scooterH.LowBattery).Methods(http.MethodGet)
	scooters.HandleFunc("/identifier/{identifier}", scooterH.GetByIdentifier).Methods(http.MethodGet)
	scooters.HandleFunc("/qr/{code}", scooterH.GetByQRCode).Methods(http.MethodGet)
	scooters.HandleFunc("/providers/{id:[0-9]+}/statistics", scooterH.ProviderStatistics).Methods(http.MethodGet)
	scooters.HandleFunc("/{id:[0-9]+}", scooterH.Get).Methods(http.MethodGet)
	scooters.HandleFunc("/{id:[0-9]+}", scooterH.Update).Methods(http.MethodPut)
	scooters.HandleFunc("/{id:[0-9]+}", scooterH.Delete).Methods(http.MethodDelete)
	scooters.HandleFunc("/{id:[0-9]+}/location", scooterH.UpdateLocation).Methods(http.MethodPut)
	scooters.HandleFunc("/{id:[0-9]+}/status", scooterH.SetStatus).Methods(http.MethodPut)
	scooters.HandleFunc("/{id:[0-9]+}/battery", scooterH.UpdateBattery).Methods(http.MethodPut)
	scooters.HandleFunc("/{id:[0-9]+}/maintenance", scooterH.SetMaintenance).Methods(http.MethodPost)
	scooters.HandleFunc("/{id:[0-9]+}/maintenance/complete", scooterH.CompleteMaintenance).Methods(http.MethodPost)
	scooters.HandleFunc("/{id:[0-9]+}/statistics", scooterH.Statistics).Methods(http.MethodGet)
	scooters.HandleFunc("/{id:[0-9]+}/qr", scooterH.QRImage).Methods(http.MethodGet)

	rentals := protected.PathPrefix("/rentals").Subrouter()
	collection(rentals, rentalH.List, rentalH.Start)
	rentals.HandleFunc("/active", rentalH.Active).Methods(http.MethodGet)
	rentals.HandleFunc("/statistics", rentalH.Statistics).Methods(http.MethodGet)
	rentals.HandleFunc("/me/statistics", rentalH.MyStatistics).Methods(http.MethodGet)
	rentals.HandleFunc("/users/{id:[0-9]+}/statistics", rentalH.UserStatistics).Methods(http.MethodGet)
	rentals.HandleFunc("/code/{code}", rentalH.GetByCode).Methods(http.MethodGet)
	rentals.HandleFunc("/overdue/sweep", rentalH.SweepOverdue).Methods(http.MethodPost)
	rentals.HandleFunc("/{id:[0-9]+}", rentalH.Get).Methods(http.MethodGet)
	rentals.HandleFunc("/{id:[0-9]+}/end", rentalH.End).Methods(http.MethodPost)
	rentals.HandleFunc("/{id:[0-9]+}/cancel", rentalH.Cancel).Methods(http.MethodPost)
	rentals.HandleFunc("/{id:[0-9]+}/rating", rentalH.Rate).Methods(http.MethodPost)
	rentals.HandleFunc("/{id:[0-9]+}/payment-status", rentalH.PaymentStatus).Methods(http.MethodGet)
	rentals.HandleFunc("/{id:[0-9]+}/pay", rentalH.Pay).Methods(http.MethodPost)

	payments := protected.PathPrefix("/payments").Subrouter()
	collection(payments, paymentH.List, paymentH.Create)
	payments.HandleFunc("/refundable", paymentH.Refundable).Methods(http.MethodGet)
	payments.HandleFunc("/statistics", paymentH.Statistics).Methods(http.MethodGet)
	payments.HandleFunc("/revenue-by-method", paymentH.RevenueByMethod).Methods(http.MethodGet)
	payments.HandleFunc("/transaction/{tx}", paymentH.GetByTransactionID).Methods(http.MethodGet)
	payments.HandleFunc("/{id:[0-9]+}", paymentH.Get).Methods(http.MethodGet)
	payments.HandleFunc("/{id:[0-9]+}/process", paymentH.Process).Methods(http.MethodPost)
	payments.HandleFunc("/{id:[0-9]+}/complete", paymentH.Complete).Methods(http.MethodPost)
	payments.HandleFunc("/{id:[0-9]+}/fail", paymentH.Fail).Methods(http.MethodPost)
	payments.HandleFunc("/{id:[0-9]+}/refund", paymentH.Refund).Methods(http.MethodPost)
}

// collection registers list and create on both "/x" and "/x/".
func collection(r *mux.Router, list, create http.HandlerFunc) {
	for _, path := range []string{"", "/"} {
		r.HandleFunc(path, list).Methods(http.MethodGet)
		r.HandleFunc(path, create).Methods(http.MethodPost)
	}
}
