package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/appointix/appointix/internal/clinic"
)

type RouterConfig struct {
	Repo    clinic.Repository
	Auth    Authenticator
	Booking *clinic.BookingService
	PgPool  *pgxpool.Pool // nil when running on the in-memory fallback
	Redis   *redis.Client // nil when no Redis is configured
	Env     string
	Version string
}

// NewRouter builds the /api surface the Unity-era client expects:
// Italian resource names, raw-array list bodies, registration and login
// on dedicated endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{repo: cfg.Repo, auth: cfg.Auth, booking: cfg.Booking}
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		// connection probe
		r.Get("/test", health.Test)

		r.Get("/dottori", h.listDoctors)
		r.Get("/dottori/{id}", h.getDoctor)
		r.Put("/dottori/{id}", h.updateDoctor)
		r.Delete("/dottori/{id}", h.deleteDoctor)

		r.Get("/pazienti", h.listPatients)
		r.Get("/pazienti/{id}", h.getPatient)
		r.Put("/pazienti/{id}", h.updatePatient)
		r.Delete("/pazienti/{id}", h.deletePatient)

		r.Get("/prenotazioni", h.listAppointments)
		r.Get("/prenotazioni/{id}", h.getAppointment)
		r.Get("/prenotazioni/dottore/{id}", h.listAppointmentsByDoctor)
		r.Get("/prenotazioni/paziente/{id}", h.listAppointmentsByPatient)
		r.Delete("/prenotazioni/{id}", h.deleteAppointment)
		r.Post("/creaprenotazione", h.createAppointment)

		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})

	return r
}
