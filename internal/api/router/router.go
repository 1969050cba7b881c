package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/spa-turnos/internal/chat"
	"github.com/wolfman30/spa-turnos/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/observability/metrics"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger      *logging.Logger
	HTTPMetrics *metrics.HTTPMetrics

	Sessions *session.Manager
	Cookie   httpmiddleware.SessionCookie

	Auth    *handlers.AuthHandler
	Catalog *handlers.CatalogHandler
	Flow    *handlers.FlowHandler
	Account *handlers.AccountHandler
	Admin   *handlers.AdminHandler
	Chat    *chat.Handler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger, cfg.HTTPMetrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Chat != nil {
			public.Get("/chat/ws", cfg.Chat.HandleWebSocket)
			public.With(limit(cfg.RateLimiter)).Post("/chat/message", cfg.Chat.HandleMessage)
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(limit(cfg.RateLimiter))

		api.Get("/services", cfg.Catalog.ListServices)
		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", cfg.Auth.Login)
			auth.Post("/register", cfg.Auth.Register)
			auth.Post("/logout", cfg.Auth.Logout)
		})

		// Customer routes
		api.Group(func(customer chi.Router) {
			customer.Use(httpmiddleware.RequireSession(cfg.Sessions, cfg.Cookie, logger))

			customer.Get("/auth/me", cfg.Auth.Me)
			customer.Get("/availability", cfg.Catalog.Availability)

			customer.Route("/flow", func(flow chi.Router) {
				flow.Post("/", cfg.Flow.Open)
				flow.Get("/", cfg.Flow.Get)
				flow.Delete("/", cfg.Flow.Close)
				flow.Post("/service", cfg.Flow.SelectService)
				flow.Post("/date", cfg.Flow.SelectDate)
				flow.Post("/time", cfg.Flow.SelectTime)
				flow.Post("/next", cfg.Flow.Next)
				flow.Post("/previous", cfg.Flow.Previous)
				flow.Post("/submit", cfg.Flow.Submit)
			})
			customer.Post("/bookings", cfg.Flow.CreateBooking)

			customer.Route("/me", func(me chi.Router) {
				me.Get("/appointments", cfg.Account.Appointments)
				me.Post("/appointments/{id}/cancel", cfg.Account.Cancel)
				me.Post("/days/{date}/pay", cfg.Account.PayDay)
			})

			// Admin routes
			if cfg.Admin != nil {
				customer.Route("/admin", func(admin chi.Router) {
					admin.Use(httpmiddleware.RequireAdmin)

					admin.Get("/users", cfg.Admin.ListUsers)
					admin.Put("/users/{id}", cfg.Admin.UpdateUser)
					admin.Delete("/users/{id}", cfg.Admin.DeleteUser)
					admin.Delete("/users/{id}/payment-attempts", cfg.Admin.ResetPaymentAttempts)

					admin.Post("/services", cfg.Admin.CreateService)
					admin.Put("/services/{id}", cfg.Admin.UpdateService)
					admin.Delete("/services/{id}", cfg.Admin.DeleteService)

					admin.Get("/appointments", cfg.Admin.ListAppointments)
					admin.Put("/appointments/{id}/status", cfg.Admin.UpdateAppointmentStatus)
					admin.Delete("/appointments/{id}", cfg.Admin.DeleteAppointment)

					admin.Get("/payments", cfg.Admin.ListPayments)
				})
			}
		})
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// limit applies the rate limiter when one is configured.
func limit(rl *httpmiddleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpmiddleware.RateLimit(rl)
}
