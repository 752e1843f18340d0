/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request, echoed in error logs
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/categories       Bill categories
  /api/bill-heads/*     Bill head configuration
  /api/residents/*      Resident roster
  /api/bills/*          Calculation, generation, payments
  /api/ledger/*         Reconciled statements and exports
  /api/admin/*          Admin operations (overdue sweep, health)
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are the dev frontend origins.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured. An empty
// origins list falls back to DefaultOrigins.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)

		r.Route("/bill-heads", func(r chi.Router) {
			r.Get("/", h.ListBillHeads)
			r.Post("/", h.CreateBillHead)
			r.Get("/{id}", h.GetBillHead)
		})

		r.Route("/residents", func(r chi.Router) {
			r.Get("/", h.ListResidents)
			r.Post("/", h.CreateResident)
		})

		r.Route("/bills", func(r chi.Router) {
			r.Get("/", h.ListBills)
			r.Post("/", h.CreateBill)
			r.Post("/calculate", h.CalculateBill)
			r.Post("/bulk", h.GenerateBulk)
			r.Get("/{id}", h.GetBill)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/{category}/statement", h.GetStatement)
			r.Get("/{category}/{ledger}/vouchers", h.ListVouchers)
			r.Post("/{category}/{ledger}/vouchers", h.PostVoucher)
			r.Get("/{category}/{ledger}/balance", h.GetLedgerBalance)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/overdue", h.SweepOverdue)
			r.Get("/health", h.Health)
		})
	})

	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	return r
}
