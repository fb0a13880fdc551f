/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/purchases/*      Purchase execution and log
  /api/sale             Global sale state
  /api/tiers/*          Tier configuration
  /api/accounts/*       Balances and allowance
  /api/admin/*          Manager operations
  /api/scenarios/*      Demo scenarios (dev only)
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  Administrative calls carry the caller account in X-Manager-Account and
  the engine checks it against the configured manager. There is no request
  authentication beyond that; front the server with real auth in
  production.

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured. gatherer may
// be nil to disable the /metrics endpoint.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Manager-Account"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.Purchase)
			r.Get("/", h.ListPurchases)
		})

		r.Get("/sale", h.GetSale)

		r.Route("/tiers", func(r chi.Router) {
			r.Get("/", h.ListTiers)
			r.Get("/{n}", h.GetTier)
			r.Put("/{n}", h.SetTier)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", h.GetAccount)
			r.Post("/{id}/approve", h.Approve)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/price", h.SetPrice)
			r.Post("/fee", h.SetBaseFee)
			r.Post("/tiers/grant", h.GrantTier)
			r.Post("/mint", h.Mint)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Sale Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Sale Engine API</h1>
<ul>
<li><a href="/api/sale">/api/sale</a> - Global sale state</li>
<li><a href="/api/tiers">/api/tiers</a> - Tier configurations</li>
<li><a href="/api/purchases">/api/purchases</a> - Purchase log</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
