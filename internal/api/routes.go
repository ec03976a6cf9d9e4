package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, metricsHandler http.Handler, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		// The websocket upgrade hijacks the connection, so it stays outside
		// the timeout and compression wrappers.
		r.Get("/ws", h.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(m.Compress)
			r.Use(m.Timeout(15 * time.Second))

			r.Route("/quotes", func(r chi.Router) {
				r.Get("/buy", h.GetBuyQuote)
				r.Get("/sell", h.GetSellQuote)
			})

			r.Get("/terms", h.GetTerms)
			r.Get("/pool", h.GetPool)

			r.Route("/bonds", func(r chi.Router) {
				r.Get("/{address}", h.GetBonds)
				r.Get("/{address}/claimable/{id}", h.GetClaimable)
			})
		})
	})

	return r
}
