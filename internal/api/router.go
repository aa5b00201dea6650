// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"herdvest-agent/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router for the surface API.
func NewRouter(h *handler.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// The stream carries long-lived websocket connections, so it stays
	// outside the request timeout.
	r.Get("/stream", h.Stream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(handler.DefaultTimeout))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/connect", h.Connect)
			r.Post("/disconnect", h.Disconnect)
		})
		r.Post("/network/switch", h.SwitchNetwork)

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", h.ListAssets)
			r.Post("/", h.CreateListing)
			r.Put("/{listingID}/status", h.SetAssetStatus)
			r.Put("/{listingID}/shares", h.AdjustShares)
			r.Delete("/{listingID}", h.DeactivateAsset)
		})

		r.Route("/investments", func(r chi.Router) {
			r.Get("/", h.ListInvestments)
			r.Post("/", h.Invest)
			r.Post("/{investmentID}/withdraw", h.WithdrawInvestment)
		})

		r.Get("/roles", h.Roles)
		r.Post("/roles/request", h.RequestRole)
		r.Post("/funds/claim", h.ClaimFunds)
	})

	return r
}
