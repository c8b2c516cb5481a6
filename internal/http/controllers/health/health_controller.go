// Package health contiene los health checks públicos.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gatekeeper/internal/cache"
	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
)

// Controller responde las sondas de liveness y readiness.
type Controller struct {
	store cache.Client
}

// NewController crea el controller de health. store puede ser nil
// (readyz degrada a liveness).
func NewController(store cache.Client) *Controller {
	return &Controller{store: store}
}

// Register monta las rutas públicas de health.
func (c *Controller) Register(r chi.Router) {
	r.Get("/healthz", c.Healthz)
	r.Get("/readyz", c.Readyz)
}

// Healthz maneja GET /healthz: el proceso está vivo.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	httperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz: el proceso puede atender tráfico.
// Con backend de estado caído el gateway niega todo (fail-closed),
// así que un ping fallido significa not-ready.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	if c.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.store.Ping(ctx); err != nil {
			httperr.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"reason": "state backend unreachable",
			})
			return
		}
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
