// Package sessions contiene los controllers de gestión de sesiones
// del propio usuario autenticado.
package sessions

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/session"
)

// Controller maneja listado y terminación de sesiones.
type Controller struct {
	sessions *session.Manager
}

// NewController crea el controller de sesiones.
func NewController(sessions *session.Manager) *Controller {
	return &Controller{sessions: sessions}
}

// Register monta las rutas de sesiones en el router.
func (c *Controller) Register(r chi.Router) {
	r.Get("/v1/sessions", c.List)
	r.Delete("/v1/sessions/{id}", c.Terminate)
	r.Post("/v1/sessions/logout_all", c.LogoutAll)
}

type sessionView struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MFAVerified  bool      `json:"mfa_verified"`
}

// List maneja GET /v1/sessions: las sesiones vivas del caller.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	sessions, err := c.sessions.ListForUser(ctx, uid)
	if err != nil {
		logger.From(ctx).Error("list sessions failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			MFAVerified:  s.MFAVerified,
		})
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// Terminate maneja DELETE /v1/sessions/{id}.
// Solo se pueden terminar sesiones propias; terminar una sesión ya
// muerta es 204 igual (idempotente).
func (c *Controller) Terminate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}
	sid := chi.URLParam(r, "id")

	// Verificar pertenencia antes de tocar nada
	owned, err := c.sessions.ListForUser(ctx, uid)
	if err != nil {
		logger.From(ctx).Error("terminate session failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}
	found := false
	for _, s := range owned {
		if s.ID == sid {
			found = true
			break
		}
	}
	if !found {
		// Sesión ajena o inexistente: mismo 404 para no filtrar existencia
		httperr.WriteError(w, httperr.ErrNotFound)
		return
	}

	if err := c.sessions.Terminate(ctx, sid); err != nil && !errors.Is(err, autherr.ErrInvalidCredential) {
		logger.From(ctx).Error("terminate session failed", logger.SessionID(sid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll maneja POST /v1/sessions/logout_all: termina todas las
// sesiones del caller y reporta cuántas cayeron.
func (c *Controller) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	n, err := c.sessions.TerminateAllForUser(ctx, uid)
	if err != nil {
		logger.From(ctx).Error("logout all failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	logger.From(ctx).Info("all sessions terminated", logger.UserID(uid))
	httperr.WriteJSON(w, http.StatusOK, map[string]int{"terminated": n})
}
