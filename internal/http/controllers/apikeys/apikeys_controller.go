// Package apikeys contiene los controllers de API keys del usuario
// autenticado.
package apikeys

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gatekeeper/internal/apikey"
	"github.com/dropDatabas3/gatekeeper/internal/audit"
	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
)

const maxBodySize = 4 * 1024 // 4KB

// Controller maneja emisión, listado y revocación de API keys.
type Controller struct {
	keys    *apikey.Service
	auditor audit.Recorder
}

// NewController crea el controller de API keys. auditor puede ser nil.
func NewController(keys *apikey.Service, auditor audit.Recorder) *Controller {
	return &Controller{keys: keys, auditor: auditor}
}

// Register monta las rutas de API keys en el router.
func (c *Controller) Register(r chi.Router) {
	r.Post("/v1/apikeys", c.Create)
	r.Get("/v1/apikeys", c.List)
	r.Delete("/v1/apikeys/{id}", c.Revoke)
}

type createRequest struct {
	Scopes []string `json:"scopes"`
}

type createResponse struct {
	KeyID string `json:"key_id"`
	// Key es "<key_id>.<secret>": lo que el cliente manda en X-API-Key.
	// El secret no vuelve a estar disponible nunca más.
	Key string `json:"key"`
}

// Create maneja POST /v1/apikeys {scopes}.
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	var req createRequest
	if err := httperr.ReadJSON(w, r, &req, maxBodySize); err != nil {
		httperr.WriteError(w, err)
		return
	}

	keyID, secret, err := c.keys.Generate(ctx, uid, req.Scopes)
	if err != nil {
		if errors.Is(err, apikey.ErrInvalidScope) {
			httperr.WriteError(w, httperr.ErrBadRequest.WithMessage("invalid scope name"))
			return
		}
		logger.From(ctx).Error("api key create failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	logger.From(ctx).Info("api key created", logger.UserID(uid), logger.KeyID(keyID))
	httperr.WriteJSON(w, http.StatusCreated, createResponse{
		KeyID: keyID,
		Key:   keyID + "." + secret,
	})
}

// List maneja GET /v1/apikeys: todas las keys del caller, revocadas
// incluidas (sirven como registro de auditoría).
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	keys, err := c.keys.List(ctx, uid)
	if err != nil {
		logger.From(ctx).Error("api key list failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

// Revoke maneja DELETE /v1/apikeys/{id}.
// Solo el dueño puede revocar; la revocación es permanente e idempotente.
func (c *Controller) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}
	keyID := chi.URLParam(r, "id")

	owner, err := c.keys.Owner(ctx, keyID)
	if err != nil {
		if errors.Is(err, autherr.ErrInvalidCredential) {
			httperr.WriteError(w, httperr.ErrNotFound)
			return
		}
		logger.From(ctx).Error("api key revoke failed", logger.KeyID(keyID), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}
	if owner != uid {
		// Key ajena: mismo 404 para no filtrar existencia
		httperr.WriteError(w, httperr.ErrNotFound)
		return
	}

	if err := c.keys.Revoke(ctx, keyID); err != nil {
		logger.From(ctx).Error("api key revoke failed", logger.KeyID(keyID), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	if c.auditor != nil {
		c.auditor.Record(ctx, audit.Event{
			Event:    "api_key_revoked",
			Outcome:  "allowed",
			UserID:   uid,
			ClientIP: mw.ClientIP(r),
			Path:     r.URL.Path,
			Method:   r.Method,
			Detail:   keyID,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
