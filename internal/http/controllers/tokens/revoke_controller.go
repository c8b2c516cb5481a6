// Package tokens contiene el controller de revocación de JWTs.
package tokens

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

const maxBodySize = 8 * 1024 // 8KB: el body puede traer un JWT completo

// Controller maneja la revocación de tokens propios.
type Controller struct {
	tokens *token.Service
}

// NewController crea el controller de tokens.
func NewController(tokens *token.Service) *Controller {
	return &Controller{tokens: tokens}
}

// Register monta las rutas de tokens en el router.
func (c *Controller) Register(r chi.Router) {
	r.Post("/v1/tokens/revoke", c.Revoke)
}

type revokeRequest struct {
	Token string `json:"token"`
}

// Revoke maneja POST /v1/tokens/revoke.
// Sin body revoca el token con el que el caller se autenticó. Con
// {"token": ...} revoca ese token, siempre que pertenezca al caller.
func (c *Controller) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	var req revokeRequest
	if err := httperr.ReadJSON(w, r, &req, maxBodySize); err != nil {
		// Body vacío es válido: revoca el token actual
		if !errors.Is(err, io.EOF) {
			httperr.WriteError(w, err)
			return
		}
	}

	if req.Token != "" {
		claims, err := c.tokens.Verify(ctx, req.Token)
		if err != nil {
			// Un token ya inválido no necesita revocación
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if claims.UserID() != uid {
			// Token ajeno: mismo 404 para no filtrar existencia
			httperr.WriteError(w, httperr.ErrNotFound)
			return
		}
		if err := c.tokens.Revoke(ctx, claims.JTI(), time.Until(claims.ExpiresAt.Time)); err != nil {
			logger.From(ctx).Error("token revoke failed", logger.JTI(claims.JTI()), logger.Err(err))
			httperr.WriteError(w, err)
			return
		}
		logger.From(ctx).Info("token revoked", logger.UserID(uid), logger.JTI(claims.JTI()))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Sin body: revocar el token del propio request
	claims := mw.GetClaims(ctx)
	if claims == nil {
		// Autenticado por API key: no hay JWT que revocar
		httperr.WriteError(w, httperr.ErrBadRequest.WithMessage("no token to revoke"))
		return
	}
	if err := c.tokens.Revoke(ctx, claims.JTI(), time.Until(claims.ExpiresAt.Time)); err != nil {
		logger.From(ctx).Error("token revoke failed", logger.JTI(claims.JTI()), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}
	logger.From(ctx).Info("token revoked", logger.UserID(uid), logger.JTI(claims.JTI()))
	w.WriteHeader(http.StatusNoContent)
}
