package mfa

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	mfasvc "github.com/dropDatabas3/gatekeeper/internal/mfa"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/session"
)

// BackupController maneja los códigos de respaldo de un solo uso.
type BackupController struct {
	svc      *mfasvc.Service
	sessions *session.Manager
}

// Verify maneja POST /v1/mfa/backup/verify {code}.
// Cada código sirve exactamente una vez, incluso bajo concurrencia.
func (c *BackupController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	var req codeRequest
	if err := httperr.ReadJSON(w, r, &req, maxBodySize); err != nil {
		httperr.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httperr.WriteError(w, httperr.ErrBadRequest.WithMessage("code is required"))
		return
	}

	ok, err := c.svc.VerifyBackupCode(ctx, uid, req.Code)
	if err != nil {
		logger.From(ctx).Error("backup code verify failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	if ok {
		markSessionVerified(r, c.sessions)
	}
	httperr.WriteJSON(w, http.StatusOK, verifyResponse{Verified: ok})
}

type regenerateResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// Regenerate maneja POST /v1/mfa/backup/regenerate.
// Invalida el set anterior completo y devuelve códigos nuevos en claro.
func (c *BackupController) Regenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	codes, err := c.svc.RegenerateBackupCodes(ctx, uid)
	if err != nil {
		if errors.Is(err, mfasvc.ErrNotEnrolled) {
			httperr.WriteError(w, httperr.ErrBadRequest.WithMessage("totp not enrolled"))
			return
		}
		logger.From(ctx).Error("backup code regenerate failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	httperr.WriteJSON(w, http.StatusOK, regenerateResponse{BackupCodes: codes})
}
