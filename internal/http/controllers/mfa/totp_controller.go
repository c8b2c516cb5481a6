package mfa

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	mfasvc "github.com/dropDatabas3/gatekeeper/internal/mfa"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/session"
)

// TOTPController maneja enrolamiento y verificación TOTP.
type TOTPController struct {
	svc      *mfasvc.Service
	sessions *session.Manager
}

type totpSetupResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

// Setup maneja POST /v1/mfa/totp/setup.
// Devuelve el secret base32, la URL otpauth y los backup codes en claro.
// Es la única vez que los códigos viajan en claro; después solo hay hashes.
func (c *TOTPController) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	enr, err := c.svc.SetupTOTP(ctx, uid)
	if err != nil {
		logger.From(ctx).Error("totp setup failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	httperr.WriteJSON(w, http.StatusOK, totpSetupResponse{
		Secret:      enr.Secret,
		OTPAuthURL:  enr.OTPAuthURL,
		BackupCodes: enr.BackupCodes,
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// Verify maneja POST /v1/mfa/totp/verify {code}.
func (c *TOTPController) Verify(w http.ResponseWriter, r *http.Request) {
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

	ok, err := c.svc.VerifyTOTP(ctx, uid, req.Code)
	if err != nil {
		logger.From(ctx).Error("totp verify failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}

	if ok {
		markSessionVerified(r, c.sessions)
	}
	httperr.WriteJSON(w, http.StatusOK, verifyResponse{Verified: ok})
}

// Disable maneja DELETE /v1/mfa/totp.
// Borra el enrolamiento TOTP y los backup codes asociados.
func (c *TOTPController) Disable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	if err := c.svc.DisableTOTP(ctx, uid); err != nil {
		logger.From(ctx).Error("totp disable failed", logger.UserID(uid), logger.Err(err))
		httperr.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// markSessionVerified marca la sesión del header X-Session-ID como
// MFA-verified. Best effort: una sesión ya expirada no invalida la
// verificación del factor.
func markSessionVerified(r *http.Request, sessions *session.Manager) {
	if sessions == nil {
		return
	}
	sid := strings.TrimSpace(r.Header.Get("X-Session-ID"))
	if sid == "" {
		return
	}
	if err := sessions.MarkMFAVerified(r.Context(), sid); err != nil && !errors.Is(err, autherr.ErrInvalidCredential) {
		logger.From(r.Context()).Warn("mark session mfa-verified", logger.SessionID(sid), logger.Err(err))
	}
}
