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
	"github.com/dropDatabas3/gatekeeper/internal/util"
)

// SMSController maneja el desafío SMS.
type SMSController struct {
	svc      *mfasvc.Service
	sessions *session.Manager
}

type smsSetupRequest struct {
	Phone string `json:"phone"`
}

// Setup maneja POST /v1/mfa/sms/setup {phone}.
// Genera el código, lo envía por el sender configurado y deja el
// desafío pendiente con TTL.
func (c *SMSController) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := mw.GetUserID(ctx)
	if uid == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	var req smsSetupRequest
	if err := httperr.ReadJSON(w, r, &req, maxBodySize); err != nil {
		httperr.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		httperr.WriteError(w, httperr.ErrBadRequest.WithMessage("phone is required"))
		return
	}

	if err := c.svc.SetupSMS(ctx, uid, req.Phone); err != nil {
		logger.From(ctx).Error("sms setup failed",
			logger.UserID(uid),
			logger.Err(err),
		)
		httperr.WriteError(w, err)
		return
	}

	logger.From(ctx).Info("sms challenge issued", logger.UserID(uid))
	httperr.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "sent",
		"phone":  util.MaskPhone(req.Phone),
	})
}

// Verify maneja POST /v1/mfa/sms/verify {code}.
// Tres códigos equivocados eliminan el desafío; un desafío expirado
// también responde verified=false.
func (c *SMSController) Verify(w http.ResponseWriter, r *http.Request) {
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

	ok, err := c.svc.VerifySMS(ctx, uid, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, autherr.ErrExpired):
			httperr.WriteError(w, httperr.ErrUnauthorized.WithMessage("challenge expired"))
		case errors.Is(err, autherr.ErrAttemptsExhausted):
			httperr.WriteError(w, httperr.ErrUnauthorized.WithMessage("too many wrong codes"))
		default:
			logger.From(ctx).Error("sms verify failed", logger.UserID(uid), logger.Err(err))
			httperr.WriteError(w, err)
		}
		return
	}

	if ok {
		markSessionVerified(r, c.sessions)
	}
	httperr.WriteJSON(w, http.StatusOK, verifyResponse{Verified: ok})
}
