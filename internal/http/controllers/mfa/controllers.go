// Package mfa contiene los controllers de gestión de segundo factor.
// Todos los endpoints requieren principal autenticado; el user ID sale
// del contexto, nunca del body.
package mfa

import (
	"github.com/go-chi/chi/v5"

	mfasvc "github.com/dropDatabas3/gatekeeper/internal/mfa"
	"github.com/dropDatabas3/gatekeeper/internal/session"
)

const maxBodySize = 4 * 1024 // 4KB

// Controllers agrupa los controllers del dominio MFA.
type Controllers struct {
	TOTP   *TOTPController
	SMS    *SMSController
	Backup *BackupController
}

// NewControllers crea el agregador de controllers MFA. sessions puede ser
// nil; si está presente, una verificación exitosa marca la sesión activa
// (header X-Session-ID) como MFA-verified.
func NewControllers(svc *mfasvc.Service, sessions *session.Manager) *Controllers {
	return &Controllers{
		TOTP:   &TOTPController{svc: svc, sessions: sessions},
		SMS:    &SMSController{svc: svc, sessions: sessions},
		Backup: &BackupController{svc: svc, sessions: sessions},
	}
}

// Register monta las rutas MFA en el router.
func (c *Controllers) Register(r chi.Router) {
	r.Post("/v1/mfa/totp/setup", c.TOTP.Setup)
	r.Post("/v1/mfa/totp/verify", c.TOTP.Verify)
	r.Delete("/v1/mfa/totp", c.TOTP.Disable)

	r.Post("/v1/mfa/sms/setup", c.SMS.Setup)
	r.Post("/v1/mfa/sms/verify", c.SMS.Verify)

	r.Post("/v1/mfa/backup/verify", c.Backup.Verify)
	r.Post("/v1/mfa/backup/regenerate", c.Backup.Regenerate)
}
