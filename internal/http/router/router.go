// Package router arma el árbol de rutas completo del servidor.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apikeysctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/apikeys"
	healthctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/health"
	mfactrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/mfa"
	sessionsctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/sessions"
	tokensctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/tokens"
	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
)

// Deps contiene todo lo que el router necesita para montarse.
type Deps struct {
	Gateway  *mw.Gateway
	Throttle *mw.Throttle

	Health   *healthctrl.Controller
	MFA      *mfactrl.Controllers
	Sessions *sessionsctrl.Controller
	APIKeys  *apikeysctrl.Controller
	Tokens   *tokensctrl.Controller
}

// New construye el router con la cadena de middlewares completa.
// Orden: Recover -> RequestID -> SecurityHeaders -> Throttle -> Logging -> Gateway.
// El gateway va último: así los rechazos también quedan logueados con
// request_id y cuentan para el throttle de infraestructura.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRecover())
	r.Use(mw.WithRequestID())
	r.Use(mw.WithSecurityHeaders())
	if deps.Throttle != nil {
		r.Use(deps.Throttle.Middleware())
	}
	r.Use(mw.WithLogging())
	if deps.Gateway != nil {
		r.Use(deps.Gateway.Middleware())
	}

	// Públicos (el gateway los deja pasar por allowlist exacto)
	if deps.Health != nil {
		deps.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Protegidos
	if deps.MFA != nil {
		deps.MFA.Register(r)
	}
	if deps.Sessions != nil {
		deps.Sessions.Register(r)
	}
	if deps.APIKeys != nil {
		deps.APIKeys.Register(r)
	}
	if deps.Tokens != nil {
		deps.Tokens.Register(r)
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperr.WriteError(w, httperr.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httperr.WriteError(w, httperr.ErrBadRequest.WithMessage("method not allowed"))
	})

	return r
}
