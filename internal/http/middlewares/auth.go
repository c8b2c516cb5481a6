package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gatekeeper/internal/apikey"
	"github.com/dropDatabas3/gatekeeper/internal/audit"
	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	"github.com/dropDatabas3/gatekeeper/internal/metrics"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/rate"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

// Gateway autentica cada request entrante: Bearer JWT o API key.
// Los rechazos alimentan el rate limiter (por IP de cliente) y el
// registro de auditoría. Ante backend caído la política es fail-closed:
// se niega el acceso, nunca se deja pasar.
type Gateway struct {
	tokens  *token.Service
	keys    *apikey.Service
	limiter *rate.Limiter
	auditor audit.Recorder

	// public es el allowlist de paths sin auth. Match EXACTO, nunca por
	// prefijo: un allowlist por prefijo convierte cualquier sub-path en
	// un agujero.
	public map[string]struct{}
}

// GatewayConfig agrupa las dependencias del gateway.
type GatewayConfig struct {
	Tokens  *token.Service
	Keys    *apikey.Service
	Limiter *rate.Limiter
	Auditor audit.Recorder

	// PublicPaths se suman al allowlist por defecto (/healthz, /readyz, /metrics).
	PublicPaths []string
}

// NewGateway construye el gateway. Tokens es obligatorio; Keys, Limiter
// y Auditor son opcionales (nil desactiva esa pieza).
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("gateway: token service no configurado")
	}
	public := map[string]struct{}{
		// Sondas de orquestador: deben responder antes de tener claves cargadas.
		"/healthz": {},
		"/readyz":  {},
		// Scrape de Prometheus: protegido a nivel de red, no de aplicación.
		"/metrics": {},
	}
	for _, p := range cfg.PublicPaths {
		public[p] = struct{}{}
	}
	return &Gateway{
		tokens:  cfg.Tokens,
		keys:    cfg.Keys,
		limiter: cfg.Limiter,
		auditor: cfg.Auditor,
		public:  public,
	}, nil
}

// Middleware devuelve el middleware de autenticación.
func (g *Gateway) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := g.public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := ClientIP(r)
			log := logger.From(ctx)

			// Primero el rate limiter: una IP bloqueada no gasta
			// verificación de credenciales.
			if g.limiter != nil {
				allowed, err := g.limiter.Check(ctx, ip)
				if err != nil {
					// Backend caído: negar, no adivinar.
					log.Error("rate limit check failed, denying", logger.ClientIP(ip), logger.Err(err))
					metrics.AuthRequestsTotal.WithLabelValues("denied").Inc()
					httperr.WriteError(w, httperr.ErrUnauthorized)
					return
				}
				if !allowed {
					metrics.AuthRequestsTotal.WithLabelValues("rate_limited").Inc()
					metrics.RateLimitedTotal.Inc()
					g.record(r, "", "rate_limited", "too_many_failed_attempts")
					httperr.WriteError(w, httperr.ErrRateLimited)
					return
				}
			}

			if raw, ok := bearerToken(r); ok {
				g.authenticateJWT(w, r, raw, next)
				return
			}
			if keyID, secret, ok := apiKeyParts(r); ok {
				g.authenticateAPIKey(w, r, keyID, secret, next)
				return
			}

			// Sin credencial alguna
			g.reject(w, r, "", "missing_credential")
		})
	}
}

func (g *Gateway) authenticateJWT(w http.ResponseWriter, r *http.Request, raw string, next http.Handler) {
	ctx := r.Context()
	claims, err := g.tokens.Verify(ctx, raw)
	if err != nil {
		metrics.TokenVerificationsTotal.WithLabelValues(verifyResult(err)).Inc()
		if errors.Is(err, autherr.ErrBackendUnavailable) {
			logger.From(ctx).Error("token verification backend unavailable", logger.Err(err))
		}
		g.reject(w, r, "", "invalid_token")
		return
	}
	metrics.TokenVerificationsTotal.WithLabelValues("ok").Inc()
	g.allow(w, r, next, claims, nil)
}

func (g *Gateway) authenticateAPIKey(w http.ResponseWriter, r *http.Request, keyID, secret string, next http.Handler) {
	ctx := r.Context()
	if g.keys == nil {
		g.reject(w, r, "", "invalid_api_key")
		return
	}
	kc, err := g.keys.Verify(ctx, keyID, secret)
	if err != nil {
		metrics.APIKeyVerificationsTotal.WithLabelValues(verifyResult(err)).Inc()
		if errors.Is(err, autherr.ErrBackendUnavailable) {
			logger.From(ctx).Error("api key verification backend unavailable", logger.Err(err))
		}
		g.reject(w, r, "", "invalid_api_key")
		return
	}
	metrics.APIKeyVerificationsTotal.WithLabelValues("ok").Inc()
	g.allow(w, r, next, nil, kc)
}

// allow inyecta el principal en el contexto, limpia el contador de
// fallos de la IP y sigue la cadena.
func (g *Gateway) allow(w http.ResponseWriter, r *http.Request, next http.Handler, claims *token.Claims, kc *apikey.KeyClaims) {
	ctx := r.Context()
	var uid string
	if claims != nil {
		ctx = WithClaims(ctx, claims)
		uid = claims.UserID()
	} else if kc != nil {
		ctx = WithKeyClaims(ctx, kc)
		uid = kc.UserID
	}
	if uid != "" {
		ctx = WithUserID(ctx, uid)
	}

	if g.limiter != nil {
		if err := g.limiter.Clear(ctx, ClientIP(r)); err != nil {
			logger.From(ctx).Warn("clear failed attempts", logger.Err(err))
		}
	}
	metrics.AuthRequestsTotal.WithLabelValues("allowed").Inc()
	next.ServeHTTP(w, r.WithContext(ctx))
}

// reject registra el fallo (rate limiter + auditoría) y responde 401.
func (g *Gateway) reject(w http.ResponseWriter, r *http.Request, userID, detail string) {
	ctx := r.Context()
	ip := ClientIP(r)

	if g.limiter != nil {
		if err := g.limiter.RecordFailure(ctx, ip); err != nil {
			logger.From(ctx).Warn("record failed attempt", logger.ClientIP(ip), logger.Err(err))
		}
	}
	metrics.AuthRequestsTotal.WithLabelValues("denied").Inc()
	g.record(r, userID, "denied", detail)
	httperr.WriteError(w, httperr.ErrUnauthorized)
}

func (g *Gateway) record(r *http.Request, userID, outcome, detail string) {
	if g.auditor == nil {
		return
	}
	g.auditor.Record(r.Context(), audit.Event{
		Event:    "auth_rejected",
		Outcome:  outcome,
		UserID:   userID,
		ClientIP: ClientIP(r),
		Path:     r.URL.Path,
		Method:   r.Method,
		Detail:   detail,
	})
}

// bearerToken extrae el JWT del header Authorization.
func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// apiKeyParts separa el header X-API-Key en key_id y secret.
// Formato: "<key_id>.<secret>"; key_id es "gk_<uuid>" y no contiene puntos.
func apiKeyParts(r *http.Request) (keyID, secret string, ok bool) {
	h := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if h == "" {
		return "", "", false
	}
	i := strings.IndexByte(h, '.')
	if i <= 0 || i == len(h)-1 {
		return "", "", false
	}
	return h[:i], h[i+1:], true
}

// verifyResult mapea un error de verificación a un label de métrica.
func verifyResult(err error) string {
	switch {
	case errors.Is(err, autherr.ErrExpired):
		return "expired"
	case errors.Is(err, autherr.ErrRevoked):
		return "revoked"
	case errors.Is(err, autherr.ErrBackendUnavailable):
		return "backend_error"
	default:
		return "invalid"
	}
}
