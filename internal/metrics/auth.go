package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth-related Prometheus metrics. Van en un paquete standalone para evitar
// ciclos de import entre los middlewares HTTP y el resto del server.

var (
	AuthRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_requests_total",
		Help: "Decisiones del gateway de autenticación por resultado",
	}, []string{"outcome"}) // outcome: allowed|denied|rate_limited

	TokenVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_verifications_total",
		Help: "Verificaciones de JWT por resultado",
	}, []string{"result"}) // result: ok|expired|revoked|invalid|backend_error

	APIKeyVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "apikey_verifications_total",
		Help: "Verificaciones de API key por resultado",
	}, []string{"result"}) // result: ok|revoked|invalid|backend_error

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limited_total",
		Help: "Requests rechazados por rate limiting de intentos fallidos",
	})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Sesiones activas conocidas por esta instancia",
	})
)

// RegisterAuth registra las métricas de auth en el registry dado
// (o el default si es nil). Tolera dobles registros.
func RegisterAuth(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuthRequestsTotal,
		TokenVerificationsTotal,
		APIKeyVerificationsTotal,
		RateLimitedTotal,
		SessionsActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
