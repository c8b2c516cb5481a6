package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"go.uber.org/zap"
)

// WithRecover captura panics del handler y responde 500 con la
// envoltura estándar en lugar de tirar la conexión.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log := logger.From(r.Context())
					log.Error("panic recovered",
						logger.Path(r.URL.Path),
						zap.Any("panic", rec),
					)
					httperr.WriteError(w, httperr.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
