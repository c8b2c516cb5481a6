package middlewares

import "net/http"

// WithSecurityHeaders aplica los headers defensivos estándar para una
// API JSON (acá no se sirve HTML).
func WithSecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Referrer y MIME sniffing
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			// CSP estricta para API
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

			// Respuestas con material sensible (secrets, códigos) no se cachean
			w.Header().Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}
