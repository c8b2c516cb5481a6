package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/http/httperr"
	"golang.org/x/time/rate"
)

// ipBucket asocia un limiter a la última vez que se usó, para poder
// purgar IPs inactivas y acotar memoria.
type ipBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Throttle limita requests por IP con token bucket (golang.org/x/time).
// Es un freno de infraestructura independiente del rate limiting de
// intentos fallidos de autenticación: protege todos los endpoints,
// incluidos los públicos.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	rps     rate.Limit
	burst   int
}

// NewThrottle crea un throttle con rps requests por segundo y burst
// de ráfaga por IP. Si rps <= 0 el middleware resultante es pass-through.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		buckets: make(map[string]*ipBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (t *Throttle) limiterFor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[ip] = b
	}
	b.lastSeen = time.Now()

	// Purga perezosa: al crecer el mapa, eliminar IPs sin actividad reciente
	if len(t.buckets) > 10_000 {
		cutoff := time.Now().Add(-10 * time.Minute)
		for k, v := range t.buckets {
			if v.lastSeen.Before(cutoff) {
				delete(t.buckets, k)
			}
		}
	}
	return b.lim
}

// Middleware devuelve el middleware HTTP del throttle.
func (t *Throttle) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if t == nil || t.rps <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.limiterFor(ClientIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				httperr.WriteError(w, httperr.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
