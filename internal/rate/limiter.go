// Package rate implementa el throttling de intentos fallidos del core.
//
// La ventana es trailing desde el primer intento fallido (contador + inicio
// de ventana): ratelimit:<id> se incrementa de forma atómica en el backend y
// expira sola al cerrarse la ventana, así la poda es lazy y no requiere
// sweeps de fondo.
//
// Es throttling advisory: complementa MFA y verificación de tokens, nunca
// las reemplaza como único gate de un path crítico.
package rate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
)

const limitPrefix = "ratelimit:"

// Config configura el limiter.
type Config struct {
	// MaxAttempts es el umbral: al llegar a este conteo dentro de la
	// ventana, el identificador queda limitado.
	MaxAttempts int

	// Window es el largo de la ventana trailing.
	Window time.Duration
}

// Limiter cuenta intentos fallidos por identificador.
type Limiter struct {
	store  cache.Client
	max    int64
	window time.Duration
}

// NewLimiter crea el limiter.
func NewLimiter(cfg Config, store cache.Client) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate: store no configurado")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &Limiter{
		store:  store,
		max:    int64(cfg.MaxAttempts),
		window: cfg.Window,
	}, nil
}

// Check retorna true mientras el conteo de la ventana esté por debajo del
// umbral. Fail-closed: si el backend no responde, retorna false con
// ErrBackendUnavailable y el caller decide (el gateway deniega).
func (l *Limiter) Check(ctx context.Context, identifier string) (bool, error) {
	raw, err := l.store.Get(ctx, limitPrefix+identifier)
	if cache.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, autherr.Backend(err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true, nil // contador corrupto: se reinicia en el próximo record
	}
	return n < l.max, nil
}

// RecordFailure registra un intento fallido. El primer intento abre la
// ventana (TTL); los siguientes no la renuevan.
func (l *Limiter) RecordFailure(ctx context.Context, identifier string) error {
	if _, err := l.store.Incr(ctx, limitPrefix+identifier, l.window); err != nil {
		return autherr.Backend(err)
	}
	return nil
}

// Clear resetea el contador de inmediato. Se llama tras una autenticación
// exitosa.
func (l *Limiter) Clear(ctx context.Context, identifier string) error {
	if err := l.store.Delete(ctx, limitPrefix+identifier); err != nil {
		return autherr.Backend(err)
	}
	return nil
}
