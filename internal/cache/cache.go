// Package cache provee el backend de estado compartido del core con soporte
// multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing y despliegues single-instance)
//   - Redis (distribuido, para producción multi-instancia)
//
// Cada servicio del core usa su propio namespace de keys (revoked_jti:, session:,
// apikey:, ratelimit:, mfa_*:) de forma que los componentes nunca pisan el estado
// de otro aunque compartan el mismo store.
package cache

import (
	"context"
	"time"
)

// Client define las operaciones del backend de estado.
// La elección memory/redis es explícita por configuración (New); los callers
// nunca saben cuál está activo.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL opcional.
	// Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX guarda un valor solo si la key no existe (atómico).
	// Retorna true si escribió.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr incrementa un contador de forma atómica. Si la key no existía,
	// arranca en 1 y se le aplica ttl; incrementos posteriores no renuevan
	// el TTL (la ventana no se desliza por cada hit).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete elimina una key. Es no-op si no existe.
	Delete(ctx context.Context, key string) error

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifica la conexión al backend.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Kind     string // "memory" | "redis"
	Addr     string // host:port (redis)
	Password string
	DB       int
	Prefix   string // prefijo para todas las keys
}

// Errores de cache.
var (
	ErrNotFound = errNotFound{}
)

type errNotFound struct{}

func (e errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente según la configuración. La elección del backend es
// siempre explícita: un Kind desconocido es un error de configuración, no un
// fallback silencioso.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return nil, errUnknownKind(cfg.Kind)
	}
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "cache: unknown backend kind: " + string(e) }
