package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre patrickmn/go-cache.
// El janitor interno barre entradas expiradas cada minuto; la corrección no
// depende del barrido porque go-cache chequea expiración también en Get.
type memoryClient struct {
	prefix string
	c      *gocache.Cache

	// mu serializa las operaciones compuestas (Incr, SetNX) que go-cache
	// no cubre de forma atómica con TTL propio.
	mu sync.Mutex
}

// NewMemory crea un cliente de cache en memoria.
// Útil para desarrollo, testing y despliegues de una sola instancia.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *memoryClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	if err := m.c.Add(m.key(key), value, ttl); err != nil {
		return false, nil // ya existía
	}
	return true, nil
}

func (m *memoryClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.key(key)
	v, ok := m.c.Get(k)
	if !ok {
		if ttl <= 0 {
			ttl = gocache.NoExpiration
		}
		m.c.Set(k, "1", ttl)
		return 1, nil
	}
	n, _ := strconv.ParseInt(v.(string), 10, 64)
	n++
	// Conservar el TTL restante de la entrada: reemplazar el valor sin
	// renovar la expiración.
	exp := time.Duration(0)
	if _, t, ok2 := m.c.GetWithExpiration(k); ok2 && !t.IsZero() {
		exp = time.Until(t)
	}
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	m.c.Set(k, strconv.FormatInt(n, 10), exp)
	return n, nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
