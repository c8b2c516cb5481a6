package util

import "sync"

// KeyedMutex provee exclusión mutua por key (ej: por user_id).
// Operaciones sobre keys distintas no se bloquean entre sí.
//
// Se usa para las secciones críticas multi-key del core: eviction de sesiones
// por usuario y check-then-consume de backup codes. El lock se libera con la
// función retornada por Lock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*kmEntry
}

type kmEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex crea un KeyedMutex vacío.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*kmEntry)}
}

// Lock adquiere el lock de la key y retorna la función de unlock.
// Las entradas se liberan cuando nadie las referencia, así el map no crece
// con el universo de keys vistas.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &kmEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
