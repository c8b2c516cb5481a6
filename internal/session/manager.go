// Package session gestiona las sesiones de usuario del core.
//
// Las sesiones viven en el backend de estado bajo session:<sid> con TTL
// deslizante, más un índice por usuario (user_sessions:<uid>) para aplicar el
// cap de concurrencia. Toda la sección create+evict se serializa por user_id
// con un keyed mutex: dos creates concurrentes del mismo usuario nunca evictan
// cada uno un "oldest" distinto.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	tokens "github.com/dropDatabas3/gatekeeper/internal/security/token"
	"github.com/dropDatabas3/gatekeeper/internal/util"
)

const (
	sessionPrefix = "session:"
	indexPrefix   = "user_sessions:"
	sidBytes      = 32
)

// Session representa una sesión de usuario persistida.
type Session struct {
	ID           string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MFAVerified  bool      `json:"mfa_verified"`
}

// indexEntry es lo mínimo que el índice por usuario necesita para evictar
// por created_at sin cargar cada sesión.
type indexEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Config configura el manager.
type Config struct {
	// TTL es el timeout de inactividad (sliding expiration).
	TTL time.Duration

	// MaxConcurrent es el máximo de sesiones vivas por usuario.
	// Al excederse se termina la de created_at más viejo.
	MaxConcurrent int
}

// Manager crea, valida y termina sesiones.
type Manager struct {
	store cache.Client
	ttl   time.Duration
	max   int
	users *util.KeyedMutex
}

// NewManager crea el manager de sesiones.
func NewManager(cfg Config, store cache.Client) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store no configurado")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Manager{
		store: store,
		ttl:   cfg.TTL,
		max:   cfg.MaxConcurrent,
		users: util.NewKeyedMutex(),
	}, nil
}

// Create genera una sesión nueva y aplica el cap de concurrencia del usuario.
// Serializado por user_id; usuarios distintos no se bloquean entre sí.
func (m *Manager) Create(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: userID vacío")
	}
	sid, err := tokens.GenerateOpaqueToken(sidBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:           sid,
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
	}

	unlock := m.users.Lock(userID)
	defer unlock()

	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}

	idx, err := m.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx = append(idx, indexEntry{ID: sid, CreatedAt: now})

	// Quedarse solo con entradas cuya sesión sigue viva.
	live := idx[:0]
	for _, e := range idx {
		ok, err := m.store.Exists(ctx, sessionPrefix+e.ID)
		if err != nil {
			return nil, autherr.Backend(err)
		}
		if ok {
			live = append(live, e)
		}
	}
	idx = live

	// Evictar la más vieja por created_at hasta cumplir el cap.
	// sort.SliceStable conserva el orden de inserción en empates.
	sort.SliceStable(idx, func(i, j int) bool { return idx[i].CreatedAt.Before(idx[j].CreatedAt) })
	for len(idx) > m.max {
		oldest := idx[0]
		idx = idx[1:]
		if err := m.store.Delete(ctx, sessionPrefix+oldest.ID); err != nil {
			return nil, autherr.Backend(err)
		}
	}

	if err := m.saveIndex(ctx, userID, idx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate retorna la sesión viva y refresca su actividad (sliding
// expiration). Una sesión ausente retorna ErrInvalidCredential; una vencida
// por inactividad se termina como efecto secundario y retorna ErrExpired.
// Terminated es absorbente: un sid terminado simplemente no existe.
func (m *Manager) Validate(ctx context.Context, sid string) (*Session, error) {
	sess, err := m.load(ctx, sid)
	if err != nil {
		return nil, err
	}

	if time.Since(sess.LastActivity) > m.ttl {
		_ = m.Terminate(ctx, sid)
		return nil, autherr.ErrExpired
	}

	sess.LastActivity = time.Now().UTC()
	if err := m.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Terminate elimina la sesión incondicionalmente. Idempotente.
func (m *Manager) Terminate(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sessionPrefix+sid); err != nil {
		return autherr.Backend(err)
	}
	// La entrada del índice se poda lazy en el próximo create/list.
	return nil
}

// TerminateAllForUser termina todas las sesiones del usuario.
// Retorna cuántas terminó.
func (m *Manager) TerminateAllForUser(ctx context.Context, userID string) (int, error) {
	unlock := m.users.Lock(userID)
	defer unlock()

	idx, err := m.loadIndex(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range idx {
		ok, err := m.store.Exists(ctx, sessionPrefix+e.ID)
		if err != nil {
			return n, autherr.Backend(err)
		}
		if !ok {
			continue
		}
		if err := m.store.Delete(ctx, sessionPrefix+e.ID); err != nil {
			return n, autherr.Backend(err)
		}
		n++
	}
	if err := m.store.Delete(ctx, indexPrefix+userID); err != nil {
		return n, autherr.Backend(err)
	}
	return n, nil
}

// ListForUser retorna las sesiones vivas del usuario y poda del índice las
// que ya no existen.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	unlock := m.users.Lock(userID)
	defer unlock()

	idx, err := m.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Session, 0, len(idx))
	live := idx[:0]
	for _, e := range idx {
		sess, err := m.load(ctx, e.ID)
		if errors.Is(err, autherr.ErrInvalidCredential) {
			continue
		}
		if err != nil {
			return nil, err
		}
		live = append(live, e)
		out = append(out, *sess)
	}
	if len(live) != len(idx) {
		if err := m.saveIndex(ctx, userID, live); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkMFAVerified marca la sesión como verificada por MFA.
// Cuenta como actividad: renueva el TTL.
func (m *Manager) MarkMFAVerified(ctx context.Context, sid string) error {
	sess, err := m.load(ctx, sid)
	if err != nil {
		return err
	}
	sess.MFAVerified = true
	sess.LastActivity = time.Now().UTC()
	return m.save(ctx, sess)
}

// ─── persistencia ───

func (m *Manager) load(ctx context.Context, sid string) (*Session, error) {
	if sid == "" {
		return nil, autherr.ErrInvalidCredential
	}
	raw, err := m.store.Get(ctx, sessionPrefix+sid)
	if cache.IsNotFound(err) {
		return nil, autherr.ErrInvalidCredential
	}
	if err != nil {
		return nil, autherr.Backend(err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, autherr.ErrInvalidCredential
	}
	return &sess, nil
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, sessionPrefix+sess.ID, string(b), m.ttl); err != nil {
		return autherr.Backend(err)
	}
	return nil
}

func (m *Manager) loadIndex(ctx context.Context, userID string) ([]indexEntry, error) {
	raw, err := m.store.Get(ctx, indexPrefix+userID)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, autherr.Backend(err)
	}
	var idx []indexEntry
	if err := json.Unmarshal([]byte(raw), &idx); err != nil {
		return nil, nil // índice corrupto: se reconstruye desde cero
	}
	return idx, nil
}

func (m *Manager) saveIndex(ctx context.Context, userID string, idx []indexEntry) error {
	if len(idx) == 0 {
		if err := m.store.Delete(ctx, indexPrefix+userID); err != nil {
			return autherr.Backend(err)
		}
		return nil
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	// El índice no expira: se poda lazy y está acotado por MaxConcurrent.
	if err := m.store.Set(ctx, indexPrefix+userID, string(b), 0); err != nil {
		return autherr.Backend(err)
	}
	return nil
}
