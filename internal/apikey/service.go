// Package apikey emite y verifica credenciales máquina-a-máquina de larga
// vida.
//
// El key_id es un identificador público apto para logs; el secret se entrega
// una única vez y solo su hash SHA-256 se persiste (apikey:<key_id>, sin TTL).
// Revocar es un soft delete permanente: el registro queda para auditoría con
// active=false.
package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	tokens "github.com/dropDatabas3/gatekeeper/internal/security/token"
	"github.com/dropDatabas3/gatekeeper/internal/util"
	"github.com/dropDatabas3/gatekeeper/internal/validation"
)

// ErrInvalidScope indica un nombre de scope fuera del patrón permitido.
var ErrInvalidScope = errors.New("apikey: nombre de scope inválido")

const (
	keyPrefix   = "apikey:"
	indexPrefix = "user_apikeys:"
	keyIDPrefix = "gk_"
	secretBytes = 32
)

// record es la metadata persistida de una key. El secret jamás se guarda.
type record struct {
	KeyID      string    `json:"key_id"`
	SecretHash string    `json:"secret_hash"`
	UserID     string    `json:"user_id"`
	Scopes     []string  `json:"scopes"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	RevokedAt  *string   `json:"revoked_at,omitempty"`
}

// KeyClaims es la identidad que produce una verificación exitosa.
type KeyClaims struct {
	UserID string
	Scopes []string
}

// HasScope verifica pertenencia exacta en scopes.
func (c *KeyClaims) HasScope(s string) bool {
	for _, v := range c.Scopes {
		if v == s {
			return true
		}
	}
	return false
}

// KeyInfo es la vista pública de una key (listados). Sin hash.
type KeyInfo struct {
	KeyID     string    `json:"key_id"`
	Scopes    []string  `json:"scopes"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Service emite, verifica y revoca API keys.
type Service struct {
	store cache.Client
	users *util.KeyedMutex
}

// NewService crea el servicio.
func NewService(store cache.Client) (*Service, error) {
	if store == nil {
		return nil, errors.New("apikey: store no configurado")
	}
	return &Service{store: store, users: util.NewKeyedMutex()}, nil
}

// Generate emite una key nueva. Retorna (key_id, secret); el secret no vuelve
// a estar disponible nunca más.
func (s *Service) Generate(ctx context.Context, userID string, scopes []string) (string, string, error) {
	if userID == "" {
		return "", "", errors.New("apikey: userID vacío")
	}
	if !validation.ValidScopes(scopes) {
		return "", "", ErrInvalidScope
	}
	secret, err := tokens.GenerateOpaqueToken(secretBytes)
	if err != nil {
		return "", "", err
	}
	keyID := keyIDPrefix + uuid.NewString()

	rec := record{
		KeyID:      keyID,
		SecretHash: tokens.SHA256Base64URL(secret),
		UserID:     userID,
		Scopes:     scopes,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.save(ctx, &rec); err != nil {
		return "", "", err
	}

	unlock := s.users.Lock(userID)
	defer unlock()
	ids, err := s.loadIndex(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if err := s.saveIndex(ctx, userID, append(ids, keyID)); err != nil {
		return "", "", err
	}

	return keyID, secret, nil
}

// Verify valida key_id+secret. Ausente o hash distinto: ErrInvalidCredential;
// key revocada: ErrRevoked. La comparación es en tiempo constante sobre los
// hashes.
func (s *Service) Verify(ctx context.Context, keyID, secret string) (*KeyClaims, error) {
	rec, err := s.load(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, autherr.ErrInvalidCredential
	}

	// Comparar SIEMPRE antes de mirar active, para no filtrar por timing
	// si una key revocada recibe un secret equivocado.
	match := tokens.ConstantTimeEqual(rec.SecretHash, tokens.SHA256Base64URL(secret))
	if !match {
		return nil, autherr.ErrInvalidCredential
	}
	if !rec.Active {
		return nil, autherr.ErrRevoked
	}
	return &KeyClaims{UserID: rec.UserID, Scopes: rec.Scopes}, nil
}

// Revoke desactiva la key de forma permanente. El registro no se borra:
// queda como rastro de auditoría. Idempotente.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	rec, err := s.load(ctx, keyID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Active {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	rec.Active = false
	rec.RevokedAt = &now
	return s.save(ctx, rec)
}

// Owner retorna el user_id dueño de la key, o "" si no existe.
// Lo usa la capa HTTP para autorizar revocaciones (solo el dueño revoca).
func (s *Service) Owner(ctx context.Context, keyID string) (string, error) {
	rec, err := s.load(ctx, keyID)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.UserID, nil
}

// List retorna las keys del usuario (activas y revocadas), sin hashes.
func (s *Service) List(ctx context.Context, userID string) ([]KeyInfo, error) {
	unlock := s.users.Lock(userID)
	defer unlock()

	ids, err := s.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]KeyInfo, 0, len(ids))
	for _, id := range ids {
		rec, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		out = append(out, KeyInfo{
			KeyID:     rec.KeyID,
			Scopes:    rec.Scopes,
			Active:    rec.Active,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

// ─── persistencia ───

func (s *Service) load(ctx context.Context, keyID string) (*record, error) {
	if keyID == "" {
		return nil, nil
	}
	raw, err := s.store.Get(ctx, keyPrefix+keyID)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, autherr.Backend(err)
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

func (s *Service) save(ctx context.Context, rec *record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// Sin TTL: las API keys viven hasta su revocación y aún después (audit).
	if err := s.store.Set(ctx, keyPrefix+rec.KeyID, string(b), 0); err != nil {
		return autherr.Backend(err)
	}
	return nil
}

func (s *Service) loadIndex(ctx context.Context, userID string) ([]string, error) {
	raw, err := s.store.Get(ctx, indexPrefix+userID)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, autherr.Backend(err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, nil
	}
	return ids, nil
}

func (s *Service) saveIndex(ctx context.Context, userID string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, indexPrefix+userID, string(b), 0); err != nil {
		return autherr.Backend(err)
	}
	return nil
}
