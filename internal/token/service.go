// Package token emite, verifica y revoca los bearer tokens del core.
//
// Los tokens son JWT firmados con Ed25519. La emisión es stateless; la
// revocación vive en el backend de estado bajo revoked_jti:<jti> con TTL igual
// a la vida restante del token, así la lista se auto-poda y nunca crece sin
// límite.
package token

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
)

const revokedPrefix = "revoked_jti:"

// Config configura el servicio de tokens.
type Config struct {
	// Issuer es el valor del claim "iss".
	Issuer string

	// AccessTTL es la vida del token. Un TTL de 0 produce tokens que nacen
	// vencidos (exp = iat); los tests de expiración dependen de eso.
	AccessTTL time.Duration

	// SigningKey es la clave privada Ed25519.
	SigningKey ed25519.PrivateKey
}

// Service emite y verifica credentials firmados.
type Service struct {
	iss   string
	ttl   time.Duration
	key   ed25519.PrivateKey
	pub   ed25519.PublicKey
	kid   string
	store cache.Client
}

// NewService crea el servicio. El store es obligatorio: sin revocation store
// no hay verificación fail-closed posible.
func NewService(cfg Config, store cache.Client) (*Service, error) {
	if len(cfg.SigningKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("token: signing key inválida: %d bytes", len(cfg.SigningKey))
	}
	if store == nil {
		return nil, errors.New("token: revocation store no configurado")
	}
	pub := cfg.SigningKey.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Service{
		iss:   cfg.Issuer,
		ttl:   cfg.AccessTTL,
		key:   cfg.SigningKey,
		pub:   pub,
		kid:   base64.RawURLEncoding.EncodeToString(sum[:6]),
		store: store,
	}, nil
}

// Generate emite un token firmado con jti aleatorio fresco.
// Emisión stateless: no toca el backend.
func (s *Service) Generate(ctx context.Context, userID string, extra Extra) (string, error) {
	if userID == "" {
		return "", errors.New("token: userID vacío")
	}
	now := time.Now().UTC()

	claims := Claims{
		Tier:        extra.Tier,
		Permissions: extra.Permissions,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    s.iss,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.ttl)),
		},
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = s.kid
	tk.Header["typ"] = "JWT"
	return tk.SignedString(s.key)
}

// Verify valida firma, expiración y revocación, en ese orden.
// Input malformado es un caso normal de input no confiable: retorna
// autherr.ErrInvalidCredential, nunca panic. El chequeo de revocación ocurre
// estrictamente después de que firma y expiración pasaron.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, autherr.ErrInvalidCredential
	}

	claims := &Claims{}
	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(s.iss),
		jwtv5.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		return s.pub, nil
	})
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, autherr.ErrExpired
		}
		return nil, autherr.ErrInvalidCredential
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, autherr.ErrInvalidCredential
	}

	// Revocación: un fallo del backend es deny, jamás "no revocado".
	revoked, err := s.store.Exists(ctx, revokedPrefix+claims.ID)
	if err != nil {
		return nil, autherr.Backend(err)
	}
	if revoked {
		return nil, autherr.ErrRevoked
	}
	return claims, nil
}

// Revoke inserta el jti en el revocation store con TTL = vida restante.
// Idempotente: revocar dos veces es no-op. Un remaining <= 0 tampoco hace
// nada: el token ya murió solo.
func (s *Service) Revoke(ctx context.Context, jti string, remaining time.Duration) error {
	if jti == "" {
		return errors.New("token: jti vacío")
	}
	if remaining <= 0 {
		return nil
	}
	if _, err := s.store.SetNX(ctx, revokedPrefix+jti, "1", remaining); err != nil {
		return autherr.Backend(err)
	}
	return nil
}

// RevokeToken revoca a partir del token crudo: verifica la firma (ignorando
// expiración) para extraer jti y exp, y deriva el TTL restante.
func (s *Service) RevokeToken(ctx context.Context, raw string) error {
	claims := &Claims{}
	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwtv5.Token) (any, error) {
		return s.pub, nil
	})
	if err != nil || claims.ID == "" {
		return autherr.ErrInvalidCredential
	}
	var remaining time.Duration
	if claims.ExpiresAt != nil {
		remaining = time.Until(claims.ExpiresAt.Time)
	}
	return s.Revoke(ctx, claims.ID, remaining)
}

// ─── signing keys ───

// GenerateSigningKey genera una clave Ed25519 nueva y la retorna en base64
// (seed de 32 bytes). Usado por `gatekeeper keygen`.
func GenerateSigningKey() (string, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(priv.Seed()), nil
}

// ParseSigningKey acepta base64 de un seed (32 bytes) o de la clave privada
// completa (64 bytes).
func ParseSigningKey(b64 string) (ed25519.PrivateKey, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, errors.New("token: signing key no configurada; genere una con: gatekeeper keygen")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(b64)
	}
	if err != nil {
		return nil, fmt.Errorf("token: decode signing key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("token: signing key debe ser seed (32B) o private key (64B), obtuvo %d", len(raw))
	}
}
