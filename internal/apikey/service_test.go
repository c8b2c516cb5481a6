package apikey

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(cache.NewMemory(""))
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	keyID, secret, err := svc.Generate(ctx, "u1", []string{"read", "deploy"})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if !strings.HasPrefix(keyID, "gk_") {
		t.Fatalf("key_id = %q", keyID)
	}
	if secret == "" {
		t.Fatal("secret vacío")
	}

	claims, err := svc.Verify(ctx, keyID, secret)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.UserID != "u1" || !claims.HasScope("deploy") {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	keyID, _, _ := svc.Generate(ctx, "u1", nil)
	if _, err := svc.Verify(ctx, keyID, "wrong"); !errors.Is(err, autherr.ErrInvalidCredential) {
		t.Fatalf("err = %v; want ErrInvalidCredential", err)
	}
	if _, err := svc.Verify(ctx, "gk_no-existe", "x"); !errors.Is(err, autherr.ErrInvalidCredential) {
		t.Fatalf("key inexistente err = %v", err)
	}
}

func TestRevoke_IsPermanent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	keyID, secret, _ := svc.Generate(ctx, "u1", []string{"read"})
	if err := svc.Revoke(ctx, keyID); err != nil {
		t.Fatal(err)
	}
	// Incluso el secret correcto original falla.
	if _, err := svc.Verify(ctx, keyID, secret); !errors.Is(err, autherr.ErrRevoked) {
		t.Fatalf("err = %v; want ErrRevoked", err)
	}
	// Idempotente.
	if err := svc.Revoke(ctx, keyID); err != nil {
		t.Fatalf("segundo Revoke err: %v", err)
	}
	// El registro sobrevive para auditoría.
	keys, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].Active {
		t.Fatalf("keys = %+v", keys)
	}
}

func TestList_NeverExposesHashes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Generate(ctx, "u1", []string{"a"})
	svc.Generate(ctx, "u1", []string{"b"})
	svc.Generate(ctx, "u2", nil)

	keys, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys de u1 = %d; want 2", len(keys))
	}
}

func TestOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	keyID, _, _ := svc.Generate(ctx, "u1", nil)
	owner, err := svc.Owner(ctx, keyID)
	if err != nil || owner != "u1" {
		t.Fatalf("Owner = %q, %v", owner, err)
	}
	owner, err = svc.Owner(ctx, "gk_nope")
	if err != nil || owner != "" {
		t.Fatalf("Owner inexistente = %q, %v", owner, err)
	}
}

func TestGenerate_RejectsInvalidScopes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Generate(ctx, "u1", []string{"read", "BAD SCOPE"}); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("err = %v; want ErrInvalidScope", err)
	}
	if _, _, err := svc.Generate(ctx, "u1", []string{"keys:write"}); err != nil {
		t.Fatalf("scope válido rechazado: %v", err)
	}
}
