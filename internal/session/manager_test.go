package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
)

func newTestManager(t *testing.T, ttl time.Duration, max int) *Manager {
	t.Helper()
	m, err := NewManager(Config{TTL: ttl, MaxConcurrent: max}, cache.NewMemory(""))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateValidate_RoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour, 5)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if sess.ID == "" || sess.MFAVerified {
		t.Fatalf("sesión inicial inesperada: %+v", sess)
	}

	got, err := m.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	if got.UserID != "u1" || got.IPAddress != "10.0.0.1" || got.UserAgent != "test-agent" {
		t.Fatalf("sesión = %+v", got)
	}
}

func TestValidate_UnknownSession(t *testing.T) {
	m := newTestManager(t, time.Hour, 5)
	if _, err := m.Validate(context.Background(), "no-such-session"); !errors.Is(err, autherr.ErrInvalidCredential) {
		t.Fatalf("err = %v; want ErrInvalidCredential", err)
	}
}

func TestCreate_EvictsOldestAtCap(t *testing.T) {
	m := newTestManager(t, time.Hour, 2)
	ctx := context.Background()

	s1, err := m.Create(ctx, "u1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond) // ordenar created_at
	s2, err := m.Create(ctx, "u1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	s3, err := m.Create(ctx, "u1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	// La más vieja (s1) fue evictada; s2 y s3 siguen vivas.
	if _, err := m.Validate(ctx, s1.ID); !errors.Is(err, autherr.ErrInvalidCredential) {
		t.Fatalf("s1 debería estar evictada, err = %v", err)
	}
	if _, err := m.Validate(ctx, s2.ID); err != nil {
		t.Fatalf("s2 err: %v", err)
	}
	if _, err := m.Validate(ctx, s3.ID); err != nil {
		t.Fatalf("s3 err: %v", err)
	}
}

func TestCreate_CapHoldsUnderConcurrency(t *testing.T) {
	m := newTestManager(t, time.Hour, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create(ctx, "u1", "ip", "ua"); err != nil {
				t.Errorf("Create err: %v", err)
			}
		}()
	}
	wg.Wait()

	live, err := m.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 3 {
		t.Fatalf("sesiones vivas = %d; want 3", len(live))
	}
}

func TestValidate_IdleTimeoutTerminates(t *testing.T) {
	m := newTestManager(t, 80*time.Millisecond, 5)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(120 * time.Millisecond)
	if _, err := m.Validate(ctx, sess.ID); !errors.Is(err, autherr.ErrExpired) && !errors.Is(err, autherr.ErrInvalidCredential) {
		t.Fatalf("err = %v; want expirada o ausente", err)
	}
	// Terminated es absorbente.
	if _, err := m.Validate(ctx, sess.ID); err == nil {
		t.Fatal("sesión terminada revalidó")
	}
}

func TestValidate_SlidingExpirationRefreshes(t *testing.T) {
	m := newTestManager(t, 150*time.Millisecond, 5)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "ip", "ua")
	if err != nil {
		t.Fatal(err)
	}

	// Tocar la sesión antes de cada vencimiento: debe seguir viva más allá
	// del TTL original.
	for i := 0; i < 3; i++ {
		time.Sleep(80 * time.Millisecond)
		if _, err := m.Validate(ctx, sess.ID); err != nil {
			t.Fatalf("iteración %d: %v", i, err)
		}
	}
}

func TestTerminate_Idempotent(t *testing.T) {
	m := newTestManager(t, time.Hour, 5)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "u1", "ip", "ua")
	if err := m.Terminate(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Terminate(ctx, sess.ID); err != nil {
		t.Fatalf("segundo Terminate err: %v", err)
	}
	if _, err := m.Validate(ctx, sess.ID); err == nil {
		t.Fatal("sesión terminada sigue válida")
	}
}

func TestTerminateAllForUser(t *testing.T) {
	m := newTestManager(t, time.Hour, 5)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Create(ctx, "u1", "ip", "ua"); err != nil {
			t.Fatal(err)
		}
	}
	otra, _ := m.Create(ctx, "u2", "ip", "ua")

	n, err := m.TerminateAllForUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("terminadas = %d; want 3", n)
	}
	// u2 no se toca.
	if _, err := m.Validate(ctx, otra.ID); err != nil {
		t.Fatalf("sesión de u2 afectada: %v", err)
	}
}

func TestMarkMFAVerified(t *testing.T) {
	m := newTestManager(t, time.Hour, 5)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "u1", "ip", "ua")
	if err := m.MarkMFAVerified(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	got, err := m.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.MFAVerified {
		t.Fatal("mfa_verified no quedó marcado")
	}
}
