package mfa

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	"github.com/dropDatabas3/gatekeeper/internal/security/secretbox"
)

// fakeSender captura el último código enviado.
type fakeSender struct {
	mu    sync.Mutex
	phone string
	code  string
	sends int
}

func (f *fakeSender) Send(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phone, f.code = phone, code
	f.sends++
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeSender) {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	box, err := secretbox.NewFromRaw(raw)
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	svc, err := NewService(cfg, cache.NewMemory(""), box, sender)
	if err != nil {
		t.Fatal(err)
	}
	return svc, sender
}

func TestSetupTOTP_VerifyFlow(t *testing.T) {
	svc, _ := newTestService(t, Config{Issuer: "test", BackupCodeCount: 4})
	ctx := context.Background()

	enr, err := svc.SetupTOTP(ctx, "u1")
	if err != nil {
		t.Fatalf("SetupTOTP err: %v", err)
	}
	if enr.Secret == "" || enr.OTPAuthURL == "" {
		t.Fatalf("enrollment incompleto: %+v", enr)
	}
	if len(enr.BackupCodes) != 4 {
		t.Fatalf("backup codes = %d; want 4", len(enr.BackupCodes))
	}

	// Antes de verificar, no está verified.
	if ok, _ := svc.TOTPVerified(ctx, "u1"); ok {
		t.Fatal("verified antes de tiempo")
	}

	code, err := totp.GenerateCode(enr.Secret, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	ok, err := svc.VerifyTOTP(ctx, "u1", code)
	if err != nil || !ok {
		t.Fatalf("VerifyTOTP = %v, %v", ok, err)
	}
	if ok, _ := svc.TOTPVerified(ctx, "u1"); !ok {
		t.Fatal("primer éxito no marcó verified")
	}
}

func TestVerifyTOTP_WrongCodeAndNoSetup(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	if ok, err := svc.VerifyTOTP(ctx, "nadie", "123456"); ok || err != nil {
		t.Fatalf("sin setup = %v, %v; want false, nil", ok, err)
	}

	if _, err := svc.SetupTOTP(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if ok, err := svc.VerifyTOTP(ctx, "u1", "000000"); ok || err != nil {
		t.Fatalf("código inválido = %v, %v; want false, nil", ok, err)
	}
}

func TestDisableTOTP(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	enr, _ := svc.SetupTOTP(ctx, "u1")
	if err := svc.DisableTOTP(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	code, _ := totp.GenerateCode(enr.Secret, time.Now().UTC())
	if ok, _ := svc.VerifyTOTP(ctx, "u1", code); ok {
		t.Fatal("TOTP deshabilitado siguió verificando")
	}
	if ok, _ := svc.VerifyBackupCode(ctx, "u1", enr.BackupCodes[0]); ok {
		t.Fatal("backup code sobrevivió al disable")
	}
}

func TestSMS_HappyPath(t *testing.T) {
	svc, sender := newTestService(t, Config{})
	ctx := context.Background()

	if err := svc.SetupSMS(ctx, "u1", "+5491112344321"); err != nil {
		t.Fatalf("SetupSMS err: %v", err)
	}
	if sender.last() == "" || len(sender.last()) != 6 {
		t.Fatalf("código enviado = %q", sender.last())
	}

	ok, err := svc.VerifySMS(ctx, "u1", sender.last())
	if err != nil || !ok {
		t.Fatalf("VerifySMS = %v, %v", ok, err)
	}
	// El éxito consume el challenge.
	if ok, _ := svc.VerifySMS(ctx, "u1", sender.last()); ok {
		t.Fatal("challenge consumido volvió a verificar")
	}
}

func TestSMS_ThreeStrikesDeletesChallenge(t *testing.T) {
	svc, sender := newTestService(t, Config{SMSMaxAttempts: 3})
	ctx := context.Background()

	if err := svc.SetupSMS(ctx, "u1", "+111"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		ok, err := svc.VerifySMS(ctx, "u1", "999999")
		if ok || err != nil {
			t.Fatalf("intento %d = %v, %v; want false, nil", i+1, ok, err)
		}
	}
	// Tercer intento fallido consume el challenge.
	ok, err := svc.VerifySMS(ctx, "u1", "999999")
	if ok || !errors.Is(err, autherr.ErrAttemptsExhausted) {
		t.Fatalf("tercer intento = %v, %v; want false, ErrAttemptsExhausted", ok, err)
	}
	// El cuarto falla incluso con el código correcto: no queda estado.
	if ok, _ := svc.VerifySMS(ctx, "u1", sender.last()); ok {
		t.Fatal("código correcto verificó sin challenge pendiente")
	}
}

func TestSMS_Expiry(t *testing.T) {
	svc, sender := newTestService(t, Config{SMSPendingTTL: 60 * time.Millisecond})
	ctx := context.Background()

	if err := svc.SetupSMS(ctx, "u1", "+111"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	ok, err := svc.VerifySMS(ctx, "u1", sender.last())
	// El backend puede haber expirado la key (ausente) o el chequeo de edad
	// la elimina (ErrExpired); en ambos casos el resultado es false.
	if ok {
		t.Fatal("challenge vencido verificó")
	}
	if err != nil && !errors.Is(err, autherr.ErrExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestSMS_SenderRequired(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	svc.sender = nil
	if err := svc.SetupSMS(context.Background(), "u1", "+111"); err == nil {
		t.Fatal("SetupSMS sin sender debería fallar")
	}
}

func TestBackupCode_SingleUse(t *testing.T) {
	svc, _ := newTestService(t, Config{BackupCodeCount: 3})
	ctx := context.Background()

	enr, _ := svc.SetupTOTP(ctx, "u1")
	code := enr.BackupCodes[1]

	ok, err := svc.VerifyBackupCode(ctx, "u1", code)
	if err != nil || !ok {
		t.Fatalf("primera verificación = %v, %v", ok, err)
	}
	ok, err = svc.VerifyBackupCode(ctx, "u1", code)
	if ok || err != nil {
		t.Fatalf("segunda verificación = %v, %v; want false, nil", ok, err)
	}
	// Los demás códigos siguen sirviendo.
	if ok, _ := svc.VerifyBackupCode(ctx, "u1", enr.BackupCodes[0]); !ok {
		t.Fatal("código no usado dejó de servir")
	}
}

func TestBackupCode_ConcurrentConsumeOnce(t *testing.T) {
	svc, _ := newTestService(t, Config{BackupCodeCount: 1})
	ctx := context.Background()

	enr, _ := svc.SetupTOTP(ctx, "u1")
	code := enr.BackupCodes[0]

	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := svc.VerifyBackupCode(ctx, "u1", code); ok {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("el mismo código verificó %d veces", successes.Load())
	}
}

func TestRegenerateBackupCodes_InvalidatesOld(t *testing.T) {
	svc, _ := newTestService(t, Config{BackupCodeCount: 2})
	ctx := context.Background()

	enr, _ := svc.SetupTOTP(ctx, "u1")
	fresh, err := svc.RegenerateBackupCodes(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 2 {
		t.Fatalf("fresh = %d", len(fresh))
	}

	if ok, _ := svc.VerifyBackupCode(ctx, "u1", enr.BackupCodes[0]); ok {
		t.Fatal("código viejo sobrevivió a la regeneración")
	}
	if ok, _ := svc.VerifyBackupCode(ctx, "u1", fresh[0]); !ok {
		t.Fatal("código nuevo no verifica")
	}
}
