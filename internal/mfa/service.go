// Package mfa implementa los tres sub-flujos de multi-factor del core:
// TOTP, códigos one-time por SMS y backup codes.
//
// Comparten un registro por usuario en el backend de estado:
//
//	mfa_totp:<uid>        secreto TOTP cifrado + flag verified
//	mfa_codes:<uid>       hashes de backup codes (emitidos y usados)
//	mfa_pending_sms:<uid> challenge SMS pendiente (TTL = expiry)
//
// El secreto TOTP se cifra en reposo con secretbox; los backup codes solo se
// persisten hasheados y el plaintext se muestra una única vez.
package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dropDatabas3/gatekeeper/internal/autherr"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	"github.com/dropDatabas3/gatekeeper/internal/security/secretbox"
	tokens "github.com/dropDatabas3/gatekeeper/internal/security/token"
	"github.com/dropDatabas3/gatekeeper/internal/util"
)

const (
	totpPrefix    = "mfa_totp:"
	codesPrefix   = "mfa_codes:"
	pendingPrefix = "mfa_pending_sms:"
)

// ErrNotEnrolled indica que el usuario no tiene TOTP enrolado y la
// operación lo requiere.
var ErrNotEnrolled = errors.New("mfa: el usuario no tiene TOTP enrolado")

// SMSSender entrega códigos one-time por SMS. Debe configurarse de forma
// explícita: el core jamás degrada a un stub silencioso.
type SMSSender interface {
	Send(ctx context.Context, phone, code string) error
}

// Config configura el servicio MFA.
type Config struct {
	// Issuer es el nombre que aparece en la app TOTP (otpauth://).
	Issuer string

	// BackupCodeCount cuántos backup codes se emiten por enrolamiento.
	BackupCodeCount int

	// SMSPendingTTL vida de un challenge SMS pendiente.
	SMSPendingTTL time.Duration

	// SMSMaxAttempts intentos fallidos consecutivos antes de consumir el
	// challenge.
	SMSMaxAttempts int
}

func (c *Config) defaults() {
	if c.Issuer == "" {
		c.Issuer = "gatekeeper"
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = 10
	}
	if c.SMSPendingTTL <= 0 {
		c.SMSPendingTTL = 5 * time.Minute
	}
	if c.SMSMaxAttempts <= 0 {
		c.SMSMaxAttempts = 3
	}
}

// Service implementa los flujos MFA.
type Service struct {
	cfg    Config
	store  cache.Client
	box    *secretbox.Box
	sender SMSSender
	users  *util.KeyedMutex
}

// NewService crea el servicio. El sender puede ser nil si el despliegue no
// ofrece SMS MFA; en ese caso SetupSMS retorna un error de configuración
// explícito, nunca un no-op.
func NewService(cfg Config, store cache.Client, box *secretbox.Box, sender SMSSender) (*Service, error) {
	if store == nil {
		return nil, errors.New("mfa: store no configurado")
	}
	if box == nil {
		return nil, errors.New("mfa: secretbox no configurado (los secretos TOTP se cifran en reposo)")
	}
	cfg.defaults()
	return &Service{
		cfg:    cfg,
		store:  store,
		box:    box,
		sender: sender,
		users:  util.NewKeyedMutex(),
	}, nil
}

// ─── estado persistido ───

type totpRecord struct {
	SecretEnc string `json:"secret_enc"`
	Verified  bool   `json:"verified"`
}

type codesRecord struct {
	Codes []string `json:"codes"` // hashes emitidos
	Used  []string `json:"used"`  // hashes ya consumidos
}

type pendingSMS struct {
	Code      string    `json:"code"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
}

// Enrollment es el resultado de SetupTOTP. Secret y BackupCodes se muestran
// una única vez; después solo existen cifrados/hasheados.
type Enrollment struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}

// ─── TOTP ───

// SetupTOTP genera un secreto nuevo (RFC 6238, SHA1/6 dígitos/30s) y un set
// fresco de backup codes. Re-enrolar reemplaza el secreto anterior y todos
// los backup codes.
func (s *Service) SetupTOTP(ctx context.Context, userID string) (*Enrollment, error) {
	if userID == "" {
		return nil, errors.New("mfa: userID vacío")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: userID,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return nil, err
	}

	secretEnc, err := s.box.Encrypt(key.Secret())
	if err != nil {
		return nil, err
	}

	plain := make([]string, 0, s.cfg.BackupCodeCount)
	hashes := make([]string, 0, s.cfg.BackupCodeCount)
	for i := 0; i < s.cfg.BackupCodeCount; i++ {
		c, err := tokens.GenerateOpaqueToken(6)
		if err != nil {
			return nil, err
		}
		plain = append(plain, c)
		hashes = append(hashes, tokens.SHA256Base64URL(c))
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	if err := s.saveJSON(ctx, totpPrefix+userID, totpRecord{SecretEnc: secretEnc}); err != nil {
		return nil, err
	}
	if err := s.saveJSON(ctx, codesPrefix+userID, codesRecord{Codes: hashes}); err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: plain,
	}, nil
}

// VerifyTOTP valida un código contra el secreto del usuario con skew de ±1
// período. El primer éxito marca el método como verified.
// Código equivocado o usuario sin enrolamiento: (false, nil).
func (s *Service) VerifyTOTP(ctx context.Context, userID, code string) (bool, error) {
	var rec totpRecord
	ok, err := s.loadJSON(ctx, totpPrefix+userID, &rec)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	secret, err := s.box.Decrypt(rec.SecretEnc)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return false, nil
	}

	if !rec.Verified {
		rec.Verified = true
		if err := s.saveJSON(ctx, totpPrefix+userID, rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

// TOTPVerified indica si el usuario completó al menos una verificación TOTP.
func (s *Service) TOTPVerified(ctx context.Context, userID string) (bool, error) {
	var rec totpRecord
	ok, err := s.loadJSON(ctx, totpPrefix+userID, &rec)
	if err != nil || !ok {
		return false, err
	}
	return rec.Verified, nil
}

// DisableTOTP elimina el enrolamiento TOTP y todos los backup codes.
func (s *Service) DisableTOTP(ctx context.Context, userID string) error {
	unlock := s.users.Lock(userID)
	defer unlock()

	if err := s.store.Delete(ctx, totpPrefix+userID); err != nil {
		return autherr.Backend(err)
	}
	if err := s.store.Delete(ctx, codesPrefix+userID); err != nil {
		return autherr.Backend(err)
	}
	return nil
}

// ─── SMS ───

// SetupSMS crea un challenge pendiente con código numérico de 6 dígitos y lo
// entrega por el sender configurado. Un challenge previo del usuario se
// reemplaza.
func (s *Service) SetupSMS(ctx context.Context, userID, phone string) error {
	if s.sender == nil {
		return errors.New("mfa: sms sender no configurado")
	}
	if userID == "" || phone == "" {
		return errors.New("mfa: userID/phone vacío")
	}
	code, err := tokens.GenerateNumericCode(6)
	if err != nil {
		return err
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	rec := pendingSMS{Code: code, Phone: phone, CreatedAt: time.Now().UTC()}
	b, _ := json.Marshal(rec)
	if err := s.store.Set(ctx, pendingPrefix+userID, string(b), s.cfg.SMSPendingTTL); err != nil {
		return autherr.Backend(err)
	}
	return s.sender.Send(ctx, phone, code)
}

// VerifySMS resuelve el challenge pendiente. Toda salida excepto "código
// equivocado bajo el límite" consume el estado: no hay forma de reintentar
// indefinidamente.
//
//	sin challenge             -> (false, nil)
//	vencido                   -> delete, (false, ErrExpired)
//	equivocado, bajo límite   -> attempts++, (false, nil)
//	equivocado, límite        -> delete, (false, ErrAttemptsExhausted)
//	correcto                  -> delete, (true, nil)
func (s *Service) VerifySMS(ctx context.Context, userID, code string) (bool, error) {
	unlock := s.users.Lock(userID)
	defer unlock()

	var rec pendingSMS
	ok, err := s.loadJSON(ctx, pendingPrefix+userID, &rec)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if time.Since(rec.CreatedAt) > s.cfg.SMSPendingTTL {
		if err := s.store.Delete(ctx, pendingPrefix+userID); err != nil {
			return false, autherr.Backend(err)
		}
		return false, autherr.ErrExpired
	}

	if code != rec.Code {
		rec.Attempts++
		if rec.Attempts >= s.cfg.SMSMaxAttempts {
			if err := s.store.Delete(ctx, pendingPrefix+userID); err != nil {
				return false, autherr.Backend(err)
			}
			return false, autherr.ErrAttemptsExhausted
		}
		b, _ := json.Marshal(rec)
		// Conservar la ventana original: TTL restante, no reiniciado.
		remaining := s.cfg.SMSPendingTTL - time.Since(rec.CreatedAt)
		if err := s.store.Set(ctx, pendingPrefix+userID, string(b), remaining); err != nil {
			return false, autherr.Backend(err)
		}
		return false, nil
	}

	if err := s.store.Delete(ctx, pendingPrefix+userID); err != nil {
		return false, autherr.Backend(err)
	}
	return true, nil
}

// ─── backup codes ───

// VerifyBackupCode consume un backup code. Check-then-use es una sola sección
// crítica por usuario: el mismo código jamás verifica dos veces, ni siquiera
// en paralelo.
func (s *Service) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	unlock := s.users.Lock(userID)
	defer unlock()

	var rec codesRecord
	ok, err := s.loadJSON(ctx, codesPrefix+userID, &rec)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	h := tokens.SHA256Base64URL(code)
	issued := false
	for _, c := range rec.Codes {
		if tokens.ConstantTimeEqual(c, h) {
			issued = true
			break
		}
	}
	if !issued {
		return false, nil
	}
	for _, u := range rec.Used {
		if u == h {
			return false, nil // ya consumido
		}
	}

	rec.Used = append(rec.Used, h)
	if err := s.saveJSON(ctx, codesPrefix+userID, rec); err != nil {
		return false, err
	}
	return true, nil
}

// RegenerateBackupCodes reemplaza el set completo de backup codes.
// Los anteriores (usados o no) dejan de servir.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	var rec totpRecord
	ok, err := s.loadJSON(ctx, totpPrefix+userID, &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEnrolled
	}

	plain := make([]string, 0, s.cfg.BackupCodeCount)
	hashes := make([]string, 0, s.cfg.BackupCodeCount)
	for i := 0; i < s.cfg.BackupCodeCount; i++ {
		c, err := tokens.GenerateOpaqueToken(6)
		if err != nil {
			return nil, err
		}
		plain = append(plain, c)
		hashes = append(hashes, tokens.SHA256Base64URL(c))
	}

	unlock := s.users.Lock(userID)
	defer unlock()

	if err := s.saveJSON(ctx, codesPrefix+userID, codesRecord{Codes: hashes}); err != nil {
		return nil, err
	}
	return plain, nil
}

// ─── persistencia ───

func (s *Service) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.store.Get(ctx, key)
	if cache.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, autherr.Backend(err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) saveJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, key, string(b), 0); err != nil {
		return autherr.Backend(err)
	}
	return nil
}
