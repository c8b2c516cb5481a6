// Package app arma el contenedor de dependencias del gateway.
// Se construye una vez en main y se pasa explícito; no hay singleton
// de aplicación.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/apikey"
	"github.com/dropDatabas3/gatekeeper/internal/audit"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	"github.com/dropDatabas3/gatekeeper/internal/config"
	"github.com/dropDatabas3/gatekeeper/internal/mfa"
	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/rate"
	"github.com/dropDatabas3/gatekeeper/internal/security/secretbox"
	"github.com/dropDatabas3/gatekeeper/internal/session"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

// Container agrupa los servicios del core ya cableados.
type Container struct {
	Cfg   *config.Config
	Store cache.Client

	Tokens   *token.Service
	Sessions *session.Manager
	MFA      *mfa.Service
	Keys     *apikey.Service
	Limiter  *rate.Limiter
	Auditor  audit.Recorder
}

// New construye el contenedor completo a partir de la configuración.
// Un componente mal configurado corta el arranque; acá no hay modo
// degradado silencioso.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	store, err := cache.New(cache.Config{
		Kind:     cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("app: backend de estado: %w", err)
	}

	signingKey, err := token.ParseSigningKey(cfg.JWT.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("app: signing key: %w", err)
	}
	tokens, err := token.NewService(token.Config{
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.AccessTTL(),
		SigningKey: signingKey,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("app: token service: %w", err)
	}

	sessions, err := session.NewManager(session.Config{
		TTL:           cfg.SessionTTL(),
		MaxConcurrent: cfg.Session.MaxConcurrent,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("app: session manager: %w", err)
	}

	box, err := secretbox.New(cfg.Security.SecretBoxMasterKey)
	if err != nil {
		return nil, fmt.Errorf("app: secretbox: %w", err)
	}

	var sender mfa.SMSSender
	if cfg.MFA.SMS.WebhookURL != "" {
		sender, err = mfa.NewWebhookSMSSender(cfg.MFA.SMS.WebhookURL, cfg.MFA.SMS.WebhookToken)
		if err != nil {
			return nil, fmt.Errorf("app: sms sender: %w", err)
		}
	}
	mfaSvc, err := mfa.NewService(mfa.Config{
		Issuer:          cfg.MFA.Issuer,
		BackupCodeCount: cfg.MFA.BackupCodeCount,
		SMSPendingTTL:   cfg.SMSPendingTTL(),
		SMSMaxAttempts:  cfg.MFA.SMS.MaxAttempts,
	}, store, box, sender)
	if err != nil {
		return nil, fmt.Errorf("app: mfa service: %w", err)
	}

	keys, err := apikey.NewService(store)
	if err != nil {
		return nil, fmt.Errorf("app: apikey service: %w", err)
	}

	limiter, err := rate.NewLimiter(rate.Config{
		MaxAttempts: cfg.Rate.MaxLoginAttempts,
		Window:      cfg.RateWindow(),
	}, store)
	if err != nil {
		return nil, fmt.Errorf("app: rate limiter: %w", err)
	}

	auditor := audit.Recorder(audit.NewZapRecorder())
	if cfg.Audit.PostgresDSN != "" {
		pg, err := audit.NewPostgresRecorder(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: audit postgres: %w", err)
		}
		auditor = audit.Multi(auditor, pg)
	}

	logger.L().Info("container ready")

	return &Container{
		Cfg:      cfg,
		Store:    store,
		Tokens:   tokens,
		Sessions: sessions,
		MFA:      mfaSvc,
		Keys:     keys,
		Limiter:  limiter,
		Auditor:  auditor,
	}, nil
}

// Close libera recursos del contenedor.
func (c *Container) Close() error {
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}

// ─── fachada del core (delegaciones finas) ───
//
// Los servicios están expuestos como campos; estos métodos existen para
// los consumidores que quieren el contrato completo en un solo tipo.

func (c *Container) GenerateJWT(ctx context.Context, userID string, extra token.Extra) (string, error) {
	return c.Tokens.Generate(ctx, userID, extra)
}

func (c *Container) VerifyJWT(ctx context.Context, raw string) (*token.Claims, error) {
	return c.Tokens.Verify(ctx, raw)
}

func (c *Container) RevokeJWT(ctx context.Context, jti string, remaining time.Duration) error {
	return c.Tokens.Revoke(ctx, jti, remaining)
}

func (c *Container) CreateSession(ctx context.Context, userID, ip, userAgent string) (*session.Session, error) {
	return c.Sessions.Create(ctx, userID, ip, userAgent)
}

func (c *Container) ValidateSession(ctx context.Context, sid string) (*session.Session, error) {
	return c.Sessions.Validate(ctx, sid)
}

func (c *Container) TerminateSession(ctx context.Context, sid string) error {
	return c.Sessions.Terminate(ctx, sid)
}

func (c *Container) SetupTOTP(ctx context.Context, userID string) (*mfa.Enrollment, error) {
	return c.MFA.SetupTOTP(ctx, userID)
}

func (c *Container) VerifyTOTP(ctx context.Context, userID, code string) (bool, error) {
	return c.MFA.VerifyTOTP(ctx, userID, code)
}

func (c *Container) SetupSMSMFA(ctx context.Context, userID, phone string) error {
	return c.MFA.SetupSMS(ctx, userID, phone)
}

func (c *Container) VerifySMSCode(ctx context.Context, userID, code string) (bool, error) {
	return c.MFA.VerifySMS(ctx, userID, code)
}

func (c *Container) VerifyBackupCode(ctx context.Context, userID, code string) (bool, error) {
	return c.MFA.VerifyBackupCode(ctx, userID, code)
}

func (c *Container) GenerateAPIKey(ctx context.Context, userID string, scopes []string) (string, string, error) {
	return c.Keys.Generate(ctx, userID, scopes)
}

func (c *Container) VerifyAPIKey(ctx context.Context, keyID, secret string) (*apikey.KeyClaims, error) {
	return c.Keys.Verify(ctx, keyID, secret)
}

func (c *Container) RevokeAPIKey(ctx context.Context, keyID string) error {
	return c.Keys.Revoke(ctx, keyID)
}

func (c *Container) CheckRateLimit(ctx context.Context, identifier string) (bool, error) {
	return c.Limiter.Check(ctx, identifier)
}

func (c *Container) RecordFailedAttempt(ctx context.Context, identifier string) error {
	return c.Limiter.RecordFailure(ctx, identifier)
}

func (c *Container) ClearFailedAttempts(ctx context.Context, identifier string) error {
	return c.Limiter.Clear(ctx, identifier)
}
