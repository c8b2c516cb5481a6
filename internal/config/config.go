// Package config carga la configuración del gateway desde YAML con overrides
// por variables de entorno. La elección de backend y las claves son siempre
// explícitas: nada se autodetecta en runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Prefix string `yaml:"prefix"`
	} `yaml:"cache"`

	JWT struct {
		Issuer string `yaml:"issuer"`
		// AccessTTL en formato time.ParseDuration ("1h", "15m").
		AccessTTL string `yaml:"access_ttl"`
		// SigningKey base64 (seed Ed25519). Preferir el env
		// GATEKEEPER_SIGNING_KEY antes que el YAML.
		SigningKey string `yaml:"signing_key"`
	} `yaml:"jwt"`

	Session struct {
		TTL           string `yaml:"ttl"`
		MaxConcurrent int    `yaml:"max_concurrent"`
	} `yaml:"session"`

	MFA struct {
		Issuer          string `yaml:"issuer"`
		BackupCodeCount int    `yaml:"backup_code_count"`
		SMS             struct {
			PendingTTL   string `yaml:"pending_ttl"`
			MaxAttempts  int    `yaml:"max_attempts"`
			WebhookURL   string `yaml:"webhook_url"`
			WebhookToken string `yaml:"webhook_token"`
		} `yaml:"sms"`
	} `yaml:"mfa"`

	Security struct {
		// SecretBoxMasterKey base64(32 bytes); cifra secretos TOTP en
		// reposo. Preferir el env GATEKEEPER_MASTER_KEY.
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
	} `yaml:"security"`

	Rate struct {
		MaxLoginAttempts int    `yaml:"max_login_attempts"`
		Window           string `yaml:"window"`
		// HTTP: token bucket por IP en el gateway (requests/s y burst).
		HTTPRequestsPerSecond float64 `yaml:"http_requests_per_second"`
		HTTPBurst             int     `yaml:"http_burst"`
	} `yaml:"rate"`

	Audit struct {
		// PostgresDSN opcional; vacío = solo sink de logs.
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"audit"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.defaults()
	c.applyEnvOverrides()

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default retorna una configuración con defaults sin leer archivo.
// Útil para tests y para `serve` sin --config en dev.
func Default() *Config {
	var c Config
	c.defaults()
	c.applyEnvOverrides()
	return &c
}

func (c *Config) defaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "gk"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "gatekeeper"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "1h"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "30m"
	}
	if c.Session.MaxConcurrent == 0 {
		c.Session.MaxConcurrent = 5
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = c.JWT.Issuer
	}
	if c.MFA.BackupCodeCount == 0 {
		c.MFA.BackupCodeCount = 10
	}
	if c.MFA.SMS.PendingTTL == "" {
		c.MFA.SMS.PendingTTL = "5m"
	}
	if c.MFA.SMS.MaxAttempts == 0 {
		c.MFA.SMS.MaxAttempts = 3
	}
	if c.Rate.MaxLoginAttempts == 0 {
		c.Rate.MaxLoginAttempts = 5
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "15m"
	}
	if c.Rate.HTTPRequestsPerSecond == 0 {
		c.Rate.HTTPRequestsPerSecond = 50
	}
	if c.Rate.HTTPBurst == 0 {
		c.Rate.HTTPBurst = 100
	}
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("GATEKEEPER_SIGNING_KEY"); ok {
		c.JWT.SigningKey = v
	}
	if v, ok := getEnvStr("GATEKEEPER_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}
	if v, ok := getEnvStr("SMS_WEBHOOK_URL"); ok {
		c.MFA.SMS.WebhookURL = v
	}
	if v, ok := getEnvStr("SMS_WEBHOOK_TOKEN"); ok {
		c.MFA.SMS.WebhookToken = v
	}
	if v, ok := getEnvStr("AUDIT_POSTGRES_DSN"); ok {
		c.Audit.PostgresDSN = v
	}
}

func (c *Config) validate() error {
	for name, d := range map[string]string{
		"jwt.access_ttl":      c.JWT.AccessTTL,
		"session.ttl":         c.Session.TTL,
		"mfa.sms.pending_ttl": c.MFA.SMS.PendingTTL,
		"rate.window":         c.Rate.Window,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: cache.kind inválido: %q", c.Cache.Kind)
	}
	return nil
}

// ─── accessors de duraciones (los strings ya pasaron validate) ───

func (c *Config) AccessTTL() time.Duration     { return mustDur(c.JWT.AccessTTL) }
func (c *Config) SessionTTL() time.Duration    { return mustDur(c.Session.TTL) }
func (c *Config) SMSPendingTTL() time.Duration { return mustDur(c.MFA.SMS.PendingTTL) }
func (c *Config) RateWindow() time.Duration    { return mustDur(c.Rate.Window) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
