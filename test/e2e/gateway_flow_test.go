// Package e2e levanta el servidor completo (router + gateway + servicios
// sobre backend en memoria) y recorre los flujos de punta a punta.
package e2e

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/gatekeeper/internal/apikey"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	apikeysctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/apikeys"
	healthctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/health"
	mfactrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/mfa"
	sessionsctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/sessions"
	tokensctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/tokens"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	"github.com/dropDatabas3/gatekeeper/internal/http/router"
	mfasvc "github.com/dropDatabas3/gatekeeper/internal/mfa"
	"github.com/dropDatabas3/gatekeeper/internal/rate"
	"github.com/dropDatabas3/gatekeeper/internal/security/secretbox"
	"github.com/dropDatabas3/gatekeeper/internal/session"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

type env struct {
	srv      *httptest.Server
	tokens   *token.Service
	sessions *session.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := cache.NewMemory("e2e")

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tokens, err := token.NewService(token.Config{
		Issuer:     "https://auth.test",
		AccessTTL:  time.Hour,
		SigningKey: priv,
	}, store)
	require.NoError(t, err)

	sessions, err := session.NewManager(session.Config{TTL: time.Hour, MaxConcurrent: 5}, store)
	require.NoError(t, err)

	keys, err := apikey.NewService(store)
	require.NoError(t, err)

	limiter, err := rate.NewLimiter(rate.Config{MaxAttempts: 5, Window: time.Minute}, store)
	require.NoError(t, err)

	box, err := secretbox.NewFromRaw(bytes.Repeat([]byte{42}, 32))
	require.NoError(t, err)

	mfa, err := mfasvc.NewService(mfasvc.Config{Issuer: "gatekeeper-e2e"}, store, box, nil)
	require.NoError(t, err)

	gw, err := mw.NewGateway(mw.GatewayConfig{Tokens: tokens, Keys: keys, Limiter: limiter})
	require.NoError(t, err)

	handler := router.New(router.Deps{
		Gateway:  gw,
		Health:   healthctrl.NewController(store),
		MFA:      mfactrl.NewControllers(mfa, sessions),
		Sessions: sessionsctrl.NewController(sessions),
		APIKeys:  apikeysctrl.NewController(keys, nil),
		Tokens:   tokensctrl.NewController(tokens),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &env{srv: srv, tokens: tokens, sessions: sessions}
}

func (e *env) request(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func Test_FullTOTPEnrollment(t *testing.T) {
	e := newEnv(t)
	bearer, err := e.tokens.Generate(context.Background(), "user-1", token.Extra{Tier: "pro"})
	require.NoError(t, err)

	// Enroll
	resp, raw := e.request(t, http.MethodPost, "/v1/mfa/totp/setup", bearer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var setup struct {
		Secret      string   `json:"secret"`
		OTPAuthURL  string   `json:"otpauth_url"`
		BackupCodes []string `json:"backup_codes"`
	}
	require.NoError(t, json.Unmarshal(raw, &setup))
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.OTPAuthURL, "otpauth://")
	require.Len(t, setup.BackupCodes, 10)

	// Verificar con un código real generado desde el secret
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	resp, raw = e.request(t, http.MethodPost, "/v1/mfa/totp/verify", bearer, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vr struct {
		Verified bool `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(raw, &vr))
	require.True(t, vr.Verified)

	// Código basura no pasa
	resp, raw = e.request(t, http.MethodPost, "/v1/mfa/totp/verify", bearer, map[string]string{"code": "000000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &vr))
	require.False(t, vr.Verified)
}

func Test_SessionVisibilityAcrossUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b1, err := e.tokens.Generate(ctx, "u1", token.Extra{})
	require.NoError(t, err)
	b2, err := e.tokens.Generate(ctx, "u2", token.Extra{})
	require.NoError(t, err)

	_, err = e.sessions.Create(ctx, "u1", "1.1.1.1", "cli")
	require.NoError(t, err)
	_, err = e.sessions.Create(ctx, "u2", "2.2.2.2", "cli")
	require.NoError(t, err)

	var list struct {
		Sessions []struct {
			IPAddress string `json:"ip_address"`
		} `json:"sessions"`
	}

	resp, raw := e.request(t, http.MethodGet, "/v1/sessions", b1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Sessions, 1)
	require.Equal(t, "1.1.1.1", list.Sessions[0].IPAddress)

	resp, raw = e.request(t, http.MethodGet, "/v1/sessions", b2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Sessions, 1)
	require.Equal(t, "2.2.2.2", list.Sessions[0].IPAddress)
}

func Test_ErrorEnvelopeShape(t *testing.T) {
	e := newEnv(t)

	resp, raw := e.request(t, http.MethodGet, "/v1/apikeys", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Contains(t, body, "error")
	require.Equal(t, "invalid_request_error", body["error"]["type"])
	require.Equal(t, "authentication_error", body["error"]["code"])
	require.NotEmpty(t, body["error"]["message"])
}
