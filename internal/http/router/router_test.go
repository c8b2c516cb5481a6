package router

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dropDatabas3/gatekeeper/internal/apikey"
	"github.com/dropDatabas3/gatekeeper/internal/cache"
	apikeysctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/apikeys"
	healthctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/health"
	mfactrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/mfa"
	sessionsctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/sessions"
	tokensctrl "github.com/dropDatabas3/gatekeeper/internal/http/controllers/tokens"
	mw "github.com/dropDatabas3/gatekeeper/internal/http/middlewares"
	mfasvc "github.com/dropDatabas3/gatekeeper/internal/mfa"
	"github.com/dropDatabas3/gatekeeper/internal/rate"
	"github.com/dropDatabas3/gatekeeper/internal/security/secretbox"
	"github.com/dropDatabas3/gatekeeper/internal/session"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

type fixture struct {
	handler  http.Handler
	tokens   *token.Service
	sessions *session.Manager
	keys     *apikey.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := cache.NewMemory("t")

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := token.NewService(token.Config{
		Issuer:     "https://auth.test",
		AccessTTL:  time.Hour,
		SigningKey: priv,
	}, store)
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := session.NewManager(session.Config{TTL: time.Hour, MaxConcurrent: 5}, store)
	if err != nil {
		t.Fatal(err)
	}
	keys, err := apikey.NewService(store)
	if err != nil {
		t.Fatal(err)
	}
	limiter, err := rate.NewLimiter(rate.Config{MaxAttempts: 10, Window: time.Minute}, store)
	if err != nil {
		t.Fatal(err)
	}
	box, err := secretbox.NewFromRaw(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatal(err)
	}
	mfa, err := mfasvc.NewService(mfasvc.Config{Issuer: "test"}, store, box, nil)
	if err != nil {
		t.Fatal(err)
	}

	gw, err := mw.NewGateway(mw.GatewayConfig{Tokens: tokens, Keys: keys, Limiter: limiter})
	if err != nil {
		t.Fatal(err)
	}

	handler := New(Deps{
		Gateway:  gw,
		Health:   healthctrl.NewController(store),
		MFA:      mfactrl.NewControllers(mfa, sessions),
		Sessions: sessionsctrl.NewController(sessions),
		APIKeys:  apikeysctrl.NewController(keys, nil),
		Tokens:   tokensctrl.NewController(tokens),
	})
	return &fixture{handler: handler, tokens: tokens, sessions: sessions, keys: keys}
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, uid string) string {
	t.Helper()
	raw, err := f.tokens.Generate(context.Background(), uid, token.Extra{})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestRouter_HealthAndMetricsArePublic(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := f.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("%s: esperaba 200, obtuvo %d", path, rec.Code)
		}
	}
}

func TestRouter_ProtectedRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/sessions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("esperaba 401, obtuvo %d", rec.Code)
	}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bearer := f.login(t, "u1")

	s1, err := f.sessions.Create(ctx, "u1", "1.2.3.4", "cli")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sessions.Create(ctx, "u1", "1.2.3.5", "cli"); err != nil {
		t.Fatal(err)
	}

	// Listar
	rec := f.do(t, http.MethodGet, "/v1/sessions", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: esperaba 200, obtuvo %d", rec.Code)
	}
	var listResp struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if len(listResp.Sessions) != 2 {
		t.Fatalf("esperaba 2 sesiones, obtuvo %d", len(listResp.Sessions))
	}

	// Terminar una
	rec = f.do(t, http.MethodDelete, "/v1/sessions/"+s1.ID, bearer, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("terminate: esperaba 204, obtuvo %d", rec.Code)
	}
	if _, err := f.sessions.Validate(ctx, s1.ID); err == nil {
		t.Error("la sesión terminada sigue validando")
	}

	// Sesión ajena: 404, no 403 (no filtrar existencia)
	other, err := f.sessions.Create(ctx, "u2", "9.9.9.9", "cli")
	if err != nil {
		t.Fatal(err)
	}
	rec = f.do(t, http.MethodDelete, "/v1/sessions/"+other.ID, bearer, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("sesión ajena: esperaba 404, obtuvo %d", rec.Code)
	}

	// logout_all
	rec = f.do(t, http.MethodPost, "/v1/sessions/logout_all", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout_all: esperaba 200, obtuvo %d", rec.Code)
	}
	var la struct {
		Terminated int `json:"terminated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &la); err != nil {
		t.Fatal(err)
	}
	if la.Terminated != 1 {
		t.Errorf("terminated = %d, esperaba 1", la.Terminated)
	}
}

func TestRouter_APIKeyLifecycle(t *testing.T) {
	f := newFixture(t)
	bearer := f.login(t, "u1")

	// Crear
	rec := f.do(t, http.MethodPost, "/v1/apikeys", bearer, map[string]any{"scopes": []string{"read"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: esperaba 201, obtuvo %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		KeyID string `json:"key_id"`
		Key   string `json:"key"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	// La key recién emitida autentica
	req := httptest.NewRequest(http.MethodGet, "/v1/apikeys", nil)
	req.Header.Set("X-API-Key", created.Key)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("auth con api key: esperaba 200, obtuvo %d", rr.Code)
	}

	// Revocar
	rec = f.do(t, http.MethodDelete, "/v1/apikeys/"+created.KeyID, bearer, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: esperaba 204, obtuvo %d", rec.Code)
	}

	// La key revocada ya no autentica
	req = httptest.NewRequest(http.MethodGet, "/v1/apikeys", nil)
	req.Header.Set("X-API-Key", created.Key)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("key revocada: esperaba 401, obtuvo %d", rr.Code)
	}

	// Revocar key ajena: 404
	bearer2 := f.login(t, "u2")
	rec = f.do(t, http.MethodDelete, "/v1/apikeys/"+created.KeyID, bearer2, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("key ajena: esperaba 404, obtuvo %d", rec.Code)
	}
}

func TestRouter_TokenRevoke(t *testing.T) {
	f := newFixture(t)
	bearer := f.login(t, "u1")

	// Revocar el token del propio request (sin body)
	rec := f.do(t, http.MethodPost, "/v1/tokens/revoke", bearer, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: esperaba 204, obtuvo %d (%s)", rec.Code, rec.Body.String())
	}

	// El mismo token ya no sirve
	rec = f.do(t, http.MethodGet, "/v1/sessions", bearer, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("token revocado: esperaba 401, obtuvo %d", rec.Code)
	}
}

func TestRouter_MFABackupFlow(t *testing.T) {
	f := newFixture(t)
	bearer := f.login(t, "u1")

	// Setup TOTP devuelve secret y backup codes
	rec := f.do(t, http.MethodPost, "/v1/mfa/totp/setup", bearer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup: esperaba 200, obtuvo %d (%s)", rec.Code, rec.Body.String())
	}
	var setup struct {
		Secret      string   `json:"secret"`
		OTPAuthURL  string   `json:"otpauth_url"`
		BackupCodes []string `json:"backup_codes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &setup); err != nil {
		t.Fatal(err)
	}
	if setup.Secret == "" || setup.OTPAuthURL == "" || len(setup.BackupCodes) == 0 {
		t.Fatalf("setup incompleto: %+v", setup)
	}

	// Un backup code sirve exactamente una vez
	code := setup.BackupCodes[0]
	rec = f.do(t, http.MethodPost, "/v1/mfa/backup/verify", bearer, map[string]string{"code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("backup verify: esperaba 200, obtuvo %d", rec.Code)
	}
	var vr struct {
		Verified bool `json:"verified"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &vr); err != nil {
		t.Fatal(err)
	}
	if !vr.Verified {
		t.Fatal("el backup code no verificó")
	}

	rec = f.do(t, http.MethodPost, "/v1/mfa/backup/verify", bearer, map[string]string{"code": code})
	_ = json.Unmarshal(rec.Body.Bytes(), &vr)
	if vr.Verified {
		t.Fatal("el backup code sirvió dos veces")
	}

	// Disable elimina el enrolamiento
	rec = f.do(t, http.MethodDelete, "/v1/mfa/totp", bearer, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("disable: esperaba 204, obtuvo %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/v1/mfa/backup/regenerate", bearer, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("regenerate sin TOTP: esperaba 400, obtuvo %d", rec.Code)
	}
}
