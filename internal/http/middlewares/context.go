package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gatekeeper/internal/apikey"
	"github.com/dropDatabas3/gatekeeper/internal/token"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	// ctxClaimsKey guarda las claims del JWT validado
	ctxClaimsKey ctxKey = "claims"
	// ctxKeyClaimsKey guarda las claims de la API key validada
	ctxKeyClaimsKey ctxKey = "key_claims"
	// ctxUserIDKey guarda el user ID del principal autenticado
	ctxUserIDKey ctxKey = "user_id"
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
)

// =================================================================================
// CONTEXT SETTERS (Internos, usados por middlewares)
// =================================================================================

// WithClaims inyecta las claims JWT en el contexto
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, claims)
}

// WithKeyClaims inyecta las claims de API key en el contexto
func WithKeyClaims(ctx context.Context, kc *apikey.KeyClaims) context.Context {
	return context.WithValue(ctx, ctxKeyClaimsKey, kc)
}

// WithUserID inyecta el user ID en el contexto
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

// setRequestID inyecta el request ID en el contexto (interno)
func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// =================================================================================
// CONTEXT GETTERS (Para controllers)
// =================================================================================

// GetClaims devuelve las claims JWT o nil si el request se autenticó
// por otro medio (API key) o no se autenticó.
func GetClaims(ctx context.Context) *token.Claims {
	if cl, ok := ctx.Value(ctxClaimsKey).(*token.Claims); ok {
		return cl
	}
	return nil
}

// GetKeyClaims devuelve las claims de API key o nil.
func GetKeyClaims(ctx context.Context) *apikey.KeyClaims {
	if kc, ok := ctx.Value(ctxKeyClaimsKey).(*apikey.KeyClaims); ok {
		return kc
	}
	return nil
}

// GetUserID devuelve el user ID del principal autenticado, o "" si no hay.
func GetUserID(ctx context.Context) string {
	if uid, ok := ctx.Value(ctxUserIDKey).(string); ok {
		return uid
	}
	return ""
}

// GetRequestID devuelve el request ID, o "" si no hay.
func GetRequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return rid
	}
	return ""
}

// ClientIP extrae la IP del cliente. Prioriza X-Forwarded-For (primer hop)
// y cae a RemoteAddr sin puerto.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
