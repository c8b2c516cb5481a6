// Package audit registra las decisiones de autenticación para trazabilidad.
//
// Cada rechazo se registra con IP, path y método del caller; el valor crudo
// de tokens/secrets/códigos jamás entra al registro. El sink por defecto es
// el logger estructurado; opcionalmente se persiste también en Postgres.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
)

// Event es un evento de auditoría.
type Event struct {
	Event    string // "auth_rejected", "rate_limited", "api_key_revoked", ...
	Outcome  string // "allowed" | "denied" | "rate_limited"
	UserID   string
	ClientIP string
	Path     string
	Method   string
	Detail   string // código de error machine-readable, nunca el credential
}

// Recorder persiste eventos de auditoría.
// Record no retorna error: la auditoría nunca bloquea una decisión de auth;
// los fallos del sink se loguean y se sigue.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// ─── sink zap ───

// ZapRecorder escribe eventos al logger estructurado.
type ZapRecorder struct{}

// NewZapRecorder crea el sink por defecto.
func NewZapRecorder() *ZapRecorder { return &ZapRecorder{} }

func (z *ZapRecorder) Record(ctx context.Context, ev Event) {
	logger.From(ctx).Info("audit",
		zap.String("event", ev.Event),
		logger.Outcome(ev.Outcome),
		logger.UserID(ev.UserID),
		logger.ClientIP(ev.ClientIP),
		logger.Path(ev.Path),
		logger.Method(ev.Method),
		zap.String("detail", ev.Detail),
		zap.Time("ts", time.Now().UTC()),
	)
}

// Multi combina varios recorders.
func Multi(rs ...Recorder) Recorder { return multiRecorder(rs) }

type multiRecorder []Recorder

func (m multiRecorder) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Record(ctx, ev)
	}
}
