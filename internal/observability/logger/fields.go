package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// ClientIP crea un campo para la IP del cliente.
// Se loguea en cada rechazo de autenticación (auditoría).
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// UserAgent crea un campo para el User-Agent.
func UserAgent(v string) zap.Field {
	return zap.String("user_agent", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - AUTH
// =================================================================================

// UserID crea un campo para el ID de usuario.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// SessionID crea un campo para el ID de sesión.
// Solo debe loguearse el ID, nunca el valor completo de un credential.
func SessionID(v string) zap.Field {
	return zap.String("session_id", v)
}

// JTI crea un campo para el ID único de un token.
func JTI(v string) zap.Field {
	return zap.String("jti", v)
}

// KeyID crea un campo para el identificador público de una API key.
// El key_id es seguro de loguear; el secret jamás.
func KeyID(v string) zap.Field {
	return zap.String("key_id", v)
}

// Identifier crea un campo para el identificador de rate limiting.
func Identifier(v string) zap.Field {
	return zap.String("identifier", v)
}

// Outcome crea un campo para el resultado de una decisión de auth
// ("allowed", "denied", "rate_limited").
func Outcome(v string) zap.Field {
	return zap.String("outcome", v)
}

// Component crea un campo para el componente que origina el log.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}
