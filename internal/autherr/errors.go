// Package autherr define la taxonomía de errores del core de autenticación.
//
// Los errores son "kinds", no excepciones: las funciones de verificación
// retornan (nil, <kind>) para los fallos esperados de input no confiable y los
// callers hacen branch con errors.Is. ErrBackendUnavailable es el único fallo
// duro: política fail-closed, nunca se degrada a "not found".
package autherr

import "errors"

var (
	// ErrInvalidCredential indica firma o secret inválido, o input malformado.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpired indica token, sesión o código SMS vencido.
	ErrExpired = errors.New("credential expired")

	// ErrRevoked indica un jti revocado o una API key desactivada.
	ErrRevoked = errors.New("credential revoked")

	// ErrAttemptsExhausted indica que un challenge SMS o backup code agotó
	// sus intentos y fue consumido.
	ErrAttemptsExhausted = errors.New("attempts exhausted")

	// ErrRateLimited indica que el identificador superó el límite de intentos.
	ErrRateLimited = errors.New("rate limited")

	// ErrBackendUnavailable indica que el storage backend falló o expiró el
	// timeout. Se trata como deny, jamás como ausencia.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
)

// Backend envuelve un error de backend preservando la causa.
// errors.Is(err, ErrBackendUnavailable) sigue siendo true.
func Backend(cause error) error {
	if cause == nil {
		return nil
	}
	return backendError{cause: cause}
}

type backendError struct {
	cause error
}

func (e backendError) Error() string { return "auth backend unavailable: " + e.cause.Error() }

func (e backendError) Unwrap() []error { return []error{ErrBackendUnavailable, e.cause} }
