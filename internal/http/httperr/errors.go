// Package httperr define el formato de error JSON de la API y helpers
// para escribir respuestas. Todo error sale con la misma envoltura:
//
//	{"error": {"message": "...", "type": "...", "code": "..."}}
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Tipos de error expuestos al cliente.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeRateLimit      = "rate_limit_error"
	TypeAPI            = "api_error"
)

// Códigos de error expuestos al cliente.
const (
	CodeAuthentication = "authentication_error"
	CodePermission     = "permission_error"
	CodeRateLimited    = "rate_limited"
	CodeInvalidJSON    = "invalid_json"
	CodeInvalidParam   = "invalid_param"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal_error"
)

// AppError es el error estándar de la capa HTTP. HTTPStatus no se
// serializa; Err es la causa original, solo para logs.
type AppError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return "[" + e.Code + "] " + e.Message + ": " + e.Err.Error()
	}
	return "[" + e.Code + "] " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status int, typ, code, message string) *AppError {
	return &AppError{Message: message, Type: typ, Code: code, HTTPStatus: status}
}

// WithCause devuelve una copia con la causa original adjunta.
// Copia para no mutar las variables base compartidas.
func (e *AppError) WithCause(err error) *AppError {
	ne := *e
	ne.Err = err
	return &ne
}

// WithMessage devuelve una copia con otro mensaje.
func (e *AppError) WithMessage(msg string) *AppError {
	ne := *e
	ne.Message = msg
	return &ne
}

// Errores base reutilizables.
var (
	ErrUnauthorized = New(http.StatusUnauthorized, TypeInvalidRequest, CodeAuthentication, "authentication required")
	ErrForbidden    = New(http.StatusForbidden, TypeInvalidRequest, CodePermission, "insufficient permissions")
	ErrRateLimited  = New(http.StatusTooManyRequests, TypeRateLimit, CodeRateLimited, "too many requests")
	ErrInvalidJSON  = New(http.StatusBadRequest, TypeInvalidRequest, CodeInvalidJSON, "malformed JSON body")
	ErrBadRequest   = New(http.StatusBadRequest, TypeInvalidRequest, CodeInvalidParam, "invalid request")
	ErrNotFound     = New(http.StatusNotFound, TypeInvalidRequest, CodeNotFound, "resource not found")
	ErrInternal     = New(http.StatusInternalServerError, TypeAPI, CodeInternal, "internal error")
)

type envelope struct {
	Error *AppError `json:"error"`
}

// WriteError serializa err con la envoltura estándar. Errores que no
// son *AppError se degradan a 500 genérico sin filtrar la causa.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(envelope{Error: appErr})
}

// FromError convierte un error genérico en AppError.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// WriteJSON escribe una respuesta JSON de éxito.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// ReadJSON decodifica el body en v con límite de tamaño y campos estrictos.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ErrInvalidJSON.WithCause(err)
	}
	return nil
}
