package util

import "strings"

// MaskPhone enmascara un número de teléfono para logs de auditoría.
// Deja visibles solo los últimos 4 dígitos: "+54911****4321".
func MaskPhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	keep := 4
	head := len(s) - keep - 4
	if head < 0 {
		head = 0
	}
	return s[:head] + "****" + s[len(s)-keep:]
}

// MaskIdentifier enmascara un identificador arbitrario (ej: key de rate limit
// que puede contener un email). Conserva el primer y último caracter.
func MaskIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 3 {
		return "***"
	}
	return s[:1] + "…" + s[len(s)-1:]
}
