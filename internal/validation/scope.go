// Package validation contiene validadores de entrada compartidos.
package validation

import "regexp"

// Reglas para nombres de scope de API key:
// - Solo minúsculas.
// - Empieza y termina en [a-z0-9].
// - En el medio se admite [a-z0-9:_.-].
// - Largo 1..64.
// - Sin espacios ni punto y coma.
//
// Válidos: read, keys:write, audit:read:v2, a_b-c.d:scope2
// Inválidos: ;hack, BAD, "con espacio", :lead, trail:, "".
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName indica si el nombre de scope cumple el patrón permitido.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// ValidScopes valida una lista completa; una lista vacía es válida
// (key sin scopes = key de acceso general).
func ValidScopes(names []string) bool {
	for _, n := range names {
		if !ValidScopeName(n) {
			return false
		}
	}
	return true
}
