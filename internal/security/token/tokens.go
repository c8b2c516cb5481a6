// Package tokens genera y hashea credenciales opacas (session IDs, API key
// secrets, backup codes). Solo los hashes se persisten; el valor crudo se
// entrega una única vez al caller.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateNumericCode genera un código numérico de n dígitos (SMS OTP).
// Usa crypto/rand; nunca math/rand para códigos de verificación.
func GenerateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding
// (formato de hash persistido en el backend).
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeEqual compara dos strings en tiempo constante.
// Para verificar secrets de API keys: comparar hash contra hash, nunca
// el secret crudo contra nada.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
