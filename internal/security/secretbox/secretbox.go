// Package secretbox cifra secretos en reposo (ej: secretos TOTP) antes de
// persistirlos en el backend de estado. Usa NaCl secretbox
// (XSalsa20-Poly1305) con una clave maestra de 32 bytes.
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyLength = 32  // NaCl secretbox => 32 bytes
	nonceSize = 24  // XSalsa20 nonce (192 bits)
	sep       = "|" // base64(nonce)|base64(ciphertext)
)

// Box cifra y descifra con una clave maestra fija.
// Se construye una vez al inicio de la aplicación y se inyecta de forma
// explícita; una clave ausente es un error de arranque, nunca un no-op.
type Box struct {
	key [keyLength]byte
}

// New crea un Box a partir de la clave maestra en base64 (std o raw).
// Genere una clave con: openssl rand -base64 32
func New(masterKeyB64 string) (*Box, error) {
	masterKeyB64 = strings.TrimSpace(masterKeyB64)
	if masterKeyB64 == "" {
		return nil, errors.New("secretbox: master key no configurada; genere una con: openssl rand -base64 32")
	}
	k, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		k, err = base64.RawStdEncoding.DecodeString(masterKeyB64)
	}
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode master key: %w", err)
	}
	if len(k) != keyLength {
		return nil, fmt.Errorf("secretbox: la clave debe decodificar a %d bytes, obtuvo %d", keyLength, len(k))
	}
	b := &Box{}
	copy(b.key[:], k)
	return b, nil
}

// GenerateMasterKey genera una clave maestra nueva en base64, lista
// para usarse como GATEKEEPER_MASTER_KEY.
func GenerateMasterKey() (string, error) {
	k := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

// NewFromRaw crea un Box desde 32 bytes crudos. Útil en tests.
func NewFromRaw(k []byte) (*Box, error) {
	if len(k) != keyLength {
		return nil, fmt.Errorf("secretbox: se requieren %d bytes, obtuvo %d", keyLength, len(k))
	}
	b := &Box{}
	copy(b.key[:], k)
	return b, nil
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plainText string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secretbox: nonce random: %w", err)
	}

	ct := secretbox.Seal(nil, []byte(plainText), &nonce, &b.key)

	nonceB64 := base64.StdEncoding.EncodeToString(nonce[:])
	ctB64 := base64.StdEncoding.EncodeToString(ct)
	return nonceB64 + sep + ctB64, nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
// Falla si el ciphertext fue alterado (Poly1305 auth).
func (b *Box) Decrypt(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", errors.New("secretbox: formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonceRaw, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	if len(nonceRaw) != nonceSize {
		return "", fmt.Errorf("secretbox: nonce inválido: esperado %d bytes, obtuvo %d", nonceSize, len(nonceRaw))
	}

	var nonce [nonceSize]byte
	copy(nonce[:], nonceRaw)

	pt, ok := secretbox.Open(nil, ct, &nonce, &b.key)
	if !ok {
		return "", errors.New("secretbox: auth/decrypt falló")
	}
	return string(pt), nil
}
