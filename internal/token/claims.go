package token

import (
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Claims es el credential del core como struct fijo.
// Se valida en el borde de deserialización; ningún map sin tipar atraviesa
// el sistema. user_id viaja en "sub", el jti en "jti" (RegisteredClaims.ID).
type Claims struct {
	Tier        string   `json:"tier,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	jwtv5.RegisteredClaims
}

// UserID retorna el subject del token.
func (c *Claims) UserID() string { return c.Subject }

// JTI retorna el ID único del token (key de revocación).
func (c *Claims) JTI() string { return c.ID }

// HasPermission verifica pertenencia exacta en permissions.
func (c *Claims) HasPermission(p string) bool {
	for _, v := range c.Permissions {
		if v == p {
			return true
		}
	}
	return false
}

// Extra son los claims opcionales que un caller puede fijar al emitir.
// Es deliberadamente cerrado: tier y permissions son los únicos claims de
// negocio que el core propaga.
type Extra struct {
	Tier        string
	Permissions []string
}
