package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the registered claims carried by a session bearer
// token: sub is the wallet address, jti the server-side session ID.
type SessionClaims struct {
	jwt.RegisteredClaims
}
