// Package jwt выпускает и проверяет токены, которыми страницы LIFF
// подтверждают LINE user id при вызовах платёжного API.
package jwt

import (
	"errors"
	"time"
)

// ErrInvalidToken токен не прошёл проверку.
var ErrInvalidToken = errors.New("invalid token")

// Issuer значение поля iss во всех токенах.
const Issuer = "gebwai"

// Maker подписывает токены секретным ключом, HS256.
type Maker struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт Maker с секретным ключом и временем жизни токена.
func NewJWTMaker(secretKey string, ttl time.Duration) *Maker {
	return &Maker{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
