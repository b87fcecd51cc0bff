package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims данные токена.
type Claims struct {
	LineUserID string `json:"line_user_id"`
	jwt.RegisteredClaims
}

// GenerateToken выпускает токен для пользователя LINE.
func (m *Maker) GenerateToken(lineUserID string) (string, error) {
	const op = "jwt.GenerateToken"
	if lineUserID == "" {
		return "", fmt.Errorf("%s: empty line user id", op)
	}
	now := m.now()
	claims := Claims{
		LineUserID: lineUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   lineUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// ParseToken проверяет подпись, срок и издателя токена.
func (m *Maker) ParseToken(tokenStr string) (*Claims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.LineUserID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
