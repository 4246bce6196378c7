package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is set on tokens minted by GenerateLegacyToken.
const Issuer = "musicjobs-api"

// LegacyClaims represents legacy JWT claims (HMAC-signed tokens)
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Owner returns the user id carried by the token, falling back to the
// standard subject claim.
func (c *LegacyClaims) Owner() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// ValidateLegacyToken validates a token using HMAC signing
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid || claims.Owner() == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

// GenerateLegacyToken signs a token for userID. Used by the CLI and tests.
func GenerateLegacyToken(userID, email, secret string) (string, error) {
	claims := LegacyClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  Issuer,
			Subject: userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
