package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a verified token says about its bearer
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

// Verifier checks HS256 tokens issued by the school backend.
// Tokens are never issued here.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) VerifyJWT(tokenString string) (*Identity, error) {
	// parse token
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	// isValid
	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	claims, ok := jwtToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims")
	}

	identity := &Identity{
		UserID: claimString(claims, "user_id"),
		Name:   claimString(claims, "name"),
		Email:  claimString(claims, "email"),
		Role:   claimString(claims, "role"),
	}
	if identity.UserID == "" {
		identity.UserID = claimString(claims, "sub")
	}
	if identity.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return identity, nil
}

// claimString reads string and numeric claims; json numbers decode as float64
func claimString(claims jwt.MapClaims, key string) string {
	switch value := claims[key].(type) {
	case string:
		return value
	case float64:
		return fmt.Sprintf("%.0f", value)
	default:
		return ""
	}
}
