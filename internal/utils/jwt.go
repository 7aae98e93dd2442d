package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidToken is returned for any token that fails parsing, signature
// verification or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the payload carried by every access token.  Subject holds the
// decimal user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject back into a numeric id.
func (c Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The token
// carries sub (user id), role, iat and exp = iat + ttl.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies the signature and expiry of raw and returns its
// claims.  Only HS256 is accepted.
func ParseAccessToken(secret, raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
