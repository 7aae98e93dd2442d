package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "store_owner", 24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), tok.Exp, time.Minute)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "store_owner", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseAccessTokenRejects(t *testing.T) {
	valid, err := NewAccessToken("secret", 1, "user", time.Hour)
	require.NoError(t, err)
	expired, err := NewAccessToken("secret", 1, "user", -time.Minute)
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "user",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]struct {
		secret string
		raw    string
	}{
		"wrong secret": {"other", valid.Token},
		"expired":      {"secret", expired.Token},
		"garbage":      {"secret", "not.a.jwt"},
		"missing sub":  {"secret", noSub},
		"other alg":    {"secret", hs512},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.secret, tc.raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Secret#123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "Secret#123"))
	assert.False(t, VerifyPassword(hash, "secret#123"))
	assert.False(t, VerifyPassword("not-a-hash", "Secret#123"))
}
