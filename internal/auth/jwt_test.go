package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.GenerateJWT("alice")
	require.NoError(t, err)

	sub, err := issuer.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestValidateRejects(t *testing.T) {
	issuer, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("different", time.Hour)
	require.NoError(t, err)

	foreign, err := other.GenerateJWT("alice")
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	expiredToken, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":       "not-a-token",
		"wrong secret":  foreign,
		"expired":       expiredToken,
		"empty subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.ValidateJWT(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = NewIssuer("", time.Hour)
	assert.Error(t, err)
}
