package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestValidate(t *testing.T) {
	v, err := NewValidator(secret, "flock")
	require.NoError(t, err)
	now := time.Now()

	token, err := Issue(secret, "flock", "u1", "Ruth", time.Hour, now)
	require.NoError(t, err)

	claims, err := v.Validate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "Ruth", claims.Name)
}

func TestValidate_Rejections(t *testing.T) {
	v, err := NewValidator(secret, "flock")
	require.NoError(t, err)
	now := time.Now()

	expired, err := Issue(secret, "flock", "u1", "", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongSecret, err := Issue("other", "flock", "u1", "", time.Hour, now)
	require.NoError(t, err)
	wrongIssuer, err := Issue(secret, "someone-else", "u1", "", time.Hour, now)
	require.NoError(t, err)
	noSubject, err := Issue(secret, "flock", "", "", time.Hour, now)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1", Issuer: "flock"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"bearer only", "Bearer ", ErrMissingToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong secret", wrongSecret, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewValidator_RequiresSecret(t *testing.T) {
	_, err := NewValidator("", "flock")
	assert.Error(t, err)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	_, ok := UserFromContext(ctx)
	assert.False(t, ok)
	assert.Empty(t, UserID(ctx))

	ctx = WithUser(ctx, User{ID: "u1", Name: "Ruth"})
	u, ok := UserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "Ruth", u.Name)
	assert.Equal(t, "u1", UserID(ctx))
}
