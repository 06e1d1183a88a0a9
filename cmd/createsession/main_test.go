package main

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignSession(t *testing.T) {
	now := time.Now()

	token, err := signSession("secret", "user-1", now, time.Hour)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestSignSession_ExpiredTokenRejected(t *testing.T) {
	token, err := signSession("secret", "user-1", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	_, err = jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRandomString(t *testing.T) {
	s, err := randomString(48)
	require.NoError(t, err)
	assert.Len(t, s, 48)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]+$`), s)

	other, err := randomString(48)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestRun_RequiresUser(t *testing.T) {
	require.ErrorIs(t, run(context.Background(), "", time.Hour, ""), errMissingUser)
}
