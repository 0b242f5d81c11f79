package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestIssueVerify(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	iss := Issuer{Secret: "secret", TTL: time.Hour}
	token, exp, err := iss.Issue("user-1", "reg", "sess-1", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := iss.Verify(token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.ID)
	assert.Equal(t, "reg", claims.Username)

	_, err = iss.Verify(token, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = Issuer{Secret: "other"}.Verify(token, now)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = Issuer{}.Issue("u", "n", "s", now)
	assert.True(t, errors.Is(err, ErrNoSecret))
}

func TestNewAPIKey(t *testing.T) {
	a, err := NewAPIKey()
	require.NoError(t, err)
	b, err := NewAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, "abk_"))
	assert.NotEqual(t, a, b)
}
