// ABOUTME: Tests for dashboard JWT session issuance and verification
// ABOUTME: Covers round trips, expiry, tampering, and wrong-secret rejection

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_RoundTrip(t *testing.T) {
	sessions := NewSessions([]byte("test-secret"), time.Hour)

	token, err := sessions.Issue("user-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestSessions_Expired(t *testing.T) {
	sessions := NewSessions([]byte("test-secret"), -time.Minute)

	token, err := sessions.Issue("user-123")
	require.NoError(t, err)

	_, err = sessions.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredSession)
}

func TestSessions_WrongSecret(t *testing.T) {
	sessions := NewSessions([]byte("test-secret"), time.Hour)
	other := NewSessions([]byte("different-secret"), time.Hour)

	token, err := sessions.Issue("user-123")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_Garbage(t *testing.T) {
	sessions := NewSessions([]byte("test-secret"), time.Hour)

	_, err := sessions.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = sessions.Verify("")
	assert.ErrorIs(t, err, ErrInvalidSession)
}
