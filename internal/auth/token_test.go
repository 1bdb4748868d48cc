package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("secret", 42, time.Minute)
	require.NoError(t, err)

	actorID, err := ParseActorID("secret", token)
	require.NoError(t, err)
	require.Equal(t, int64(42), actorID)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := IssueToken("secret", 42, time.Minute)
	require.NoError(t, err)

	_, err = ParseActorID("other", token)
	require.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	token, err := IssueToken("secret", 42, -time.Minute)
	require.NoError(t, err)

	_, err = ParseActorID("secret", token)
	require.Error(t, err)
}
