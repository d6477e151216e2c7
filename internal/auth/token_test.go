package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	iss := NewIssuer("devkey", "secret", time.Hour)
	tok, err := iss.Issue("alice", "standup")
	require.NoError(t, err)

	claims, err := iss.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(claims.Identity()))
	assert.Equal(t, "standup", string(claims.RoomName()))
	assert.Equal(t, "devkey", claims.Issuer)
	assert.True(t, claims.Video.RoomJoin)
	assert.True(t, claims.Video.CanPublish)
	assert.True(t, claims.Video.CanSubscribe)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejects(t *testing.T) {
	iss := NewIssuer("devkey", "secret", time.Hour)
	other := NewIssuer("devkey", "other-secret", time.Hour)
	tok, err := other.Issue("alice", "standup")
	require.NoError(t, err)

	_, err = iss.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("devkey", "secret", time.Hour)
	claims := Claims{
		Video: VideoGrant{RoomJoin: true, Room: "standup"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "devkey",
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	old, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = expired.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUnconfiguredIssuer(t *testing.T) {
	iss := NewIssuer("", "", 0)
	assert.False(t, iss.Configured())
	_, err := iss.Issue("alice", "standup")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
