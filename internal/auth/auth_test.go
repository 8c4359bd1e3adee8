package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	s := NewAuthService("test-secret")

	user, err := s.Register("alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "password123", user.PasswordHash)

	// Addresses are 0x-prefixed 20-byte hex
	assert.True(t, strings.HasPrefix(user.Address, "0x"))
	assert.Len(t, user.Address, 42)

	// Distinct users get distinct addresses
	other, err := s.Register("bob", "password456")
	require.NoError(t, err)
	assert.Equal(t, 2, other.ID)
	assert.NotEqual(t, user.Address, other.Address)

	_, err = s.Register("alice", "again")
	assert.Error(t, err)

	_, err = s.Register("", "password")
	assert.Error(t, err)
	_, err = s.Register("carol", "")
	assert.Error(t, err)
}

func TestLoginAndTokenRoundTrip(t *testing.T) {
	s := NewAuthService("test-secret")

	user, err := s.Register("alice", "password123")
	require.NoError(t, err)

	token, err := s.Login("alice", "password123")
	require.NoError(t, err)

	address, err := s.AddressFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.Address, address)

	_, err = s.Login("alice", "wrong")
	assert.Error(t, err)
	_, err = s.Login("nobody", "password123")
	assert.Error(t, err)
}

func TestAddressFromToken_RejectsForeignSecret(t *testing.T) {
	s := NewAuthService("test-secret")
	other := NewAuthService("different-secret")

	_, err := s.Register("alice", "password123")
	require.NoError(t, err)
	token, err := s.Login("alice", "password123")
	require.NoError(t, err)

	_, err = other.AddressFromToken(token)
	assert.Error(t, err)

	_, err = s.AddressFromToken("not-a-token")
	assert.Error(t, err)
}
