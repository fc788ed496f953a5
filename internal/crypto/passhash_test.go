package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandBytes(t *testing.T) {
	t.Parallel()
	a, err := RandBytes(32)
	require.NoError(t, err)
	require.Len(t, a, 32)
	b, err := RandBytes(32)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHashPassword_DependsOnPasswordAndSalt(t *testing.T) {
	t.Parallel()
	pw := []byte("kennel-open")
	salt := []byte("0123456789abcdef")

	h := HashPassword(pw, salt)
	require.Len(t, h, int(argonKeyLen))
	require.Equal(t, h, HashPassword(pw, salt))
	require.NotEqual(t, h, HashPassword(pw, []byte("fedcba9876543210")))
	require.NotEqual(t, h, HashPassword([]byte("kennel-open!"), salt))
}

func TestNewCredentials(t *testing.T) {
	t.Parallel()
	_, _, err := NewCredentials("short")
	require.ErrorIs(t, err, ErrWeakPassword)

	hash, salt, err := NewCredentials("correct horse")
	require.NoError(t, err)
	require.Len(t, salt, SaltLen)
	require.True(t, VerifyPassword([]byte("correct horse"), salt, hash))
	require.False(t, VerifyPassword([]byte("wrong horse"), salt, hash))
	require.False(t, VerifyPassword([]byte("correct horse"), []byte("other-salt"), hash))
	require.False(t, VerifyPassword([]byte("correct horse"), salt, nil))
}
