// Package crypto hashes and verifies staff passwords on the server.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	// SaltLen is the per-account salt size.
	SaltLen = 16
	// MinPasswordLen is enforced when accounts are created.
	MinPasswordLen = 8
)

// ErrWeakPassword rejects passwords shorter than MinPasswordLen.
var ErrWeakPassword = errors.New("password too short")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns the Argon2id hash of password under salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// NewCredentials draws a fresh salt and hashes password with it.
func NewCredentials(password string) (hash, salt []byte, err error) {
	if len(password) < MinPasswordLen {
		return nil, nil, ErrWeakPassword
	}
	salt, err = RandBytes(SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return HashPassword([]byte(password), salt), salt, nil
}

// VerifyPassword checks password against the stored hash in constant time.
func VerifyPassword(password, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashPassword(password, salt), expected) == 1
}
