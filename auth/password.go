//go:generate go run go.uber.org/mock/mockgen -source=password.go -destination=../mocks/mock_hasher.go -package=mocks
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Define Argon2 parameters based on OWASP/CNIL recommendations
const (
	Memory      = 64 * 1024 // 64 MB
	Iterations  = 3
	Parallelism = 2
	SaltLength  = 16
	KeyLength   = 32
)

// Hasher turns a password and a salt into the bytes persisted on an
// account. Accounts keep the raw hash next to the salt, nothing else.
type Hasher interface {
	NewSalt() ([]byte, error)
	Hash(password string, salt []byte) ([]byte, error)
	Verify(password string, salt, hash []byte) bool
}

type Argon2Hasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	keyLength   uint32
}

func NewArgon2Hasher() Argon2Hasher {
	return Argon2Hasher{
		memory:      Memory,
		iterations:  Iterations,
		parallelism: Parallelism,
		keyLength:   KeyLength,
	}
}

// NewSalt reads a random salt from the system CSPRNG.
func (h Argon2Hasher) NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func (h Argon2Hasher) Hash(password string, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("empty salt")
	}
	return argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.parallelism, h.keyLength), nil
}

// Verify re-hashes the password with the stored salt and compares in
// constant time.
func (h Argon2Hasher) Verify(password string, salt, hash []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}
