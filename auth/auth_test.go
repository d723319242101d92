package auth

import (
	"inchat/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	req := require.New(t)
	hasher := NewArgon2Hasher()
	password := "Tr0ub4dor&3-horse"

	salt, err := hasher.NewSalt()
	req.NoError(err)
	req.Len(salt, SaltLength)

	hash, err := hasher.Hash(password, salt)
	req.NoError(err)
	req.Len(hash, KeyLength)

	req.True(hasher.Verify(password, salt, hash))
	req.False(hasher.Verify("wrong-horse-battery", salt, hash))

	// Same password with another salt never yields the same bytes
	otherSalt, err := hasher.NewSalt()
	req.NoError(err)
	otherHash, err := hasher.Hash(password, otherSalt)
	req.NoError(err)
	req.NotEqual(hash, otherHash)
	req.False(hasher.Verify(password, otherSalt, hash))
}

func TestVerify_Rejects_Empty_Material(t *testing.T) {
	req := require.New(t)
	hasher := NewArgon2Hasher()

	req.False(hasher.Verify("whatever", nil, []byte("hash")))
	req.False(hasher.Verify("whatever", []byte("salt"), nil))

	_, err := hasher.Hash("whatever", nil)
	req.Error(err)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
	}{
		{"Valid request", RegisterRequest{"alice", "correct-horse"}, nil},
		{"Missing username", RegisterRequest{"", "correct-horse"}, errors.ErrInvalidUsername},
		{"Username with surrounding spaces", RegisterRequest{" alice", "correct-horse"}, errors.ErrInvalidUsername},
		{"Username too long", RegisterRequest{strings.Repeat("a", 1000), "correct-horse"}, errors.ErrInvalidUsername},
		{"Password too short", RegisterRequest{"alice", "short1"}, errors.ErrInvalidPassword},
		{"Password too long", RegisterRequest{"alice", strings.Repeat("x", 257)}, errors.ErrInvalidPassword},
		{"Password contains username", RegisterRequest{"alice", "xxALICExx"}, errors.ErrInvalidPassword},
		{"Password contains inchat", RegisterRequest{"alice", "my-InChat-42"}, errors.ErrInvalidPassword},
		{"Password contains password", RegisterRequest{"alice", "Password123"}, errors.ErrInvalidPassword},
		{"Password contains a space", RegisterRequest{"alice", "correct horse"}, errors.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateRegister(tt.req)
			if tt.wantErr == nil {
				req.NoError(err)
				return
			}
			req.ErrorIs(err, tt.wantErr)
		})
	}
}

func BenchmarkHash(b *testing.B) {
	hasher := NewArgon2Hasher()
	salt, _ := hasher.NewSalt()
	for i := 0; i < b.N; i++ {
		_, _ = hasher.Hash("A-very-long-and-complex-passphrase-for-bench-123!", salt)
	}
}
