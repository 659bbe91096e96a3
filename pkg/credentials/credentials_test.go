package credentials

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the suite fast; production uses DefaultParams
func newTestService() *Service {
	return NewService(Params{Time: 1, Memory: 1024, Threads: 1})
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGenerateClientID(t *testing.T) {
	svc := newTestService()

	id := svc.GenerateClientID()
	assert.NotContains(t, id, "=", "client ID must be unpadded")
	assert.NotContains(t, id, "+")
	assert.NotContains(t, id, "/")

	raw, err := base64.RawURLEncoding.DecodeString(id)
	require.NoError(t, err)
	assert.Len(t, raw, ClientIDLength)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := svc.GenerateClientID()
		assert.False(t, seen[id], "duplicate client ID generated")
		seen[id] = true
	}
}

func TestGenerateClientSecret(t *testing.T) {
	svc := newTestService()

	secret := svc.GenerateClientSecret()
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, raw, ClientSecretLength)
	assert.NotEqual(t, secret, svc.GenerateClientSecret())
}

func TestHashClientSecret(t *testing.T) {
	svc := newTestService()

	t.Run("self-describing format", func(t *testing.T) {
		hash, salt := svc.HashClientSecret("s3cret")
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
		assert.Contains(t, hash, "$"+salt+"$")
	})

	t.Run("fresh salt per call", func(t *testing.T) {
		hash1, salt1 := svc.HashClientSecret("same input")
		hash2, salt2 := svc.HashClientSecret("same input")
		assert.NotEqual(t, salt1, salt2)
		assert.NotEqual(t, hash1, hash2)
	})
}

func TestVerifyClientSecret(t *testing.T) {
	svc := newTestService()
	secret := svc.GenerateClientSecret()
	hash, salt := svc.HashClientSecret(secret)

	tests := []struct {
		name   string
		secret string
		salt   string
		hash   string
		want   bool
	}{
		{"round trip", secret, salt, hash, true},
		{"salt omitted", secret, "", hash, true},
		{"wrong secret", secret + "x", salt, hash, false},
		{"empty secret", "", salt, hash, false},
		{"mismatched salt", secret, "AAAAAAAAAAAAAAAAAAAAAA", hash, false},
		{"malformed hash", secret, salt, "not-a-hash", false},
		{"wrong algorithm", secret, salt, strings.Replace(hash, "argon2id", "argon2i", 1), false},
		{"truncated hash", secret, salt, hash[:strings.LastIndex(hash, "$")], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.VerifyClientSecret(tt.secret, tt.salt, tt.hash))
		})
	}
}

func TestVerifyClientSecret_AcrossParameters(t *testing.T) {
	old := NewService(Params{Time: 1, Memory: 1024, Threads: 1})
	current := NewService(Params{Time: 2, Memory: 2048, Threads: 2})

	hash, salt := old.HashClientSecret("rotated-later")
	assert.True(t, current.VerifyClientSecret("rotated-later", salt, hash),
		"hashes carry their own cost parameters")
}

func TestRandomFailurePanics(t *testing.T) {
	svc := newTestService()
	svc.random = failingReader{}

	assert.Panics(t, func() { svc.GenerateClientID() })
	assert.Panics(t, func() { svc.GenerateClientSecret() })
	assert.Panics(t, func() { svc.HashClientSecret("x") })
}
