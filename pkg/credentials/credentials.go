package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// ClientIDLength is the number of random bytes behind a client ID (256 bits)
	ClientIDLength = 32
	// ClientSecretLength is the number of random bytes behind a client secret (384 bits)
	ClientSecretLength = 48

	hashAlgorithm = "argon2id"
)

// Params tunes the argon2id cost. Memory is in KiB.
type Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

// DefaultParams returns the argon2id parameters used in production
func DefaultParams() Params {
	return Params{
		Time:       3,
		Memory:     64 * 1024,
		Threads:    2,
		KeyLength:  32,
		SaltLength: 16,
	}
}

// Service generates client credentials and hashes/verifies client secrets.
// It holds no state besides its parameters and is safe for concurrent use.
type Service struct {
	params Params
	random io.Reader
}

// NewService creates a credential service with the given argon2id parameters
func NewService(params Params) *Service {
	if params.KeyLength == 0 {
		params.KeyLength = DefaultParams().KeyLength
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultParams().SaltLength
	}
	if params.Threads == 0 {
		params.Threads = 1
	}
	return &Service{
		params: params,
		random: rand.Reader,
	}
}

// GenerateClientID returns base64url(32 random bytes), unpadded.
// Uniqueness is not checked here; callers verify it per tenant before use.
func (s *Service) GenerateClientID() string {
	return base64.RawURLEncoding.EncodeToString(s.randomBytes(ClientIDLength))
}

// GenerateClientSecret returns base64url(48 random bytes), unpadded.
// The value is handed to the caller once and never stored.
func (s *Service) GenerateClientSecret() string {
	return base64.RawURLEncoding.EncodeToString(s.randomBytes(ClientSecretLength))
}

// HashClientSecret hashes secret with argon2id under a fresh random salt.
//
// The returned hash is a self-describing PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// salt is the same salt, base64 encoded, returned for storage alongside the hash.
func (s *Service) HashClientSecret(secret string) (hash string, salt string) {
	saltBytes := s.randomBytes(int(s.params.SaltLength))
	key := argon2.IDKey([]byte(secret), saltBytes, s.params.Time, s.params.Memory, s.params.Threads, s.params.KeyLength)

	salt = base64.RawStdEncoding.EncodeToString(saltBytes)
	hash = fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		hashAlgorithm,
		argon2.Version,
		s.params.Memory,
		s.params.Time,
		s.params.Threads,
		salt,
		base64.RawStdEncoding.EncodeToString(key),
	)
	return hash, salt
}

// VerifyClientSecret reports whether secret is the value that produced hash.
// The cost parameters and salt embedded in hash are used for recomputation;
// a non-empty salt argument must match the embedded salt.
func (s *Service) VerifyClientSecret(secret, salt, hash string) bool {
	decoded, err := decodeHash(hash)
	if err != nil {
		return false
	}
	if salt != "" && subtle.ConstantTimeCompare([]byte(salt), []byte(decoded.encodedSalt)) != 1 {
		return false
	}

	key := argon2.IDKey([]byte(secret), decoded.salt, decoded.params.Time, decoded.params.Memory, decoded.params.Threads, uint32(len(decoded.key)))
	return subtle.ConstantTimeCompare(key, decoded.key) == 1
}

// randomBytes panics when the system RNG fails; there is no meaningful recovery
func (s *Service) randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.random, b); err != nil {
		panic(fmt.Sprintf("credentials: failed to read random bytes: %v", err))
	}
	return b
}

type decodedHash struct {
	params      Params
	encodedSalt string
	salt        []byte
	key         []byte
}

func decodeHash(hash string) (*decodedHash, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("malformed hash")
	}
	if parts[1] != hashAlgorithm {
		return nil, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("invalid salt encoding: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("invalid key encoding")
	}

	return &decodedHash{
		params:      p,
		encodedSalt: parts[4],
		salt:        salt,
		key:         key,
	}, nil
}
