package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Bounds applied to parameters read back from a stored digest, so that a
// crafted row cannot make Verify allocate gigabytes.
const (
	maxArgon2MemoryKiB = 1 << 20
	maxArgon2Time      = 16
)

// Argon2Params is the cost configuration for new digests.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2Params takes roughly 100ms per hash on commodity hardware.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 2, SaltLen: 16, KeyLen: 32}
}

// PasswordHasher produces self-describing argon2id digests in PHC form:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// Digests produced by bcrypt ($2a$, $2b$, $2y$) are still verified, and are
// reported by NeedsRehash so callers can upgrade them after a good login.
type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	if params.SaltLen == 0 {
		params.SaltLen = 16
	}
	if params.KeyLen == 0 {
		params.KeyLen = 32
	}
	if params.Threads == 0 {
		params.Threads = 1
	}
	return &PasswordHasher{params: params}
}

var errEmptyPassword = errors.New("empty password")

func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches digest. A malformed or unknown
// digest is simply a mismatch.
func (h *PasswordHasher) Verify(digest, plaintext string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	}

	d, err := parseArgon2(digest)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plaintext), d.salt, d.params.Time, d.params.MemoryKiB, d.params.Threads, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1
}

// NeedsRehash reports whether digest was produced by another algorithm or
// with weaker parameters than the hasher's current ones.
func (h *PasswordHasher) NeedsRehash(digest string) bool {
	d, err := parseArgon2(digest)
	if err != nil {
		return true
	}
	return d.params.MemoryKiB < h.params.MemoryKiB ||
		d.params.Time < h.params.Time ||
		d.params.Threads < h.params.Threads ||
		uint32(len(d.key)) != h.params.KeyLen
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

type argon2Digest struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

var errMalformedDigest = errors.New("malformed digest")

func parseArgon2(digest string) (*argon2Digest, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errMalformedDigest
	}

	d := &argon2Digest{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.MemoryKiB, &d.params.Time, &d.params.Threads); err != nil {
		return nil, errMalformedDigest
	}
	if d.params.MemoryKiB == 0 || d.params.MemoryKiB > maxArgon2MemoryKiB ||
		d.params.Time == 0 || d.params.Time > maxArgon2Time ||
		d.params.Threads == 0 {
		return nil, errMalformedDigest
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(d.salt) == 0 {
		return nil, errMalformedDigest
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) < 16 {
		return nil, errMalformedDigest
	}
	return d, nil
}
