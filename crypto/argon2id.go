package crypto

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params are the Argon2id cost parameters. Changing these invalidates
// every previously stored hash unless the PHC string's own embedded
// parameters are honored on verification, which they are here.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params are conservative interactive-login parameters.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword hashes value, peppered, with Argon2id, and returns the
// resulting PHC string (e.g. "$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>").
// The pepper is never stored; it must be supplied again on verification.
func HashPassword(value string, pepper []byte, p Argon2Params) (string, error) {
	salt := RandomBytes(int(p.SaltLength))
	hash := argon2.IDKey(peppered(value, pepper), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism, b64Salt, b64Hash), nil
}

// VerifyPassword checks value, peppered, against a previously stored PHC
// string. It re-derives the hash using the parameters embedded in the PHC
// string itself, so DefaultArgon2Params can change over time without
// invalidating hashes minted under older parameters.
func VerifyPassword(value string, pepper []byte, phc string) (bool, error) {
	p, salt, hash, err := decodePHC(phc)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey(peppered(value, pepper), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(candidate, hash) == 1, nil
}

func peppered(value string, pepper []byte) []byte {
	out := make([]byte, 0, len(value)+len(pepper))
	out = append(out, value...)
	out = append(out, pepper...)
	return out
}

func decodePHC(phc string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, fmt.Errorf("invalid argon2id PHC string")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("invalid argon2id version field: %w", err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("invalid argon2id params field: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("invalid argon2id salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("invalid argon2id hash: %w", err)
	}
	return p, salt, hash, nil
}
