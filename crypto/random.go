package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomNumericString returns a CSPRNG numeric string of the given length,
// used for the email confirmation code (spec: 8 digits).
func RandomNumericString(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(err)
		}
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}

// GenerateSymmetricKey returns a fresh 32-byte ChaCha20-Poly1305 key.
func GenerateSymmetricKey() []byte {
	return RandomBytes(32)
}

// Base64URLEncode encodes data with unpadded, URL-safe base64.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes unpadded, URL-safe base64.
func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Base64StdEncode encodes data with standard, padded base64.
func Base64StdEncode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64StdDecode decodes standard, padded base64.
func Base64StdDecode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
