// Package crypto implements the cryptographic primitives the authority is
// built on: Dilithium5 signatures, ChaCha20-Poly1305 AEAD, Argon2id password
// hashing, and the base64 and random-generation helpers the rest of the
// module uses.
package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium"
)

// mode is the fixed Dilithium5 parameter set this authority signs and
// verifies with.
var mode = dilithium.Dilithium5

// KeyPair holds a Dilithium5 public/private key pair.
type KeyPair struct {
	Public  dilithium.PublicKey
	Private dilithium.PrivateKey
}

// GenerateKeyPair creates a fresh Dilithium5 key pair using a CSPRNG.
func GenerateKeyPair() (*KeyPair, error) {
	pk, sk, err := mode.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate dilithium5 keypair: %w", err)
	}
	return &KeyPair{Public: pk, Private: sk}, nil
}

// RestoreKeyPair reconstructs a KeyPair from its packed public and private
// key bytes, as stored by the KV facade.
func RestoreKeyPair(pubBytes, privBytes []byte) (*KeyPair, error) {
	if len(pubBytes) != mode.PublicKeySize() {
		return nil, fmt.Errorf("restore dilithium5 keypair: invalid public key size %d", len(pubBytes))
	}
	if len(privBytes) != mode.PrivateKeySize() {
		return nil, fmt.Errorf("restore dilithium5 keypair: invalid private key size %d", len(privBytes))
	}
	return &KeyPair{
		Public:  mode.PublicKeyFromBytes(pubBytes),
		Private: mode.PrivateKeyFromBytes(privBytes),
	}, nil
}

// PublicBytes packs the public key for storage/transmission.
func (kp *KeyPair) PublicBytes() []byte {
	return kp.Public.Bytes()
}

// PrivateBytes packs the private key for storage.
func (kp *KeyPair) PrivateBytes() []byte {
	return kp.Private.Bytes()
}

// SignError wraps a signing failure.
type SignError struct{ Err error }

func (e *SignError) Error() string { return fmt.Sprintf("sign: %v", e.Err) }
func (e *SignError) Unwrap() error { return e.Err }

// Sign signs msg with the given private key, returning the raw signature.
func Sign(sk dilithium.PrivateKey, msg []byte) []byte {
	return mode.Sign(sk, msg)
}

// VerifyError wraps a verification failure.
type VerifyError struct{ Err error }

func (e *VerifyError) Error() string { return fmt.Sprintf("verify: %v", e.Err) }
func (e *VerifyError) Unwrap() error { return e.Err }

// ErrInvalidSignature is returned by Verify when the signature does not
// match the message under the given public key.
var ErrInvalidSignature = fmt.Errorf("invalid signature")

// Verify checks a signature over msg under the given public key.
func Verify(pk dilithium.PublicKey, msg, signature []byte) error {
	if !mode.Verify(pk, msg, signature) {
		return &VerifyError{Err: ErrInvalidSignature}
	}
	return nil
}

// PublicKeyFromBytes unpacks a public key from its wire bytes.
func PublicKeyFromBytes(data []byte) (dilithium.PublicKey, error) {
	if len(data) != mode.PublicKeySize() {
		return nil, fmt.Errorf("invalid dilithium5 public key size %d", len(data))
	}
	return mode.PublicKeyFromBytes(data), nil
}
