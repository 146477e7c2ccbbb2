package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptError wraps an AEAD encryption failure.
type EncryptError struct{ Err error }

func (e *EncryptError) Error() string { return fmt.Sprintf("encrypt: %v", e.Err) }
func (e *EncryptError) Unwrap() error { return e.Err }

// DecryptError wraps an AEAD decryption failure.
type DecryptError struct{ Err error }

func (e *DecryptError) Error() string { return fmt.Sprintf("decrypt: %v", e.Err) }
func (e *DecryptError) Unwrap() error { return e.Err }

// AEADEncrypt encrypts plaintext with ChaCha20-Poly1305 under key (32 bytes),
// returning the ciphertext and the freshly generated 12-byte nonce.
func AEADEncrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, &EncryptError{Err: err}
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, &EncryptError{Err: err}
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// AEADDecrypt decrypts ciphertext with ChaCha20-Poly1305 under key (32
// bytes) and nonce (12 bytes), in that declared argument order.
func AEADDecrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	return plaintext, nil
}
