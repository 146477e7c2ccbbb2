// Package token implements the MPAAT and LightMPAAT bearer token codec: a
// three-segment wire format of payload, signature and header, each
// MessagePack-serialized and base64-encoded, optionally with the payload
// encrypted under the server's symmetric key.
//
// Wire format: b64url(payload) + "." + b64std(signature) + "." + b64std(header)
//
// The signing input is always serialize(header) ‖ serialize(payload) as it
// appears on the wire — i.e. the signature covers the ciphertext when the
// payload is encrypted, authenticating exactly what travels over the wire.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/dilithium"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/internal"
)

// Header carries the server's public key, the AEAD nonce (if encrypted),
// and caller-supplied common fields that must be readable without holding
// a decryption key (ExtractCommonFields).
type Header[U any] struct {
	ServerPublic internal.HexBytes `msgpack:"sdpub"`
	Nonce        internal.HexBytes `msgpack:"nonce,omitempty"`
	Common       *U                `msgpack:"common,omitempty"`
}

// Payload carries the client's public key (when the token is bound to one)
// alongside the caller's container data and the expiry. Exp is a Unix
// nanosecond timestamp, not seconds, so the microsecond-grained expiry
// boundary can be honored exactly.
type Payload[T any] struct {
	ClientPublic internal.HexBytes `msgpack:"cdpub,omitempty"`
	Exp          int64             `msgpack:"exp"`
	Container    T                 `msgpack:"data"`
}

// DeployOpts controls how a token is deployed.
type DeployOpts struct {
	// Encrypt, when true, AEAD-encrypts the payload under ServerKey before
	// signing; when false the token is signature-only.
	Encrypt bool
	// ServerKey is the 32-byte ChaCha20-Poly1305 key used when Encrypt is true.
	ServerKey []byte
	// ClientPublic, if non-nil, is embedded in the payload.
	ClientPublic []byte
	// TTL is how long from now the token is valid for.
	TTL time.Duration
}

// DeployError wraps a token deployment failure.
type DeployError struct{ Err error }

func (e *DeployError) Error() string { return fmt.Sprintf("deploy token: %v", e.Err) }
func (e *DeployError) Unwrap() error { return e.Err }

// Deploy builds, optionally encrypts, and signs an MPAAT/LightMPAAT.
// now is injected so expiry is testable without a real sleep.
func Deploy[T, U any](container T, common *U, opts DeployOpts, sk dilithium.PrivateKey, serverPub []byte, now time.Time) (string, error) {
	payload := Payload[T]{
		Exp:       now.Add(opts.TTL).UnixNano(),
		Container: container,
	}
	if opts.ClientPublic != nil {
		payload.ClientPublic = opts.ClientPublic
	}

	payloadBytes, err := msgpack.Marshal(payload)
	if err != nil {
		return "", &DeployError{Err: err}
	}

	header := Header[U]{ServerPublic: serverPub, Common: common}

	wirePayload := payloadBytes
	if opts.Encrypt {
		ciphertext, nonce, err := crypto.AEADEncrypt(payloadBytes, opts.ServerKey)
		if err != nil {
			return "", &DeployError{Err: err}
		}
		wirePayload = ciphertext
		header.Nonce = nonce
	}

	headerBytes, err := msgpack.Marshal(header)
	if err != nil {
		return "", &DeployError{Err: err}
	}

	// Sign exactly what is placed on the wire: header bytes followed by the
	// (possibly encrypted) payload bytes.
	signInput := append(append([]byte{}, headerBytes...), wirePayload...)
	signature := crypto.Sign(sk, signInput)

	return strings.Join([]string{
		crypto.Base64URLEncode(wirePayload),
		crypto.Base64StdEncode(signature),
		crypto.Base64StdEncode(headerBytes),
	}, "."), nil
}

// ExtractError wraps a token extraction failure.
type ExtractError struct {
	Err error
	// Unauthorized distinguishes a signature/server-key/expiry failure
	// (caller should see 401) from a malformed-token failure (400).
	Unauthorized bool
}

func (e *ExtractError) Error() string { return fmt.Sprintf("extract token: %v", e.Err) }
func (e *ExtractError) Unwrap() error { return e.Err }

func splitToken(tok string) (payloadB64, sigB64, headerB64 string, err error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}
	return parts[0], parts[1], parts[2], nil
}

// ExtractCommonFields decodes only the header segment of a token and
// returns its common public fields, without verifying the signature or
// requiring a decryption key. Used to read application-scoped metadata
// attached to a token before the full payload is needed.
func ExtractCommonFields[U any](tok string) (*U, error) {
	_, _, headerB64, err := splitToken(tok)
	if err != nil {
		return nil, &ExtractError{Err: err}
	}
	headerBytes, err := crypto.Base64StdDecode(headerB64)
	if err != nil {
		return nil, &ExtractError{Err: err}
	}
	var header Header[U]
	if err := msgpack.Unmarshal(headerBytes, &header); err != nil {
		return nil, &ExtractError{Err: err}
	}
	return header.Common, nil
}

// ExtractOpts controls how a token is extracted.
type ExtractOpts struct {
	// Decrypt, when true, AEAD-decrypts the payload under ServerKey after
	// verifying the signature.
	Decrypt   bool
	ServerKey []byte
}

// Extract verifies a token's signature against serverPub, checks it was
// issued by this authority and has not expired, decrypts the payload if
// requested, and returns the decoded payload and header.
func Extract[T, U any](tok string, opts ExtractOpts, serverPub []byte, now time.Time) (*Payload[T], *Header[U], error) {
	payloadB64, sigB64, headerB64, err := splitToken(tok)
	if err != nil {
		return nil, nil, &ExtractError{Err: err}
	}

	wirePayload, err := crypto.Base64URLDecode(payloadB64)
	if err != nil {
		return nil, nil, &ExtractError{Err: err}
	}
	signature, err := crypto.Base64StdDecode(sigB64)
	if err != nil {
		return nil, nil, &ExtractError{Err: err}
	}
	headerBytes, err := crypto.Base64StdDecode(headerB64)
	if err != nil {
		return nil, nil, &ExtractError{Err: err}
	}

	// Verify the signature over exactly what is on the wire, before
	// decrypting: this lets a holder of only the public key detect
	// tampering even for signature-only tokens.
	signInput := append(append([]byte{}, headerBytes...), wirePayload...)
	pk, err := crypto.PublicKeyFromBytes(serverPub)
	if err != nil {
		return nil, nil, &ExtractError{Err: err}
	}
	if err := crypto.Verify(pk, signInput, signature); err != nil {
		return nil, nil, &ExtractError{Err: err, Unauthorized: true}
	}

	var header Header[U]
	if err := msgpack.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, &ExtractError{Err: err}
	}
	if !header.ServerPublic.Equals(internal.HexBytes(serverPub)) {
		return nil, nil, &ExtractError{Err: fmt.Errorf("token was not issued by this server"), Unauthorized: true}
	}

	payloadBytes := wirePayload
	if opts.Decrypt {
		// Pass (ciphertext, key, nonce) in that declared order.
		payloadBytes, err = crypto.AEADDecrypt(wirePayload, opts.ServerKey, header.Nonce)
		if err != nil {
			return nil, nil, &ExtractError{Err: err, Unauthorized: true}
		}
	}

	var payload Payload[T]
	if err := msgpack.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, nil, &ExtractError{Err: err}
	}

	if now.UnixNano() >= payload.Exp {
		return nil, nil, &ExtractError{Err: fmt.Errorf("token expired"), Unauthorized: true}
	}

	return &payload, &header, nil
}
