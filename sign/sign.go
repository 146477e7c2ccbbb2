// Package sign implements the C3A-Sign request/response signing envelope:
// every signed body is verified/signed as base64url(Dilithium5
// signature(MessagePack(body))) under the declared signer's public key.
package sign

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/cloudflare/circl/sign/dilithium"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/verbalautomation/c3a/crypto"
)

// HeaderName is the HTTP header carrying the signature.
const HeaderName = "C3A-Sign"

// ErrMissingSignature is returned when the request carries no C3A-Sign
// header.
var ErrMissingSignature = fmt.Errorf("no signature in %s header", HeaderName)

// VerifyHeader verifies that req carries a valid C3A-Sign header over
// value's MessagePack serialization, under public.
func VerifyHeader(req *http.Request, value any, public []byte) error {
	raw := req.Header.Get(HeaderName)
	if raw == "" {
		return ErrMissingSignature
	}
	signature, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("decode %s header: %w", HeaderName, err)
	}
	body, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize signed value: %w", err)
	}
	pub, err := crypto.PublicKeyFromBytes(public)
	if err != nil {
		return err
	}
	return crypto.Verify(pub, body, signature)
}

// SignHeader serializes value and writes its Dilithium5 signature into
// w's C3A-Sign header under sk.
func SignHeader(w http.ResponseWriter, value any, sk dilithium.PrivateKey) error {
	body, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize signed value: %w", err)
	}
	signature := crypto.Sign(sk, body)
	w.Header().Set(HeaderName, base64.URLEncoding.EncodeToString(signature))
	return nil
}
