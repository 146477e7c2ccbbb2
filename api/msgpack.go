package api

import (
	"net/http"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/errors"
	"github.com/verbalautomation/c3a/token"
	"github.com/verbalautomation/c3a/users"
)

// writeMsgpack marshals v as MessagePack and writes it with status.
func writeMsgpack(w http.ResponseWriter, status int, v any) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		errors.ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// decodeBody msgpack-decodes r's body into dst. Used by routes that bypass
// the validator middleware (DELETE bodies).
func decodeBody(r *http.Request, dst any) error {
	return msgpack.NewDecoder(r.Body).Decode(dst)
}

// writeError maps a domain error from the apps/users/token/kv packages to
// the catalog Error it corresponds to and writes it.
func writeError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *token.ExtractError:
		if e.Unauthorized {
			errors.ErrInvalidSignature.WithErr(e.Err).Write(w)
			return
		}
		errors.ErrInvalidToken.WithErr(e.Err).Write(w)
		return
	case *token.DeployError:
		errors.ErrInternalCryptoError.WithErr(e.Err).Write(w)
		return
	case *users.ErrInvalidIdentifier:
		errors.ErrInvalidIdentifier.WithErr(e).Write(w)
		return
	case *users.ErrInvalidStep:
		errors.ErrInvalidUserData.WithErr(e).Write(w)
		return
	case *users.ErrMissingRequiredFactor:
		errors.ErrMissingFactor.WithErr(e).Write(w)
		return
	}

	switch err {
	case apps.ErrAppNotFound:
		errors.ErrAppNotFound.Write(w)
	case apps.ErrAppAlreadyExists:
		errors.ErrAppAlreadyExists.Write(w)
	case apps.ErrInvitationUnknown:
		errors.ErrInvitationUnknown.Write(w)
	case apps.ErrRequiredNotAllowed:
		errors.ErrInvalidAppData.Write(w)
	case users.ErrUserAlreadyExists:
		errors.ErrUserAlreadyExists.Write(w)
	case users.ErrUserNotFound:
		errors.ErrUserNotFound.Write(w)
	case users.ErrSignUpDisabled:
		errors.ErrSignUpDisabled.Write(w)
	case users.ErrChallengeMismatch:
		errors.ErrChallengeMismatch.Write(w)
	default:
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
