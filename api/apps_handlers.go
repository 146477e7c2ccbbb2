package api

import (
	"bytes"
	"net/http"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/errors"
	"github.com/verbalautomation/c3a/internal"
	"github.com/verbalautomation/c3a/sign"
	"github.com/verbalautomation/c3a/validator"
)

func (a *API) authorityKeyPair() (*crypto.KeyPair, error) {
	return crypto.RestoreKeyPair(a.keys.DilithiumPublic, a.keys.DilithiumPrivate)
}

// generateInvitationHandler mints a single-use invitation code, gated by a
// 24-byte prefix of the deployment's admin key.
func (a *API) generateInvitationHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*apps.GenerateInvitationRequest)

	adminKey := []byte(a.adminKey)
	if len(adminKey) < 24 || !bytes.Equal(adminKey[:24], req.PrivateAdminKeyBegin) {
		errors.ErrUnauthorized.Write(w)
		return
	}

	code, err := internal.Do(r.Context(), a.pool, func() ([]byte, error) { return a.apps.MintInvitation() })
	if err != nil {
		writeError(w, err)
		return
	}
	writeMsgpack(w, http.StatusOK, apps.GenerateInvitationResponse{Invitation: code})
}

// registerAppHandler consumes an invitation and registers a new application,
// requiring the request be signed by the application's own declared key.
func (a *API) registerAppHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*apps.RegisterAppAuthConfigurationRequest)

	if err := sign.VerifyHeader(r, *req, req.Config.AuthorPublic); err != nil {
		errors.ErrInvalidSignature.WithErr(err).Write(w)
		return
	}
	if err := doBlocking(r.Context(), a.pool, func() error { return a.apps.Register(req.InvitationCode, req.Config) }); err != nil {
		writeError(w, err)
		return
	}

	resp := apps.RegisterAppAuthConfigurationResponse{
		AuthorPublic:    req.Config.AuthorPublic,
		AuthorityPublic: a.keys.DilithiumPublic,
	}
	keyPair, err := a.authorityKeyPair()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sign.SignHeader(w, resp, keyPair.Private); err != nil {
		writeError(w, err)
		return
	}
	writeMsgpack(w, http.StatusOK, resp)
}

// getAppInfoHandler returns a registered application's configuration,
// requiring the request be signed by the stated author_dpub, which must
// match the stored one.
func (a *API) getAppInfoHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*apps.GetAppAuthConfigurationRequest)

	if err := sign.VerifyHeader(r, *req, req.AuthorPublic); err != nil {
		errors.ErrInvalidSignature.WithErr(err).Write(w)
		return
	}
	cfg, err := internal.Do(r.Context(), a.pool, func() (*apps.AppAuthConfiguration, error) { return a.apps.Get(req.AppName) })
	if err != nil {
		writeError(w, err)
		return
	}
	if !cfg.AuthorPublic.Equals(req.AuthorPublic) {
		errors.ErrUnauthorized.Write(w)
		return
	}

	resp := apps.GetAppAuthConfigurationResponse{Config: *cfg, AuthorityPublic: a.keys.DilithiumPublic}
	keyPair, err := a.authorityKeyPair()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sign.SignHeader(w, resp, keyPair.Private); err != nil {
		writeError(w, err)
		return
	}
	writeMsgpack(w, http.StatusOK, resp)
}

// editAppInfoHandler applies a partial update to a registered application,
// requiring the request be signed by the stored author_dpub. author_dpub
// itself is immutable through this surface.
func (a *API) editAppInfoHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*apps.EditAppAuthConfigurationRequest)

	existing, err := internal.Do(r.Context(), a.pool, func() (*apps.AppAuthConfiguration, error) { return a.apps.Get(req.AppName) })
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sign.VerifyHeader(r, *req, existing.AuthorPublic); err != nil {
		errors.ErrInvalidSignature.WithErr(err).Write(w)
		return
	}

	updated := req.Config
	updated.AuthorPublic = existing.AuthorPublic
	if updated.AppName == "" {
		updated.AppName = req.AppName
	}
	if err := doBlocking(r.Context(), a.pool, func() error { return a.apps.Edit(req.AppName, req.NewAppName, updated) }); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// removeAppHandler deletes a registered application. DELETE bodies bypass
// the validator middleware, so this handler decodes and validates the body
// itself.
func (a *API) removeAppHandler(w http.ResponseWriter, r *http.Request) {
	var req apps.GetAppAuthConfigurationRequest
	if err := decodeBody(r, &req); err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.validator.Validate(&req); err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	existing, err := internal.Do(r.Context(), a.pool, func() (*apps.AppAuthConfiguration, error) { return a.apps.Get(req.AppName) })
	if err != nil {
		writeError(w, err)
		return
	}
	if !existing.AuthorPublic.Equals(req.AuthorPublic) {
		errors.ErrUnauthorized.Write(w)
		return
	}
	if err := sign.VerifyHeader(r, req, existing.AuthorPublic); err != nil {
		errors.ErrInvalidSignature.WithErr(err).Write(w)
		return
	}

	if err := doBlocking(r.Context(), a.pool, func() error { return a.apps.Remove(req.AppName) }); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
