package api

import (
	"net/http"
	"strconv"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/errors"
	"github.com/verbalautomation/c3a/internal"
	"github.com/verbalautomation/c3a/sign"
	"github.com/verbalautomation/c3a/users"
	"github.com/verbalautomation/c3a/validator"
)

// authFlowHandler answers the preregistration challenge-synthesis step: it
// returns the user-facing authentication requirements plus per-factor
// metadata, and carries the signed registration state in the
// C3A-Registration-State header for the client to echo back at registration.
func (a *API) authFlowHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*users.AuthFlowRequest)

	appCfg, err := internal.Do(r.Context(), a.pool, func() (*apps.AppAuthConfiguration, error) { return a.apps.Get(req.AppName) })
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := internal.Do(r.Context(), a.pool, func() (*users.PreregisterResult, error) {
		return a.users.Preregister(r.Context(), appCfg, req.Identifier, a.keys)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	keyPair, err := a.authorityKeyPair()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sign.SignHeader(w, result.Response, keyPair.Private); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(headerRegistrationState, result.RegistrationState)
	writeMsgpack(w, http.StatusOK, result.Response)
}

// registerUserHandler finalizes a preregistration: it requires the
// C3A-Registration-State header echoed back unchanged, validates every
// submitted authentication flow, persists the user, and delivers the issued
// access/refresh tokens per TokenRequestType.
func (a *API) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*users.RegisterUserRequest)

	state := r.Header.Get(headerRegistrationState)
	if state == "" {
		errors.ErrNoRegistrationState.Write(w)
		return
	}

	appCfg, err := internal.Do(r.Context(), a.pool, func() (*apps.AppAuthConfiguration, error) { return a.apps.Get(req.AppName) })
	if err != nil {
		writeError(w, err)
		return
	}

	tokens, err := internal.Do(r.Context(), a.pool, func() (*users.LoginTokens, error) {
		_, tokens, err := a.users.Register(r.Context(), *req, state, appCfg, a.keys)
		return tokens, err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	deliverTokens(w, req.TokenRequestType, tokens)
}

// loginHandler proves a submitted authentication flow against a registered
// user's stored flows and issues a fresh access/refresh token pair. The
// index of the stored flow that matched is reported in C3A-Flow-Index so the
// application server can distinguish a honeypot login from a genuine one.
func (a *API) loginHandler(w http.ResponseWriter, r *http.Request) {
	model, ok := validator.GetValidatedModel(r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	req := model.(*users.LoginRequest)

	appCfg, err := internal.Do(r.Context(), a.pool, func() (*apps.AppAuthConfiguration, error) { return a.apps.Get(req.AppName) })
	if err != nil {
		writeError(w, err)
		return
	}

	tokens, err := internal.Do(r.Context(), a.pool, func() (*users.LoginTokens, error) {
		return a.users.Authenticate(r.Context(), *req, appCfg, a.keys)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(headerFlowIndex, strconv.Itoa(tokens.FlowIndex))
	deliverTokens(w, req.TokenRequestType, tokens)
}

// deliverTokens writes the issued tokens either as cookies or as response
// body fields, per TokenRequestType.
func deliverTokens(w http.ResponseWriter, usage users.TokenUsageType, tokens *users.LoginTokens) {
	if usage == users.TokenUsageCookie {
		http.SetCookie(w, &http.Cookie{
			Name:     headerAccess,
			Value:    tokens.Access,
			HttpOnly: true,
			Secure:   true,
			Path:     "/",
		})
		http.SetCookie(w, &http.Cookie{
			Name:     headerRefresh,
			Value:    tokens.Refresh,
			HttpOnly: true,
			Secure:   true,
			Path:     "/",
		})
		w.WriteHeader(http.StatusOK)
		return
	}
	writeMsgpack(w, http.StatusOK, users.LoginResponse{Access: tokens.Access, Refresh: tokens.Refresh})
}
