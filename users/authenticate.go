package users

import (
	"context"
	"fmt"
	"time"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/token"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
)

// ErrUserNotFound is returned when the requested identifier has no stored
// UserData.
var ErrUserNotFound = fmt.Errorf("user not found")

// ErrChallengeMismatch is returned when no stored authentication flow
// matches every step of the submitted flow.
var ErrChallengeMismatch = fmt.Errorf("no matching authentication flow")

// AccessTokenPayload is the container of the issued MPAAT access token.
type AccessTokenPayload struct {
	Identifier string `msgpack:"identifier"`
	AppName    string `msgpack:"app_name"`
}

// RefreshTokenPayload is the container of the issued LightMPAAT refresh
// token.
type RefreshTokenPayload struct {
	Identifier string `msgpack:"identifier"`
	AppName    string `msgpack:"app_name"`
}

// LoginTokens carries a minted access/refresh token pair and the index of
// the stored authentication flow that matched, so the application server
// can tag honeypot vs. genuine logins.
type LoginTokens struct {
	Access     string
	Refresh    string
	FlowIndex  int
}

func issueLoginTokens(identifier string, appCfg *apps.AppAuthConfiguration, keyPair *crypto.KeyPair, flowIndex int) (*LoginTokens, error) {
	now := time.Now()
	access, err := token.Deploy[AccessTokenPayload, struct{}](
		AccessTokenPayload{Identifier: identifier, AppName: appCfg.AppName}, nil,
		token.DeployOpts{TTL: accessTokenTTL, ClientPublic: appCfg.AuthorPublic},
		keyPair.Private, keyPair.PublicBytes(), now,
	)
	if err != nil {
		return nil, err
	}
	refresh, err := token.Deploy[RefreshTokenPayload, struct{}](
		RefreshTokenPayload{Identifier: identifier, AppName: appCfg.AppName}, nil,
		token.DeployOpts{TTL: refreshTokenTTL, ClientPublic: appCfg.AuthorPublic},
		keyPair.Private, keyPair.PublicBytes(), now,
	)
	if err != nil {
		return nil, err
	}
	return &LoginTokens{Access: access, Refresh: refresh, FlowIndex: flowIndex}, nil
}

// Authenticate proves a submitted AuthenticationFlowRequest against one of
// identifier's stored authentication flows. It walks the stored flows in
// order and returns the index of the first one that matches in full, so the
// application server can distinguish a genuine login from a honeypot login
// (spec scenario: allow_honeypots) without the authority needing to know
// what "genuine" means to that application.
func (e *Engine) Authenticate(ctx context.Context, req LoginRequest, appCfg *apps.AppAuthConfiguration, authorityKeys *kv.AuthorityKeys) (*LoginTokens, error) {
	user, err := kv.Get[UserData](e.db, userKey(req.Login))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	keyPair, err := crypto.RestoreKeyPair(authorityKeys.DilithiumPublic, authorityKeys.DilithiumPrivate)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for idx, flow := range user.AuthenticationFlows {
		if matchesFlow(flow, req.AuthenticationFlow, e.pepper, now) {
			return issueLoginTokens(user.Identifier, appCfg, keyPair, idx)
		}
	}
	return nil, ErrChallengeMismatch
}

func matchesFlow(stored AuthenticationFlow, submitted AuthenticationFlowRequest, pepper []byte, now time.Time) bool {
	if len(stored) != len(submitted) {
		return false
	}
	for i, step := range stored {
		if !matchesStep(step, submitted[i], pepper, now) {
			return false
		}
	}
	return true
}

func matchesStep(step AuthenticationStep, stepReq AuthenticationStepRequest, pepper []byte, now time.Time) bool {
	if step.Type != stepReq.Type {
		return false
	}
	switch step.Type {
	case StepPassword:
		ok, err := crypto.VerifyPassword(stepReq.Password, pepper, wireToPHC(step.Salt, step.Hash))
		return err == nil && ok
	case StepTOTPCode:
		return verifyTOTP(step.Secret, stepReq.ValidationCode, now)
	case StepQuestion:
		ok, err := crypto.VerifyPassword(stepReq.Answer, pepper, wireToPHC(step.Salt, step.Hash))
		return err == nil && ok
	case StepEmailConfirmation:
		// The stored record only carries a marker; the code itself was
		// already consumed during registration and is not re-verifiable
		// at login time.
		return true
	case StepU2FKey:
		return step.Registration.Equals(stepReq.AcceptedChallenge)
	case StepX509Certificate:
		return step.PublicCertificate.Equals(stepReq.PublicCertificate)
	case StepRawDilithium5Certificate:
		return step.PublicKey.Equals(stepReq.PublicKey)
	case StepProxy, StepOther:
		return true
	default:
		return false
	}
}
