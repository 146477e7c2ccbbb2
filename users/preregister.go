package users

import (
	"context"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/notifications"
	"github.com/verbalautomation/c3a/token"
)

// preregisterStateTTL matches the 10-minute expiry of the registration-state
// LightMPAAT.
const preregisterStateTTL = 10 * time.Minute

// ErrUserAlreadyExists is returned when the requested identifier is already
// registered.
var ErrUserAlreadyExists = fmt.Errorf("user already exists")

// ErrSignUpDisabled is returned when the application does not allow sign-up.
var ErrSignUpDisabled = fmt.Errorf("sign-up disabled for this application")

func userKey(identifier string) string {
	return "user::" + internalHexDigest(identifier)
}

// Engine wires the KV facade and notification transport used by the
// preregistration and registration operations.
type Engine struct {
	db       *kv.DB
	notifier notifications.NotificationService
	pepper   []byte
}

// NewEngine builds an Engine. pepper is appended to every Argon2id input,
// per the authority's admin-configured pepper.
func NewEngine(db *kv.DB, notifier notifications.NotificationService, pepper []byte) *Engine {
	return &Engine{db: db, notifier: notifier, pepper: pepper}
}

// PreregisterResult carries the response body and the signed registration
// state token to be emitted in the C3A-Registration-State header.
type PreregisterResult struct {
	Response           RegistrationRequirementsResponse
	RegistrationState  string
}

// Preregister synthesizes challenges for identifier against appName's
// allowed authentication flow, builds the signed registration-state token,
// and dispatches any outbound email only once every challenge synthesized
// without error.
func (e *Engine) Preregister(ctx context.Context, appCfg *apps.AppAuthConfiguration, identifier string, authorityKeys *kv.AuthorityKeys) (*PreregisterResult, error) {
	exists, err := e.db.Exists(userKey(identifier))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}
	if !appCfg.SignUpOpts.AllowSignUp {
		return nil, ErrSignUpDisabled
	}
	if err := ValidateIdentifier(identifier, appCfg.Identication); err != nil {
		return nil, err
	}

	var metadata []AuthenticationData
	var pendingEmailCode string
	for _, req := range appCfg.AllowedFactors {
		switch req.Type {
		case apps.FactorTOTPCode:
			data, err := synthesizeTOTPChallenge(req)
			if err != nil {
				return nil, err
			}
			metadata = append(metadata, data)
		case apps.FactorU2FKey:
			metadata = append(metadata, synthesizeU2FChallenge())
		case apps.FactorEmailConfirmation:
			if appCfg.Identication.Type != apps.IdentEmail {
				continue
			}
			data, code, err := e.synthesizeEmailChallenge()
			if err != nil {
				return nil, err
			}
			metadata = append(metadata, data)
			pendingEmailCode = code
		}
	}

	allowed := make([]UserAuthenticationRequirement, 0, len(appCfg.AllowedFactors))
	for _, req := range appCfg.AllowedFactors {
		allowed = append(allowed, userFacingRequirement(req))
	}
	required := make([]UserAuthenticationRequirement, 0, len(appCfg.RequiredFactors))
	for _, req := range appCfg.RequiredFactors {
		required = append(required, userFacingRequirement(req))
	}

	resp := RegistrationRequirementsResponse{
		AllowedAuthenticationFlow: allowed,
		RequiredAuthentication:    required,
		Metadata:                  metadata,
	}

	state := RegistrationStatePayload{
		RequestedIdentifier: identifier,
		Metadata:             metadata,
	}

	keyPair, err := crypto.RestoreKeyPair(authorityKeys.DilithiumPublic, authorityKeys.DilithiumPrivate)
	if err != nil {
		return nil, err
	}
	stateToken, err := token.Deploy[RegistrationStatePayload, struct{}](
		state, nil,
		token.DeployOpts{Encrypt: false, TTL: preregisterStateTTL, ClientPublic: appCfg.AuthorPublic},
		keyPair.Private, keyPair.PublicBytes(), time.Now(),
	)
	if err != nil {
		return nil, err
	}

	// Email is dispatched only after every challenge synthesized without
	// error above.
	if pendingEmailCode != "" {
		if err := e.notifier.SendNotification(ctx, &notifications.Notification{
			ToAddress: identifier,
			Subject:   "Email verification",
			PlainBody: fmt.Sprintf("Code to confirm the account registration: %s", pendingEmailCode),
		}); err != nil {
			return nil, err
		}
	}

	return &PreregisterResult{Response: resp, RegistrationState: stateToken}, nil
}

func userFacingRequirement(req apps.AuthenticationRequirement) UserAuthenticationRequirement {
	return UserAuthenticationRequirement{Type: req.Type}
}

func synthesizeTOTPChallenge(req apps.AuthenticationRequirement) (AuthenticationData, error) {
	secretLength := req.SecretLength
	if secretLength == 0 {
		secretLength = 20
	}
	alg := req.Algorithm
	if alg == "" {
		alg = apps.TOTPAlgorithmSHA1
	}
	secret := crypto.RandomBytes(secretLength)
	return AuthenticationData{
		Type:            DataTOTP,
		Alg:             string(alg),
		GeneratedSecret: base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret),
	}, nil
}

func synthesizeU2FChallenge() AuthenticationData {
	return AuthenticationData{
		Type:      DataU2F,
		Challenge: crypto.RandomBytes(32),
	}
}

func (e *Engine) synthesizeEmailChallenge() (AuthenticationData, string, error) {
	code := crypto.RandomNumericString(8)
	phc, err := crypto.HashPassword(code, e.pepper, crypto.DefaultArgon2Params)
	if err != nil {
		return AuthenticationData{}, "", err
	}
	salt, hash := phcToWire(phc)
	return AuthenticationData{Type: DataEmail, Salt: salt, Hash: hash}, code, nil
}
