package users

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/xlzd/gotp"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/token"
)

// ErrInvalidStep is returned when a submitted authentication step fails its
// policy or challenge check. There is no partial-success path: the first
// failing step aborts the whole registration.
type ErrInvalidStep struct {
	Type   string
	Reason string
}

func (e *ErrInvalidStep) Error() string {
	return fmt.Sprintf("invalid %s step: %s", e.Type, e.Reason)
}

func findRequirement(cfg *apps.AppAuthConfiguration, kind string) *apps.AuthenticationRequirement {
	for i := range cfg.AllowedFactors {
		if cfg.AllowedFactors[i].Type == kind {
			return &cfg.AllowedFactors[i]
		}
	}
	return nil
}

func findMetadata(meta []AuthenticationData, kind string) *AuthenticationData {
	for i := range meta {
		if meta[i].Type == kind {
			return &meta[i]
		}
	}
	return nil
}

// ErrMissingRequiredFactor is returned when a submitted authentication flow
// does not cover every factor type the application's required_authentication
// policy names.
type ErrMissingRequiredFactor struct {
	Type string
}

func (e *ErrMissingRequiredFactor) Error() string {
	return fmt.Sprintf("required factor missing from submitted flow: %s", e.Type)
}

// validateAuthenticationFlows validates and converts every submitted
// AuthenticationFlowRequest into a persisted AuthenticationFlow. Every step
// kind has a concrete verification and storage branch; the first step that
// fails aborts the whole operation. Each flow must also cover every factor
// type in cfg.RequiredFactors, per the required ⊆ allowed policy.
func validateAuthenticationFlows(meta []AuthenticationData, flowReqs []AuthenticationFlowRequest, cfg *apps.AppAuthConfiguration, pepper []byte, now time.Time) ([]AuthenticationFlow, error) {
	flows := make([]AuthenticationFlow, 0, len(flowReqs))
	for _, flowReq := range flowReqs {
		flow := make(AuthenticationFlow, 0, len(flowReq))
		for _, stepReq := range flowReq {
			step, err := validateStep(stepReq, meta, cfg, pepper, now)
			if err != nil {
				return nil, err
			}
			flow = append(flow, step)
		}
		if err := requireCoverage(flow, cfg.RequiredFactors); err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// requireCoverage checks that flow contains a step of every type named in
// required.
func requireCoverage(flow AuthenticationFlow, required []apps.AuthenticationRequirement) error {
	for _, req := range required {
		covered := false
		for _, step := range flow {
			if step.Type == req.Type {
				covered = true
				break
			}
		}
		if !covered {
			return &ErrMissingRequiredFactor{Type: req.Type}
		}
	}
	return nil
}

func validateStep(stepReq AuthenticationStepRequest, meta []AuthenticationData, cfg *apps.AppAuthConfiguration, pepper []byte, now time.Time) (AuthenticationStep, error) {
	switch stepReq.Type {
	case StepPassword:
		req := findRequirement(cfg, apps.FactorPassword)
		if req != nil && len(stepReq.Password) < req.MinLength {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "below minimum length"}
		}
		phc, err := crypto.HashPassword(stepReq.Password, pepper, crypto.DefaultArgon2Params)
		if err != nil {
			return AuthenticationStep{}, err
		}
		salt, hash := phcToWire(phc)
		return AuthenticationStep{Type: StepPassword, Salt: salt, Hash: hash}, nil

	case StepTOTPCode:
		data := findMetadata(meta, DataTOTP)
		if data == nil {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "no TOTP challenge was issued"}
		}
		if !verifyTOTP(data.GeneratedSecret, stepReq.ValidationCode, now) {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "code mismatch"}
		}
		return AuthenticationStep{Type: StepTOTPCode, Secret: data.GeneratedSecret}, nil

	case StepQuestion:
		req := findRequirement(cfg, apps.FactorQuestion)
		if req != nil && len(stepReq.Answer) < req.MinAnswerLength {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "answer too short"}
		}
		phc, err := crypto.HashPassword(stepReq.Answer, pepper, crypto.DefaultArgon2Params)
		if err != nil {
			return AuthenticationStep{}, err
		}
		salt, hash := phcToWire(phc)
		return AuthenticationStep{Type: StepQuestion, Question: stepReq.Question, Salt: salt, Hash: hash}, nil

	case StepEmailConfirmation:
		data := findMetadata(meta, DataEmail)
		if data == nil {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "no email challenge was issued"}
		}
		ok, err := crypto.VerifyPassword(stepReq.Code, pepper, wireToPHC(data.Salt, data.Hash))
		if err != nil {
			return AuthenticationStep{}, err
		}
		if !ok {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "code mismatch"}
		}
		return AuthenticationStep{Type: StepEmailConfirmation}, nil

	case StepU2FKey:
		data := findMetadata(meta, DataU2F)
		if data == nil || len(data.Challenge) == 0 {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "no U2F challenge was issued"}
		}
		if len(stepReq.AcceptedChallenge) == 0 {
			return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "empty registration response"}
		}
		return AuthenticationStep{Type: StepU2FKey, Registration: stepReq.AcceptedChallenge}, nil

	case StepX509Certificate:
		req := findRequirement(cfg, apps.FactorX509Certificate)
		if err := verifyX509Step(stepReq.PublicCertificate, req); err != nil {
			return AuthenticationStep{}, err
		}
		return AuthenticationStep{Type: StepX509Certificate, PublicCertificate: stepReq.PublicCertificate}, nil

	case StepRawDilithium5Certificate:
		req := findRequirement(cfg, apps.FactorRawDilithium5Certificate)
		if err := verifyRawDilithiumStep(stepReq.PublicKey, req); err != nil {
			return AuthenticationStep{}, err
		}
		return AuthenticationStep{Type: StepRawDilithium5Certificate, PublicKey: stepReq.PublicKey}, nil

	case StepProxy:
		return AuthenticationStep{Type: StepProxy}, nil

	case StepOther:
		return AuthenticationStep{Type: StepOther}, nil

	default:
		return AuthenticationStep{}, &ErrInvalidStep{Type: stepReq.Type, Reason: "unknown step type"}
	}
}

func verifyTOTP(secretBase32, code string, now time.Time) bool {
	totp := gotp.NewDefaultTOTP(secretBase32)
	ts := now.Unix()
	for skew := -1; skew <= 1; skew++ {
		if totp.At(ts+int64(skew*30)) == code {
			return true
		}
	}
	return false
}

// verifyX509Step validates a submitted certificate per the requirement's
// trust policy: with no enumerated issuers, the certificate is pinned
// (accepted as submitted); otherwise it must chain to one of the trusted
// issuer PEMs.
func verifyX509Step(certDER []byte, req *apps.AuthenticationRequirement) error {
	if len(certDER) == 0 {
		return &ErrInvalidStep{Type: StepX509Certificate, Reason: "empty certificate"}
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return &ErrInvalidStep{Type: StepX509Certificate, Reason: "malformed certificate"}
	}
	if req == nil || req.X509 == nil || len(req.X509.TrustedIssuerCertsPEM) == 0 {
		return nil
	}
	pool := x509.NewCertPool()
	for _, pemBytes := range req.X509.TrustedIssuerCertsPEM {
		pool.AppendCertsFromPEM(pemBytes)
	}
	if _, err := cert.Verify(x509.VerifyOptions{Roots: pool}); err != nil {
		return &ErrInvalidStep{Type: StepX509Certificate, Reason: "not signed by a trusted issuer"}
	}
	return nil
}

// verifyRawDilithiumStep validates a raw Dilithium5 public key per the
// requirement's trust policy: with no enumerated keys, it is pinned;
// otherwise it must match one of the trusted public keys exactly.
func verifyRawDilithiumStep(pubKey []byte, req *apps.AuthenticationRequirement) error {
	if len(pubKey) == 0 {
		return &ErrInvalidStep{Type: StepRawDilithium5Certificate, Reason: "empty public key"}
	}
	if req == nil || req.Raw == nil || len(req.Raw.TrustedPublicKeys) == 0 {
		return nil
	}
	for _, trusted := range req.Raw.TrustedPublicKeys {
		if trusted.Equals(pubKey) {
			return nil
		}
	}
	return &ErrInvalidStep{Type: StepRawDilithium5Certificate, Reason: "not a trusted issuer key"}
}

// Register finalizes a preregistration: it re-verifies the registration
// state token, validates every submitted authentication flow, persists the
// resulting UserData, and issues an access/refresh token pair.
func (e *Engine) Register(ctx context.Context, req RegisterUserRequest, registrationState string, appCfg *apps.AppAuthConfiguration, authorityKeys *kv.AuthorityKeys) (*UserData, *LoginTokens, error) {
	if !appCfg.SignUpOpts.AllowSignUp {
		return nil, nil, ErrSignUpDisabled
	}

	keyPair, err := crypto.RestoreKeyPair(authorityKeys.DilithiumPublic, authorityKeys.DilithiumPrivate)
	if err != nil {
		return nil, nil, err
	}
	payload, _, err := token.Extract[RegistrationStatePayload, struct{}](
		registrationState,
		token.ExtractOpts{},
		keyPair.PublicBytes(),
		time.Now(),
	)
	if err != nil {
		return nil, nil, err
	}
	if payload.Container.RequestedIdentifier != req.Login {
		return nil, nil, &ErrInvalidStep{Type: "identifier", Reason: "does not match the registration state"}
	}
	if !payload.ClientPublic.Equals(appCfg.AuthorPublic) {
		return nil, nil, &ErrInvalidStep{Type: "registration_state", Reason: "was not issued for this application"}
	}

	flows, err := validateAuthenticationFlows(payload.Container.Metadata, req.AuthenticationFlows, appCfg, e.pepper, time.Now())
	if err != nil {
		return nil, nil, err
	}

	user := UserData{Identifier: req.Login, AuthenticationFlows: flows}
	if err := kv.Insert(e.db, userKey(req.Login), user); err != nil {
		if err == kv.ErrAlreadyExists {
			return nil, nil, ErrUserAlreadyExists
		}
		return nil, nil, err
	}

	tokens, err := issueLoginTokens(user.Identifier, appCfg, keyPair, 0)
	if err != nil {
		return nil, nil, err
	}
	return &user, tokens, nil
}
