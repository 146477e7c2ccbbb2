// Package users implements the user preregistration engine and the
// registration finalizer: challenge synthesis, the signed registration-state
// token, per-factor validation and storage, and the login operation that
// proves a registered flow.
package users

import "github.com/verbalautomation/c3a/internal"

// UserAuthenticationRequirement is the user-facing variant name exposed in a
// RegistrationRequirementsResponse — no secrets, just which factor kinds the
// client must satisfy.
type UserAuthenticationRequirement struct {
	Type        string `msgpack:"type"`
	Description string `msgpack:"description,omitempty"` // Other
}

const (
	ReqPassword                 = "password"
	ReqTOTPCode                 = "totp_code"
	ReqQuestion                 = "question"
	ReqEmailConfirmation        = "email_confirmation"
	ReqProxy                    = "proxy"
	ReqU2FKey                   = "u2f_key"
	ReqX509Certificate          = "x509_certificate"
	ReqRawDilithium5Certificate = "raw_dilithium5_certificate"
	ReqOther                    = "other"
)

// AuthenticationData is an externally-tagged sum type carrying the generated
// challenge/secret for one factor, handed to the user's client so it can
// complete that factor.
type AuthenticationData struct {
	Type string `msgpack:"type"`

	// TOTP
	Alg              string `msgpack:"alg,omitempty"`
	GeneratedSecret  string `msgpack:"generated_secret,omitempty"`

	// U2F
	Challenge internal.HexBytes `msgpack:"challenge,omitempty"`

	// Email
	Salt string            `msgpack:"salt,omitempty"`
	Hash internal.HexBytes `msgpack:"hash,omitempty"`
}

const (
	DataTOTP  = "totp"
	DataU2F   = "u2f"
	DataEmail = "email"
)

// RegistrationRequirementsResponse answers POST /users/authflow.
type RegistrationRequirementsResponse struct {
	AllowedAuthenticationFlow []UserAuthenticationRequirement `msgpack:"allowed_authentication_flow"`
	RequiredAuthentication    []UserAuthenticationRequirement `msgpack:"required_authentication"`
	Metadata                  []AuthenticationData            `msgpack:"metadata"`
}

// RegistrationStatePayload is the container signed into the
// C3A-Registration-State LightMPAAT.
type RegistrationStatePayload struct {
	RequestedIdentifier string                `msgpack:"requested_identifier"`
	Metadata            []AuthenticationData  `msgpack:"metadata"`
}

// AuthFlowRequest is the body of POST /users/authflow.
type AuthFlowRequest struct {
	AppName    string `msgpack:"app_name" validate:"required"`
	Identifier string `msgpack:"identifier" validate:"required"`
}

// AuthenticationStepRequest is an externally-tagged sum type: one completed
// factor submitted by the user's client, as part of an AuthenticationFlowRequest.
type AuthenticationStepRequest struct {
	Type string `msgpack:"type"`

	Password          string            `msgpack:"password,omitempty"`
	ValidationCode    string            `msgpack:"validation_code,omitempty"`
	Question          string            `msgpack:"question,omitempty"`
	Answer            string            `msgpack:"answer,omitempty"`
	Code              string            `msgpack:"code,omitempty"`
	AcceptedChallenge internal.HexBytes `msgpack:"accepted_challenge,omitempty"`
	PublicCertificate internal.HexBytes `msgpack:"public_certificate,omitempty"`
	PublicKey         internal.HexBytes `msgpack:"public_key,omitempty"`
}

// AuthenticationFlowRequest is an ordered list of steps; the application
// allows more than one such flow in a single registration to support the
// honeypot scenario described by the authority's design notes.
type AuthenticationFlowRequest []AuthenticationStepRequest

// TokenUsageType selects how the issued access/refresh tokens are delivered.
type TokenUsageType string

const (
	TokenUsageCookie       TokenUsageType = "cookie"
	TokenUsageResponseBody TokenUsageType = "response_body"
)

// RegisterUserRequest is the body of POST /users/register.
type RegisterUserRequest struct {
	AppName              string                      `msgpack:"app_name" validate:"required"`
	Login                string                      `msgpack:"login" validate:"required"`
	AuthenticationFlows  []AuthenticationFlowRequest `msgpack:"authentication_flows" validate:"required"`
	TokenRequestType     TokenUsageType              `msgpack:"token_request_type" validate:"required"`
}

// AuthenticationStep is an externally-tagged sum type: one persisted factor
// inside a stored UserData record.
type AuthenticationStep struct {
	Type string `msgpack:"type"`

	Salt              string            `msgpack:"salt,omitempty"`
	Hash              internal.HexBytes `msgpack:"hash,omitempty"`
	Secret            string            `msgpack:"secret,omitempty"`
	Question          string            `msgpack:"question,omitempty"`
	Registration      internal.HexBytes `msgpack:"registration,omitempty"`
	PublicCertificate internal.HexBytes `msgpack:"public_certificate,omitempty"`
	PublicKey         internal.HexBytes `msgpack:"public_key,omitempty"`
}

const (
	StepPassword                 = "password"
	StepTOTPCode                 = "totp_code"
	StepQuestion                 = "question"
	StepEmailConfirmation        = "email_confirmation"
	StepProxy                    = "proxy"
	StepU2FKey                   = "u2f_key"
	StepX509Certificate          = "x509_certificate"
	StepRawDilithium5Certificate = "raw_dilithium5_certificate"
	StepOther                    = "other"
)

// AuthenticationFlow is an ordered, persisted list of satisfied factors.
type AuthenticationFlow []AuthenticationStep

// UserData is the durable record stored under user::H(identifier).
type UserData struct {
	Identifier          string               `msgpack:"identifier"`
	AuthenticationFlows []AuthenticationFlow `msgpack:"authentication_flows"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	AppName              string                    `msgpack:"app_name" validate:"required"`
	Login                string                    `msgpack:"login" validate:"required"`
	AuthenticationFlow   AuthenticationFlowRequest `msgpack:"authentication_flow" validate:"required"`
	TokenRequestType     TokenUsageType            `msgpack:"token_request_type" validate:"required"`
}

// LoginResponse answers a successful POST /users/login when
// TokenRequestType is TokenUsageResponseBody; cookie delivery is handled at
// the HTTP layer instead of in this body.
type LoginResponse struct {
	Access  string `msgpack:"access,omitempty"`
	Refresh string `msgpack:"refresh,omitempty"`
}
