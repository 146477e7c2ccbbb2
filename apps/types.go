// Package apps implements the application registry: invitation-gated
// registration, lookup, editing and removal of AppAuthConfiguration
// records, keyed by application name in the KV facade.
package apps

import "github.com/verbalautomation/c3a/internal"

// TOTPAlgorithm names the HMAC algorithm backing a TOTP factor.
type TOTPAlgorithm string

const (
	TOTPAlgorithmSHA1   TOTPAlgorithm = "sha1"
	TOTPAlgorithmSHA256 TOTPAlgorithm = "sha256"
	TOTPAlgorithmSHA512 TOTPAlgorithm = "sha512"
)

// AuthenticationRequirement is an externally-tagged sum type describing one
// factor an application accepts during registration/authentication. The
// "type" discriminator and snake_case variant names are preserved for wire
// compatibility.
type AuthenticationRequirement struct {
	Type string `msgpack:"type"`

	// Password
	MinLength int `msgpack:"min_length,omitempty"`

	// TOTP
	Algorithm    TOTPAlgorithm `msgpack:"algorithm,omitempty"`
	SecretLength int           `msgpack:"secret_length,omitempty"`
	Digits       int           `msgpack:"digits,omitempty"`
	SkewSteps    int           `msgpack:"skew_steps,omitempty"`
	PeriodSecs   int           `msgpack:"period_secs,omitempty"`

	// Question
	MinAnswerLength int `msgpack:"min_answer_length,omitempty"`

	// X509Certificate / Dilithium5RawCertificate
	X509 *X509CertificateValidationRequirement          `msgpack:"x509,omitempty"`
	Raw  *Dilithium5RawCertificateValidationRequirement `msgpack:"raw_dilithium5,omitempty"`
}

const (
	FactorPassword                 = "password"
	FactorTOTPCode                 = "totp_code"
	FactorQuestion                 = "question"
	FactorEmailConfirmation        = "email_confirmation"
	FactorU2FKey                   = "u2f_key"
	FactorX509Certificate          = "x509_certificate"
	FactorRawDilithium5Certificate = "raw_dilithium5_certificate"
	FactorProxy                    = "proxy"
	FactorOther                    = "other"
)

// DefaultTOTPRequirement matches the defaults documented by the original
// implementation: SHA1, a 20-byte secret, 6 digits, 1 skew step, 30 seconds.
func DefaultTOTPRequirement() AuthenticationRequirement {
	return AuthenticationRequirement{
		Type:         FactorTOTPCode,
		Algorithm:    TOTPAlgorithmSHA1,
		SecretLength: 20,
		Digits:       6,
		SkewSteps:    1,
		PeriodSecs:   30,
	}
}

// X509CertificateValidationRequirement restricts which issuers a client
// X.509 certificate factor will be accepted from.
type X509CertificateValidationRequirement struct {
	TrustedIssuerCertsPEM [][]byte `msgpack:"trusted_issuer_certs_pem"`
}

// Dilithium5RawCertificateValidationRequirement restricts a raw
// Dilithium5-signed certificate factor to a fixed set of trusted public keys.
type Dilithium5RawCertificateValidationRequirement struct {
	TrustedPublicKeys []internal.HexBytes `msgpack:"trusted_public_keys"`
}

// IdenticationRequirement is an externally-tagged sum type describing how a
// user's requested identifier is validated.
type IdenticationRequirement struct {
	Type string `msgpack:"type"`

	// Nickname
	Spaces        bool `msgpack:"spaces,omitempty"`
	UpperRegistry bool `msgpack:"upper_registry,omitempty"`
	Characters    bool `msgpack:"characters,omitempty"`

	// Email
	ExcludeEmailDomains []string `msgpack:"exclude_email_domains,omitempty"`
}

const (
	IdentNickname = "nickname"
	IdentEmail    = "email"
)

// AppTag is a caller-defined permission/scope tag auto-assignable at sign-up.
type AppTag struct {
	Role  string `msgpack:"role"`
	Scope string `msgpack:"scope"`
}

// Fail2BanOptions declares (but, per scope, does not itself enforce) a
// lockout policy for repeated failed logins.
type Fail2BanOptions struct {
	MaxAllowedUnsuccessfulAttempts int  `msgpack:"max_allowed_unsuccessful_attempts"`
	BanLoginExpirationSecs         int  `msgpack:"ban_login_expiration_secs"`
	BanIP                          bool `msgpack:"ban_ip"`
	BanIPExpirationSecs            int  `msgpack:"ban_ip_expiration_secs,omitempty"`
}

// ClientBasedAuthorizationOpts declares client-based-authorization (CBA)
// policy: which paths require a client certificate and who may act as a
// private gateway for it.
type ClientBasedAuthorizationOpts struct {
	EnableCBA                 bool     `msgpack:"enable_cba"`
	EnableCBAPrivateGatewayBy []string `msgpack:"enable_cba_private_gateway_by,omitempty"`
	RequireCBAToPaths         []string `msgpack:"require_cba_to_paths,omitempty"`
}

// SignUpOpts configures whether and how new users may self-register with an
// application.
type SignUpOpts struct {
	AllowSignUp    bool             `msgpack:"allow_sign_up"`
	AutoAssignTags []AppTag         `msgpack:"auto_assign_tags,omitempty"`
	Force2FA       bool             `msgpack:"force_2fa"`
	AllowHoneypots bool             `msgpack:"allow_honeypots"`
	EnableFail2Ban bool             `msgpack:"enable_fail2ban"`
	Fail2Ban       *Fail2BanOptions `msgpack:"fail2ban,omitempty"`
}

// AppAuthConfiguration is the registered application's full authentication
// policy, as stored in the KV facade.
type AppAuthConfiguration struct {
	AppName                  string                        `msgpack:"app_name"`
	Domain                   string                        `msgpack:"domain,omitempty"`
	AuthorPublic             internal.HexBytes             `msgpack:"author_dpub"`
	Identication             IdenticationRequirement       `msgpack:"identication"`
	AllowedFactors           []AuthenticationRequirement   `msgpack:"allowed_factors"`
	RequiredFactors          []AuthenticationRequirement   `msgpack:"required_authentication,omitempty"`
	AllowedTags              []AppTag                      `msgpack:"allowed_tags,omitempty"`
	SignUpOpts               SignUpOpts                    `msgpack:"sign_up_opts"`
	ClientBasedAuthorization *ClientBasedAuthorizationOpts `msgpack:"client_based_auth_opts,omitempty"`
}

// GenerateInvitationRequest is the body of POST /apps/generate-invitation.
// Only the first 24 bytes of the deployment's admin key need to be proven,
// not the whole secret.
type GenerateInvitationRequest struct {
	PrivateAdminKeyBegin internal.HexBytes `msgpack:"private_admin_key_begin" validate:"required"`
}

// GenerateInvitationResponse carries the freshly minted single-use
// invitation code.
type GenerateInvitationResponse struct {
	Invitation internal.HexBytes `msgpack:"invitation"`
}

// RegisterAppAuthConfigurationRequest is the body of POST /apps/register.
type RegisterAppAuthConfigurationRequest struct {
	InvitationCode internal.HexBytes    `msgpack:"invitation_code" validate:"required"`
	Config         AppAuthConfiguration `msgpack:"config" validate:"required"`
}

// RegisterAppAuthConfigurationResponse answers a successful registration,
// confirming the application's own public key back to it alongside the
// authority's, so the operator can verify the accompanying C3A-Sign header.
type RegisterAppAuthConfigurationResponse struct {
	AuthorPublic    internal.HexBytes `msgpack:"author_dpub"`
	AuthorityPublic internal.HexBytes `msgpack:"c3a_dpub"`
}

// GetAppAuthConfigurationRequest (also used for remove) identifies an
// application by name. AuthorPublic must equal the stored application's
// author_dpub; it is both the declared signer of the request and re-checked
// against the stored record.
type GetAppAuthConfigurationRequest struct {
	AppName      string            `msgpack:"app_name" validate:"required"`
	AuthorPublic internal.HexBytes `msgpack:"author_dpub" validate:"required"`
}

// GetAppAuthConfigurationResponse answers a successful lookup.
type GetAppAuthConfigurationResponse struct {
	Config          AppAuthConfiguration `msgpack:"config"`
	AuthorityPublic internal.HexBytes    `msgpack:"c3a_dpub"`
}

// EditAppAuthConfigurationRequest updates a (possibly renamed) application.
// Config replaces the stored configuration as a whole, so fields left empty
// in Config are stored empty; this is not a per-field partial update. The
// only field kept from the stored record is author_dpub, which is immutable
// through this surface.
type EditAppAuthConfigurationRequest struct {
	AppName    string               `msgpack:"app_name" validate:"required"`
	NewAppName string               `msgpack:"new_app_name,omitempty"`
	Config     AppAuthConfiguration `msgpack:"config" validate:"required"`
}
