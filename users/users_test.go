package users

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/xlzd/gotp"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/notifications"
)

type fakeNotifier struct {
	sent []*notifications.Notification
}

func (f *fakeNotifier) New(conf any) error { return nil }

func (f *fakeNotifier) SendNotification(_ context.Context, n *notifications.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func setupEngine(t *testing.T) (*Engine, *kv.AuthorityKeys, *fakeNotifier) {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	keys, err := db.InitialSetup(func() ([]byte, []byte, error) {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, nil, err
		}
		return kp.PublicBytes(), kp.PrivateBytes(), nil
	})
	if err != nil {
		t.Fatalf("initial setup: %v", err)
	}

	notifier := &fakeNotifier{}
	return NewEngine(db, notifier, []byte("test-pepper")), keys, notifier
}

func testAppConfig(appKeyPair *crypto.KeyPair) apps.AppAuthConfiguration {
	return apps.AppAuthConfiguration{
		AppName:      "acme",
		AuthorPublic: appKeyPair.PublicBytes(),
		Identication: apps.IdenticationRequirement{Type: apps.IdentEmail},
		AllowedFactors: []apps.AuthenticationRequirement{
			{Type: apps.FactorPassword, MinLength: 8},
			{Type: apps.FactorTOTPCode, Algorithm: apps.TOTPAlgorithmSHA1, SecretLength: 20},
		},
		SignUpOpts: apps.SignUpOpts{AllowSignUp: true},
	}
}

func TestPreregisterAndRegisterRoundTrip(t *testing.T) {
	c := qt.New(t)
	engine, keys, notifier := setupEngine(t)

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	appCfg := testAppConfig(appKeyPair)

	result, err := engine.Preregister(context.Background(), &appCfg, "alice@example.com", keys)
	c.Assert(err, qt.IsNil)
	c.Assert(len(result.Response.Metadata), qt.Equals, 1) // only TOTP synthesizes metadata; no email factor configured
	c.Assert(len(notifier.sent), qt.Equals, 0)

	var totpSecret string
	for _, m := range result.Response.Metadata {
		if m.Type == DataTOTP {
			totpSecret = m.GeneratedSecret
		}
	}
	c.Assert(totpSecret, qt.Not(qt.Equals), "")

	code := gotp.NewDefaultTOTP(totpSecret).Now()

	req := RegisterUserRequest{
		AppName: "acme",
		Login:   "alice@example.com",
		AuthenticationFlows: []AuthenticationFlowRequest{
			{
				{Type: StepPassword, Password: "correct horse battery staple"},
				{Type: StepTOTPCode, ValidationCode: code},
			},
		},
		TokenRequestType: TokenUsageResponseBody,
	}

	user, tokens, err := engine.Register(context.Background(), req, result.RegistrationState, &appCfg, keys)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Identifier, qt.Equals, "alice@example.com")
	c.Assert(len(user.AuthenticationFlows), qt.Equals, 1)
	c.Assert(tokens.Access, qt.Not(qt.Equals), "")
	c.Assert(tokens.Refresh, qt.Not(qt.Equals), "")

	// A second preregistration attempt for the same identifier is rejected.
	_, err = engine.Preregister(context.Background(), &appCfg, "alice@example.com", keys)
	c.Assert(err, qt.Equals, ErrUserAlreadyExists)
}

func TestRegisterRejectsWrongTOTPCode(t *testing.T) {
	c := qt.New(t)
	engine, keys, _ := setupEngine(t)

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	appCfg := testAppConfig(appKeyPair)

	result, err := engine.Preregister(context.Background(), &appCfg, "bob@example.com", keys)
	c.Assert(err, qt.IsNil)

	req := RegisterUserRequest{
		AppName: "acme",
		Login:   "bob@example.com",
		AuthenticationFlows: []AuthenticationFlowRequest{
			{
				{Type: StepPassword, Password: "correct horse battery staple"},
				{Type: StepTOTPCode, ValidationCode: "000000"},
			},
		},
		TokenRequestType: TokenUsageResponseBody,
	}

	_, _, err = engine.Register(context.Background(), req, result.RegistrationState, &appCfg, keys)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestAuthenticateMatchesStoredFlowAndReportsIndex(t *testing.T) {
	c := qt.New(t)
	engine, keys, _ := setupEngine(t)

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	appCfg := testAppConfig(appKeyPair)
	appCfg.AllowedFactors = []apps.AuthenticationRequirement{{Type: apps.FactorPassword, MinLength: 4}}

	result, err := engine.Preregister(context.Background(), &appCfg, "carol@example.com", keys)
	c.Assert(err, qt.IsNil)

	req := RegisterUserRequest{
		AppName: "acme",
		Login:   "carol@example.com",
		AuthenticationFlows: []AuthenticationFlowRequest{
			{{Type: StepPassword, Password: "honeypot-password"}},
			{{Type: StepPassword, Password: "real-password"}},
		},
		TokenRequestType: TokenUsageResponseBody,
	}
	_, _, err = engine.Register(context.Background(), req, result.RegistrationState, &appCfg, keys)
	c.Assert(err, qt.IsNil)

	loginReq := LoginRequest{
		AppName:            "acme",
		Login:              "carol@example.com",
		AuthenticationFlow: AuthenticationFlowRequest{{Type: StepPassword, Password: "real-password"}},
		TokenRequestType:   TokenUsageResponseBody,
	}
	tokens, err := engine.Authenticate(context.Background(), loginReq, &appCfg, keys)
	c.Assert(err, qt.IsNil)
	c.Assert(tokens.FlowIndex, qt.Equals, 1)

	honeypotReq := loginReq
	honeypotReq.AuthenticationFlow = AuthenticationFlowRequest{{Type: StepPassword, Password: "honeypot-password"}}
	tokens, err = engine.Authenticate(context.Background(), honeypotReq, &appCfg, keys)
	c.Assert(err, qt.IsNil)
	c.Assert(tokens.FlowIndex, qt.Equals, 0)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	c := qt.New(t)
	engine, keys, _ := setupEngine(t)

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	appCfg := testAppConfig(appKeyPair)

	_, err = engine.Authenticate(context.Background(), LoginRequest{
		AppName:            "acme",
		Login:              "nobody@example.com",
		AuthenticationFlow: AuthenticationFlowRequest{{Type: StepPassword, Password: "x"}},
		TokenRequestType:   TokenUsageResponseBody,
	}, &appCfg, keys)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestValidateIdentifierEmailDomainExclusion(t *testing.T) {
	c := qt.New(t)
	req := apps.IdenticationRequirement{Type: apps.IdentEmail, ExcludeEmailDomains: []string{"tempmail.com"}}

	c.Assert(ValidateIdentifier("alice@example.com", req), qt.IsNil)
	c.Assert(ValidateIdentifier("alice@tempmail.com", req), qt.Not(qt.IsNil))
	c.Assert(ValidateIdentifier("not-an-email", req), qt.Not(qt.IsNil))
}
