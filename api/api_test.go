package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/internal"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/notifications"
	"github.com/verbalautomation/c3a/sign"
	"github.com/verbalautomation/c3a/users"
)

type fakeNotifier struct{}

func (f *fakeNotifier) New(conf any) error { return nil }

func (f *fakeNotifier) SendNotification(_ context.Context, _ *notifications.Notification) error {
	return nil
}

const testAdminKey = "test-admin-key-0123456789-0123456789-0123456789-0123456789-0123456789-0123456789-0123456789ABCDEF-0123456789-0123456789-0123456789"

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	a, err := New(&Config{
		Host:     "127.0.0.1",
		KV:       db,
		Apps:     apps.New(db),
		Users:    users.NewEngine(db, &fakeNotifier{}, []byte("test-pepper")),
		AdminKey: testAdminKey,
		Pool:     internal.NewWorkerPool(4),
	})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}

	return httptest.NewServer(a.initRouter())
}

func doRequest(t *testing.T, srv *httptest.Server, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := msgpack.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func signHeaderValue(t *testing.T, value any, kp *crypto.KeyPair) string {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := sign.SignHeader(rec, value, kp.Private); err != nil {
		t.Fatalf("sign header: %v", err)
	}
	return rec.Header().Get(sign.HeaderName)
}

func testAppConfig(appKeyPair *crypto.KeyPair) apps.AppAuthConfiguration {
	return apps.AppAuthConfiguration{
		AppName:      "acme",
		AuthorPublic: appKeyPair.PublicBytes(),
		Identication: apps.IdenticationRequirement{Type: apps.IdentEmail},
		AllowedFactors: []apps.AuthenticationRequirement{
			{Type: apps.FactorPassword, MinLength: 8},
		},
		SignUpOpts: apps.SignUpOpts{AllowSignUp: true},
	}
}

func TestHealthCheck(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + healthCheckEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
}

func TestGenerateInvitationRejectsWrongAdminKeyPrefix(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	resp, _ := doRequest(t, srv, http.MethodPost, appsGenerateInvitationEndpoint,
		apps.GenerateInvitationRequest{PrivateAdminKeyBegin: internal.HexBytes("wrong-prefix-00000000000")}, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusUnauthorized)
}

func TestGenerateInvitationAcceptsValidAdminKeyPrefix(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	resp, body := doRequest(t, srv, http.MethodPost, appsGenerateInvitationEndpoint,
		apps.GenerateInvitationRequest{PrivateAdminKeyBegin: internal.HexBytes(testAdminKey[:24])}, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	var invResp apps.GenerateInvitationResponse
	c.Assert(msgpack.Unmarshal(body, &invResp), qt.IsNil)
	c.Assert(len(invResp.Invitation), qt.Equals, 1024)
}

// mintInvitation is a test helper that drives the invitation endpoint.
func mintInvitation(t *testing.T, srv *httptest.Server) []byte {
	t.Helper()
	resp, body := doRequest(t, srv, http.MethodPost, appsGenerateInvitationEndpoint,
		apps.GenerateInvitationRequest{PrivateAdminKeyBegin: internal.HexBytes(testAdminKey[:24])}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint invitation: status %d", resp.StatusCode)
	}
	var invResp apps.GenerateInvitationResponse
	if err := msgpack.Unmarshal(body, &invResp); err != nil {
		t.Fatalf("unmarshal invitation: %v", err)
	}
	return invResp.Invitation
}

func TestRegisterGetEditRemoveAppLifecycle(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)

	registerReq := apps.RegisterAppAuthConfigurationRequest{
		InvitationCode: mintInvitation(t, srv),
		Config:         testAppConfig(appKeyPair),
	}
	resp, body := doRequest(t, srv, http.MethodPost, appsRegisterEndpoint, registerReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, registerReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	var regResp apps.RegisterAppAuthConfigurationResponse
	c.Assert(msgpack.Unmarshal(body, &regResp), qt.IsNil)
	c.Assert(regResp.AuthorPublic.Equals(appKeyPair.PublicBytes()), qt.IsTrue)
	c.Assert(resp.Header.Get(sign.HeaderName), qt.Not(qt.Equals), "")

	infoReq := apps.GetAppAuthConfigurationRequest{AppName: "acme", AuthorPublic: appKeyPair.PublicBytes()}
	resp, body = doRequest(t, srv, http.MethodPost, appsInfoEndpoint, infoReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, infoReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	var infoResp apps.GetAppAuthConfigurationResponse
	c.Assert(msgpack.Unmarshal(body, &infoResp), qt.IsNil)
	c.Assert(infoResp.Config.AppName, qt.Equals, "acme")

	editReq := apps.EditAppAuthConfigurationRequest{
		AppName: "acme",
		Config: apps.AppAuthConfiguration{
			AppName:        "acme",
			Identication:   apps.IdenticationRequirement{Type: apps.IdentEmail},
			AllowedFactors: []apps.AuthenticationRequirement{{Type: apps.FactorPassword, MinLength: 12}},
			SignUpOpts:     apps.SignUpOpts{AllowSignUp: false},
		},
	}
	resp, _ = doRequest(t, srv, http.MethodPatch, appsInfoEndpoint, editReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, editReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	removeReq := apps.GetAppAuthConfigurationRequest{AppName: "acme", AuthorPublic: appKeyPair.PublicBytes()}
	resp, _ = doRequest(t, srv, http.MethodDelete, appsRemoveEndpoint, removeReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, removeReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	resp, _ = doRequest(t, srv, http.MethodPost, appsInfoEndpoint, infoReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, infoReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)
}

func TestRegisterAppRejectsBadSignature(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	otherKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)

	registerReq := apps.RegisterAppAuthConfigurationRequest{
		InvitationCode: mintInvitation(t, srv),
		Config:         testAppConfig(appKeyPair),
	}
	resp, _ := doRequest(t, srv, http.MethodPost, appsRegisterEndpoint, registerReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, registerReq, otherKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusUnauthorized)
}

func TestUserPreregisterRegisterAndLogin(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	registerReq := apps.RegisterAppAuthConfigurationRequest{
		InvitationCode: mintInvitation(t, srv),
		Config:         testAppConfig(appKeyPair),
	}
	resp, _ := doRequest(t, srv, http.MethodPost, appsRegisterEndpoint, registerReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, registerReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	resp, body := doRequest(t, srv, http.MethodPost, usersAuthflowEndpoint,
		users.AuthFlowRequest{AppName: "acme", Identifier: "alice@example.com"}, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	regState := resp.Header.Get(headerRegistrationState)
	c.Assert(regState, qt.Not(qt.Equals), "")
	c.Assert(resp.Header.Get(sign.HeaderName), qt.Not(qt.Equals), "")
	var authFlowResp users.RegistrationRequirementsResponse
	c.Assert(msgpack.Unmarshal(body, &authFlowResp), qt.IsNil)

	registerUserReq := users.RegisterUserRequest{
		AppName: "acme",
		Login:   "alice@example.com",
		AuthenticationFlows: []users.AuthenticationFlowRequest{
			{{Type: users.StepPassword, Password: "correct horse battery staple"}},
		},
		TokenRequestType: users.TokenUsageResponseBody,
	}
	resp, body = doRequest(t, srv, http.MethodPost, usersRegisterEndpoint, registerUserReq, map[string]string{
		headerRegistrationState: regState,
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	var loginResp users.LoginResponse
	c.Assert(msgpack.Unmarshal(body, &loginResp), qt.IsNil)
	c.Assert(loginResp.Access, qt.Not(qt.Equals), "")
	c.Assert(loginResp.Refresh, qt.Not(qt.Equals), "")

	resp, body = doRequest(t, srv, http.MethodPost, usersLoginEndpoint, users.LoginRequest{
		AppName:            "acme",
		Login:              "alice@example.com",
		AuthenticationFlow: users.AuthenticationFlowRequest{{Type: users.StepPassword, Password: "correct horse battery staple"}},
		TokenRequestType:   users.TokenUsageResponseBody,
	}, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Get(headerFlowIndex), qt.Equals, "0")
	var secondLogin users.LoginResponse
	c.Assert(msgpack.Unmarshal(body, &secondLogin), qt.IsNil)
	c.Assert(secondLogin.Access, qt.Not(qt.Equals), "")
}

func TestUserRegisterRequiresRegistrationState(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	resp, _ := doRequest(t, srv, http.MethodPost, usersRegisterEndpoint, users.RegisterUserRequest{
		AppName: "acme",
		Login:   "bob@example.com",
		AuthenticationFlows: []users.AuthenticationFlowRequest{
			{{Type: users.StepPassword, Password: "correct horse battery staple"}},
		},
		TokenRequestType: users.TokenUsageResponseBody,
	}, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)
}

func TestUserRegisterDeliversCookiesWhenRequested(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	defer srv.Close()

	appKeyPair, err := crypto.GenerateKeyPair()
	c.Assert(err, qt.IsNil)
	registerReq := apps.RegisterAppAuthConfigurationRequest{
		InvitationCode: mintInvitation(t, srv),
		Config:         testAppConfig(appKeyPair),
	}
	resp, _ := doRequest(t, srv, http.MethodPost, appsRegisterEndpoint, registerReq, map[string]string{
		sign.HeaderName: signHeaderValue(t, registerReq, appKeyPair),
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	resp, _ = doRequest(t, srv, http.MethodPost, usersAuthflowEndpoint,
		users.AuthFlowRequest{AppName: "acme", Identifier: "carol@example.com"}, nil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	regState := resp.Header.Get(headerRegistrationState)

	resp, _ = doRequest(t, srv, http.MethodPost, usersRegisterEndpoint, users.RegisterUserRequest{
		AppName: "acme",
		Login:   "carol@example.com",
		AuthenticationFlows: []users.AuthenticationFlowRequest{
			{{Type: users.StepPassword, Password: "correct horse battery staple"}},
		},
		TokenRequestType: users.TokenUsageCookie,
	}, map[string]string{
		headerRegistrationState: regState,
	})
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	var sawAccess, sawRefresh bool
	for _, ck := range resp.Cookies() {
		if ck.Name == headerAccess {
			sawAccess = true
		}
		if ck.Name == headerRefresh {
			sawRefresh = true
		}
	}
	c.Assert(sawAccess, qt.IsTrue)
	c.Assert(sawRefresh, qt.IsTrue)
}
