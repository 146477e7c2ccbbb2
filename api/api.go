// Package api implements the authority's HTTP surface: application registry
// management, user preregistration/registration, and login, wired to the
// apps, users, kv, sign and crypto packages.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.vocdoni.io/dvote/log"

	"github.com/verbalautomation/c3a/apps"
	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/internal"
	"github.com/verbalautomation/c3a/kv"
	"github.com/verbalautomation/c3a/notifications"
	"github.com/verbalautomation/c3a/users"
	"github.com/verbalautomation/c3a/validator"
)

// Route paths, grouped the way the teacher's routes.go groups them.
const (
	healthCheckEndpoint = "/health-check"

	appsGenerateInvitationEndpoint = "/apps/generate-invitation"
	appsRegisterEndpoint           = "/apps/register"
	appsInfoEndpoint               = "/apps/info"
	appsRemoveEndpoint             = "/apps/remove"

	usersAuthflowEndpoint = "/users/authflow"
	usersRegisterEndpoint = "/users/register"
	usersLoginEndpoint    = "/users/login"
)

// Response/request header names.
const (
	headerRegistrationState = "C3A-Registration-State"
	headerAccess            = "C3A-Access"
	headerRefresh           = "C3A-Refresh"
	headerFlowIndex         = "C3A-Flow-Index"
)

// Config carries everything New needs to build an API.
type Config struct {
	Host     string
	Port     int
	KV       *kv.DB
	Apps     *apps.Registry
	Users    *users.Engine
	Notifier notifications.NotificationService
	AdminKey string
	Pool     *internal.WorkerPool
}

// API is the authority's HTTP server.
type API struct {
	db        *kv.DB
	apps      *apps.Registry
	users     *users.Engine
	adminKey  string
	host      string
	port      int
	pool      *internal.WorkerPool
	keys      *kv.AuthorityKeys
	router    http.Handler
	validator *validator.Validator
}

// New builds an API, lazily generating (or loading) the authority's
// Dilithium5 keypair and symmetric key on first run.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("nil api config")
	}
	if len(conf.AdminKey) < 128 {
		return nil, fmt.Errorf("admin key must be at least 128 characters")
	}

	keys, err := conf.KV.InitialSetup(func() ([]byte, []byte, error) {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, nil, err
		}
		return kp.PublicBytes(), kp.PrivateBytes(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize authority keys: %w", err)
	}

	return &API{
		db:        conf.KV,
		apps:      conf.Apps,
		users:     conf.Users,
		adminKey:  conf.AdminKey,
		host:      conf.Host,
		port:      conf.Port,
		pool:      conf.Pool,
		keys:      keys,
		validator: validator.New(),
	}, nil
}

// Start starts the HTTP server (non-blocking).
func (a *API) Start() {
	a.router = a.initRouter()
	go func() {
		addr := fmt.Sprintf("%s:%d", a.host, a.port)
		log.Infow("starting c3a authority", "addr", addr)
		if err := http.ListenAndServe(addr, a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err) //revive:disable:deep-exit
		}
	}()
}

func (a *API) initRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerRegistrationState, "C3A-Sign"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(45 * time.Second))

	// handle registers a route. When model is non-nil, the request body is
	// msgpack-decoded and struct-tag validated against it before h runs; the
	// validated instance is then available via validator.GetValidatedModel.
	handle := func(r chi.Router, method, pattern string, model any, h http.HandlerFunc) {
		log.Infow("new route", "method", method, "path", pattern)
		handler := http.Handler(h)
		if model != nil {
			handler = a.validator.AddModelMiddleware(model)(a.validator.InputValidator(handler))
		}
		switch method {
		case http.MethodGet:
			r.Method(http.MethodGet, pattern, handler)
		case http.MethodPost:
			r.Method(http.MethodPost, pattern, handler)
		case http.MethodPatch:
			r.Method(http.MethodPatch, pattern, handler)
		case http.MethodDelete:
			r.Method(http.MethodDelete, pattern, handler)
		default:
			log.Errorf("unsupported method %s in api initRouter", method)
		}
	}

	handle(r, http.MethodGet, healthCheckEndpoint, nil, a.healthCheckHandler)

	handle(r, http.MethodPost, appsGenerateInvitationEndpoint, apps.GenerateInvitationRequest{}, a.generateInvitationHandler)
	handle(r, http.MethodPost, appsRegisterEndpoint, apps.RegisterAppAuthConfigurationRequest{}, a.registerAppHandler)
	handle(r, http.MethodPost, appsInfoEndpoint, apps.GetAppAuthConfigurationRequest{}, a.getAppInfoHandler)
	handle(r, http.MethodPatch, appsInfoEndpoint, apps.EditAppAuthConfigurationRequest{}, a.editAppInfoHandler)
	// DELETE bodies are not run through the validator middleware (it skips
	// DELETE), so this route decodes and validates its body itself.
	handle(r, http.MethodDelete, appsRemoveEndpoint, nil, a.removeAppHandler)

	handle(r, http.MethodPost, usersAuthflowEndpoint, users.AuthFlowRequest{}, a.authFlowHandler)
	handle(r, http.MethodPost, usersRegisterEndpoint, users.RegisterUserRequest{}, a.registerUserHandler)
	handle(r, http.MethodPost, usersLoginEndpoint, users.LoginRequest{}, a.loginHandler)

	return r
}

func (a *API) healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// doBlocking runs fn on the API's worker pool, keeping blocking store/SMTP
// calls off the request dispatcher goroutine.
func doBlocking(ctx context.Context, pool *internal.WorkerPool, fn func() error) error {
	_, err := internal.Do(ctx, pool, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
