package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/projection"
	"github.com/platinummonkey/warden/pkg/tenants"
)

const (
	actorHeader          = "X-Actor"
	idempotencyKeyHeader = "Idempotency-Key"
)

// AccountService is the service account use-case surface the API calls
type AccountService interface {
	Create(ctx context.Context, req accounts.CreateRequest) (*accounts.CreatedAccount, error)
	Get(ctx context.Context, tenantID, id string) (*projection.View, error)
	List(ctx context.Context, tenantID string, filter projection.Filter) ([]projection.View, error)
	UpdateDetails(ctx context.Context, req accounts.UpdateDetailsRequest) (*projection.View, error)
	AssignRoles(ctx context.Context, req accounts.RolesRequest) (*projection.View, error)
	RemoveRoles(ctx context.Context, req accounts.RolesRequest) (*projection.View, error)
	RotateSecret(ctx context.Context, req accounts.AccountRequest) (*accounts.RotatedSecret, error)
	Activate(ctx context.Context, req accounts.AccountRequest) (*projection.View, error)
	Deactivate(ctx context.Context, req accounts.AccountRequest) (*projection.View, error)
	Authenticate(ctx context.Context, req accounts.AuthenticateRequest) (*projection.View, error)
}

// TenantService manages tenants
type TenantService interface {
	Create(ctx context.Context, req tenants.CreateTenantRequest) (*tenants.Tenant, error)
	Get(ctx context.Context, id string) (*tenants.Tenant, error)
	List(ctx context.Context, status *tenants.Status) ([]*tenants.Tenant, error)
	Update(ctx context.Context, id string, req tenants.UpdateTenantRequest) (*tenants.Tenant, error)
}

// Options configures a Server. Accounts and Tenants are required.
type Options struct {
	Accounts AccountService
	Tenants  TenantService
	// Audit is optional; without it the audit route is not registered
	Audit audit.Searcher
	// AuthLimiter, when set, throttles the authenticate route per tenant
	// and client IP
	AuthLimiter middleware.Limiter
	AuthLimit   *middleware.RateLimitConfig
	// TrustProxyHeaders reads the client IP from forwarding headers
	TrustProxyHeaders bool
	Logger            *observability.Logger
	Metrics           *observability.Metrics
}

// Server represents our API server
type Server struct {
	accounts AccountService
	tenants  TenantService
	audit    audit.Searcher
	limiter  middleware.Limiter
	limit    *middleware.RateLimitConfig
	clientIP func(*http.Request) string
	logger   *observability.Logger
	metrics  *observability.Metrics
	router   *mux.Router
	handler  http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoopMetrics()
	}

	s := &Server{
		accounts: opts.Accounts,
		tenants:  opts.Tenants,
		audit:    opts.Audit,
		limiter:  opts.AuthLimiter,
		limit:    opts.AuthLimit,
		clientIP: middleware.ClientIPFunc(opts.TrustProxyHeaders),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/tenants", s.createTenant).Methods("POST")
	v1.HandleFunc("/tenants", s.listTenants).Methods("GET")
	v1.HandleFunc("/tenants/{tenant}", s.getTenant).Methods("GET")
	v1.HandleFunc("/tenants/{tenant}", s.updateTenant).Methods("PATCH")

	v1.HandleFunc("/tenants/{tenant}/service-accounts", s.createServiceAccount).Methods("POST")
	v1.HandleFunc("/tenants/{tenant}/service-accounts", s.listServiceAccounts).Methods("GET")
	v1.Handle("/tenants/{tenant}/service-accounts/authenticate", s.authenticateHandler()).Methods("POST")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}", s.getServiceAccount).Methods("GET")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}", s.updateServiceAccount).Methods("PATCH")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}/roles", s.assignRoles).Methods("POST")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}/roles", s.removeRoles).Methods("DELETE")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}/rotate-secret", s.rotateSecret).Methods("POST")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}/activate", s.activate).Methods("POST")
	v1.HandleFunc("/tenants/{tenant}/service-accounts/{id}/deactivate", s.deactivate).Methods("POST")

	if s.audit != nil {
		v1.HandleFunc("/tenants/{tenant}/audit", s.exportAudit).Methods("GET")
	}
}

func (s *Server) authenticateHandler() http.Handler {
	h := http.Handler(http.HandlerFunc(s.authenticate))
	if s.limiter == nil {
		return h
	}
	return middleware.RateLimit(s.limiter, s.limit, s.authLimitKey, s.logger)(h)
}

// authLimitKey buckets authentication attempts by tenant and client IP
func (s *Server) authLimitKey(r *http.Request) string {
	return "auth:" + mux.Vars(r)["tenant"] + ":" + s.clientIP(r)
}

// Router exposes the route table, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the routes wrapped in request ID, logging, recovery,
// content type and tracing middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) wrap(h http.Handler) http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		actorContext,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.ContentTypeMiddleware,
	)
	return otelhttp.NewHandler(chain(h), "warden-api")
}

// actorContext puts X-Actor into the request context so request logs carry it
func actorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get(actorHeader); actor != "" {
			r = r.WithContext(observability.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// caller reads the acting identity and optional idempotency key. It writes a
// 400 and returns false when X-Actor is missing.
func caller(w http.ResponseWriter, r *http.Request) (accounts.Caller, bool) {
	actor, ok := httputil.RequireHeader(w, r, actorHeader)
	if !ok {
		return accounts.Caller{}, false
	}
	return accounts.Caller{
		Actor:     actor,
		CommandID: r.Header.Get(idempotencyKeyHeader),
	}, true
}
