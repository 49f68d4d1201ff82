package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"

	_ "github.com/aussiebroadwan/fapiauth/api/authserver" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// DefaultMaxBodyBytes caps form bodies on every endpoint.
const DefaultMaxBodyBytes = 64 << 10

// Config holds the deployment settings the handlers need.
type Config struct {
	Issuer       string
	Algorithm    string
	BuildVersion string
	Scopes       []string

	// OperatorToken guards /keys/*. Empty disables those endpoints.
	OperatorToken string

	SubjectHeader string
	CertHeader    string
	MaxBodyBytes  int64
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	cfg       Config
	startTime time.Time
	logger    *slog.Logger
	store     store.Store
	keys      *jwtx.KeyManager
	metrics   *metrics.Metrics

	ClientAuthenticator *service.ClientAuthenticator
	PARService          *service.PARService
	AuthorizeService    *service.AuthorizeService
	TokenService        *service.TokenService
	AccessValidator     *service.AccessTokenValidator
	KeyRotationService  *service.KeyRotationService
}

// NewRouter returns a router with no routes; set the services, then call
// ApplyRoutes.
func NewRouter(
	cfg Config,
	st store.Store,
	keys *jwtx.KeyManager,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	r := &Router{
		Mux:       http.NewServeMux(),
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
		store:     st,
		keys:      keys,
		metrics:   m,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.MaxBodyBytes(cfg.MaxBodyBytes),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerWellKnown()
	r.registerKeys()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			FAPI Authorization Server API
//	@version		0.1.0
//	@description	FAPI 2.0 authorization server: pushed authorization requests, PKCE, sender-constrained tokens with DPoP,
//	@description	and client authentication by mutual TLS or private_key_jwt.
//	@description
//	@description				Tokens are signed with the configured algorithm (PS256 by default) and verify against the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/fapiauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token as "Bearer {token}" or "DPoP {token}", or the operator token for /keys.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) clients() clientAuth {
	return clientAuth{Authenticator: r.ClientAuthenticator, CertHeader: r.cfg.CertHeader}
}

func (r *Router) registerOAuth2() {
	// POST /par - moderate, keyed by IP and client
	parHandler := &PARHandler{Clients: r.clients(), PAR: r.PARService}
	r.Mux.Handle("POST /par",
		httpx.Chain(parHandler,
			httpx.RateLimitByIPAndFormField(httpx.ModerateLimit, "client_id"),
		),
	)

	// GET /authorize - lenient, user agents follow redirects through it
	authorizeHandler := &AuthorizeHandler{
		Authorize:     r.AuthorizeService,
		SubjectHeader: r.cfg.SubjectHeader,
	}
	r.Mux.Handle("GET /authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /token - moderate, keyed by IP and client to slow code guessing
	tokenHandler := &TokenHandler{Clients: r.clients(), Tokens: r.TokenService}
	r.Mux.Handle("POST /token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.ModerateLimit, "client_id"),
		),
	)

	// POST /introspect - lenient, resource servers call it per request
	introspectHandler := &IntrospectHandler{Clients: r.clients(), Access: r.AccessValidator}
	r.Mux.Handle("POST /introspect",
		httpx.Chain(introspectHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	userinfo := httpx.Chain(&UserInfoHandler{},
		httpx.RateLimitByIP(httpx.LenientLimit),
		httpx.AuthnMiddleware(AccessTokenAuthenticator(r.AccessValidator)),
	)
	r.Mux.Handle("GET /userinfo", userinfo)
}

func (r *Router) registerWellKnown() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	discovery := DiscoveryConfig{
		Issuer:    r.cfg.Issuer,
		Algorithm: r.cfg.Algorithm,
		Scopes:    r.cfg.Scopes,
	}
	if r.AuthorizeService != nil {
		discovery.CodeTTL = r.AuthorizeService.CodeTTL
	}
	if r.TokenService != nil {
		discovery.AccessTTL = r.TokenService.AccessTTL
		discovery.RefreshTTL = r.TokenService.RefreshTTL
	}
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(discovery),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/fapi-configuration",
		httpx.Chain(FAPIConfigurationHandler(discovery),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerKeys() {
	h := &KeyRotationHandler{Rotation: r.KeyRotationService}
	operator := httpx.RequireStaticBearer(r.cfg.OperatorToken)

	r.Mux.Handle("GET /keys/info",
		httpx.Chain(http.HandlerFunc(h.HandleInfo),
			httpx.RateLimitByIP(httpx.StrictLimit),
			operator,
		),
	)
	r.Mux.Handle("POST /keys/rotate",
		httpx.Chain(http.HandlerFunc(h.HandleRotate),
			httpx.RateLimitByIP(httpx.StrictLimit),
			operator,
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.cfg.BuildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.cfg.BuildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
