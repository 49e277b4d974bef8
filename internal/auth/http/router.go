package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"

	_ "github.com/aussiebroadwan/tabauth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     httpx.AccessVerifier
	store        Pinger
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthService *service.AuthService
	Cookies     CookieConfig
	RateLimits  httpx.RateLimits
	Metrics     http.Handler // Optional: /metrics is only served when set
}

func NewRouter(
	verifier httpx.AccessVerifier,
	buildVersion string,
	st Pinger,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		store:        st,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		RateLimits:   httpx.DefaultRateLimits,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.RateLimits = r.RateLimits.WithDefaults()

	r.registerSession()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			TabAuth Session Service API
//	@version		0.1.0
//	@description	Session and refresh-token rotation for the tab services.
//	@description
//	@description				Access tokens are short lived HS256 JWTs returned in the body. Refresh tokens rotate on every use and only travel in the HttpOnly refreshToken cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tabauth
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
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	// POST /auth/login - strict rate limit by IP + username (credential guessing)
	loginHandler := &LoginHandler{Auth: r.AuthService, Cookies: r.Cookies}
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIPAndJSONField(r.RateLimits.Strict, "username"),
		),
	)

	// /auth/refresh - moderate rate limit, one limiter shared by both methods
	refresh := httpx.Chain(&RefreshHandler{Auth: r.AuthService, Cookies: r.Cookies},
		httpx.RateLimitByIP(r.RateLimits.Moderate),
	)
	r.Mux.Handle("GET /auth/refresh", refresh)
	r.Mux.Handle("POST /auth/refresh", refresh)

	// POST /auth/logout - lenient, logout never fails
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(&LogoutHandler{Auth: r.AuthService, Cookies: r.Cookies},
			httpx.RateLimitByIP(r.RateLimits.Lenient),
		),
	)

	// GET /auth/session - authenticated, lenient rate limit by user
	r.Mux.Handle("GET /auth/session",
		httpx.Chain(&SessionHandler{},
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(r.RateLimits.Lenient),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.RateLimits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(r.RateLimits.Lenient),
		),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics)
	}
}
