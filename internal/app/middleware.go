package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/munesh14/first-exchange-hub-sub000/internal/observability"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/httpx"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Identity headers set by the gateway in front of the service.
const (
	HeaderActorID         = "X-Actor-ID"
	HeaderActorRoles      = "X-Actor-Roles"
	HeaderActorDepartment = "X-Actor-Department"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the service middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.AppRateLimit > 0 {
			limit = cfg.Config.AppRateLimit
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request rejected by security policy")
					return
				}
				next.ServeHTTP(w, r)
			})
		},
	}
	if !InTestMode() {
		middlewares = append(middlewares, httprate.Limit(limit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
			}),
		))
	}
	middlewares = append(middlewares, ActorMiddleware(logger))
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// ActorMiddleware reads the gateway identity headers into the request
// context. Requests without X-Actor-ID pass through anonymously; handlers
// that need an actor reject them.
func ActorMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := parseActor(raw, r.Header.Get(HeaderActorRoles), r.Header.Get(HeaderActorDepartment))
			if err != nil {
				logger.Warn("invalid actor headers", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid actor identity headers")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func parseActor(id, roles, department string) (shared.Actor, error) {
	actorID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || actorID <= 0 {
		return shared.Actor{}, shared.ErrValidation
	}
	actor := shared.Actor{ID: actorID}
	for _, role := range strings.Split(roles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			actor.Roles = append(actor.Roles, strings.ToUpper(role))
		}
	}
	if department = strings.TrimSpace(department); department != "" {
		dept, err := strconv.ParseInt(department, 10, 64)
		if err != nil || dept < 0 {
			return shared.Actor{}, shared.ErrValidation
		}
		actor.DepartmentID = dept
	}
	return actor, nil
}
