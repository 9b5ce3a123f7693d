package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pharmacare-storefront/api/controllers"
	"github.com/angelmondragon/pharmacare-storefront/api/middleware"
	"github.com/angelmondragon/pharmacare-storefront/internal/accounts"
	"github.com/angelmondragon/pharmacare-storefront/internal/identity"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

// NewRouter mounts the storefront API. identityService is nil in fallback
// mode, rateLimiter is nil when no Redis is configured and metricsHandler is
// nil when metrics are not exposed. Closing streams ends open auth event
// streams.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	accountsService accounts.Service,
	identityService identity.Service,
	rateLimiter middleware.RateLimiterStore,
	metricsHandler http.Handler,
	streams *controllers.EventStreams,
	checks ...controllers.ReadinessCheck,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.PublicOrigin, cfg.App.IsDev()),
		middleware.ClientContext(logg, cfg.App.IsProd()),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/storefront", controllers.Storefront(cfg, nil))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, rateLimiter, logg)).Post("/login", controllers.AuthLogin(accountsService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, rateLimiter, logg)).Post("/register", controllers.AuthRegister(accountsService, logg))
		r.Post("/logout", controllers.AuthLogout(accountsService, logg))
		r.Get("/session", controllers.AuthSession(accountsService, logg))
		r.Post("/reset-password", controllers.AuthResetPassword(accountsService, cfg.App.PublicOrigin, logg))
		r.Post("/recover", controllers.AuthRecover(identityService, accountsService, logg))
		r.Get("/confirm", controllers.AuthConfirm(identityService, cfg.App.PublicOrigin, logg))
		r.Get("/events", controllers.AuthEvents(accountsService, streams, logg))
	})

	r.Route("/api/v1/profile", func(r chi.Router) {
		r.Get("/", controllers.ProfileGet(accountsService, logg))
		r.Patch("/", controllers.ProfileUpdate(accountsService, logg))
		r.Post("/avatar", controllers.ProfileAvatar(accountsService, logg))
		r.Post("/password", controllers.ProfilePassword(accountsService, logg))
		r.Get("/orders", controllers.ProfileOrders(accountsService, logg))
	})

	return r
}
