package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/store-rating/internal/config"
	"github.com/iliyamo/store-rating/internal/handler" // import the handlers that implement business logic
	"github.com/iliyamo/store-rating/internal/metrics"
	"github.com/iliyamo/store-rating/internal/middleware" // guards: authentication, roles, binding, ownership
	"github.com/iliyamo/store-rating/internal/queue"
	"github.com/iliyamo/store-rating/internal/repository"
	"github.com/iliyamo/store-rating/internal/service"
	"github.com/iliyamo/store-rating/internal/validation"
)

// Deps carries everything the HTTP layer needs.  Redis and Publisher are
// optional; without them caching, rate limiting and events are disabled.
type Deps struct {
	Cfg       config.Config
	Log       *logrus.Logger
	DB        *sql.DB
	Redis     *redis.Client
	CacheCfg  config.CacheConfig
	RateCfg   config.RateLimitConfig
	Publisher queue.Publisher
}

// New builds the Echo instance with the global middleware stack and every
// route of the API registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New(validation.NamePolicy{
		UserNameMin:  d.Cfg.UserNameMinLen,
		StoreNameMin: d.Cfg.StoreNameMinLen,
	})
	e.HTTPErrorHandler = middleware.ErrorHandler(d.Log)

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(metrics.Middleware())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.Cfg.CORSAllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomw.BodyLimit("1M"))

	users := repository.NewUserRepo(d.DB)
	stores := repository.NewStoreRepo(d.DB)
	ratings := repository.NewRatingRepo(d.DB)

	cache := middleware.NewResponseCache(d.CacheCfg, d.Redis)
	pub := d.Publisher
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	svc := service.NewRatingService(d.DB,
		service.WithCache(cache),
		service.WithPublisher(pub),
		service.WithLogger(d.Log),
	)

	authn := middleware.Authenticate(d.Cfg.JWTSecret, users)
	limiter := middleware.NewTokenBucket(d.RateCfg, d.Redis, d.Log)

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, users), authn, limiter, users)
	RegisterStores(e, handler.NewStoreHandler(stores, ratings, users, cache, d.Log), authn, cache, stores)
	RegisterOwner(e, handler.NewOwnerHandler(stores, ratings), authn, stores)
	RegisterRatings(e, handler.NewRatingHandler(svc, stores, ratings), authn, limiter)
	RegisterUsers(e, handler.NewUserHandler(d.Cfg, users, stores, ratings, svc), authn, users)
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// liveness, database readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/healthz/db", handler.DBHealth(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers the /v1/auth endpoints.  Every auth route is rate
// limited; register and login are open, the rest need a token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authn, limiter echo.MiddlewareFunc, users middleware.EmailChecker) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register,
		middleware.Bind[handler.RegisterReq](),
		middleware.UniqueEmail("user", users),
	)
	g.POST("/login", a.Login, middleware.Bind[handler.LoginReq]())

	// any authenticated role
	g.GET("/me", a.Me, authn, middleware.RequireRole())
	g.PUT("/password", a.ChangePassword, authn, middleware.RequireRole(), middleware.Bind[handler.PasswordReq]())
}
