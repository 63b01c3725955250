package http

import (
	"log/slog"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/config"
	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/geocoder89/devicewatch/internal/http/handlers"
	"github.com/geocoder89/devicewatch/internal/http/middlewares"
	"github.com/geocoder89/devicewatch/internal/observability"
	"github.com/geocoder89/devicewatch/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "devicewatch"

type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Auth      *auth.Service
	Hub       *realtime.Hub
	Publisher handlers.DevicePublisher

	// Checks are pinged by /readyz.
	Checks map[string]handlers.Pinger
}

func NewRouter(d Deps) *gin.Engine {
	if !d.Config.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	publisher := d.Publisher
	if publisher == nil {
		publisher = d.Hub
	}

	r := gin.New()

	if err := r.SetTrustedProxies(d.Config.TrustedProxies); err != nil {
		log.Error("invalid trusted proxies, trusting none", "err", err)
		_ = r.SetTrustedProxies(nil)
	}

	guardCfg := middlewares.DefaultGuardConfig()
	guardCfg.SecureCookie = !d.Config.IsLocal()
	guard := middlewares.NewGuard(d.Auth.Sessions(), guardCfg, d.Prom, log)

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(d.Prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders(!d.Config.IsLocal()))
	r.Use(middlewares.CORSMiddleware(d.Config.AllowedOrigins))
	r.Use(guard.Handler())

	// ops
	health := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	authHandler := handlers.NewAuthHandler(d.Auth, handlers.NewSessionCookie(!d.Config.IsLocal()), d.Prom, log)
	rt := handlers.NewRealtimeHandler(d.Hub, publisher, d.Config.AllowedOrigins)

	api := r.Group("/api")
	api.Use(middlewares.RequireJSON())
	api.Use(middlewares.MaxBodyBytes(middlewares.DefaultMaxBody))

	// public auth endpoints, limited per IP
	limiter := middlewares.NewRateLimiter(30, 10)
	public := api.Group("/auth", limiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		public.POST("/login", authHandler.Login)
		public.POST("/register", authHandler.Register)
		public.POST("/forgot-password", authHandler.ForgotPassword)
		public.POST("/reset-password", authHandler.ResetPassword)
	}

	api.POST("/auth/logout", authHandler.Logout)
	api.GET("/auth/me", authHandler.Me)

	admin := api.Group("/admin", middlewares.RequireRole(user.RoleAdmin))
	admin.GET("/realtime", rt.Stats)

	// publishing is limited per signed-in user
	publishLimiter := middlewares.NewRateLimiter(120, 20)
	managers := api.Group("/managers", middlewares.RequireRole(user.RoleManager, user.RoleAdmin))
	managers.POST("/devices/:id/events", publishLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), rt.PublishDeviceEvent)

	r.GET("/socket", rt.Socket)

	r.NoRoute(handlers.NewPagesHandler(d.Config.WebDir).NoRoute)

	return r
}
