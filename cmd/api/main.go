package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/config"
	"github.com/geocoder89/devicewatch/internal/db"
	httpx "github.com/geocoder89/devicewatch/internal/http"
	"github.com/geocoder89/devicewatch/internal/http/handlers"
	"github.com/geocoder89/devicewatch/internal/notifications"
	"github.com/geocoder89/devicewatch/internal/observability"
	"github.com/geocoder89/devicewatch/internal/realtime"
	"github.com/geocoder89/devicewatch/internal/redisclient"
	"github.com/geocoder89/devicewatch/internal/repo/memory"
	"github.com/geocoder89/devicewatch/internal/repo/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// userStore is what both credential stores provide.
type userStore interface {
	auth.UserStore
	Ping(ctx context.Context) error
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("devicewatch stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "devicewatch",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	checks := map[string]handlers.Pinger{}

	// credential store
	var users userStore
	if cfg.UseMemoryStore() {
		log.Warn("using in-memory user store; accounts are lost on restart")
		users = memory.NewUsersRepo()
	} else {
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}

		users = postgres.NewUsersRepo(pool, prom)
	}
	checks["postgres"] = users.Ping

	seedCtx, cancelSeed := config.WithTimeout(10 * time.Second)
	created, err := db.EnsureAdminUser(seedCtx, users, db.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
	})
	cancelSeed()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	hub := realtime.NewHub(log, prom)
	defer hub.Close()

	// redis is optional: denylist + cross-process relay when present
	var (
		denylist  auth.Denylist
		publisher handlers.DevicePublisher = hub
	)

	if cfg.RedisAddr != "" {
		rc, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rc.Close()

		checks["redis"] = rc.Ping
		denylist = auth.NewRedisDenylist(rc.Raw())

		relay := realtime.NewRedisRelay(rc.Raw(), hub, log)
		publisher = relay
		go relay.RunForever(ctx)
	} else {
		mem := auth.NewMemoryDenylist()
		go mem.Run(ctx)
		denylist = mem
	}

	sessions, err := auth.NewManager(cfg.JWTSecret, denylist)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	notifier := notifications.NewProtectedNotifier(notifications.NewLogNotifier(log), notifications.ProtectedNotifierConfig{})
	svc := auth.NewService(users, sessions, notifier, cfg.BaseURL, log)

	router := httpx.NewRouter(httpx.Deps{
		Config:    cfg,
		Log:       log,
		Prom:      prom,
		Gatherer:  reg,
		Auth:      svc,
		Hub:       hub,
		Publisher: publisher,
		Checks:    checks,
	})

	// no WriteTimeout: /socket connections are long-lived and set their own deadlines
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "redis", cfg.RedisAddr != "")
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	// hijacked websocket conns are not tracked by Shutdown
	hub.Close()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
