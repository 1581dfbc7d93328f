package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/concierge/config"
	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/agent/telemetry"
	"github.com/mohammad-safakhou/concierge/internal/runtime"
	"github.com/mohammad-safakhou/concierge/internal/session"
	"github.com/mohammad-safakhou/concierge/internal/store"
)

func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	// Durable history is mandatory for the API server; the REPL can run
	// without it but signups and approvals need somewhere to live.
	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	sessions, err := session.NewStore(ctx, cfg.Storage.Sessions)
	if err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(cfg, orchLogger, tele)
	if err != nil {
		return err
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}
	auth, err := initAuth(ctx, st, secret)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(runtime.EchoAuthMiddleware(secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(200, MeResponse{UserID: c.Get("user_id").(string)})
	})

	ch := &ChatHandler{
		Orch:     orch,
		Sessions: sessions,
		Store:    st,
		TTL:      cfg.Storage.Sessions.TTL,
		Logger:   log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	ch.Register(api, secret)

	// retention sweeps; redis lock only when the session backend has one
	var rdb *redis.Client
	if session.StoreType(cfg.Storage.Sessions.Backend) == session.RedisStore {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Sessions.Redis.Addr(),
			Password: cfg.Storage.Sessions.Redis.Password,
			DB:       cfg.Storage.Sessions.Redis.DB,
		})
	}
	sched := &Scheduler{
		Cfg:      cfg.Retention,
		Sessions: sessions,
		Store:    st,
		Rdb:      rdb,
		Stop:     make(chan struct{}),
		Logger:   log.New(log.Writer(), "[RETENTION] ", log.LstdFlags),
	}
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Address
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
