package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/auth"
	"github.com/iliyamo/support-desk/internal/config"
	"github.com/iliyamo/support-desk/internal/database"
	"github.com/iliyamo/support-desk/internal/handler"
	"github.com/iliyamo/support-desk/internal/logger"
	"github.com/iliyamo/support-desk/internal/metrics"
	"github.com/iliyamo/support-desk/internal/middleware"
	"github.com/iliyamo/support-desk/internal/queue"
	"github.com/iliyamo/support-desk/internal/ratelimit"
	"github.com/iliyamo/support-desk/internal/repository"
	"github.com/iliyamo/support-desk/internal/router"
	"github.com/iliyamo/support-desk/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenMySQL(ctx, cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("mysql schema: %w", err)
	}

	mongoClient, mdb, err := database.OpenMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if cfg.RateLimit.Store == config.StoreRedis {
			return fmt.Errorf("redis: %w", err)
		}
		log.Warn("redis unavailable, response cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	codec, err := auth.NewCodec(cfg.Auth.JWTSecret, auth.WithLeeway(cfg.Auth.TokenLeeway))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	limiter, closeStore, err := newLimiter(cfg.RateLimit, rdb)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer closeStore()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	products := repository.NewProductRepo(mdb)
	tickets := repository.NewTicketRepo(mdb)
	if err := products.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("product indexes: %w", err)
	}
	if err := tickets.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ticket indexes: %w", err)
	}
	if err := seedAdmin(ctx, cfg, users, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	var events handler.TicketEvents
	if cfg.RabbitMQ.Enabled {
		pub := service.NewTicketPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
		defer pub.Close()
		events = pub

		consumer := &queue.Consumer{
			URL:    cfg.RabbitMQ.URL,
			Queue:  cfg.RabbitMQ.Queue,
			LogDir: cfg.RabbitMQ.LogDir,
			Log:    log.Named("ticket-consumer"),
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("ticket consumer stopped", zap.Error(err))
			}
		}()
	}

	var cache redis.Cmdable
	if rdb != nil {
		cache = rdb
	}
	loginLimit := middleware.RateLimit(limiter, log, m)
	if !cfg.RateLimit.Enabled {
		loginLimit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	gates := router.Gates{
		Authenticate: middleware.Authenticate(codec, log, m),
		LoginLimit:   loginLimit,
		Cache:        middleware.ResponseCache(cfg.Cache, cache, log),
		RequireRole: func(roles auth.RoleSet) echo.MiddlewareFunc {
			return middleware.RequireRole(roles, log, m)
		},
	}

	checks := map[string]handler.Check{
		"mysql": db.PingContext,
		"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	proxies, err := cfg.HTTP.TrustedNets()
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.IPExtractor = router.IPExtractor(proxies)
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, handler.NewHealthHandler(checks), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.RegisterUsers(e, handler.NewAuthHandler(cfg.Auth, users, tokens, codec, log), gates)
	router.RegisterProducts(e, handler.NewProductHandler(products), gates)
	router.RegisterTickets(e, handler.NewTicketHandler(tickets, events, log), gates)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLimiter builds the login limiter on the configured store. The returned
// func releases the store.
func newLimiter(cfg config.RateLimitConfig, rdb *redis.Client) (*ratelimit.Limiter, func(), error) {
	var (
		store   ratelimit.Store
		release = func() {}
	)
	switch cfg.Store {
	case config.StoreRedis:
		if rdb == nil {
			return nil, nil, config.ErrRedisNotReady
		}
		store = ratelimit.NewRedisStore(rdb)
	default:
		mem := ratelimit.NewMemoryStore()
		store = mem
		release = func() { _ = mem.Close() }
	}
	l, err := ratelimit.New(store, cfg.Limiter())
	if err != nil {
		release()
		return nil, nil, err
	}
	return l, release, nil
}

// seedAdmin creates the bootstrap administrator when ADMIN_EMAIL and
// ADMIN_PASSWORD are set and no account with that email exists yet.
func seedAdmin(ctx context.Context, cfg config.Config, users *repository.UserRepo, log *zap.Logger) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return nil
	}
	_, err := users.GetByEmail(ctx, cfg.Admin.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	id, err := users.Create(ctx, repository.NewUser{
		Name:     cfg.Admin.Name,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
		Role:     string(auth.RoleAdmin),
	}, cfg.Auth.BcryptCost)
	if err != nil && !errors.Is(err, repository.ErrEmailExists) {
		return err
	}
	log.Info("admin account seeded", zap.Uint64("user_id", id))
	return nil
}
