package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vendfleet-backend/internal/auth"
	"vendfleet-backend/internal/cache"
	"vendfleet-backend/internal/config"
	"vendfleet-backend/internal/database"
	"vendfleet-backend/internal/db"
	"vendfleet-backend/internal/events"
	"vendfleet-backend/internal/handlers"
	"vendfleet-backend/internal/health"
	h "vendfleet-backend/internal/http"
	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/middleware"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/objectstore"
	"vendfleet-backend/internal/realtime"
	"vendfleet-backend/internal/repositories"
	"vendfleet-backend/internal/repositories/memory"
	"vendfleet-backend/internal/services"
	"vendfleet-backend/internal/timeutil"
)

// storage bundles the store with the outbox it writes to.
type storage interface {
	services.MaterialRequestStore
	events.Outbox
}

func main() {
	migrationsDir := flag.String("migrations", "migrations", "directory with *.sql migrations")
	printToken := flag.Bool("print-token", false, "print a signed token for -org/-user/-role and exit")
	tokenOrg := flag.String("org", "", "organization id for -print-token")
	tokenUser := flag.String("user", "", "user id for -print-token")
	tokenRole := flag.String("role", "", "role for -print-token")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.App.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := timeutil.SetLocation(cfg.App.Timezone); err != nil {
		log.Warn("unknown timezone, keeping default", "timezone", cfg.App.Timezone, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Object store: order sheet archive and JWT secret fallback
	var objects *objectstore.Client
	if cfg.ObjectStore.Enabled {
		objects, err = objectstore.New(ctx, cfg)
		if err != nil {
			log.Warn("object store unavailable, archiving disabled", "error", err)
			objects = nil
		}
	}
	if cfg.JWT.Secret == "" && objects != nil {
		secret, err := objectstore.FetchJWTSecret(ctx, cfg)
		if err != nil {
			log.Warn("could not fetch JWT secret from object store", "error", err)
		} else {
			cfg.JWT.Secret = secret
			log.Info("JWT secret loaded from object store")
		}
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT secret not configured; set JWT_SECRET")
	}
	jwtManager := auth.NewJWTManager(cfg)

	if *printToken {
		token, err := jwtManager.GenerateToken(models.Actor{OrganizationID: *tokenOrg, UserID: *tokenUser, Role: *tokenRole})
		if err != nil {
			log.Fatal("generate token", "error", err)
		}
		fmt.Println(token)
		return
	}

	// Storage
	var (
		pool  *pgxpool.Pool
		store storage
	)
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		store = memory.NewStore()
	case "postgres", "":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err = db.Connect(connectCtx, cfg)
		cancel()
		if err != nil {
			log.Fatal("database connection failed", "error", err)
		}
		defer pool.Close()

		log.Info("running database migrations", "dir", *migrationsDir)
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = database.NewMigrator(pool, *migrationsDir, log).RunMigrations(migrateCtx)
		cancel()
		if err != nil {
			log.Fatal("migrations failed", "error", err)
		}
		store = repositories.NewMaterialRequestRepository(pool)
	default:
		log.Fatal("unknown storage driver", "driver", cfg.Storage.Driver)
	}

	// Redis: stats cache and cross-instance event bus, both optional
	redisReady := false
	if cfg.Redis.Addr != "" {
		if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			log.Warn("redis unavailable, running without cache and event bus", "addr", cfg.Redis.Addr, "error", err)
		} else {
			redisReady = true
			defer cache.Close()
			log.Info("redis connected", "addr", cfg.Redis.Addr)
		}
	}

	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	publishers := events.NewMultiPublisher(events.NewLogPublisher(log))
	if redisReady {
		redisPublisher := events.NewRedisPublisher(cache.GetClient(), cfg.Redis.EventsChannel, log)
		publishers.Add(redisPublisher)
		// Every instance relays the bus to its own websocket clients.
		if err := redisPublisher.Subscribe(ctx, func(e models.MaterialRequestEvent) { hub.Publish(ctx, e) }); err != nil {
			log.Warn("redis subscribe failed, relaying locally", "error", err)
			publishers.Add(hub)
		}
	} else {
		publishers.Add(hub)
	}

	dispatcher := events.NewDispatcher(store, publishers, cfg.OutboxInterval(), cfg.Outbox.BatchSize, log)
	dispatcher.SetMaxAttempts(cfg.Outbox.MaxAttempts)
	go dispatcher.Run(ctx)

	// Services
	materialRequestService := services.NewMaterialRequestService(store, log)
	materialRequestService.SetNotifier(dispatcher)
	queryService := services.NewMaterialRequestQueryService(store, log)
	if redisReady {
		statsCache := cache.NewStatsCache(cfg.StatsTTL())
		materialRequestService.SetStatsCache(statsCache)
		queryService.SetStatsCache(statsCache)
	}
	orderSheetService := services.NewOrderSheetService(store, log)
	if objects != nil {
		orderSheetService.SetArchiver(objects)
	}

	// Health
	var dbPinger health.Pinger
	if pool != nil {
		dbPinger = pool
	}
	var redisProbe func() bool
	if cfg.Redis.Addr != "" {
		redisProbe = cache.IsHealthy
	}
	healthChecker := health.NewHealthChecker(dbPinger, redisProbe)

	router := h.NewRouter(
		handlers.NewMaterialRequestHandler(materialRequestService, queryService, orderSheetService),
		handlers.NewRealtimeHandler(hub),
		handlers.NewHealthHandler(healthChecker),
		middleware.NewAuthMiddleware(jwtManager),
	)
	handler := h.Wrap(router, middleware.PanicRecovery(log), middleware.NewCORS(cfg))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Publish whatever committed during shutdown.
	if _, err := dispatcher.DispatchOnce(shutdownCtx); err != nil {
		log.Warn("final outbox flush failed", "error", err)
	}
}
