package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/transit-seat-reservation/internal/clock"
	"github.com/iliyamo/transit-seat-reservation/internal/config"
	"github.com/iliyamo/transit-seat-reservation/internal/database"
	"github.com/iliyamo/transit-seat-reservation/internal/handler"
	"github.com/iliyamo/transit-seat-reservation/internal/inventory"
	"github.com/iliyamo/transit-seat-reservation/internal/middleware"
	"github.com/iliyamo/transit-seat-reservation/internal/queue"
	"github.com/iliyamo/transit-seat-reservation/internal/reclaimer"
	"github.com/iliyamo/transit-seat-reservation/internal/repository"
	"github.com/iliyamo/transit-seat-reservation/internal/router"
	"github.com/iliyamo/transit-seat-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	holdCfg := config.LoadHoldConfig()
	queueCfg := config.LoadQueueConfig()

	logger := log.New("transit")
	logger.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)
	if cfg.Env == "dev" {
		logger.SetLevel(log.DEBUG)
	} else {
		logger.SetLevel(log.INFO)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warnj(log.JSON{"msg": "redis unavailable; listing cache, rate limit and sweep election disabled"})
	} else {
		defer rdb.Close()
	}
	listings := middleware.NewListingCache(config.LoadListingCacheConfig(), rdb, logger)

	invOpts := []inventory.Option{inventory.WithLogger(logger), inventory.WithChangeObserver(listings)}
	payOpts := []service.PaymentServiceOption{service.WithPaymentLogger(logger)}
	pubDone := make(chan struct{})
	if queueCfg.Enabled {
		pub := queue.NewPublisher(queueCfg.URL, logger,
			queue.WithBuffer(queueCfg.Buffer), queue.WithDialTimeout(queueCfg.DialTimeout))
		go func() {
			defer close(pubDone)
			_ = pub.Run(ctx)
		}()
		invOpts = append(invOpts, inventory.WithReclaimNotifier(pub))
		payOpts = append(payOpts, service.WithEventPublisher(pub))
		if queueCfg.ConsumerEnabled {
			go func() {
				if err := queue.NewConsumer(queueCfg.URL, queueCfg.LogDir, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Errorj(log.JSON{"msg": "event consumer stopped", "error": err.Error()})
				}
			}()
		}
	} else {
		close(pubDone)
	}
	inv := inventory.New(store, clock.NewSystem(), invOpts...)

	catalog := service.NewCatalogService(inv)
	holds := service.NewHoldService(inv,
		service.WithHoldTTL(holdCfg.TTL),
		service.WithMaxHoldsPerHolder(holdCfg.MaxHoldsPerHolder),
		service.WithHoldLogger(logger),
	)
	payments := service.NewPaymentService(inv, payOpts...)

	var sweepOpts []reclaimer.Option
	if rdb != nil {
		locker := reclaimer.NewRedisLocker(rdb, holdCfg.SweepLockKey, holdCfg.SweepLockTTL)
		defer func() { _ = locker.Release(context.Background()) }()
		sweepOpts = append(sweepOpts, reclaimer.WithLocker(locker))
	}
	go reclaimer.New(inv, holdCfg.SweepInterval, holdCfg.SweepBatch, logger, sweepOpts...).Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Infoj(log.JSON{"method": v.Method, "uri": v.URI, "status": v.Status, "latency_ms": v.Latency.Milliseconds()})
			return nil
		},
	}))

	tickets := handler.NewTicketHandler(catalog)
	router.RegisterRoutes(e)
	router.RegisterPublic(e, tickets, listings.Middleware())
	router.RegisterHolder(e, handler.NewHoldHandler(holds), handler.NewPaymentHandler(payments),
		cfg.JWTSecret, middleware.NewHolderRateLimit(config.LoadRateLimitConfig(), rdb))
	router.RegisterAdmin(e, tickets, cfg.JWTSecret)

	addr := ":" + cfg.Port
	logger.Infoj(log.JSON{"msg": "listening", "addr": addr, "env": cfg.Env, "store": cfg.StoreBackend, "hold_ttl": holdCfg.TTL.String()})
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorj(log.JSON{"msg": "shutdown", "error": err.Error()})
	}
	<-pubDone
}

// openStore returns the configured seat store.  db is nil for the memory
// backend.
func openStore(ctx context.Context, cfg config.Config, logger *log.Logger) (inventory.Store, *sql.DB) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warnj(log.JSON{"msg": "using in-memory store; state is lost on restart"})
		return inventory.NewMemoryStore(), nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("db connect: %v", err)
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatalf("db migrate: %v", err)
		}
	}
	return repository.NewStore(db), db
}
