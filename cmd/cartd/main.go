package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/cache"
	"github.com/CreativeSeo33/new3-sub001/internal/config"
	"github.com/CreativeSeo33/new3-sub001/internal/delivery"
	"github.com/CreativeSeo33/new3-sub001/internal/httpapi"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/CreativeSeo33/new3-sub001/internal/repository"
	"github.com/CreativeSeo33/new3-sub001/internal/service"
	"github.com/CreativeSeo33/new3-sub001/internal/sweeper"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", "error", err)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repository.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		return err
	}

	pool, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	cur, err := currency.ParseISO(cfg.Currency)
	if err != nil {
		return err
	}

	var cartCache cache.CartCache = cache.Noop{}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, running without cart cache", "addr", cfg.RedisAddr, "error", err)
	} else {
		cartCache = cache.NewRedisCache(redisClient)
		defer func() { _ = redisClient.Close() }()
	}

	cartRepo := repository.NewCart(pool)
	idemRepo := repository.NewIdempotency(pool)
	catalog := repository.NewProductCatalog(pool)

	locks := service.NewCartLocks()
	live := service.NewLivePriceCalculator(catalog)
	manager := service.NewCartManager(cartRepo, catalog, live, locks, cartCache, log, cfg.LockWait, cfg.CartTTL)
	cctx := service.NewCartContext(cartRepo, locks, cartCache, log, cur, cfg.CartTTL, cfg.LockWait)
	reader := service.NewCartReader(cctx, cartCache, log)
	idem := service.NewIdempotencyService(idemRepo, log, cfg.StaleAfter, cfg.Retention)

	pricer := delivery.NewTablePricer(nil, decimal.NewFromInt(10), decimal.NewFromInt(100))

	handler := httpapi.NewCartHandler(reader, cctx, manager, idem, live, pricer, log)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sw := sweeper.New(cartRepo, idem, log)
	go sw.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("cart service listening", "addr", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}
