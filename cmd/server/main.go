package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chaikadai/backend/internal/billing"
	"chaikadai/backend/internal/bulk"
	"chaikadai/backend/internal/cache"
	"chaikadai/backend/internal/config"
	"chaikadai/backend/internal/httpapi"
	"chaikadai/backend/internal/notify"
	"chaikadai/backend/internal/service"
	"chaikadai/backend/internal/stock"
	"chaikadai/backend/internal/store"
	"chaikadai/backend/internal/store/memory"
	pgstore "chaikadai/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	menuCache := cache.MenuCache(cache.NoopMenuCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisMenuCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			menuCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.ShortageWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.ShortageWebhookURL)
		log.Println("shortage alerts: webhook")
	}

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		log.Printf("unknown timezone %q, using UTC", cfg.BusinessTimezone)
		loc = time.UTC
	}

	ledger := stock.New(repo, notifier,
		stock.WithLocation(loc),
		stock.WithWindow(cfg.SpecialWindowStart, cfg.SpecialWindowEnd),
	)
	taxes := billing.NewTaxTable(repo)
	engine := billing.NewEngine(taxes)
	pipeline := bulk.New(repo, ledger, taxes, bulk.WithLocation(loc))

	if copied, err := repo.LoadDailySnapshot(ctx, time.Now().In(loc).Format("2006-01-02")); err != nil {
		log.Printf("initial stock snapshot failed: %v", err)
	} else if copied > 0 {
		log.Printf("stock snapshot loaded, %d items", copied)
	}

	svc := service.New(repo, ledger, engine, taxes, pipeline, menuCache,
		time.Duration(cfg.MenuCacheTTLSeconds)*time.Second, cfg.ReplenishTarget)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SpecialWindowStart < 0 || cfg.SpecialWindowEnd > 23 || cfg.SpecialWindowStart > cfg.SpecialWindowEnd {
		return fmt.Errorf("special window must satisfy 0 <= start <= end <= 23")
	}
	return nil
}
