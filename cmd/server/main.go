package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tinkoff-merchant/internal/admin"
	"tinkoff-merchant/internal/config"
	"tinkoff-merchant/internal/cron"
	"tinkoff-merchant/internal/db"
	"tinkoff-merchant/internal/event"
	"tinkoff-merchant/internal/logger"
	"tinkoff-merchant/internal/middleware"
	"tinkoff-merchant/internal/payment"
	"tinkoff-merchant/internal/payment/webhook"
)

const (
	dedupTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(addr string, handler http.Handler) error {
		return http.ListenAndServe(addr, handler)
	}
)

type server struct {
	handler   http.Handler
	scheduler *cron.Scheduler
	limiter   *middleware.RateLimiter
}

func main() {
	if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if !cfg.Merchant.HasKeys() {
		return fmt.Errorf("cannot accept notifications: %w", payment.ErrMissingKeys)
	}

	database := initDBFunc(cfg)
	defer database.Close()

	srv := newServer(cfg, database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.limiter.Cleanup(ctx)

	if err := srv.scheduler.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		srv.scheduler.Stop(stopCtx)
	}()

	logger.L().Info("payment server running", zap.String("port", cfg.AppPort))
	return startServerFunc(":"+cfg.AppPort, srv.handler)
}

func newServer(cfg *config.Config, database *sql.DB) *server {
	log := logger.L()

	bus := event.NewBus()
	bus.Subscribe(event.PaymentUpdated, logPaymentUpdate)

	repo := payment.NewRepository(database)
	client := payment.NewClient(cfg.Merchant)
	svc := payment.NewService(repo, client, bus, payment.Defaults{
		Taxation: payment.Taxation(cfg.Merchant.Taxation),
		ItemTax:  payment.Tax(cfg.Merchant.ItemTax),
	})

	deduper, err := webhook.NewDeduper(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, dedupTTL)
	if err != nil {
		log.Warn("Redis unavailable for notification dedup, using in-memory fallback", zap.Error(err))
	}

	notifications := webhook.NewHandler(svc, client, deduper)
	adminHandler := admin.NewHandler(svc)
	limiter := middleware.NewRateLimiter(cfg.InternalKey, "/admin/")

	router := setupRouter(notifications, notifications.Stats, adminHandler)

	var handler http.Handler = router
	handler = limiter.Middleware(handler)
	handler = middleware.AuthMiddleware([]byte(cfg.JWTSecret))(handler)
	handler = logger.LoggingMiddleware(handler)
	handler = logger.RequestIDMiddleware(handler)

	return &server{
		handler:   handler,
		scheduler: cron.New(cfg.StatusSyncSchedule, repo, svc, log.Named("cron")),
		limiter:   limiter,
	}
}

func setupRouter(
	notifications http.Handler,
	stats func() map[string]uint64,
	adminHandler *admin.Handler,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle(webhook.Path, notifications)
	adminHandler.Register(mux, middleware.RequireAdmin)
	mux.Handle("GET /admin/metrics", middleware.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"notifications": stats()})
	})))

	return mux
}

func logPaymentUpdate(evt event.Event) error {
	p, ok := evt.Payload.(*payment.Payment)
	if !ok {
		return nil
	}

	log := logger.L().With(
		zap.String("order_id", p.OrderID),
		zap.String("payment_id", p.PaymentID),
		zap.String("status", string(p.Status)),
	)
	if p.IsPaid() {
		log.Info("order paid")
		return nil
	}
	log.Debug("payment state changed")
	return nil
}
