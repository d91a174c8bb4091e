// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elearn-entitlements/internal/config"
	iapAdapter "elearn-entitlements/internal/infra/adapters/iap"
	payAdapter "elearn-entitlements/internal/infra/adapters/payment"
	"elearn-entitlements/internal/infra/api"
	pg "elearn-entitlements/internal/infra/db/postgres"
	"elearn-entitlements/internal/infra/dispatch"
	"elearn-entitlements/internal/infra/logging"
	"elearn-entitlements/internal/infra/metrics"
	red "elearn-entitlements/internal/infra/redis"
	"elearn-entitlements/internal/infra/sched"
	"elearn-entitlements/internal/infra/security"
	"elearn-entitlements/internal/infra/worker"
	"elearn-entitlements/internal/usecase"

	"elearn-entitlements/internal/domain/ports/adapter"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop gateway fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient, 30, time.Minute)
	keyCache := red.NewKeyCache(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txm := pg.NewTxManager(pool)
	entryRepo := pg.NewEntitlementRepo(pool)
	productRepo := pg.NewProductRepo(pool)
	unlockRepo := pg.NewUnlockRepo(pool)
	notifRepo := pg.NewNotificationLogRepo(pool)

	// ---- Adapters ----
	sigVerifier, err := security.NewSignatureVerifier(cfg.Payment.Local.SharedSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("signature verifier init failed")
	}

	var gateway adapter.OrderGateway
	if cfg.Payment.Local.MerchantID != "" {
		gateway, err = payAdapter.NewLocalOrderGateway(
			cfg.Payment.Local.MerchantID,
			cfg.Payment.Local.BaseURL,
			cfg.Payment.Local.SandboxURL,
			cfg.Payment.Local.Sandbox,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("order gateway init failed")
		}
	} else if cfg.Runtime.Dev {
		logger.Warn().Msg("payment.local.merchant_id not set; using noop gateway (dev only)")
		gateway = payAdapter.NewNoopGateway()
	} else {
		logger.Fatal().Msg("payment.local.merchant_id is required")
	}

	signer, err := iapAdapter.NewAssertionSigner(
		cfg.Payment.Remote.IssuerID,
		cfg.Payment.Remote.KeyID,
		cfg.Payment.Remote.BundleID,
		cfg.Payment.Remote.Audience,
		cfg.Payment.Remote.PrivateKeyPEM,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("assertion signer init failed")
	}
	receiptVerifier, err := iapAdapter.NewVerifier(iapAdapter.Config{
		SandboxURL:    cfg.Payment.Remote.SandboxURL,
		ProductionURL: cfg.Payment.Remote.ProductionURL,
		KeySetURL:     cfg.Payment.Remote.KeySetURL,
		SharedSecret:  cfg.Payment.Remote.SharedSecret,
		Environment:   cfg.Payment.Remote.Environment,
	}, signer, keyCache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("receipt verifier init failed")
	}

	// ---- Side-effect pipeline ----
	pool2 := worker.NewPool(cfg.Worker.Count, logger)
	pool2.Start(ctx)
	defer pool2.Stop()
	dispatcher := dispatch.NewDispatcher(notifRepo, dispatch.NoopEmitter{}, pool2, logger)

	// ---- Use cases ----
	grantUC := usecase.NewGrantUseCase(entryRepo, productRepo, unlockRepo, txm, dispatcher, logger)
	orderUC := usecase.NewOrderUseCase(entryRepo, productRepo, unlockRepo, gateway, txm, logger)
	verifyUC := usecase.NewVerifyUseCase(entryRepo, productRepo, sigVerifier, receiptVerifier, grantUC, dispatcher, logger)
	fulfillUC := usecase.NewFulfillmentUseCase(entryRepo, txm, dispatcher, logger)

	// ---- Reconciler ----
	reconciler := sched.NewOrderReconciler(
		verifyUC, entryRepo, gateway, locker,
		cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger,
	)
	go reconciler.Start(ctx)

	// ---- HTTP ----
	srv := api.NewServer(orderUC, verifyUC, fulfillUC, cfg.Server.AdminAPIKey, rateLimiter.Allow, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
