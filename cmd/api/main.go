package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"specledger/internal/adapter/storeopen"
	"specledger/internal/audit"
	"specledger/internal/catalog"
	"specledger/internal/directory"
	"specledger/internal/http/handlers"
	"specledger/internal/http/httpapi"
	"specledger/internal/idempotency"
	"specledger/internal/infra"
	"specledger/internal/ledger"
	"specledger/internal/reconciler"
	"specledger/internal/webhook"
)

func main() {
	infra.LoadDotEnv()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storeopen.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer store.Close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load product catalog")
	}
	node, err := infra.NewIDNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id node")
	}

	appender := audit.NewAppender(node, logger)
	svc := ledger.NewService(store, directory.New(), appender, logger, ledger.Options{
		FreeSpecAllowance: cfg.FreeSpecAllowance,
	})
	verifier := webhook.NewVerifier(cfg.WebhookSecret)
	dispatcher := webhook.NewDispatcher(svc, idempotency.NewGate(store), appender, cat, logger)

	app := handlers.NewApp(svc, dispatcher, verifier, cat, logger)
	app.WebhookBodyLimit = cfg.WebhookBodyLimitBytes

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AdminToken:      cfg.AdminAPIToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router, logger)
	worker := reconciler.New(svc, cfg.ReconcileInterval, cfg.ReconcileWindow, logger)

	logger.Info().
		Str("env", cfg.AppEnv).
		Str("store", cfg.StoreDriver).
		Int("products", len(cat.Products())).
		Msg("starting specledger api")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
