package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fanlock.app/internal/access"
	"fanlock.app/internal/chain/solana"
	"fanlock.app/internal/config"
	"fanlock.app/internal/httpapi"
	"fanlock.app/internal/limiter"
	"fanlock.app/internal/migrate"
	"fanlock.app/internal/obs"
	"fanlock.app/internal/settle"
	"fanlock.app/internal/store/pg"
	"fanlock.app/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	store, err := pg.Open(cfg.DatabaseDSN, pg.WithNonceTTL(cfg.NonceTTL))
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrate.UpDB(ctx, store.DB()); err != nil {
		cancel()
		logger.Fatal("migrate", zap.Error(err))
	}
	cancel()

	chainClient := solana.NewWithHTTPClient(cfg.Chain.RPCEndpoint, &http.Client{
		Timeout: cfg.Chain.RequestTimeout,
	})
	events := stream.New()

	engine := settle.New(settle.Config{
		Mint:               cfg.Chain.Mint,
		PlatformAccount:    cfg.Chain.PlatformAccount,
		VerifyDestinations: cfg.Chain.VerifyDestinations,
	}, store, chainClient, store, store, events)

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Deps{
		Engine:   engine,
		Resolver: access.New(store, store),
		Nonces:   store,
		Catalog:  store,
		Store:    store,
		Events:   events,
		Limiter:  limiter.NewPG(store.DB(), cfg.Limiter.Window, cfg.Limiter.Max),
		NonceTTL: cfg.NonceTTL,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /v1/stream holds its connection open
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("starting fanlock-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
