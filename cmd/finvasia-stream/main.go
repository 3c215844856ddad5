// Command finvasia-stream keeps a realtime broker session alive, journals
// order updates, and serves health, metrics and the journal until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finvasia/internal/api"
	"finvasia/internal/config"
	"finvasia/internal/metrics"
	"finvasia/internal/store"
	"finvasia/internal/stream"
	"finvasia/internal/util"
	"finvasia/pkg/finvasia"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("finvasia-stream stopped", zap.Error(err))
	}
	logger.Info("finvasia-stream stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	m := metrics.New()

	var limiter *util.RateLimiter
	if cfg.Finvasia.RateLimitPerSec > 0 {
		limiter = util.NewRateLimiter(cfg.Finvasia.RateLimitPerSec, cfg.Finvasia.RateLimitBurst)
	}
	client := finvasia.NewClient(finvasia.ClientOptions{
		BaseURL:     cfg.Finvasia.BaseURL,
		UserID:      cfg.Finvasia.UserID,
		AccessToken: cfg.Finvasia.AccessToken,
		Limiter:     limiter,
		Observer:    m,
		Logger:      logger,
	})
	if client.AccessToken() == "" {
		f := cfg.Finvasia
		if _, err := client.Login(ctx, finvasia.LoginParams{
			UserID:     f.UserID,
			Password:   f.Password,
			TOTP:       f.TOTP,
			VendorCode: f.VendorCode,
			APIKey:     f.APIKey,
			IMEI:       f.IMEI,
		}); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer journal.Close()

	session := finvasia.NewSession(finvasia.SessionOptions{
		URL:               cfg.Finvasia.WSURL,
		UserID:            client.UserID(),
		AccessToken:       client.AccessToken(),
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		ConfirmDelay:      cfg.Session.ConfirmDelay,
		CloseTimeout:      cfg.Session.CloseTimeout,
		Logger:            logger.Named("session"),
	})

	hub := api.NewHub(logger.Named("feed"))
	srv := api.NewServer(api.Options{
		HTTPAddr: cfg.Server.MetricsAddr,
		GRPCAddr: cfg.Server.GRPCAddr,
		Journal:  journal,
		Metrics:  m,
		Session:  session,
		Hub:      hub,
		Logger:   logger.Named("api"),
	})

	sup := stream.New(stream.Options{
		Session:       session,
		Journal:       journal,
		Metrics:       m,
		Logger:        logger.Named("stream"),
		ReconnectMin:  cfg.Session.ReconnectMin,
		ReconnectMax:  cfg.Session.ReconnectMax,
		OnHealth:      srv.SetServing,
		OnOrderUpdate: hub.BroadcastOrderUpdate,
	})

	logger.Info("starting finvasia-stream",
		zap.String("version", finvasia.Version),
		zap.String("account", client.AccountID()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return sup.Run(gctx) })
	return g.Wait()
}
