// Command finvasia-series fetches intraday candles for one or more
// instruments and archives them as Parquet under the configured data
// directory.
//
// Usage:
//
//	finvasia-series -exch NSE -from 2024-01-10 -to 2024-01-12 -interval 1 <token>...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"finvasia/internal/config"
	"finvasia/internal/gather"
	"finvasia/internal/store"
	"finvasia/internal/util"
	"finvasia/pkg/finvasia"
)

func main() {
	exch := flag.String("exch", "NSE", "exchange")
	from := flag.String("from", "", "first day, YYYY-MM-DD (default today)")
	to := flag.String("to", "", "last day, YYYY-MM-DD (default from)")
	interval := flag.String("interval", "1", "candle interval in minutes")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: finvasia-series [flags] <token>...\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

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

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	rng, err := gather.DayRange(*from, *to, time.Now(), loc)
	if err != nil {
		logger.Fatal("invalid date range", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var limiter *util.RateLimiter
	if cfg.Finvasia.RateLimitPerSec > 0 {
		limiter = util.NewRateLimiter(cfg.Finvasia.RateLimitPerSec, cfg.Finvasia.RateLimitBurst)
	}
	client := finvasia.NewClient(finvasia.ClientOptions{
		BaseURL:     cfg.Finvasia.BaseURL,
		UserID:      cfg.Finvasia.UserID,
		AccessToken: cfg.Finvasia.AccessToken,
		Limiter:     limiter,
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
			logger.Fatal("login failed", zap.Error(err))
		}
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	pstore.Location = loc

	gatherer := gather.NewSeriesGatherer(client, pstore, *exch, flag.Args(), *interval, rng, loc, logger)
	logger.Info("starting gatherer",
		zap.String("name", gatherer.Name()),
		zap.Time("from", rng.Start),
		zap.Time("to", rng.End),
	)
	if err := gatherer.Run(ctx); err != nil {
		logger.Fatal("archiving series", zap.Error(err))
	}
}
