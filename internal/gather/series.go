package gather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

const defaultConcurrency = 4

// SeriesSource fetches intraday candles. *finvasia.Client implements it.
type SeriesSource interface {
	GetTimeSeries(ctx context.Context, p finvasia.TimeSeriesParams) ([]finvasia.Candle, error)
}

// SeriesGatherer archives intraday candles for a set of instrument tokens
// on one exchange.
type SeriesGatherer struct {
	source   SeriesSource
	store    store.CandleStore
	exchange string
	tokens   []string
	interval string
	rng      DateRange
	loc      *time.Location
	logger   *zap.Logger

	// Concurrency bounds parallel fetches; defaults to 4.
	Concurrency int
}

// NewSeriesGatherer creates a SeriesGatherer. Candle times are interpreted
// in loc, the exchange's local time.
func NewSeriesGatherer(
	source SeriesSource,
	cs store.CandleStore,
	exchange string,
	tokens []string,
	interval string,
	rng DateRange,
	loc *time.Location,
	logger *zap.Logger,
) *SeriesGatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeriesGatherer{
		source:   source,
		store:    cs,
		exchange: exchange,
		tokens:   tokens,
		interval: interval,
		rng:      rng,
		loc:      loc,
		logger:   logger,
	}
}

// Name returns "series".
func (g *SeriesGatherer) Name() string { return "series" }

// Run fetches and archives every token. The first failure cancels the
// remaining fetches and is returned.
func (g *SeriesGatherer) Run(ctx context.Context) error {
	limit := g.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for _, token := range g.tokens {
		eg.Go(func() error {
			n, err := g.gatherToken(gctx, token)
			if err != nil {
				return fmt.Errorf("token %s: %w", token, err)
			}
			g.logger.Info("archived candles",
				zap.String("exchange", g.exchange),
				zap.String("token", token),
				zap.Int("count", n),
			)
			return nil
		})
	}
	return eg.Wait()
}

func (g *SeriesGatherer) gatherToken(ctx context.Context, token string) (int, error) {
	candles, err := g.source.GetTimeSeries(ctx, finvasia.TimeSeriesParams{
		Exchange:  g.exchange,
		Token:     token,
		StartTime: g.rng.Start.Unix(),
		EndTime:   g.rng.End.Unix(),
		Interval:  g.interval,
	})
	if err != nil {
		return 0, err
	}
	records, err := store.CandleRecords(g.exchange, token, candles, g.loc)
	if err != nil {
		return 0, err
	}
	if err := g.store.WriteCandles(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
