// Command finvasia-cli runs one broker command and prints the result as JSON.
//
// Usage:
//
//	finvasia-cli <command> [options] [args]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"finvasia/internal/broker"
	"finvasia/internal/config"
	"finvasia/internal/engine"
	"finvasia/internal/store"
	"finvasia/internal/util"
	"finvasia/pkg/finvasia"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: finvasia-cli <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                 Print the client version\n")
	fmt.Fprintf(os.Stderr, "  login                   Log in and print the session token\n")
	fmt.Fprintf(os.Stderr, "  orders                  List today's order book\n")
	fmt.Fprintf(os.Stderr, "  history <id>            Show the history of one order\n")
	fmt.Fprintf(os.Stderr, "  positions               List positions\n")
	fmt.Fprintf(os.Stderr, "  quote <exch> <token>    Show a quote\n")
	fmt.Fprintf(os.Stderr, "  search <exch> <text>    Search instruments\n")
	fmt.Fprintf(os.Stderr, "  place [flags]           Place an order\n")
	fmt.Fprintf(os.Stderr, "  modify [flags] <id>     Modify an open order\n")
	fmt.Fprintf(os.Stderr, "  cancel <id>             Cancel an open order\n")
	fmt.Fprintf(os.Stderr, "\nConfiguration is read from $FINVASIA_CONFIG (default %s).\n", config.DefaultPath)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	if os.Args[1] == "version" {
		fmt.Printf("finvasia-cli %s\n", finvasia.Version)
		return
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err := util.NewLogger(cfg.Logging.Level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli{cfg: cfg, logger: logger}
	app.client = finvasia.NewClient(finvasia.ClientOptions{
		BaseURL:     cfg.Finvasia.BaseURL,
		UserID:      cfg.Finvasia.UserID,
		AccessToken: cfg.Finvasia.AccessToken,
		Limiter:     newLimiter(cfg),
		Logger:      logger,
	})

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var apiErr *finvasia.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "%s (status %d, %s)\n", apiErr.Message, apiErr.StatusCode, apiErr.Stat)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func newLimiter(cfg *config.Config) *util.RateLimiter {
	if cfg.Finvasia.RateLimitPerSec <= 0 {
		return nil
	}
	return util.NewRateLimiter(cfg.Finvasia.RateLimitPerSec, cfg.Finvasia.RateLimitBurst)
}

type cli struct {
	cfg    *config.Config
	logger *zap.Logger
	client *finvasia.Client
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		resp, err := c.login(ctx)
		if err != nil {
			return err
		}
		return printJSON(resp)
	case "orders":
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		orders, err := c.client.GetOrders(ctx)
		if err != nil {
			return err
		}
		return printJSON(orders)
	case "history":
		if len(args) != 1 {
			return errors.New("usage: history <order id>")
		}
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		items, err := c.client.GetOrderHistory(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(items)
	case "positions":
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		positions, err := c.client.GetPositionsBook(ctx)
		if err != nil {
			return err
		}
		return printJSON(positions)
	case "quote":
		if len(args) != 2 {
			return errors.New("usage: quote <exchange> <token>")
		}
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		q, err := c.client.GetQuote(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(q)
	case "search":
		if len(args) != 2 {
			return errors.New("usage: search <exchange> <text>")
		}
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		res, err := c.client.SearchScrip(ctx, finvasia.SearchParams{Exchange: args[0], Text: args[1]})
		if err != nil {
			return err
		}
		return printJSON(res)
	case "place":
		return c.place(ctx, args)
	case "modify":
		return c.modify(ctx, args)
	case "cancel":
		if len(args) != 1 {
			return errors.New("usage: cancel <order id>")
		}
		eng, closeFn, err := c.engine(ctx, false)
		if err != nil {
			return err
		}
		defer closeFn()
		resp, err := eng.CancelOrder(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(resp)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *cli) login(ctx context.Context) (*finvasia.LoginResponse, error) {
	f := c.cfg.Finvasia
	return c.client.Login(ctx, finvasia.LoginParams{
		UserID:     f.UserID,
		Password:   f.Password,
		TOTP:       f.TOTP,
		VendorCode: f.VendorCode,
		APIKey:     f.APIKey,
		IMEI:       f.IMEI,
	})
}

// authenticate logs in unless a session token is already configured.
func (c *cli) authenticate(ctx context.Context) error {
	if c.client.AccessToken() != "" {
		return nil
	}
	if c.cfg.Finvasia.Password == "" {
		return errors.New("no access token or password configured")
	}
	_, err := c.login(ctx)
	return err
}

// engine builds an order engine over the live broker, or the simulator when
// paper is set, journaling into the configured SQLite database.
func (c *cli) engine(ctx context.Context, paper bool) (*engine.Engine, func(), error) {
	var b broker.Broker
	if paper {
		b = broker.NewSimulatorBroker()
	} else {
		if err := c.authenticate(ctx); err != nil {
			return nil, nil, err
		}
		b = broker.NewFinvasiaBroker(c.client)
	}

	path := c.cfg.Storage.SQLitePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating journal directory: %w", err)
	}
	journal, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	t := c.cfg.Trading
	risk := engine.NewRiskManager(t.MaxOrderQty, t.MaxOrderValue, t.AllowedExchanges)
	return engine.NewEngine(b, journal, risk, c.logger), func() { journal.Close() }, nil
}

func (c *cli) place(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("place", flag.ContinueOnError)
	var p finvasia.CreateOrderParams
	fs.StringVar(&p.Exchange, "exch", "NSE", "exchange")
	fs.StringVar(&p.TradingSymbol, "tsym", "", "trading symbol, e.g. INFY-EQ")
	fs.StringVar(&p.TransactionType, "side", "B", "B (buy) or S (sell)")
	fs.Float64Var(&p.Quantity, "qty", 0, "quantity")
	fs.Float64Var(&p.Price, "price", 0, "limit price")
	fs.Float64Var(&p.TriggerPrice, "trigger", 0, "trigger price for stop-loss orders")
	fs.Float64Var(&p.DisclosedQuantity, "disclosed", 0, "disclosed quantity")
	fs.StringVar(&p.Product, "product", "cnc", "nrml, mis or cnc")
	fs.StringVar(&p.OrderType, "type", "l", "m, l, sl or sl-m")
	fs.StringVar(&p.Validity, "validity", "day", "day or ioc")
	fs.StringVar(&p.Tag, "tag", "", "free-form remarks")
	paper := fs.Bool("paper", c.cfg.Trading.PaperMode, "route to the paper simulator")
	fillPx := fs.Float64("fill", 0, "paper fill price for market orders; unset leaves them open")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng, closeFn, err := c.engine(ctx, *paper)
	if err != nil {
		return err
	}
	defer closeFn()
	if sim, ok := eng.Broker().(*broker.SimulatorBroker); ok && *fillPx > 0 {
		px := *fillPx
		sim.MarketPrice = func(string, string) float64 { return px }
	}
	resp, err := eng.SubmitOrder(ctx, p)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func (c *cli) modify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("modify", flag.ContinueOnError)
	var p finvasia.ModifyOrderParams
	fs.StringVar(&p.Exchange, "exch", "NSE", "exchange")
	fs.StringVar(&p.TradingSymbol, "tsym", "", "trading symbol")
	fs.Float64Var(&p.Quantity, "qty", 0, "new quantity")
	fs.Float64Var(&p.Price, "price", 0, "new limit price")
	fs.Float64Var(&p.TriggerPrice, "trigger", 0, "new trigger price")
	fs.StringVar(&p.OrderType, "type", "l", "m, l, sl or sl-m")
	fs.StringVar(&p.Validity, "validity", "day", "day or ioc")
	fs.StringVar(&p.Tag, "tag", "", "free-form remarks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: modify [flags] <order id>")
	}

	eng, closeFn, err := c.engine(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()
	resp, err := eng.ModifyOrder(ctx, fs.Arg(0), p)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
