package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/config"
	"github.com/alejandrodnm/nftagg/internal/adapters/notify"
	"github.com/alejandrodnm/nftagg/internal/application/aggregator"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

type flags struct {
	configPath   string
	ordersPath   string
	ids          string
	side         string
	taker        string
	partial      bool
	currency     string
	sellOut      string
	swapProvider string
	forceProxy   bool
	source       string
	submit       bool
	fund         string
	format       string
	verbose      bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "path to config file")
	flag.StringVar(&f.ordersPath, "orders", "", "JSON file with orders (default: order_source API)")
	flag.StringVar(&f.ids, "ids", "", "comma-separated order ids (default with -orders: every order of -side)")
	flag.StringVar(&f.side, "side", "listing", "listing (buy) | offer (accept)")
	flag.StringVar(&f.taker, "taker", "", "taker address (default: PRIVATE_KEY account)")
	flag.BoolVar(&f.partial, "partial", false, "skip unfillable orders instead of reverting the batch")
	flag.StringVar(&f.currency, "currency", "", "pay in this ERC-20 (default: native)")
	flag.StringVar(&f.sellOut, "sell-out", "", "swap offer proceeds into this currency")
	flag.StringVar(&f.swapProvider, "swap-provider", "", "uniswap-v3 | one-inch")
	flag.BoolVar(&f.forceProxy, "force-proxy", false, "use the approval proxy even for permit tokens")
	flag.StringVar(&f.source, "source", "", "source tag attached to every transaction")
	flag.BoolVar(&f.submit, "submit", false, "sign and submit the plans")
	flag.StringVar(&f.fund, "fund", "", "local ledger only: credit the taker with this much native currency")
	flag.StringVar(&f.format, "format", "", "output: table|compact|json")
	flag.BoolVar(&f.verbose, "verbose", false, "set log level to debug")
	flag.Parse()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", f.configPath)
		os.Exit(1)
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	setupLogger(cfg.Log)

	format, err := notify.ParseFormat(f.format)
	if err != nil {
		slog.Error("invalid flags", "err", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, f, format); err != nil {
		slog.Error("aggregator failed", "err", err, "class", domain.ErrorClass(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags, format notify.Format) error {
	side, err := parseSide(f.side)
	if err != nil {
		return err
	}
	opts, err := buildOptions(f)
	if err != nil {
		return err
	}

	env, err := wire(cfg, f)
	if err != nil {
		return err
	}
	defer env.Close()

	taker := env.defaultTaker
	if f.taker != "" {
		if !common.IsHexAddress(f.taker) {
			return fmt.Errorf("-taker: invalid address %q", f.taker)
		}
		taker = common.HexToAddress(f.taker)
	}
	if taker == (common.Address{}) {
		return fmt.Errorf("no taker: pass -taker or set PRIVATE_KEY")
	}
	if f.fund != "" {
		if err := env.fund(taker, f.fund); err != nil {
			return err
		}
	}

	ids := splitIDs(f.ids)
	if len(ids) == 0 && env.file != nil {
		ids = env.file.IDs(side)
	}

	slog.Info("nftagg starting",
		"config", f.configPath,
		"local", cfg.Chain.Local(),
		"side", f.side,
		"orders", len(ids),
		"taker", taker.Hex(),
		"partial", opts.Partial,
		"submit", f.submit,
	)

	svc := aggregator.New(env.orders, env.planner, env.executor, env.storage, notify.NewConsole(format))
	res, err := svc.Run(ctx, aggregator.Request{
		Side:    side,
		IDs:     ids,
		Taker:   taker,
		Options: opts,
		Submit:  f.submit,
	})
	if err != nil {
		return err
	}
	slog.Info("nftagg done", "plans", len(res.Plans), "reports", len(res.Reports))
	return nil
}

func buildOptions(f flags) (domain.Options, error) {
	provider, err := domain.ParseSwapProvider(f.swapProvider)
	if err != nil {
		return domain.Options{}, err
	}
	opts := domain.Options{
		Partial:            f.partial,
		Source:             f.source,
		ForceApprovalProxy: f.forceProxy,
		SwapProvider:       provider,
	}
	if f.currency != "" {
		if !common.IsHexAddress(f.currency) {
			return domain.Options{}, fmt.Errorf("-currency: invalid address %q", f.currency)
		}
		opts.DesiredCurrency = common.HexToAddress(f.currency)
	}
	if f.sellOut != "" {
		if !common.IsHexAddress(f.sellOut) {
			return domain.Options{}, fmt.Errorf("-sell-out: invalid address %q", f.sellOut)
		}
		a := common.HexToAddress(f.sellOut)
		opts.SellOutCurrency = &a
	}
	return opts, nil
}

func parseSide(s string) (domain.OrderSide, error) {
	switch s {
	case "listing", "buy":
		return domain.SideListing, nil
	case "offer", "sell":
		return domain.SideOffer, nil
	}
	return 0, fmt.Errorf("-side: unknown value %q", s)
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// setupLogger writes to stderr so logs never mix with -format json output.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
