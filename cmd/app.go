// Package cmd implements the hld command line application to track positions
// and value them in several currencies.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/holdings"
	"github.com/etnz/holdings/config"
	"github.com/etnz/holdings/logger"
	"github.com/etnz/holdings/provider"
	"github.com/etnz/holdings/store"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for _, cmd := range Commands {
		c.Register(cmd, groups[cmd.Name()])
	}
}

// Commands lists every subcommand, for registration and completion.
var Commands = []subcommands.Command{
	&createCmd{},
	&eventCmd{kind: holdings.KindBuy},
	&eventCmd{kind: holdings.KindSell},
	&editCmd{},
	&removeCmd{},
	&showCmd{},
	&listCmd{},
	&historyCmd{},
	&priceCmd{},
	&networthCmd{},
	&convertCmd{},
	&ratesCmd{},
	&serveCmd{},
	&topicCmd{},
}

var groups = map[string]string{
	"create": "positions", "buy": "events", "sell": "events", "edit": "events", "remove": "events",
	"show": "reports", "list": "reports", "history": "reports", "networth": "reports",
	"price": "market", "convert": "market", "rates": "market",
	"serve": "server", "topic": "help",
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	configPath = flag.String("config", "", "Path to the YAML configuration file (default "+config.DefaultPath+" when present)")
	rawOutput  = flag.Bool("raw", false, "print markdown reports without terminal rendering")
	Verbose    = flag.Bool("v", false, "verbose logging")
)

// stdout receives command output.
var stdout io.Writer = os.Stdout

// app is what a command needs to run.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	engine *holdings.Engine
	store  holdings.Store
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("closing store")
	}
}

// openApp loads the configuration and builds the engine.
//
// When no rate table was ever saved, rates are fetched once so conversions
// work on a fresh store.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if *Verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: cfg.Log.Pretty})
	logger.SetGlobalLogger(log)

	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("could not open store %q: %w", cfg.Store, err)
	}
	e, err := holdings.NewEngine(ctx, holdings.Options{
		Store:          st,
		RateSource:     rateSource(cfg, log),
		Prices:         priceSource(cfg, log),
		Policy:         cfg.Policy(),
		ReportCurrency: cfg.ReportCurrency,
		Logger:         log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	if e.Rates() == nil {
		if _, err := e.RefreshRates(ctx); err != nil {
			log.Warn().Err(err).Msg("no rates available, conversions will fail")
		}
	}
	return &app{cfg: cfg, log: log, engine: e, store: st}, nil
}

func rateSource(cfg *config.Config, log zerolog.Logger) holdings.RateSource {
	if cfg.Rates.File != "" {
		return &provider.RateFile{Path: cfg.Rates.File}
	}
	return &provider.QuoteDocument{
		URL:    cfg.Rates.QuotesURL,
		Pivot:  cfg.Pivot,
		Client: provider.NewClient(cfg.CacheDir, log),
		Log:    log,
	}
}

func priceSource(cfg *config.Config, log zerolog.Logger) holdings.PriceSource {
	if cfg.Prices.URL == "" {
		return nil
	}
	return &provider.JSONPathPrices{
		URL:      cfg.Prices.URL,
		Path:     cfg.Prices.Path,
		Currency: cfg.Prices.Currency,
		Client:   provider.NewClient(cfg.CacheDir, log),
	}
}

// printMarkdown renders md for the terminal, or prints it as is with -raw.
func printMarkdown(md string) {
	if *rawOutput {
		fmt.Fprint(stdout, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	fmt.Fprint(stdout, out)
}

// fail reports err and returns the failure status.
func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}
