package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/date"
	"github.com/etnz/holdings/renderer"
	"github.com/google/subcommands"
)

// resolvePosition accepts a position id or a symbol held by exactly one
// position.
func resolvePosition(ctx context.Context, e *holdings.Engine, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("a position is required (-p)")
	}
	if _, err := e.Position(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, holdings.ErrPositionNotFound) {
		return "", err
	}
	positions, err := e.ListPositions(ctx)
	if err != nil {
		return "", err
	}
	var ids []string
	for _, p := range positions {
		if p.Symbol == ref {
			ids = append(ids, p.ID)
		}
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %q", holdings.ErrPositionNotFound, ref)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("symbol %q is held by %d positions, use an id", ref, len(ids))
}

type createCmd struct {
	id       string
	symbol   string
	name     string
	kind     string
	currency string
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create a position" }
func (*createCmd) Usage() string {
	return `hld create -s <symbol> -c <currency> [-k <kind>] [-n <name>] [-id <id>]

  Creates an empty position. Events are then added with buy and sell.
  Kinds are equity, crypto, fund, metal and fx.
`
}

func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "position id, generated when empty")
	f.StringVar(&c.symbol, "s", "", "symbol, as known by the price source")
	f.StringVar(&c.name, "n", "", "display name")
	f.StringVar(&c.kind, "k", "equity", "asset kind")
	f.StringVar(&c.currency, "c", "", "currency of prices and amounts")
}

func (c *createCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	kind, err := holdings.ParseAssetKind(c.kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	agg, err := a.engine.CreatePosition(ctx, holdings.Position{
		ID:          c.id,
		Symbol:      c.symbol,
		DisplayName: c.name,
		Kind:        kind,
		Currency:    c.currency,
	})
	if err != nil {
		return fail("could not create position: %v", err)
	}
	fmt.Fprintln(stdout, agg.PositionID)
	return subcommands.ExitSuccess
}

type showCmd struct {
	position string
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "display a position and its events" }
func (*showCmd) Usage() string {
	return `hld show -p <position>

  Displays the aggregate of a position and all its events in date order.
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.position, "p", "", "position id or symbol")
}

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	id, err := resolvePosition(ctx, a.engine, c.position)
	if err != nil {
		return fail("%v", err)
	}
	pos, err := a.engine.Position(ctx, id)
	if err != nil {
		return fail("%v", err)
	}
	agg, err := a.engine.GetAggregate(ctx, id)
	if err != nil {
		return fail("%v", err)
	}
	events, err := a.engine.Events(ctx, id)
	if err != nil {
		return fail("%v", err)
	}
	printMarkdown(renderer.RenderLedger(&renderer.Ledger{
		Row:    renderer.Row{Position: pos, Aggregate: agg},
		Events: events,
	}))
	return subcommands.ExitSuccess
}

type listCmd struct {
	currency string
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "display all positions and the net worth" }
func (*listCmd) Usage() string {
	return `hld list [-c <currency>]

  Displays every position with its quantity, cost basis, value and profit,
  and the net worth converted with the live rates.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "net worth currency, the report currency by default")
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	positions, err := a.engine.ListPositions(ctx)
	if err != nil {
		return fail("%v", err)
	}
	aggs, err := a.engine.ListAggregates(ctx)
	if err != nil {
		return fail("%v", err)
	}
	report := renderer.NewPortfolio(date.Today(), positions, aggs)

	home := c.currency
	if home == "" {
		home = a.engine.ReportCurrency()
	}
	if home != "" {
		worth, err := holdings.NetWorth(aggs, home, a.engine.Rates())
		if err != nil {
			a.log.Warn().Err(err).Msg("net worth unavailable")
		} else {
			report.NetWorth = &worth
		}
	}
	printMarkdown(renderer.RenderPortfolio(report))
	return subcommands.ExitSuccess
}
