package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/date"
	"github.com/etnz/holdings/renderer"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type priceCmd struct {
	position string
	set      float64
	date     string
	all      bool
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "update market prices" }
func (*priceCmd) Usage() string {
	return `hld price (-p <position> [-set <price> [-d <date>]] | -all)

  Sets the market price of a position by hand with -set, or fetches it from
  the configured price source. -all fetches the price of every position.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.position, "p", "", "position id or symbol")
	f.Float64Var(&c.set, "set", 0, "price to record, in the position currency")
	f.StringVar(&c.date, "d", date.Today().String(), "date of the price")
	f.BoolVar(&c.all, "all", false, "update all positions from the price source")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.all == (c.position != "") {
		fmt.Fprintln(os.Stderr, "Error: use either -p or -all")
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	if c.all {
		if err := a.engine.UpdatePrices(ctx); err != nil {
			return fail("some prices were not updated: %v", err)
		}
		return subcommands.ExitSuccess
	}

	id, err := resolvePosition(ctx, a.engine, c.position)
	if err != nil {
		return fail("%v", err)
	}
	pos, err := a.engine.Position(ctx, id)
	if err != nil {
		return fail("%v", err)
	}
	var agg holdings.Aggregate
	if c.set != 0 {
		on, perr := date.Parse(c.date)
		if perr != nil {
			return fail("%v", perr)
		}
		agg, err = a.engine.SetPrice(ctx, id, holdings.M(c.set, pos.Currency), on)
	} else {
		agg, err = a.engine.UpdatePrice(ctx, id)
	}
	if err != nil {
		return fail("could not update price: %v", err)
	}
	printAggregate(pos, agg)
	return subcommands.ExitSuccess
}

type networthCmd struct {
	currency string
}

func (*networthCmd) Name() string     { return "networth" }
func (*networthCmd) Synopsis() string { return "print the total value of all positions" }
func (*networthCmd) Usage() string {
	return `hld networth [-c <currency>]

  Sums the live value of every position, converted with the current rates.
`
}

func (c *networthCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "currency, the report currency by default")
}

func (c *networthCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	home := c.currency
	if home == "" {
		home = a.engine.ReportCurrency()
	}
	worth, err := a.engine.NetWorth(ctx, home)
	if err != nil {
		return fail("%v", err)
	}
	for _, id := range worth.Unpriced {
		a.log.Warn().Str("position", id).Msg("no market price, left out of the net worth")
	}
	fmt.Fprintln(stdout, worth)
	return subcommands.ExitSuccess
}

type convertCmd struct{}

func (*convertCmd) Name() string     { return "convert" }
func (*convertCmd) Synopsis() string { return "convert an amount between two currencies" }
func (*convertCmd) Usage() string {
	return `hld convert <amount> <from> <to>

  Converts with the live rate table, through its pivot currency.
`
}

func (c *convertCmd) SetFlags(f *flag.FlagSet) {}

func (c *convertCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	amount, err := decimal.NewFromString(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	res, err := a.engine.Convert(holdings.M(amount, f.Arg(1)), f.Arg(2))
	if err != nil {
		return fail("%v", err)
	}
	fmt.Fprintln(stdout, res)
	return subcommands.ExitSuccess
}

type ratesCmd struct {
	refresh bool
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "display or refresh exchange rates" }
func (*ratesCmd) Usage() string {
	return `hld rates [-refresh]

  Displays the current rate table. With -refresh, a new table is fetched
  from the rate source and saved, and changes since the previous one are
  shown. On failure the previous table is kept.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.refresh, "refresh", false, "fetch new rates")
}

func (c *ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	prev := a.engine.Rates()
	cur := prev
	if c.refresh {
		if cur, err = a.engine.RefreshRates(ctx); err != nil {
			return fail("%v", err)
		}
	}
	if cur == nil {
		return fail("%v", holdings.ErrNoRates)
	}
	if !c.refresh {
		prev = nil
	}
	printMarkdown(renderer.RenderRates(renderer.NewRates(cur, prev)))
	return subcommands.ExitSuccess
}

type historyCmd struct {
	position string
	kind     string
	from     string
	to       string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "sum what buys or sells were worth when they happened" }
func (*historyCmd) Usage() string {
	return `hld history -p <position> [-k buy|sell] [-from <date>] [-to <date>]

  Sums the frozen snapshots of events in the report currency. Events without
  a snapshot are converted with today's rates and the total is marked
  approximate.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.position, "p", "", "position id or symbol")
	f.StringVar(&c.kind, "k", "buy", "buy or sell")
	f.StringVar(&c.from, "from", "", "first day, open when empty")
	f.StringVar(&c.to, "to", "", "last day, open when empty")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	kind, err := holdings.ParseEventKind(c.kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	var from, to date.Date
	for _, d := range []struct {
		s   string
		dst *date.Date
	}{{c.from, &from}, {c.to, &to}} {
		if d.s == "" {
			continue
		}
		if *d.dst, err = date.Parse(d.s); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	id, err := resolvePosition(ctx, a.engine, c.position)
	if err != nil {
		return fail("%v", err)
	}
	total, approx, err := a.engine.History(ctx, id, kind, from, to)
	if err != nil {
		return fail("%v", err)
	}
	if approx {
		fmt.Fprintf(stdout, "~%s (approximate)\n", total)
	} else {
		fmt.Fprintln(stdout, total)
	}
	return subcommands.ExitSuccess
}
