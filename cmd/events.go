package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/holdings"
	"github.com/etnz/holdings/date"
	"github.com/google/subcommands"
)

// eventCmd adds a buy or a sell, depending on kind.
type eventCmd struct {
	kind     holdings.EventKind
	position string
	date     string
	quantity float64
	price    float64
	fees     float64
	memo     string
}

func (c *eventCmd) Name() string { return string(c.kind) }
func (c *eventCmd) Synopsis() string {
	return fmt.Sprintf("record a %s in a position", c.kind)
}
func (c *eventCmd) Usage() string {
	return fmt.Sprintf(`hld %s -p <position> -q <quantity> -price <unit price> [-fees <fees>] [-d <date>] [-m <memo>]

  Records a %s. Amounts are in the position currency. The gross amount is
  converted to the report currency with today's rates and frozen on the event.
`, c.kind, c.kind)
}

func (c *eventCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.position, "p", "", "position id or symbol")
	f.StringVar(&c.date, "d", date.Today().String(), "date of the event")
	f.Float64Var(&c.quantity, "q", 0, "quantity")
	f.Float64Var(&c.price, "price", 0, "unit price")
	f.Float64Var(&c.fees, "fees", 0, "fees, only part of the cost basis when includeFees is set")
	f.StringVar(&c.memo, "m", "", "memo")
}

func (c *eventCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := date.Parse(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
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
	pos, err := a.engine.Position(ctx, id)
	if err != nil {
		return fail("%v", err)
	}
	e := holdings.Event{
		Kind:       c.kind,
		Quantity:   holdings.Q(c.quantity),
		UnitPrice:  holdings.M(c.price, pos.Currency),
		OccurredAt: on,
		Memo:       c.memo,
	}
	if c.fees != 0 {
		e.Fees = holdings.M(c.fees, pos.Currency)
	}
	agg, err := a.engine.MutateEvents(ctx, id, holdings.AddEvent{Event: e})
	if err != nil {
		return fail("could not record %s: %v", c.kind, err)
	}
	printAggregate(pos, agg)
	return subcommands.ExitSuccess
}

type editCmd struct {
	position string
	event    string
	kind     string
	date     string
	quantity float64
	price    float64
	fees     float64
	memo     string
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "change fields of an event" }
func (*editCmd) Usage() string {
	return `hld edit -p <position> -e <event> [-k buy|sell] [-q <quantity>] [-price <unit price>] [-fees <fees>] [-d <date>] [-m <memo>]

  Changes only the fields given on the command line. The frozen snapshot
  follows the new gross amount with its original rate.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.position, "p", "", "position id or symbol")
	f.StringVar(&c.event, "e", "", "event id")
	f.StringVar(&c.kind, "k", "", "buy or sell")
	f.StringVar(&c.date, "d", "", "date of the event")
	f.Float64Var(&c.quantity, "q", 0, "quantity")
	f.Float64Var(&c.price, "price", 0, "unit price")
	f.Float64Var(&c.fees, "fees", 0, "fees")
	f.StringVar(&c.memo, "m", "", "memo")
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	set := make(map[string]bool)
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	if c.event == "" {
		fmt.Fprintln(os.Stderr, "Error: an event is required (-e)")
		return subcommands.ExitUsageError
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
	pos, err := a.engine.Position(ctx, id)
	if err != nil {
		return fail("%v", err)
	}

	var patch holdings.EventPatch
	if set["k"] {
		k, err := holdings.ParseEventKind(c.kind)
		if err != nil {
			return fail("%v", err)
		}
		patch.Kind = &k
	}
	if set["d"] {
		d, err := date.Parse(c.date)
		if err != nil {
			return fail("%v", err)
		}
		patch.OccurredAt = &d
	}
	if set["q"] {
		q := holdings.Q(c.quantity)
		patch.Quantity = &q
	}
	if set["price"] {
		p := holdings.M(c.price, pos.Currency)
		patch.UnitPrice = &p
	}
	if set["fees"] {
		fees := holdings.M(c.fees, pos.Currency)
		patch.Fees = &fees
	}
	if set["m"] {
		patch.Memo = &c.memo
	}

	agg, err := a.engine.MutateEvents(ctx, id, holdings.EditEvent{ID: c.event, Patch: patch})
	if err != nil {
		return fail("could not edit event: %v", err)
	}
	printAggregate(pos, agg)
	return subcommands.ExitSuccess
}

type removeCmd struct {
	position string
	event    string
}

func (*removeCmd) Name() string     { return "remove" }
func (*removeCmd) Synopsis() string { return "delete an event" }
func (*removeCmd) Usage() string {
	return `hld remove -p <position> -e <event>

  Deletes an event and recomputes the position.
`
}

func (c *removeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.position, "p", "", "position id or symbol")
	f.StringVar(&c.event, "e", "", "event id")
}

func (c *removeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	agg, err := a.engine.MutateEvents(ctx, id, holdings.RemoveEvent{ID: c.event})
	if err != nil {
		return fail("could not remove event: %v", err)
	}
	printAggregate(pos, agg)
	return subcommands.ExitSuccess
}

// printAggregate prints the one line summary of a position after a change.
func printAggregate(pos holdings.Position, agg holdings.Aggregate) {
	fmt.Fprintf(stdout, "%s: quantity %s, cost basis %s", pos.Symbol, agg.Quantity, agg.CostBasis)
	if agg.Priced {
		fmt.Fprintf(stdout, ", value %s (%s)", agg.Value, agg.ProfitLossPct.SignedString())
	}
	fmt.Fprintln(stdout)
	for _, w := range agg.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}
