// Command hld tracks asset positions and values them in several currencies.
//
// Unknown subcommands are delegated to an hld-<subcommand> executable found
// in PATH.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/etnz/holdings/cmd"
	"github.com/etnz/holdings/logger"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, "hld")
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	// answers shell completion requests, and exits, when COMP_LINE is set.
	completion().Complete("hld")

	flag.Parse()
	level := "warn"
	if *cmd.Verbose {
		level = "debug"
	}
	logger.SetGlobalLogger(logger.New(logger.Config{Level: level}))

	if sub := flag.Arg(0); sub != "" && !registered(commander, sub) {
		if found, code := cmd.RunExtension(sub, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}
	os.Exit(int(commander.Execute(context.Background())))
}

func registered(c *subcommands.Commander, name string) bool {
	found := false
	c.VisitCommands(func(_ *subcommands.CommandGroup, sc subcommands.Command) {
		if sc.Name() == name {
			found = true
		}
	})
	return found
}

// completion describes the command line for shell completion.
func completion() *complete.Command {
	kinds := predict.Set{"equity", "crypto", "fund", "metal", "fx"}
	eventKinds := predict.Set{"buy", "sell"}

	root := &complete.Command{
		Sub: make(map[string]*complete.Command),
		Flags: map[string]complete.Predictor{
			"config": predict.Files("*.yaml"),
			"raw":    predict.Nothing,
			"v":      predict.Nothing,
		},
	}
	for _, c := range cmd.Commands {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		sub := &complete.Command{Flags: make(map[string]complete.Predictor)}
		fs.VisitAll(func(f *flag.Flag) {
			switch {
			case c.Name() == "create" && f.Name == "k":
				sub.Flags[f.Name] = kinds
			case f.Name == "k":
				sub.Flags[f.Name] = eventKinds
			case isBool(f):
				sub.Flags[f.Name] = predict.Nothing
			default:
				sub.Flags[f.Name] = predict.Something
			}
		})
		root.Sub[c.Name()] = sub
	}
	return root
}

func isBool(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}
