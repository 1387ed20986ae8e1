package cmd

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etnz/holdings/scheduler"
	"github.com/etnz/holdings/server"
	"github.com/google/subcommands"
)

type serveCmd struct {
	addr       string
	noSchedule bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the JSON API and run scheduled refreshes" }
func (*serveCmd) Usage() string {
	return `hld serve [-addr <address>] [-no-schedule]

  Serves the JSON API until interrupted. Rates and prices are refreshed on
  the configured schedules.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "listen address, server.addr from the configuration by default")
	f.BoolVar(&c.noSchedule, "no-schedule", false, "do not run scheduled refreshes")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	if !c.noSchedule {
		sched := scheduler.New(a.log)
		if err := sched.AddJob(scheduler.RatesJob{Engine: a.engine}, a.cfg.Schedule.Rates...); err != nil {
			return fail("%v", err)
		}
		if a.cfg.Prices.URL != "" {
			if err := sched.AddJob(scheduler.PricesJob{Engine: a.engine}, a.cfg.Schedule.Prices...); err != nil {
				return fail("%v", err)
			}
		}
		sched.Start()
		defer sched.Stop()
	}

	addr := c.addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := server.New(server.Config{
		Addr:           addr,
		Engine:         a.engine,
		Log:            a.log,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fail("%v", err)
		}
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return fail("%v", err)
		}
	}
	return subcommands.ExitSuccess
}
