package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/mini-town/internal/api"
	"github.com/talgya/mini-town/internal/config"
	"github.com/talgya/mini-town/internal/engine"
	"github.com/talgya/mini-town/internal/messaging"
)

func cmdServe() *cli.Command {
	var (
		configPath string
		fresh      bool
		apiAddr    string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the simulation",
		Flags: []cli.Flag{
			configFlag(&configPath),
			&cli.BoolFlag{
				Name:        "fresh",
				Usage:       "Ignore any saved town and start from the configured state",
				Sources:     cli.EnvVars("TOWNSIM_FRESH"),
				Destination: &fresh,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "HTTP API listen address; overrides api.addr",
				Sources:     cli.EnvVars("TOWNSIM_ADDR"),
				Destination: &apiAddr,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if apiAddr != "" {
				cfg.API.Addr = apiAddr
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			t, err := buildTown(ctx, cfg, !fresh)
			if err != nil {
				return err
			}
			defer t.Close()

			return serve(ctx, cfg, t)
		},
	}
}

func serve(ctx context.Context, cfg *config.File, t *town) error {
	nats, err := cfg.Nats.BuildServer()
	if err != nil {
		return goerr.Wrap(err, "failed to build NATS server")
	}

	g, ctx := errgroup.WithContext(ctx)

	if nats != nil {
		g.Go(func() error { return nats.Start(ctx) })
		select {
		case <-nats.Ready():
			t.sim.Broadcast = messaging.NewBroadcaster(nats)
			slog.Info("broadcasting town events", "url", nats.ClientURL())
		case <-ctx.Done():
			return g.Wait()
		}
	}

	if cfg.API.Enabled {
		srv := &api.Server{Sim: t.sim, Events: t.db, AdminKey: cfg.API.AdminKey()}
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.API.Addr) })
	}

	g.Go(func() error { return t.sim.Timeline.Run(ctx) })

	slog.Info("town is running",
		"agents", t.sim.Registry.Len(),
		"time", engine.SimTime(t.sim.Timeline.Now()),
		"time_scale", t.sim.Timeline.TimeScale(),
		"api", cfg.API.Enabled,
		"nats", nats != nil,
	)

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.sim.Shutdown(shutdownCtx); err != nil {
		slog.Error("final save failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
