// Command townsim runs the mini-town agent simulation.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/talgya/mini-town/internal/config"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var loggerCfg config.Logger
	var closer func()

	app := &cli.Command{
		Name:    "townsim",
		Usage:   "Generative agents living in a small town",
		Version: version,
		Flags:   loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f
			slog.Debug("logger configured", "logger", loggerCfg.LogAttrs())
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdValidate(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		slog.Error("townsim failed", "error", err)
		return err
	}
	return nil
}

func configFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to the town TOML file",
		Value:       "data/town.toml",
		Sources:     cli.EnvVars("TOWNSIM_CONFIG"),
		Destination: dst,
	}
}
