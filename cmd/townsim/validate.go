package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/config"
	"github.com/talgya/mini-town/internal/world"
)

func cmdValidate() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "validate",
		Usage: "Check the config, world data and agent definitions without running",
		Flags: []cli.Flag{configFlag(&configPath)},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			m, catalog, err := loadWorld(cfg)
			if err != nil {
				return err
			}
			reg := agents.NewRegistry(world.NewLedger(m))
			if err := agents.NewSpawner(m, cfg.PersonaDir()).SpawnInto(reg, cfg.AgentSpecs()); err != nil {
				return err
			}

			fmt.Printf("ok: %d locations, %d connections, %d object types, %d agents\n",
				len(m.Names()), m.EdgeCount(), catalog.Len(), reg.Len())
			return nil
		},
	}
}
