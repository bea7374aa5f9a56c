// Command townctl inspects and steers a running town over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/talgya/mini-town/internal/apiclient"
	"github.com/talgya/mini-town/internal/config"
	"github.com/talgya/mini-town/internal/engine"
	"github.com/talgya/mini-town/internal/messaging"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		slog.Error("townctl failed", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	var (
		loggerCfg config.Logger
		apiURL    string
		adminKey  string
		closer    func()
	)
	client := func() *apiclient.Client { return apiclient.New(strings.TrimRight(apiURL, "/"), adminKey) }

	flags := append(loggerCfg.Flags(),
		&cli.StringFlag{
			Name:        "url",
			Usage:       "Town API base URL",
			Value:       "http://127.0.0.1:8080",
			Sources:     cli.EnvVars("TOWNSIM_API_URL"),
			Destination: &apiURL,
		},
		&cli.StringFlag{
			Name:        "admin-key",
			Usage:       "Bearer token for pause, resume, speed and snapshot",
			Sources:     cli.EnvVars("TOWNSIM_ADMIN_KEY"),
			Destination: &adminKey,
		},
	)

	return &cli.Command{
		Name:  "townctl",
		Usage: "Inspect and steer a running town",
		Flags: flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the clock and population",
				Action: func(ctx context.Context, c *cli.Command) error {
					st, err := client().Status(ctx)
					if err != nil {
						return err
					}
					state := "running"
					if st.Paused {
						state = "paused"
					}
					fmt.Fprintf(out, "%s\n%s, %d agents (%d thinking), x%g\n",
						st.SimTime, state, st.Population, st.InFlight, st.TimeScale)
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "Show aggregate town statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					st, err := client().Stats(ctx)
					if err != nil {
						return err
					}
					return printJSON(out, st)
				},
			},
			cmdAgents(out, client),
			{
				Name:      "memories",
				Usage:     "List or search an agent's memories",
				ArgsUsage: "<agent_id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Rank memories against this text"},
					&cli.IntFlag{Name: "limit", Value: 10},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					id, err := requireArgs(c, 1)
					if err != nil {
						return err
					}
					if q := c.String("query"); q != "" {
						hits, err := client().SearchMemories(ctx, id[0], q, int(c.Int("limit")))
						if err != nil {
							return err
						}
						for _, h := range hits {
							fmt.Fprintf(out, "%.3f  %s  [%s] %s\n", h.Score, h.Timestamp.Format("Jan 2 15:04"), h.Type, h.Content)
						}
						return nil
					}
					recs, err := client().Memories(ctx, id[0], int(c.Int("limit")))
					if err != nil {
						return err
					}
					for _, r := range recs {
						fmt.Fprintf(out, "%s  [%s, %d] %s\n", r.Timestamp.Format("Jan 2 15:04"), r.Type, r.Importance, r.Content)
					}
					return nil
				},
			},
			{
				Name:  "events",
				Usage: "Show recent town events",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "action, dialogue, failure, season or day"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					events, err := client().Events(ctx, c.String("category"), int(c.Int("limit")))
					if err != nil {
						return err
					}
					for _, e := range events {
						printEntry(out, e)
					}
					return nil
				},
			},
			{
				Name:  "locations",
				Usage: "List locations with their occupants",
				Action: func(ctx context.Context, c *cli.Command) error {
					locs, err := client().Locations(ctx)
					if err != nil {
						return err
					}
					for _, l := range locs {
						fmt.Fprintf(out, "%-20s %-12s %s\n", l.Name, l.Type, strings.Join(l.Occupants, ", "))
					}
					return nil
				},
			},
			{
				Name:      "path",
				Usage:     "Show the quickest route between two locations",
				ArgsUsage: "<from> <to>",
				Action: func(ctx context.Context, c *cli.Command) error {
					args, err := requireArgs(c, 2)
					if err != nil {
						return err
					}
					p, err := client().Path(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s (%d min)\n", strings.Join(p.Stops, " -> "), p.Minutes)
					return nil
				},
			},
			{
				Name:  "jobs",
				Usage: "Show held and open jobs",
				Action: func(ctx context.Context, c *cli.Command) error {
					jobs, err := client().Jobs(ctx)
					if err != nil {
						return err
					}
					return printJSON(out, jobs)
				},
			},
			{
				Name:  "pause",
				Usage: "Pause the clock",
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := client().Pause(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "paused")
					return nil
				},
			},
			{
				Name:  "resume",
				Usage: "Resume the clock",
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := client().Resume(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "resumed")
					return nil
				},
			},
			{
				Name:      "speed",
				Usage:     "Set simulated minutes per real second",
				ArgsUsage: "<time_scale>",
				Action: func(ctx context.Context, c *cli.Command) error {
					args, err := requireArgs(c, 1)
					if err != nil {
						return err
					}
					scale, err := strconv.ParseFloat(args[0], 64)
					if err != nil {
						return goerr.Wrap(err, "time scale is not a number", goerr.V("value", args[0]))
					}
					got, err := client().SetSpeed(ctx, scale)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "time scale x%g\n", got)
					return nil
				},
			},
			{
				Name:  "snapshot",
				Usage: "Save the town now",
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := client().Snapshot(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "saved")
					return nil
				},
			},
			cmdWatch(out),
		},
	}
}

func cmdAgents(out io.Writer, client func() *apiclient.Client) *cli.Command {
	return &cli.Command{
		Name:      "agents",
		Usage:     "List agents, or show one in detail",
		ArgsUsage: "[agent_id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "location", Usage: "Only agents at this location"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if id := c.Args().First(); id != "" {
				a, err := client().Agent(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(out, a)
			}
			views, err := client().Agents(ctx, c.String("location"))
			if err != nil {
				return err
			}
			for _, v := range views {
				action := v.Action
				if action == "" {
					action = "-"
				}
				fmt.Fprintf(out, "%-12s %-18s %-8s %-7s %s\n", v.ID, v.Location, v.Phase, v.State.Mood, action)
			}
			return nil
		},
	}
}

func cmdWatch(out io.Writer) *cli.Command {
	var natsURL, subject string
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream town events from the NATS broadcast",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "nats-url",
				Value:       "nats://127.0.0.1:4222",
				Sources:     cli.EnvVars("TOWNSIM_NATS_URL"),
				Destination: &natsURL,
			},
			&cli.StringFlag{
				Name:        "subject",
				Value:       "town.>",
				Destination: &subject,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return messaging.Watch(ctx, natsURL, subject, func(subj string, data []byte) {
				printBroadcast(out, subj, data)
			})
		},
	}
}

func printBroadcast(out io.Writer, subject string, data []byte) {
	switch subject {
	case engine.SubjectActions:
		var ev engine.ActionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("undecodable action event", "error", err)
			return
		}
		mark := ""
		if !ev.OK {
			mark = " (failed)"
		}
		fmt.Fprintf(out, "%s  %-10s %s%s\n", ev.Time.Format("Jan 2 15:04"), ev.Name, ev.Detail, mark)
	case engine.SubjectClock:
		var ev engine.ClockEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("undecodable clock event", "error", err)
			return
		}
		fmt.Fprintf(out, "-- %s: %s\n", ev.Event, engine.SimTime(ev.Time))
	default:
		fmt.Fprintf(out, "%s %s\n", subject, data)
	}
}

func printEntry(out io.Writer, e engine.Entry) {
	who := e.AgentID
	if who == "" {
		who = "town"
	}
	fmt.Fprintf(out, "%s  %-8s %-10s %s\n", e.Time.Format("Jan 2 15:04"), e.Category, who, e.Description)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArgs(c *cli.Command, n int) ([]string, error) {
	args := c.Args().Slice()
	if len(args) < n {
		return nil, goerr.New("missing arguments", goerr.V("want", n), goerr.V("usage", c.ArgsUsage))
	}
	return args[:n], nil
}
