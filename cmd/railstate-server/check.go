package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/infra/confloader"
	"github.com/yndnr/railstate-go/internal/state"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify the configuration and reach the backing store once",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Only verify the configuration",
			},
		},
		Action: checkAction,
	}
}

func checkAction(c *cli.Context) error {
	cfg, err := confloader.LoadConfig(loaderOptions(c)...)
	if err != nil {
		return err
	}
	out := c.App.Writer
	safe := config.Sanitize(cfg)
	fmt.Fprintf(out, "config ok: store=%s enabled=%t fallback=%t\n",
		safe.Store.URL, safe.Store.Enabled, safe.Fallback.Enabled)
	if c.Bool("offline") {
		return nil
	}
	if !cfg.Store.Enabled {
		fmt.Fprintln(out, "backing store disabled, fallback store only")
		return nil
	}

	st, err := state.New(cfg, state.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(c.Context, cfg.Store.ConnectTimeout+cfg.Store.SocketTimeout)
	defer cancel()
	if err := st.Probe(ctx); err != nil {
		return fmt.Errorf("backing store: %w", err)
	}
	fmt.Fprintln(out, "backing store ok")
	return nil
}
