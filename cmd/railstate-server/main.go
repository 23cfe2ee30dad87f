package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/railstate-go/internal/infra/buildinfo"
	"github.com/yndnr/railstate-go/internal/infra/confloader"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App creates the server application.
func App() *cli.App {
	return &cli.App{
		Name:    "railstate-server",
		Usage:   "workflow state store daemon",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Action:  serveAction,
		Commands: []*cli.Command{
			checkCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			EnvVars: []string{"RAILSTATE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Override log.level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Override metrics.addr",
		},
	}
}

// loaderOptions builds confloader options from the global flags.
func loaderOptions(c *cli.Context) []confloader.Option {
	var opts []confloader.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	overrides := map[string]any{}
	if v := c.String("log-level"); v != "" {
		overrides["log.level"] = v
	}
	if v := c.String("metrics-addr"); v != "" {
		overrides["metrics.addr"] = v
	}
	if len(overrides) > 0 {
		opts = append(opts, confloader.WithOverrides(overrides))
	}
	return opts
}
