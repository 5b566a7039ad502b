package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "publisher",
		Usage: "Publish events to message brokers, one publisher per site config",
		Flags: globalFlags(),
		// Site config env overrides are read at load time, so an env file
		// loaded here still applies to them.
		Before: func(c *cli.Context) error {
			if path := c.String("env-file"); path != "" {
				if err := godotenv.Load(path); err != nil {
					return fmt.Errorf("failed to load env file %q: %w", path, err)
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the publishers and the ingest API",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "check-config",
				Usage:  "Load and validate the site configs without connecting",
				Action: checkConfig,
			},
		},
	}
}
