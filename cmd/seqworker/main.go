// Command seqworker runs the message list host from the command line or over HTTP.
package main

import (
	"fmt"
	"os"

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
		Name:  "seqworker",
		Usage: "encrypt messages one at a time on a background worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"SEQWORKER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}
}
