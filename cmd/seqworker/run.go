package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-seqworker/messagelist"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "push a batch of random messages and print the list once all are encrypted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   5,
				Usage:   "number of messages to push",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: time.Minute,
				Usage: "give up waiting after this long",
			},
			&cli.BoolFlag{
				Name:  "early",
				Usage: "push the messages before the worker starts",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	count := c.Int("count")
	if count < 1 {
		return cli.Exit("count must be at least 1", 1)
	}

	app, err := newApplication(c, os.Stderr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer app.host.Stop()

	if !c.Bool("early") {
		if err := app.host.Start(); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
	}
	for range count {
		if _, err := app.host.Push(); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
	}
	if c.Bool("early") {
		if err := app.host.Start(); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	entries, err := waitForAll(ctx, app.host, count)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTATUS\tELAPSED\tPLAINTEXT\tCIPHERTEXT")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%dms\t%s\t%s\n", i+1, e.Status, e.ElapsedMillis, e.Message.PlainText, abbreviate(e.Message.CipherText, 24))
	}
	return w.Flush()
}

func waitForAll(ctx context.Context, host *messagelist.Host, n int) ([]messagelist.Entry, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		entries, err := host.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) == n && allDone(entries) {
			return entries, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func allDone(entries []messagelist.Entry) bool {
	for _, e := range entries {
		if !e.Done() {
			return false
		}
	}
	return true
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
