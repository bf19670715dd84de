package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-seqworker/internal/api"
	seqprom "github.com/Swind/go-seqworker/observability/prometheus"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the message list over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (overrides metrics.addr)",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	app, err := newApplication(c, os.Stderr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer app.host.Stop()

	if err := app.host.Start(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	poller, err := seqprom.NewSnapshotPoller(app.registry, app.config.Metrics.PollInterval)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	poller.AddWorker(app.config.Worker.Name, app.host)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller.Start(ctx)
	defer poller.Stop()

	addr := c.String("addr")
	if addr == "" {
		addr = app.config.Metrics.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(app.host, app.registry, app.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	return nil
}
