package main

import (
	"fmt"
	"io"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-seqworker/cipher"
	"github.com/Swind/go-seqworker/core"
	"github.com/Swind/go-seqworker/internal/config"
	"github.com/Swind/go-seqworker/internal/platform/logger"
	"github.com/Swind/go-seqworker/messagelist"
	seqprom "github.com/Swind/go-seqworker/observability/prometheus"
)

type application struct {
	config   *config.Config
	logger   *slog.Logger
	registry *prom.Registry
	host     *messagelist.Host
}

// newApplication loads configuration and builds the host with metrics wired in.
func newApplication(c *cli.Context, logOut io.Writer, opts ...messagelist.Option) (*application, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	log, err := logger.Setup(cfg.Log, logOut)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	reg := prom.NewRegistry()
	exporter, err := seqprom.NewMetricsExporter("", reg, seqprom.ExporterOptions{})
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}

	enc, err := cipher.NewEncrypter(cfg.Cipher.Passphrase, cipher.WithDelay(cfg.Cipher.Delay))
	if err != nil {
		return nil, fmt.Errorf("create encrypter: %w", err)
	}

	hostOpts := append([]messagelist.Option{
		messagelist.WithLogger(log),
		messagelist.WithWorkerOptions(
			core.WithName(cfg.Worker.Name),
			core.WithHistoryCapacity(cfg.Worker.HistoryCapacity),
			core.WithMetrics(exporter),
		),
	}, opts...)

	return &application{
		config:   cfg,
		logger:   log,
		registry: reg,
		host:     messagelist.NewHost(enc.EncryptMessage, hostOpts...),
	}, nil
}
