package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"securecmd/pkg/identity"
	"securecmd/pkg/metrics"
	"securecmd/pkg/session"
	"securecmd/pkg/transport"
)

var (
	serverCmd   = app.Command("server", "Accept clients and execute their commands.")
	serverFlags = addChannelFlags(serverCmd)

	serverIdentity = serverCmd.Flag("identity",
		"Persist the server fingerprint in this file.").String()

	serverMetrics = serverCmd.Flag("metrics",
		"Expose Prometheus metrics on this address.").String()
)

func doServer(ctx context.Context) error {
	cfg := loadConfig(serverFlags)
	if *serverIdentity != "" {
		cfg.Server.IdentityFile = *serverIdentity
	}
	if *serverMetrics != "" {
		cfg.Server.MetricsAddress = *serverMetrics
	}
	fatalIfError(cfg.Validate(), "Invalid config.")

	logger := newLogger(cfg)

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	executor, err := session.NewExecutor(cfg.Server.ExecMode)
	if err != nil {
		return err
	}

	var id *identity.Identity
	if cfg.Server.IdentityFile != "" {
		id, err = identity.LoadOrCreate(cfg.Server.IdentityFile, nil)
		if err != nil {
			return err
		}
		logger.WithField("fingerprint", id.Fingerprint).Info("loaded server identity")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Server.MetricsAddress != "" {
		go func() {
			err := metrics.Serve(ctx, cfg.Server.MetricsAddress, prometheus.DefaultGatherer, logger)
			if err != nil {
				logger.WithError(err).Error("metrics listener stopped")
			}
		}()
	}

	ln, err := transport.Listen(ctx, cfg.Address)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"framing":   cfg.Framing,
		"integrity": cfg.Integrity,
		"exec_mode": cfg.Server.ExecMode,
	}).Info("starting server")

	srv := session.NewServer(session.ServerConfig{
		Options:     opts,
		Credentials: cfg.Credentials(),
		Identity:    id,
		Executor:    executor,
		Metrics:     m,
		Logger:      logger,
	})
	return srv.Serve(ctx, ln)
}

func init() {
	commandHandlers = append(commandHandlers, func(ctx context.Context, command string) bool {
		switch command {
		case serverCmd.FullCommand():
			fatalIfError(doServer(ctx), "Server failed.")
		default:
			return false
		}
		return true
	})
}
