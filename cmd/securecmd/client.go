package main

import (
	"context"

	"securecmd/pkg/identity"
	"securecmd/pkg/session"
	"securecmd/pkg/transport"
)

var (
	clientCmd   = app.Command("client", "Connect to a server and run commands interactively.")
	clientFlags = addChannelFlags(clientCmd)

	clientProxy = clientCmd.Flag("proxy",
		"Dial through this SOCKS5 proxy, e.g. "+transport.DefaultTorProxy).String()

	clientKnownHosts = clientCmd.Flag("known_hosts",
		"File of trusted server fingerprints.").String()
)

func knownHostsPath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return identity.GetDefaultKeyPath(identity.DefaultKnownHostsFile)
}

func doClient(ctx context.Context) error {
	cfg := loadConfig(clientFlags)
	if *clientProxy != "" {
		cfg.Client.Proxy = *clientProxy
	}
	if *clientKnownHosts != "" {
		cfg.Client.KnownHostsFile = *clientKnownHosts
	}

	logger := newLogger(cfg)

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	path, err := knownHostsPath(cfg.Client.KnownHostsFile)
	if err != nil {
		return err
	}
	known, err := identity.LoadKnownHosts(path)
	if err != nil {
		return err
	}

	conn, err := transport.NewDialer(cfg.Client.Proxy).DialContext(ctx, cfg.Address)
	if err != nil {
		return err
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { conn.Close() })

	logger.WithField("address", cfg.Address).Debug("connected")

	client := session.NewClient(session.ClientConfig{
		Options:    opts,
		KnownHosts: known,
		Console:    session.NewStdTerminal(),
		Logger:     logger,
	})

	return client.Run(ctx, conn)
}

func init() {
	commandHandlers = append(commandHandlers, func(ctx context.Context, command string) bool {
		switch command {
		case clientCmd.FullCommand():
			fatalIfError(doClient(ctx), "Session ended.")
		default:
			return false
		}
		return true
	})
}
