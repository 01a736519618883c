package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"securecmd/pkg/crypto"
	"securecmd/pkg/identity"
	"securecmd/pkg/protocol"
)

// CommandPrompt is shown before each command line.
const CommandPrompt = "command: "

// ClientConfig configures an interactive client session.
type ClientConfig struct {
	Options protocol.Options

	// KnownHosts is consulted before credentials are sent. Accepted hosts
	// are added and saved. Nil means an empty in-memory set.
	KnownHosts *identity.KnownHosts

	// Credentials, when set, are sent without prompting.
	Credentials *protocol.Credentials

	Console Console
	Random  crypto.Random
	Logger  logrus.FieldLogger
}

// Client drives one session against a server.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Options.Framer == nil {
		cfg.Options = protocol.DefaultOptions()
	}
	if cfg.KnownHosts == nil {
		cfg.KnownHosts = identity.NewKnownHosts()
	}
	if cfg.Console == nil {
		cfg.Console = NewStdTerminal()
	}
	if cfg.Random == nil {
		cfg.Random = crypto.SystemRandom{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Client{cfg: cfg}
}

// Run performs the handshake and login on rw, then reads commands from the
// console until exit, end of input or a channel error. End of input sends exit.
func (c *Client) Run(ctx context.Context, rw io.ReadWriter) error {
	log := c.cfg.Logger

	key, err := protocol.ClientHandshake(rw, protocol.HandshakeConfig{Random: c.cfg.Random})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	log.Debug("session key established")

	ch := protocol.NewChannel(rw, key, c.cfg.Options)
	defer ch.Close()

	fingerprint, err := protocol.ClientAuthenticate(ch, c, c.credentials)
	if err != nil {
		return err
	}
	log.WithField("fingerprint", fingerprint).Debug("authenticated")
	c.cfg.Console.Println(protocol.MsgConnected)

	return c.loop(ctx, ch)
}

func (c *Client) loop(ctx context.Context, ch *protocol.Channel) error {
	console := c.cfg.Console
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := console.ReadLine(CommandPrompt)
		if errors.Is(err, io.EOF) {
			line = protocol.CmdExit
		} else if err != nil {
			return fmt.Errorf("read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := ch.Send(line); err != nil {
			if errors.Is(err, protocol.ErrTrailingZero) || errors.Is(err, protocol.ErrFrameTooLarge) {
				console.Println("command not sent:", err)
				continue
			}
			return fmt.Errorf("send command: %w", err)
		}
		if protocol.IsExit(line) {
			return nil
		}

		response, err := ch.Receive()
		if err != nil {
			return fmt.Errorf("receive output: %w", err)
		}
		console.Println(response)
	}
}

// VerifyHost implements protocol.HostVerifier with trust on first use.
func (c *Client) VerifyHost(fingerprint string) (bool, error) {
	if c.cfg.KnownHosts.Contains(fingerprint) {
		return true, nil
	}

	c.cfg.Console.Println("Unknown server fingerprint:", fingerprint)
	ok, err := c.cfg.Console.Confirm("Trust this server?")
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	c.cfg.KnownHosts.Add(fingerprint)
	if err := c.cfg.KnownHosts.Save(); err != nil {
		return false, fmt.Errorf("failed to save known hosts: %w", err)
	}
	return true, nil
}

func (c *Client) credentials() (protocol.Credentials, error) {
	if c.cfg.Credentials != nil {
		return *c.cfg.Credentials, nil
	}
	login, err := c.cfg.Console.ReadLine("login: ")
	if err != nil {
		return protocol.Credentials{}, err
	}
	password, err := c.cfg.Console.ReadPassword("password: ")
	if err != nil {
		return protocol.Credentials{}, err
	}
	return protocol.Credentials{Login: strings.TrimSpace(login), Password: password}, nil
}
