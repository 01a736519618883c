// Package session runs the server and client ends of a remote command
// session on top of the protocol package.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"securecmd/pkg/crypto"
	"securecmd/pkg/identity"
	"securecmd/pkg/metrics"
	"securecmd/pkg/protocol"
)

// ServerConfig configures every connection handled by a Server.
type ServerConfig struct {
	Options     protocol.Options
	Credentials protocol.Credentials

	// Identity is presented to every client. When nil each connection gets
	// a fresh random fingerprint.
	Identity *identity.Identity

	Executor Executor
	Random   crypto.Random
	Metrics  *metrics.Metrics
	Logger   logrus.FieldLogger
}

// Server accepts connections and runs one independent session per connection.
type Server struct {
	cfg ServerConfig
	wg  sync.WaitGroup
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Options.Framer == nil {
		cfg.Options = protocol.DefaultOptions()
	}
	if cfg.Credentials == (protocol.Credentials{}) {
		cfg.Credentials = protocol.DefaultCredentials
	}
	if cfg.Executor == nil {
		cfg.Executor = NewShellExecutor()
	}
	if cfg.Random == nil {
		cfg.Random = crypto.SystemRandom{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Server{cfg: cfg}
}

// Accept errors other than a closed listener are retried with a delay that
// doubles from acceptBackoffMin up to acceptBackoffMax.
const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// Serve accepts connections until ctx is cancelled or ln fails. Cancelling
// ctx closes the listener and every open connection, then waits for the
// workers to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.cfg.Logger.WithField("address", ln.Addr().String()).Info("server listening")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = nextAcceptDelay(delay)
			s.cfg.Logger.WithError(err).Warnf("accept failed; retrying in %v", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return acceptBackoffMin
	}
	if prev *= 2; prev > acceptBackoffMax {
		return acceptBackoffMax
	}
	return prev
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := s.cfg.Logger.WithFields(logrus.Fields{
		"session": uuid.NewString(),
		"remote":  conn.RemoteAddr().String(),
	})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("PANIC: %v", r)
		}
	}()

	err := s.ServeConn(ctx, conn, log)
	switch {
	case err == nil:
		log.Info("session closed")
	case errors.Is(err, protocol.ErrAuthenticationRejected):
		log.WithError(err).Warn("session rejected")
	default:
		log.WithError(err).Error("session failed")
	}
}

// ServeConn runs one session on rw: handshake, authentication and the
// command loop. It returns nil when the client ends the session with exit or
// by disconnecting during the command loop.
func (s *Server) ServeConn(ctx context.Context, rw io.ReadWriter, log logrus.FieldLogger) error {
	m := s.cfg.Metrics
	m.ConnectionAccepted()
	st := &tracker{log: log}

	st.enter(protocol.StateKeyExchanging)
	key, err := protocol.ServerHandshake(rw, protocol.HandshakeConfig{Random: s.cfg.Random})
	if err != nil {
		m.Handshake(metrics.ResultFailed)
		st.enter(protocol.StateClosed)
		return fmt.Errorf("handshake: %w", err)
	}
	m.Handshake(metrics.ResultOK)
	st.enter(protocol.StateKeyAssembled)
	log.Info("session key established")

	ch := protocol.NewChannel(rw, key, s.cfg.Options)
	defer ch.Close()

	st.enter(protocol.StateAuthenticating)
	login, err := protocol.ServerAuthenticate(ch, s.fingerprint(), s.cfg.Credentials)
	if err != nil {
		if errors.Is(err, protocol.ErrAuthenticationRejected) {
			m.Auth(metrics.ResultRejected)
			st.enter(protocol.StateRejected)
			return err
		}
		s.countIntegrity(err)
		m.Auth(metrics.ResultFailed)
		st.enter(protocol.StateClosed)
		return fmt.Errorf("authentication: %w", err)
	}
	m.Auth(metrics.ResultOK)
	st.enter(protocol.StateAuthenticated)
	log.WithField("login", login).Info("client authenticated")

	st.enter(protocol.StateCommandLoop)
	defer st.enter(protocol.StateClosed)

	for {
		msg, err := ch.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("client disconnected")
				return nil
			}
			s.countIntegrity(err)
			return fmt.Errorf("receive command: %w", err)
		}

		line := strings.TrimSpace(msg)
		if line == protocol.CmdExit {
			log.Info("client sent exit")
			return nil
		}

		output := truncate(s.cfg.Executor.Run(ctx, line), ch.MaxMessageSize())
		m.CommandExecuted()
		log.WithFields(logrus.Fields{
			"command": line,
			"output":  humanize.Bytes(uint64(len(output))),
		}).Info("command executed")

		if err := ch.Send(output); err != nil {
			return fmt.Errorf("send output: %w", err)
		}
	}
}

func (s *Server) fingerprint() string {
	if s.cfg.Identity != nil {
		return s.cfg.Identity.Fingerprint
	}
	return identity.NewFingerprint(s.cfg.Random)
}

func (s *Server) countIntegrity(err error) {
	if errors.Is(err, protocol.ErrIntegrity) {
		s.cfg.Metrics.IntegrityFailure()
	}
}

// truncate cuts output to max bytes on a rune boundary. max <= 0 means no limit.
func truncate(output string, max int) string {
	if max <= 0 || len(output) <= max {
		return output
	}
	n := max
	for n > 0 && !utf8.RuneStart(output[n]) {
		n--
	}
	return render([]byte(output[:n]))
}

// tracker records the protocol state of one connection.
type tracker struct {
	state protocol.State
	log   logrus.FieldLogger
}

func (t *tracker) enter(next protocol.State) {
	if t.state == next {
		return
	}
	if !protocol.CanTransition(t.state, next) {
		t.log.Warnf("unexpected state transition %s -> %s", t.state, next)
	}
	t.log.Debugf("state %s -> %s", t.state, next)
	t.state = next
}
