package session

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securecmd/pkg/crypto"
	"securecmd/pkg/identity"
	"securecmd/pkg/logging"
	"securecmd/pkg/metrics"
	"securecmd/pkg/protocol"
)

// recordingExecutor echoes commands back and remembers them.
type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
}

func (e *recordingExecutor) Run(_ context.Context, line string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, line)
	return "ran: " + line
}

func (e *recordingExecutor) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

type harness struct {
	addr     string
	exec     *recordingExecutor
	id       *identity.Identity
	registry *prometheus.Registry
	opts     protocol.Options
}

func startServer(t *testing.T, opts protocol.Options) *harness {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &harness{
		addr:     ln.Addr().String(),
		exec:     &recordingExecutor{},
		id:       identity.New(crypto.NewSeededRandom(42)),
		registry: prometheus.NewRegistry(),
		opts:     opts,
	}

	srv := NewServer(ServerConfig{
		Options:  opts,
		Identity: h.id,
		Executor: h.exec,
		Metrics:  metrics.New(h.registry),
		Logger:   logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return h
}

func (h *harness) runClient(t *testing.T, input string, cfg ClientConfig) (string, error) {
	t.Helper()

	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()

	var out bytes.Buffer
	cfg.Console = NewTerminal(strings.NewReader(input), &out)
	cfg.Options = h.opts
	cfg.Logger = logging.Discard()

	err = NewClient(cfg).Run(context.Background(), conn)
	return out.String(), err
}

func (h *harness) counter(t *testing.T, name, result string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := result == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					match = true
				}
			}
			if match {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func adminCredentials() *protocol.Credentials {
	creds := protocol.DefaultCredentials
	return &creds
}

func TestSessionCommandLoop(t *testing.T) {
	modes := map[string]protocol.Options{
		"length-prefixed": protocol.DefaultOptions(),
		"single-read": {
			Framer:    protocol.SingleRead{BufferSize: protocol.DefaultBufferSize},
			Integrity: true,
		},
		"single-read no digest": {
			Framer: protocol.SingleRead{BufferSize: protocol.DefaultBufferSize},
		},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			h := startServer(t, opts)

			out, err := h.runClient(t, "ls -la\n\n   \nwhoami\nexit\n", ClientConfig{
				KnownHosts:  identity.NewKnownHosts(h.id.Fingerprint),
				Credentials: adminCredentials(),
			})
			require.NoError(t, err)

			assert.Contains(t, out, protocol.MsgConnected)
			assert.Contains(t, out, "ran: ls -la")
			assert.Contains(t, out, "ran: whoami")
			assert.NotContains(t, out, "ran: exit")
			assert.Equal(t, []string{"ls -la", "whoami"}, h.exec.seen())
		})
	}
}

func TestSessionEndOfInputSendsExit(t *testing.T) {
	h := startServer(t, protocol.DefaultOptions())

	out, err := h.runClient(t, "uptime\n", ClientConfig{
		KnownHosts:  identity.NewKnownHosts(h.id.Fingerprint),
		Credentials: adminCredentials(),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "ran: uptime")
	assert.Equal(t, []string{"uptime"}, h.exec.seen())
}

func TestSessionPromptedCredentials(t *testing.T) {
	h := startServer(t, protocol.DefaultOptions())

	out, err := h.runClient(t, "admin\nadmin\nid\nexit\n", ClientConfig{
		KnownHosts: identity.NewKnownHosts(h.id.Fingerprint),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "login: ")
	assert.Contains(t, out, "password: ")
	assert.Contains(t, out, "ran: id")
}

func TestSessionBadCredentials(t *testing.T) {
	h := startServer(t, protocol.DefaultOptions())

	_, err := h.runClient(t, "id\n", ClientConfig{
		KnownHosts:  identity.NewKnownHosts(h.id.Fingerprint),
		Credentials: &protocol.Credentials{Login: "admin", Password: "nope"},
	})
	require.ErrorIs(t, err, protocol.ErrAuthenticationRejected)

	var rejected *protocol.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, protocol.MsgBadCredentials, rejected.Reason)
	assert.Empty(t, h.exec.seen(), "no command may run without authentication")

	assert.Eventually(t, func() bool {
		return h.counter(t, "securecmd_auth_total", metrics.ResultRejected) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSessionTrustOnFirstUse(t *testing.T) {
	h := startServer(t, protocol.DefaultOptions())
	path := filepath.Join(t.TempDir(), identity.DefaultKnownHostsFile)

	known, err := identity.LoadKnownHosts(path)
	require.NoError(t, err)

	out, err := h.runClient(t, "y\nhostname\nexit\n", ClientConfig{
		KnownHosts:  known,
		Credentials: adminCredentials(),
	})
	require.NoError(t, err)
	assert.Contains(t, out, h.id.Fingerprint)
	assert.Contains(t, out, "ran: hostname")

	reloaded, err := identity.LoadKnownHosts(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains(h.id.Fingerprint))

	// Second connection is trusted without asking.
	out, err = h.runClient(t, "exit\n", ClientConfig{
		KnownHosts:  reloaded,
		Credentials: adminCredentials(),
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "Trust this server?")
}

func TestSessionHostRejected(t *testing.T) {
	h := startServer(t, protocol.DefaultOptions())

	out, err := h.runClient(t, "n\nid\n", ClientConfig{Credentials: adminCredentials()})
	require.ErrorIs(t, err, protocol.ErrAuthenticationRejected)
	assert.Contains(t, out, "Trust this server?")
	assert.NotContains(t, out, protocol.MsgConnected)
	assert.Empty(t, h.exec.seen())
}

func TestSessionMetrics(t *testing.T) {
	h := startServer(t, protocol.DefaultOptions())

	_, err := h.runClient(t, "a\nb\nexit\n", ClientConfig{
		KnownHosts:  identity.NewKnownHosts(h.id.Fingerprint),
		Credentials: adminCredentials(),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return h.counter(t, "securecmd_commands_total", "") == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1.0, h.counter(t, "securecmd_connections_total", ""))
	assert.Equal(t, 1.0, h.counter(t, "securecmd_handshakes_total", metrics.ResultOK))
	assert.Equal(t, 1.0, h.counter(t, "securecmd_auth_total", metrics.ResultOK))
}

func TestServeConnHandshakeFailure(t *testing.T) {
	srv := NewServer(ServerConfig{Logger: logging.Discard()})

	server, client := net.Pipe()
	defer server.Close()
	go func() {
		buf := make([]byte, crypto.PublicKeySize)
		_, _ = client.Read(buf)
		client.Close()
	}()

	err := srv.ServeConn(context.Background(), server, logging.Discard())
	assert.ErrorIs(t, err, protocol.ErrTransport)
}

func TestServerFingerprintPerConnection(t *testing.T) {
	srv := NewServer(ServerConfig{Random: crypto.NewSeededRandom(5), Logger: logging.Discard()})
	a := srv.fingerprint()
	b := srv.fingerprint()
	assert.Len(t, a, protocol.FingerprintSize)
	assert.NotEqual(t, a, b)

	id := identity.New(nil)
	fixed := NewServer(ServerConfig{Identity: id, Logger: logging.Discard()})
	assert.Equal(t, id.Fingerprint, fixed.fingerprint())
}

// flakyListener fails Accept a fixed number of times before reporting closed.
type flakyListener struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.failures {
		return nil, errors.New("accept: too many open files")
	}
	return nil, net.ErrClosed
}

func (l *flakyListener) Close() error   { return nil }
func (l *flakyListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestServeBacksOffOnAcceptErrors(t *testing.T) {
	ln := &flakyListener{failures: 3}
	srv := NewServer(ServerConfig{Logger: logging.Discard()})

	start := time.Now()
	require.NoError(t, srv.Serve(context.Background(), ln))

	assert.Equal(t, 4, ln.calls)
	assert.GreaterOrEqual(t, time.Since(start), acceptBackoffMin+2*acceptBackoffMin+4*acceptBackoffMin)
}

func TestServeStopsDuringBackoff(t *testing.T) {
	ln := &flakyListener{failures: 1 << 30}
	srv := NewServer(ServerConfig{Logger: logging.Discard()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()
	assert.Less(t, ln.calls, 20)
}

func TestNextAcceptDelay(t *testing.T) {
	assert.Equal(t, acceptBackoffMin, nextAcceptDelay(0))
	assert.Equal(t, 2*acceptBackoffMin, nextAcceptDelay(acceptBackoffMin))
	assert.Equal(t, acceptBackoffMax, nextAcceptDelay(acceptBackoffMax))
	assert.Equal(t, acceptBackoffMax, nextAcceptDelay(acceptBackoffMax-time.Millisecond))
}
