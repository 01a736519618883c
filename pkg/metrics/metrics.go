// Package metrics exposes the server's Prometheus counters.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
)

// Metrics groups the counters updated by a server session. A nil *Metrics
// records nothing.
type Metrics struct {
	connections       prometheus.Counter
	handshakes        *prometheus.CounterVec
	auth              *prometheus.CounterVec
	commands          prometheus.Counter
	integrityFailures prometheus.Counter
}

// New registers the counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "securecmd_connections_total",
			Help: "Accepted client connections.",
		}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securecmd_handshakes_total",
			Help: "Key exchanges by result.",
		}, []string{"result"}),
		auth: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "securecmd_auth_total",
			Help: "Authentication attempts by result.",
		}, []string{"result"}),
		commands: factory.NewCounter(prometheus.CounterOpts{
			Name: "securecmd_commands_total",
			Help: "Commands executed for authenticated clients.",
		}),
		integrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "securecmd_integrity_failures_total",
			Help: "Messages dropped because their digest did not match.",
		}),
	}
}

func (m *Metrics) ConnectionAccepted() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) Handshake(result string) {
	if m != nil {
		m.handshakes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Auth(result string) {
	if m != nil {
		m.auth.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) CommandExecuted() {
	if m != nil {
		m.commands.Inc()
	}
}

func (m *Metrics) IntegrityFailure() {
	if m != nil {
		m.integrityFailures.Inc()
	}
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", addr, err)
	}
	return ServeListener(ctx, ln, gatherer, logger)
}

// ServeListener is Serve on an already open listener.
func ServeListener(ctx context.Context, ln net.Listener, gatherer prometheus.Gatherer, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("address", ln.Addr().String()).Info("metrics listener started")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
