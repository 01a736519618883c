// Package transport opens the TCP streams the secure channel runs over,
// either directly or through a SOCKS5 proxy such as Tor.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultConnectionTimeout is the timeout for establishing connections
	DefaultConnectionTimeout = 90 * time.Second

	// DefaultKeepAlive is the keep-alive interval for connections
	DefaultKeepAlive = 30 * time.Second

	// ProxyTestTimeout is the timeout for testing proxy availability
	ProxyTestTimeout = 2 * time.Second
)

var (
	// DefaultTorProxy is the standard Tor daemon SOCKS5 endpoint
	DefaultTorProxy = "socks5://127.0.0.1:9050"

	// OnionRegex validates v3 .onion hosts
	OnionRegex = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
)

// ValidateAddress checks that addr is host:port with a usable port.
func ValidateAddress(addr string) error {
	return validateAddress(addr, 1)
}

func validateAddress(addr string, minPort int) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < minPort || n > 65535 {
		return fmt.Errorf("invalid port %q in %q", port, addr)
	}

	if strings.HasSuffix(host, ".onion") && !OnionRegex.MatchString(host) {
		return fmt.Errorf("invalid .onion address format (must be v3: 56 chars + .onion)")
	}

	return nil
}

// IsOnion reports whether addr names a Tor hidden service.
func IsOnion(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return strings.HasSuffix(host, ".onion")
}

// CheckProxy reports whether the SOCKS5 proxy at proxyURL accepts TCP
// connections within ProxyTestTimeout.
func CheckProxy(ctx context.Context, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	host := u.Host
	if host == "" {
		return fmt.Errorf("proxy URL %q has no host", proxyURL)
	}

	ctx, cancel := context.WithTimeout(ctx, ProxyTestTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("proxy %s not responding: %w", host, err)
	}
	conn.Close()

	return nil
}

// Dialer opens client connections. An empty Proxy dials directly.
type Dialer struct {
	Proxy     string
	Timeout   time.Duration
	KeepAlive time.Duration
}

// NewDialer creates a dialer with default timeouts.
func NewDialer(proxyURL string) *Dialer {
	return &Dialer{
		Proxy:     proxyURL,
		Timeout:   DefaultConnectionTimeout,
		KeepAlive: DefaultKeepAlive,
	}
}

// DialContext connects to addr, through the proxy when one is configured.
func (d *Dialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}

	base := &net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: d.KeepAlive,
	}

	if d.Proxy == "" {
		if IsOnion(addr) {
			return nil, fmt.Errorf("%s is a .onion address and needs a SOCKS5 proxy", addr)
		}
		conn, err := base.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connection to %s failed: %w", addr, err)
		}
		return conn, nil
	}

	if err := CheckProxy(ctx, d.Proxy); err != nil {
		return nil, err
	}

	proxyURL, err := url.Parse(d.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	dialer, err := proxy.FromURL(proxyURL, base)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", d.Proxy, err)
	}

	var conn net.Conn
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connection via %s failed: %w", d.Proxy, err)
	}
	return conn, nil
}

// Listen opens the server socket. Port 0 picks a free port.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	if err := validateAddress(addr, 0); err != nil {
		return nil, err
	}

	lc := net.ListenConfig{KeepAlive: DefaultKeepAlive}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}
