// Package probe decides, within a hard deadline, whether a development
// server is accepting connections and answering HTTP requests.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/harshul/devharness/internal/logger"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout leaves room for a dev server compiling on first request.
	DefaultTimeout = 5 * time.Second
	// DefaultConnectTimeout bounds the raw TCP pre-check.
	DefaultConnectTimeout = 500 * time.Millisecond
)

// ErrDeadline is reported when the watcher gives up on a check that is still running.
var ErrDeadline = errors.New("readiness check exceeded its deadline")

// Kind classifies the outcome of a single check.
type Kind string

const (
	KindReady     Kind = "ready"
	KindRefused   Kind = "refused"
	KindBadStatus Kind = "bad-status"
	KindTransport Kind = "transport"
	KindDeadline  Kind = "deadline"
	KindBadURL    Kind = "bad-url"
)

// Result is the outcome of one readiness check.
type Result struct {
	URL        string
	Kind       Kind
	StatusCode int
	Err        error
	Elapsed    time.Duration
}

// Ready reports whether the server answered with a 2xx or 3xx status.
func (r Result) Ready() bool {
	return r.Kind == KindReady
}

func (r Result) String() string {
	switch r.Kind {
	case KindReady, KindBadStatus:
		return fmt.Sprintf("%s (%d)", r.Kind, r.StatusCode)
	case KindDeadline:
		return string(r.Kind)
	default:
		if r.Err != nil {
			return fmt.Sprintf("%s: %v", r.Kind, r.Err)
		}
		return string(r.Kind)
	}
}

// Prober runs readiness checks.
type Prober struct {
	connectTimeout time.Duration
	log            *logger.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithConnectTimeout overrides the TCP pre-check timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.connectTimeout = d
		}
	}
}

// WithLogger sets the logger used for progress output.
func WithLogger(l *logger.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		connectTimeout: DefaultConnectTimeout,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithComponent("probe")
	return p
}

// IsReady reports whether rawURL is serving. It returns within timeout plus
// scheduling overhead no matter how the remote end behaves.
func (p *Prober) IsReady(rawURL string, timeout time.Duration) bool {
	return p.Check(rawURL, timeout).Ready()
}

// Check runs one readiness check. The check itself runs on its own goroutine
// and is abandoned if it has not finished when timeout elapses.
func (p *Prober) Check(rawURL string, timeout time.Duration) Result {
	start := time.Now()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	addr, err := dialAddress(rawURL)
	if err != nil {
		return Result{URL: rawURL, Kind: KindBadURL, Err: err}
	}

	// Buffered so an abandoned worker can always deliver and exit.
	done := make(chan Result, 1)
	go func() {
		done <- p.check(rawURL, addr, timeout)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res Result
	select {
	case res = <-done:
	case <-timer.C:
		res = Result{URL: rawURL, Kind: KindDeadline, Err: ErrDeadline}
	}
	res.Elapsed = time.Since(start)
	return res
}

func (p *Prober) check(rawURL, addr string, timeout time.Duration) Result {
	connectTimeout := min(p.connectTimeout, timeout)

	// A closed port fails here in microseconds; skip HTTP entirely.
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return Result{URL: rawURL, Kind: KindRefused, Err: err}
	}
	_ = conn.Close()

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			ResponseHeaderTimeout: timeout,
			DisableKeepAlives:     true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{URL: rawURL, Kind: KindBadURL, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{URL: rawURL, Kind: KindTransport, Err: err}
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return Result{URL: rawURL, Kind: KindReady, StatusCode: resp.StatusCode}
	}
	return Result{
		URL:        rawURL,
		Kind:       KindBadStatus,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
	}
}

// dialAddress extracts host:port from an http(s) URL, filling in the scheme's default port.
func dialAddress(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("missing host in %q", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// logField is shared by the wait loop for consistent keys.
func logField(rawURL string) zap.Field {
	return zap.String("url", rawURL)
}
