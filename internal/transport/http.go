package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	probePath = "/json/report"
	writePath = "/api/v1/toradio"
	readPath  = "/api/v1/fromradio"

	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 5 * time.Second
	DefaultQueueSize    = 64
)

// Doer performs one HTTP request. Satisfied by *http.Client; substituted in
// tests so no global request state is touched.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig describes one device HTTP endpoint. Immutable once passed to
// NewHTTPTransport.
type HTTPConfig struct {
	Host       string
	UseTLS     bool
	MaxRetries int
	RetryDelay time.Duration
	// Retry overrides the fixed RetryDelay policy when set.
	Retry        RetryPolicy
	PollInterval time.Duration
	PollTimeout  time.Duration
	// BatchReads sets the all= query flag on poll requests.
	BatchReads bool
	QueueSize  int
	Client     Doer
}

func (c *HTTPConfig) fillDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Retry == nil {
		c.Retry = FixedDelay(c.RetryDelay)
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
}

// HTTPTransport exchanges opaque frames with a device over its HTTP API:
// writes go out as one PUT per frame, reads come from a timer-driven poll
// loop that drains the device buffer each tick.
type HTTPTransport struct {
	cfg     HTTPConfig
	baseURL string

	mu     sync.Mutex
	poller *poller
}

func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	cfg.fillDefaults()
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}

	return &HTTPTransport{
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s://%s", scheme, cfg.Host),
	}
}

func (t *HTTPTransport) Name() string {
	return "http"
}

func (t *HTTPTransport) StatusTarget() string {
	return t.cfg.Host
}

func (t *HTTPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.poller != nil
}

// Connect probes the device status endpoint until it answers, bounded by
// MaxRetries with the configured delay between attempts, then starts the
// poll loop. Idempotent when already connected; canceling ctx aborts the
// retry sequence.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("http", "target", t.cfg.Host)
	if t.poller != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.cfg.Host == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("http host is empty")
	}

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxRetries; attempt++ {
		err := t.probe(ctx)
		if err == nil {
			p := newPoller(t.cfg.Client, t.baseURL, t.cfg.BatchReads, t.cfg.PollInterval, t.cfg.PollTimeout, t.cfg.QueueSize)
			p.start()
			t.poller = p
			logger.Info("connected", "attempt", attempt)

			return nil
		}
		lastErr = err
		logger.Warn("probe failed", "attempt", attempt, "max_retries", t.cfg.MaxRetries, "error", err)
		if attempt == t.cfg.MaxRetries {
			break
		}
		if !sleepWithContext(ctx, t.cfg.Retry.Delay(attempt)) {
			return ctx.Err()
		}
	}

	return &ConnectError{Attempts: t.cfg.MaxRetries, Err: lastErr}
}

// Close stops the poll loop and releases its timer. Safe to call more than
// once; a ReadFrame blocked on the queue observes ErrClosed.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	p := t.poller
	t.poller = nil
	t.mu.Unlock()

	logger := transportLogger("http", "target", t.cfg.Host)
	if p == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	p.stop()
	logger.Info("closed")

	return nil
}

// ReadFrame returns the next inbound packet, or the error the poll loop
// observed in its place. Blocks until an output is queued, ctx is done, or
// the transport is closed.
func (t *HTTPTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	p, err := t.currentPoller()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out, ok := <-p.out:
		if !ok {
			return nil, ErrClosed
		}
		if out.Err != nil {
			return nil, out.Err
		}

		return out.Packet, nil
	}
}

// WriteFrame issues exactly one PUT carrying payload as the raw body.
// Zero-length frames are valid; no retry and no internal queueing.
func (t *HTTPTransport) WriteFrame(ctx context.Context, payload []byte) error {
	logger := transportLogger("http", "target", t.cfg.Host)
	if _, err := t.currentPoller(); err != nil {
		logger.Debug("write frame failed: not connected", "error", err)

		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+writePath, bytes.NewReader(payload))
	if err != nil {
		logger.Warn("build write request failed", "error", err)

		return &WriteError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		logger.Warn("write frame failed", "payload_len", len(payload), "error", err)

		return &WriteError{Err: err}
	}
	defer discardBody(resp.Body)

	if !statusOK(resp.StatusCode) {
		logger.Warn("write frame rejected", "payload_len", len(payload), "status", resp.StatusCode)

		return &WriteError{Status: resp.StatusCode}
	}
	logger.Debug("write frame", "payload_len", len(payload))

	return nil
}

func (t *HTTPTransport) probe(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.baseURL+probePath, nil)
	if err != nil {
		return err
	}
	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", probePath, err)
	}
	defer discardBody(resp.Body)

	if !statusOK(resp.StatusCode) {
		return fmt.Errorf("probe %s: status %d", probePath, resp.StatusCode)
	}

	return nil
}

func (t *HTTPTransport) currentPoller() (*poller, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.poller == nil {
		return nil, errors.New("transport is not connected")
	}

	return t.poller, nil
}

func statusOK(code int) bool {
	return code >= 200 && code < 300
}

func discardBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
