package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// poller drains the device read endpoint on a fixed interval. Each tick it
// issues GETs until an empty body says the device buffer is empty; every
// request is bounded by its own timeout. Failures are queued as error-tagged
// outputs and never stop the loop: the next tick polls again.
//
// A single goroutine runs all drains, so a tick firing while a drain is
// still in flight is coalesced by the ticker rather than run concurrently.
type poller struct {
	logger   *slog.Logger
	client   Doer
	readURL  string
	interval time.Duration
	timeout  time.Duration

	out    chan DeviceOutput
	cancel context.CancelFunc
	done   chan struct{}
}

func newPoller(client Doer, baseURL string, batch bool, interval, timeout time.Duration, queueSize int) *poller {
	return &poller{
		logger:   transportLogger("http").With("worker", "poller"),
		client:   client,
		readURL:  fmt.Sprintf("%s%s?all=%t", baseURL, readPath, batch),
		interval: interval,
		timeout:  timeout,
		out:      make(chan DeviceOutput, queueSize),
		done:     make(chan struct{}),
	}
}

func (p *poller) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// stop cancels the loop and waits for it to exit. The output channel is
// closed once no more outputs can be produced.
func (p *poller) stop() {
	p.cancel()
	<-p.done
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain performs one poll cycle: read until the device reports an empty
// buffer. A failed request ends the cycle after queueing the failure; it
// does not retry within the same cycle.
func (p *poller) drain(ctx context.Context) {
	pollCycles.Inc()
	for {
		payload, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			kind := failureKind(err)
			pollFailures.WithLabelValues(kind).Inc()
			p.logger.Warn("poll failed", "kind", kind, "error", err)
			p.queue(DeviceOutput{Err: err})

			return
		}
		if len(payload) == 0 {
			return
		}
		packetsReceived.Inc()
		p.logger.Debug("packet received", "len", len(payload))
		p.queue(DeviceOutput{Packet: payload})
	}
}

func (p *poller) fetch(ctx context.Context) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.readURL, nil)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Err: err}
		}

		return nil, &ReadError{Err: err}
	}
	defer discardBody(resp.Body)

	if !statusOK(resp.StatusCode) {
		return nil, &ReadError{Status: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Err: err}
		}

		return nil, &ReadError{Err: err}
	}

	return payload, nil
}

// queue appends an output, evicting the oldest queued entry when the
// consumer has fallen a full queue behind. Eviction keeps the drain loop
// live and is counted instead of blocking the poll cycle.
func (p *poller) queue(out DeviceOutput) {
	for {
		select {
		case p.out <- out:
			return
		default:
		}
		select {
		case <-p.out:
			outputsDropped.Inc()
			p.logger.Warn("output dropped: read queue full", "capacity", cap(p.out))
		default:
		}
	}
}

func failureKind(err error) string {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return failureKindTimeout
	}
	var readErr *ReadError
	if errors.As(err, &readErr) && readErr.Status != 0 {
		return failureKindStatus
	}

	return failureKindNetwork
}
