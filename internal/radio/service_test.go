package radio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"meshhttp/internal/bus"
	"meshhttp/internal/connectors"
	"meshhttp/internal/transport"
)

type fakeStep struct {
	payload []byte
	err     error
}

type fakeTransport struct {
	mu       sync.Mutex
	connects int
	steps    []fakeStep
	written  [][]byte
	writeErr error
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) StatusTarget() string { return "fake:0" }

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++

	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	if len(f.steps) > 0 {
		step := f.steps[0]
		f.steps = f.steps[1:]
		f.mu.Unlock()

		return step.payload, step.err
	}
	f.mu.Unlock()

	<-ctx.Done()

	return nil, ctx.Err()
}

func (f *fakeTransport) WriteFrame(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), payload...))

	return nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connects
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServiceUnderTest wires a service without starting it, so tests can
// subscribe to bus topics before any event is published.
func newServiceUnderTest(t *testing.T, tr transport.Transport) (*Service, bus.MessageBus, func()) {
	t.Helper()
	b := bus.New(quietLogger())
	svc := NewService(quietLogger(), b, tr)
	svc.reconnect = transport.FixedDelay(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		b.Close()
	})

	return svc, b, func() { svc.Start(ctx) }
}

func TestSendWritesFrameAndPublishesRawOut(t *testing.T) {
	tr := &fakeTransport{}
	svc, b, start := newServiceUnderTest(t, tr)
	rawOut := b.Subscribe(connectors.TopicRawFrameOut)
	defer b.Unsubscribe(rawOut, connectors.TopicRawFrameOut)
	start()

	payload := []byte{0xDE, 0xAD}
	res := <-svc.Send(payload)
	if res.Err != nil {
		t.Fatalf("send: %v", res.Err)
	}

	tr.mu.Lock()
	written := tr.written
	tr.mu.Unlock()
	if len(written) != 1 || string(written[0]) != string(payload) {
		t.Fatalf("unexpected written frames: %x", written)
	}

	select {
	case raw := <-rawOut:
		frame, ok := raw.(connectors.RawFrame)
		if !ok {
			t.Fatalf("unexpected event type %T", raw)
		}
		if frame.Len != len(payload) || frame.Hex != "DEAD" {
			t.Fatalf("unexpected raw frame event: %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for raw frame event")
	}
}

func TestSendSurfacesWriteError(t *testing.T) {
	tr := &fakeTransport{writeErr: &transport.WriteError{Status: 503}}
	svc, _, start := newServiceUnderTest(t, tr)
	start()

	res := <-svc.Send([]byte("frame"))
	var writeErr *transport.WriteError
	if !errors.As(res.Err, &writeErr) {
		t.Fatalf("expected WriteError, got %v", res.Err)
	}
	if writeErr.Status != 503 {
		t.Fatalf("expected status 503, got %d", writeErr.Status)
	}
}

func TestTransientPollFailuresArePublishedNotFatal(t *testing.T) {
	tr := &fakeTransport{steps: []fakeStep{
		{err: &transport.TimeoutError{Err: errors.New("deadline exceeded")}},
		{payload: []byte{0x01}},
	}}
	_, b, start := newServiceUnderTest(t, tr)
	errSub := b.Subscribe(connectors.TopicFrameError)
	inSub := b.Subscribe(connectors.TopicRawFrameIn)
	defer b.Unsubscribe(errSub, connectors.TopicFrameError)
	defer b.Unsubscribe(inSub, connectors.TopicRawFrameIn)
	start()

	select {
	case raw := <-errSub:
		event, ok := raw.(connectors.InboundError)
		if !ok {
			t.Fatalf("unexpected event type %T", raw)
		}
		if event.Kind != "timeout" {
			t.Fatalf("expected timeout kind, got %q", event.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound error event")
	}

	select {
	case raw := <-inSub:
		frame, ok := raw.(connectors.RawFrame)
		if !ok {
			t.Fatalf("unexpected event type %T", raw)
		}
		if frame.Len != 1 {
			t.Fatalf("expected 1-byte frame after transient failure, got %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reader did not continue after transient failure")
	}

	if got := tr.connectCount(); got != 1 {
		t.Fatalf("transient failure must not reconnect, got %d connects", got)
	}
}

func TestFatalReadErrorTriggersReconnect(t *testing.T) {
	tr := &fakeTransport{steps: []fakeStep{
		{err: errors.New("connection lost")},
	}}
	_, b, start := newServiceUnderTest(t, tr)
	connSub := b.Subscribe(connectors.TopicConnStatus)
	defer b.Unsubscribe(connSub, connectors.TopicConnStatus)
	start()

	deadline := time.After(2 * time.Second)
	sawReconnecting := false
	for {
		select {
		case raw := <-connSub:
			status, ok := raw.(connectors.ConnStatus)
			if !ok {
				continue
			}
			if status.State == connectors.ConnectionStateReconnecting {
				sawReconnecting = true
			}
			if sawReconnecting && status.State == connectors.ConnectionStateConnected {
				if got := tr.connectCount(); got < 2 {
					t.Fatalf("expected a reconnect, got %d connects", got)
				}

				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reconnect cycle")
		}
	}
}
