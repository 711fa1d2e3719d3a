package radio

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"meshhttp/internal/bus"
	"meshhttp/internal/connectors"
	"meshhttp/internal/transport"
)

const (
	outboxCapacity = 128
	writeTimeout   = 8 * time.Second
)

type SendResult struct {
	Err error
}

type sendRequest struct {
	payload []byte
	result  chan SendResult
}

// Service supervises one transport: it connects with reconnect backoff,
// pumps inbound frames onto the bus, and serializes outbound writes through
// an outbox. Payloads stay opaque; protocol decoding belongs to consumers.
type Service struct {
	logger    *slog.Logger
	transport transport.Transport
	bus       bus.MessageBus
	reconnect transport.RetryPolicy
	outbox    chan sendRequest
}

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport) *Service {
	return &Service{
		logger:    logger,
		transport: tr,
		bus:       b,
		reconnect: transport.ExponentialBackoff{Initial: time.Second, Max: 15 * time.Second},
		outbox:    make(chan sendRequest, outboxCapacity),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.runConnector(ctx)
	go s.runOutbox(ctx)
}

// Send queues one opaque frame for writing. The result channel receives
// exactly one value and is then closed.
func (s *Service) Send(payload []byte) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	s.outbox <- sendRequest{payload: payload, result: resCh}

	return resCh
}

func (s *Service) runConnector(ctx context.Context) {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		s.publishConnStatus(connectors.ConnectionStateConnecting, nil)
		if err := s.transport.Connect(ctx); err != nil {
			attempt++
			s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !s.sleepBeforeReconnect(ctx, attempt) {
				return
			}

			continue
		}

		attempt = 0
		s.publishConnStatus(connectors.ConnectionStateConnected, nil)

		err := s.runReader(ctx)
		_ = s.transport.Close()
		if ctx.Err() != nil {
			s.publishConnStatus(connectors.ConnectionStateDisconnected, nil)

			return
		}
		attempt++
		s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
		if !s.sleepBeforeReconnect(ctx, attempt) {
			return
		}
	}
}

// runReader pumps inbound frames until a fatal error. Poll failures the
// transport tags as ReadError or TimeoutError are transient: they are
// published and reading continues on the next queued output.
func (s *Service) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := s.transport.ReadFrame(ctx)
		if err != nil {
			if transientReadFailure(err) {
				s.publishInboundError(err)

				continue
			}

			return err
		}

		s.bus.Publish(connectors.TopicRawFrameIn, connectors.RawFrame{
			Hex: strings.ToUpper(hex.EncodeToString(payload)),
			Len: len(payload),
		})
	}
}

func (s *Service) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.outbox:
			req.result <- s.handleSend(ctx, req)
			close(req.result)
		}
	}
}

func (s *Service) handleSend(ctx context.Context, req sendRequest) SendResult {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.transport.WriteFrame(writeCtx, req.payload); err != nil {
		s.logger.Warn("send frame failed", "payload_len", len(req.payload), "error", err)

		return SendResult{Err: err}
	}

	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{
		Hex: strings.ToUpper(hex.EncodeToString(req.payload)),
		Len: len(req.payload),
	})

	return SendResult{}
}

func (s *Service) publishInboundError(err error) {
	kind := "read"
	var timeoutErr *transport.TimeoutError
	if errors.As(err, &timeoutErr) {
		kind = "timeout"
	}
	s.logger.Warn("inbound poll failed", "kind", kind, "error", err)
	s.bus.Publish(connectors.TopicFrameError, connectors.InboundError{
		Kind:      kind,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func (s *Service) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(connectors.TopicConnStatus, status)
}

func (s *Service) sleepBeforeReconnect(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(s.reconnect.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func transientReadFailure(err error) bool {
	var readErr *transport.ReadError
	if errors.As(err, &readErr) {
		return true
	}
	var timeoutErr *transport.TimeoutError

	return errors.As(err, &timeoutErr)
}
