package transport

import "context"

type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

type StatusTargetResolver interface {
	StatusTarget() string
}

// DeviceOutput is one unit produced by the read path: an opaque inbound
// packet, or a failure observed while polling for one. Exactly one of the
// two fields is set.
type DeviceOutput struct {
	Packet []byte
	Err    error
}
