package connectors

import "time"

// ConnectionState describes the transport supervision lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnStatus is a bus event snapshot of current transport status.
type ConnStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Timestamp     time.Time
}

// RawFrame carries frame diagnostics for debug/log consumers.
type RawFrame struct {
	Hex string
	Len int
}

// InboundError is a read-path failure the transport observed while polling.
// Published alongside raw frames so consumers can react without the loop
// itself stopping.
type InboundError struct {
	Kind      string
	Message   string
	Timestamp time.Time
}
