package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	pollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshhttp_poll_cycles_total",
		Help: "Poll cycles (drain loops) executed.",
	})
	pollFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshhttp_poll_failures_total",
		Help: "Poll requests that failed, by failure kind.",
	}, []string{"kind"})
	packetsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshhttp_packets_received_total",
		Help: "Inbound packets drained from the device.",
	})
	outputsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshhttp_outputs_dropped_total",
		Help: "Device outputs evicted because the read queue was full.",
	})
)

const (
	failureKindStatus  = "status"
	failureKindNetwork = "network"
	failureKindTimeout = "timeout"
)

// Collectors returns the transport metrics for registration by embedders.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{pollCycles, pollFailures, packetsReceived, outputsDropped}
}

// MustRegisterMetrics registers the transport metrics with reg.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Collectors()...)
}
