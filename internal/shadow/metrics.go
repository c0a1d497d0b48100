package shadow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "shadowsync"

// Cycle outcomes recorded by the poll loop.
const (
	cycleReported   = "reported"
	cycleNotReady   = "not_ready"
	cyclePending    = "ack_pending"
	cycleEmpty      = "empty"
	cycleBuildError = "build_failed"
	cycleSendError  = "submit_failed"
)

var (
	metricCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Poll cycles by outcome.",
	}, []string{"outcome"})

	metricAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "acks_total",
		Help:      "Report acknowledgements by status.",
	}, []string{"status"})

	metricDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "deltas_total",
		Help:      "Inbound deltas by result.",
	}, []string{"result"})

	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "transitions_total",
		Help:      "Engine state transitions.",
	}, []string{"from", "to"})

	metricTransportStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "transport_status",
		Help:      "Most recent transport status code (0 is ok).",
	})

	metricReportBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "engine",
		Name:      "report_bytes",
		Help:      "Size of the last submitted report document.",
	})
)
