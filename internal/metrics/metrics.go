// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts converted frames by converter and outcome.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_frames_total",
			Help: "Total number of frames converted, by outcome",
		},
		[]string{"converter", "status"},
	)

	// DissectErrorsTotal counts frames rejected by the protocol dissector.
	DissectErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_dissect_errors_total",
			Help: "Total number of frames that failed protocol dissection",
		},
	)

	// HighEntropyTotal counts payloads at or above the entropy threshold.
	HighEntropyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_high_entropy_total",
			Help: "Total number of payloads flagged as high entropy",
		},
	)

	// BatchesTotal counts batches handed to the producer.
	BatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_batches_total",
			Help: "Total number of packed batches produced",
		},
	)

	// SinkBytesTotal counts bytes accepted by a sink writer.
	SinkBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_sink_bytes_total",
			Help: "Total bytes written to the sink",
		},
		[]string{"sink"},
	)

	// SinkErrorsTotal counts failed sink writes after retries are exhausted.
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_sink_errors_total",
			Help: "Total number of failed sink writes",
		},
		[]string{"sink"},
	)

	// SinkRetriesTotal counts individual write retries.
	SinkRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_sink_retries_total",
			Help: "Total number of sink write retries",
		},
		[]string{"sink"},
	)

	// SessionFlows tracks flows currently held by the sampler.
	SessionFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ferry_session_flows",
			Help: "Number of flows tracked by the session sampler",
		},
	)

	// SessionEvictionsTotal counts flows evicted by the capacity bound.
	SessionEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ferry_session_evictions_total",
			Help: "Total number of flows evicted from the session table",
		},
	)

	// MatcherReloadsTotal counts rule reloads by result (success|failure).
	MatcherReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_matcher_reloads_total",
			Help: "Total number of pattern rule reloads",
		},
		[]string{"result"},
	)

	// MatcherPatterns tracks the number of active patterns.
	MatcherPatterns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ferry_matcher_patterns",
			Help: "Number of patterns in the active matcher",
		},
	)
)
