// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to the checkpoint and restore phases.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: sockets, records, syscalls.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyscallTimeHistogram tracks netlink dump syscall latency, broken
	// down by address family.
	SyscallTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sockets_syscall_time_histogram",
			Help: "netlink syscall latency distribution (seconds)",
			Buckets: []float64{
				0.001, 0.00125, 0.0016, 0.002, 0.0025, 0.0032, 0.004, 0.005, 0.0063, 0.0079,
				0.01, 0.0125, 0.016, 0.02, 0.025, 0.032, 0.04, 0.05, 0.063, 0.079,
				0.1, 0.125, 0.16, 0.2,
			},
		},
		[]string{"af"})

	// SocketsCollected counts sockets registered in the checkpoint socket
	// table, by family.
	SocketsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sockets_collected_total",
			Help: "Number of sockets registered in the socket table.",
		}, []string{"family"})

	// SocketsDumped counts canonical UnixSkEntry records written to the
	// image.
	SocketsDumped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sockets_dumped_total",
			Help: "Number of canonical socket image records written.",
		},
	)

	// IconIndexSize tracks the number of listen-icon entries built during
	// one checkpoint run.
	IconIndexSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sockets_icon_index_size",
			Help:    "Number of listen-icon entries per checkpoint run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	// ExternalDeferred counts sockets placed on the external-defer list.
	ExternalDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sockets_external_deferred_total",
			Help: "Number of sockets deferred pending external finalization.",
		},
	)

	// ConnectRetries tracks how many attempts the deferred connection
	// runner needed per job, so retry exhaustion trends are visible
	// before they start causing ErrConnectFailed.
	ConnectRetries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sockets_connect_retries",
			Help:    "Number of connect attempts used per deferred connection job.",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
	)

	// ImageBytesWritten counts bytes written to the UNIX socket image
	// file, including name bytes.
	ImageBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sockets_image_bytes_written_total",
			Help: "Total bytes written to the socket image file.",
		},
	)

	// ErrorCount measures the number of errors by kind.
	// Example usage: metrics.ErrorCount.With(prometheus.Labels{"type": "dangling-in-flight"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sockets_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"type"})
)

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in sockets.metrics are registered.")
}
