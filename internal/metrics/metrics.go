// Package metrics defines the prometheus instruments treecast's
// components update as frames, broadcasts, and reunion rounds move
// through the overlay.
//
// When adding new instruments, useful values to track:
//   - things coming into or out of the process: frames, commands, joins.
//   - the success or error status of any of the above.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FrameCount counts frames accepted off the listening socket into
	// the inbound buffer.
	FrameCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treecast_frames_received_total",
			Help: "Number of frames accepted into the inbound buffer.",
		},
	)

	// SendCount counts frames flushed out over peer links.
	SendCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treecast_frames_sent_total",
			Help: "Number of frames written to peer links.",
		},
	)

	// ErrorCount counts recoverable errors by kind.
	//
	// Example usage:
	//	metrics.ErrorCount.With(prometheus.Labels{"type": "bad_packet"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treecast_error_total",
			Help: "The total number of recoverable errors encountered.",
		}, []string{"type"})

	// PruneCount counts graph nodes removed because their reunion
	// deadline elapsed.
	PruneCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treecast_pruned_nodes_total",
			Help: "Number of nodes pruned after missing their reunion deadline.",
		},
	)

	// ReunionSuccessCount counts hellobacks that made it back to their
	// originator.
	ReunionSuccessCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "treecast_reunion_success_total",
			Help: "Number of reunion round trips completed by this peer.",
		},
	)
)
