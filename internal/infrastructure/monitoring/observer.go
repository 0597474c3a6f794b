package monitoring

import "github.com/GriffinCanCode/vibeterm/internal/terminal/marker"

// The methods below make *Metrics a terminal.Observer. They run on session
// worker goroutines and only touch collectors.

// BytesRead counts PTY output.
func (m *Metrics) BytesRead(n int) { m.PTYBytesRead.Add(float64(n)) }

// BytesWritten counts PTY input.
func (m *Metrics) BytesWritten(n int) { m.PTYBytesWritten.Add(float64(n)) }

// EventDecoded counts authenticated markers by kind.
func (m *Metrics) EventDecoded(kind marker.Kind) {
	m.MarkersDecoded.WithLabelValues(kind.String()).Inc()
}

// MarkerDropped counts discarded markers by reason.
func (m *Metrics) MarkerDropped(reason marker.DropReason) {
	m.MarkersDropped.WithLabelValues(reason.String()).Inc()
}

// CleanupFailed counts integration directories left behind.
func (m *Metrics) CleanupFailed() { m.CleanupFailures.Inc() }
