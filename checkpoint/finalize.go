package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/unixdiag"
)

// Finalize walks the external-defer list, emitting a synthetic listening
// record for each surviving entry. Must be called after every per-fd dump
// has run.
func (s *Session) Finalize() error {
	for _, desc := range s.deferred {
		if desc.Dumped() {
			continue
		}
		if !s.Opts.ExtUnixSk {
			metrics.ErrorCount.With(prometheus.Labels{"type": "runaway-external"}).Inc()
			return ErrRunawayExternal
		}
		if desc.Type != unixdiag.SockDgram {
			metrics.ErrorCount.With(prometheus.Labels{"type": "external-stream"}).Inc()
			return ErrExternalStream
		}

		entry := image.UnixSkEntry{
			ID:     desc.Inode(),
			Type:   uint32(unixdiag.SockDgram),
			State:  uint32(unixdiag.StateListen),
			Peer:   0,
			Uflags: image.UFlagExtern,
		}
		if err := s.Image.WriteSocket(&entry, desc.Name); err != nil {
			return err
		}
		desc.SetDumped(true)
		metrics.SocketsDumped.Inc()
		s.emit(sockevents.Dumped, entry.ID, 0, string(desc.Name))
	}
	s.deferred = nil
	return nil
}
