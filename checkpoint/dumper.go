package checkpoint

import (
	"golang.org/x/sys/unix"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/sockqueue"
	"github.com/sockmigrate/sockets/unixdiag"
)

// FdParams carries the per-descriptor facts the dumper needs beyond the
// collected UnixSkDesc: the open fd itself, its inode, and the owner and
// flags read off the descriptor.
type FdParams struct {
	Fd    int
	Ino   uint32
	Flags uint32
	Owner image.FownEntry
}

// DumpFd writes the image records for one open UNIX socket descriptor: a
// per-fd info record always, plus the canonical UnixSkEntry the first time
// this inode is seen.
func (s *Session) DumpFd(p FdParams) error {
	desc := s.Table.LookupUnix(p.Ino)
	if desc == nil {
		metrics.ErrorCount.With(prometheus.Labels{"type": "not-collected"}).Inc()
		return ErrNotCollected
	}

	if err := admit(desc); err != nil {
		metrics.ErrorCount.With(prometheus.Labels{"type": "unsupported-state"}).Inc()
		return err
	}

	if err := s.FdInfo.WriteFdInfo(&image.FdInfoEntry{
		Fd:    uint32(p.Fd),
		Type:  image.TypeUnixSk,
		ID:    desc.Inode(),
		Flags: p.Flags,
	}); err != nil {
		return err
	}

	if desc.Dumped() {
		return nil
	}

	entry := image.UnixSkEntry{
		ID:    desc.Inode(),
		Type:  uint32(desc.Type),
		State: uint32(desc.State),
		Flags: p.Flags,
		// For a listening socket the kernel reports the configured
		// backlog as the write-queue length.
		Backlog: desc.WQueue,
		Peer:    desc.PeerIno,
		Fown:    p.Owner,
	}

	if err := s.fixupPeer(desc, &entry); err != nil {
		return err
	}

	if err := s.Image.WriteSocket(&entry, desc.Name); err != nil {
		return err
	}
	metrics.SocketsDumped.Inc()
	s.emit(sockevents.Dumped, entry.ID, entry.Peer, string(desc.Name))

	if desc.RQueue > 0 && !(desc.Type == unixdiag.SockStream && desc.State == unixdiag.StateListen) {
		if err := sockqueue.Dump(s.Queue, p.Fd, desc.Inode()); err != nil {
			return err
		}
	}

	s.undefer(desc)
	desc.SetDumped(true)
	return nil
}

func admit(desc *unixdiag.UnixSkDesc) error {
	if desc.Type != unixdiag.SockStream && desc.Type != unixdiag.SockDgram {
		return ErrUnsupportedState
	}
	switch desc.State {
	case unixdiag.StateListen, unixdiag.StateEstablished:
		return nil
	case unixdiag.StateClose:
		if desc.Type == unixdiag.SockDgram {
			return nil
		}
		return ErrUnsupportedState
	default:
		return ErrUnsupportedState
	}
}

// fixupPeer rewrites entry.Peer for the cases where the raw diagnostic
// peer inode is not the whole story: a one-sided peering toward a named
// socket gets deferred for the external finalizer, and an established
// socket with no peer at all is an in-flight accept-queue entry that must
// re-link to its listener through the icon index.
func (s *Session) fixupPeer(desc *unixdiag.UnixSkDesc, entry *image.UnixSkEntry) error {
	if desc.PeerIno != 0 {
		peer := s.Table.LookupUnix(desc.PeerIno)
		if peer == nil || peer.PeerIno != desc.Inode() {
			if peer != nil && peer.NameKind != unixdiag.NameNone {
				// Named peer reachable by path on restore; defer it so
				// the external finalizer considers it if it never gets
				// its own per-fd dump.
				if !peer.Dumped() {
					s.defer_(peer)
				}
				return nil
			}
			metrics.ErrorCount.With(prometheus.Labels{"type": "unreachable-peer"}).Inc()
			return ErrUnreachablePeer
		}
		return nil
	}

	if desc.State == unixdiag.StateEstablished {
		icon := s.Icons.Lookup(desc.Inode())
		if icon == nil || icon.SkDesc.State != unixdiag.StateListen {
			missLog.Println("icon index miss for established socket, inode", desc.Inode())
			metrics.ErrorCount.With(prometheus.Labels{"type": "dangling-in-flight"}).Inc()
			return ErrDanglingInFlight
		}
		entry.Peer = icon.SkDesc.Inode()
		return nil
	}

	return nil
}

func (s *Session) defer_(desc *unixdiag.UnixSkDesc) {
	for _, d := range s.deferred {
		if d.Inode() == desc.Inode() {
			return
		}
	}
	s.deferred = append(s.deferred, desc)
	metrics.ExternalDeferred.Inc()
	s.emit(sockevents.Deferred, desc.Inode(), 0, string(desc.Name))
}

func (s *Session) undefer(desc *unixdiag.UnixSkDesc) {
	for i, d := range s.deferred {
		if d.Inode() == desc.Inode() {
			s.deferred = append(s.deferred[:i], s.deferred[i+1:]...)
			return
		}
	}
}

// StatOwner derives an image.FownEntry from a raw unix.Stat_t, used by
// callers that only have stat metadata and not a live F_GETOWN query.
func StatOwner(st *unix.Stat_t) image.FownEntry {
	return image.FownEntry{UID: st.Uid}
}
