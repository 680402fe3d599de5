package restore

// Options configures resolver/opener policy.
type Options struct {
	// ExtUnixSk permits resolving peers flagged EXTERN.
	ExtUnixSk bool
}

// Resolve links every loaded socket to its peer and classifies reciprocal
// pairs as pair-master/pair-slave. Must run after all sockets and the
// queue image are loaded.
func Resolve(reg *Registry, opts Options) error {
	for _, ui := range reg.all {
		if ui.Entry.Peer == 0 {
			continue
		}

		peer := reg.Lookup(ui.Entry.Peer)
		if peer == nil {
			return ErrPeerNotFound
		}
		if peer.IsExternal() && !opts.ExtUnixSk {
			return ErrPeerNotFound
		}

		ui.Peer = peer

		if peer.Entry.Peer != ui.Entry.ID {
			continue
		}

		if peer == ui {
			// Self-loop: continue without setting pair flags.
			continue
		}

		assignPairRoles(ui, peer)
	}
	return nil
}

// assignPairRoles computes the total order over (owner_pid, owner_fd) of
// each side and assigns pair-master to the smaller one. A tie is
// impossible: a given (pid, fd) refers to exactly one descriptor.
func assignPairRoles(a, b *UnixSkInfo) {
	if a.Role != 0 || b.Role != 0 {
		// Already assigned from the other direction.
		return
	}
	if less(a, b) {
		a.Role = RolePairMaster
		b.Role = RolePairSlave
	} else {
		b.Role = RolePairMaster
		a.Role = RolePairSlave
	}
}

func less(a, b *UnixSkInfo) bool {
	if a.OwnerPID != b.OwnerPID {
		return a.OwnerPID < b.OwnerPID
	}
	return a.OwnerFD < b.OwnerFD
}
