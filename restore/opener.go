package restore

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/sockmigrate/sockets/fdtransport"
	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/sockqueue"
	"github.com/sockmigrate/sockets/unixdiag"
)

// ErrNoTransport means a pair-slave was opened before its master handed off
// a transport channel for it.
var ErrNoTransport = errors.New("restore: no transport channel for pair-slave")

// ShouldOpenTransport reports whether the descriptor registry should
// pre-create a cross-process transport channel for this socket before
// opening it. Only a pair-slave receives its descriptor over a transport.
func ShouldOpenTransport(ui *UnixSkInfo) bool {
	return ui.Role == RolePairSlave
}

// Opener resolves restored UNIX socket descriptors, dispatching on role
// flags: pair-master creates the socketpair and hands one half off,
// pair-slave receives its half, everything else opens standalone.
type Opener struct {
	// Transport supplies the pre-created channel for a pair-slave, or
	// accepts the one created for a pair-master to hand off on. The
	// driver is responsible for matching master and slave ends across
	// processes; this package only uses whichever end it's given.
	Transport map[uint32]*fdtransport.Channel

	// Queues holds the decoded receive-queue payload for each checkpoint
	// id that had one, keyed the same way as the UnixSkInfo it belongs
	// to. Populated by the driver from the queue image before opening
	// begins.
	Queues map[uint32][]byte
}

// NewOpener constructs an Opener.
func NewOpener() *Opener {
	return &Opener{
		Transport: make(map[uint32]*fdtransport.Channel),
		Queues:    make(map[uint32][]byte),
	}
}

// Open returns a live descriptor for ui.
func (o *Opener) Open(ui *UnixSkInfo, reg *Registry) (int, error) {
	var fd int
	var err error
	switch ui.Role {
	case RolePairMaster:
		fd, err = o.openPairMaster(ui, reg)
	case RolePairSlave:
		fd, err = o.openPairSlave(ui)
	default:
		fd, err = o.openStandalone(ui, reg)
	}
	if err == nil {
		reg.emit(sockevents.Opened, ui.ID(), ui.Entry.Peer, string(ui.Name))
	}
	return fd, err
}

func sockType(entry *image.UnixSkEntry) int {
	if entry.Type == unixdiag.SockDgram {
		return unix.SOCK_DGRAM
	}
	return unix.SOCK_STREAM
}

func (o *Opener) openPairMaster(ui *UnixSkInfo, reg *Registry) (int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, sockType(&ui.Entry), 0)
	if err != nil {
		return 0, err
	}
	sk0, sk1 := fds[0], fds[1]

	if ui.Peer != nil {
		o.restoreQueue(sk0, ui.Peer)
	}
	o.restoreQueue(sk1, ui)

	if err := bindIfApplicable(sk0, ui); err != nil {
		unix.Close(sk0)
		unix.Close(sk1)
		return 0, err
	}
	applyOwnerFlags(sk0, &ui.Entry)

	master, slave, err := fdtransport.NewPair()
	if err != nil {
		unix.Close(sk0)
		unix.Close(sk1)
		return 0, err
	}
	if err := master.SendFD(sk1); err != nil {
		master.Close()
		slave.Close()
		unix.Close(sk0)
		unix.Close(sk1)
		return 0, err
	}
	master.Close()
	unix.Close(sk1)

	// Hand the receiving end to the pair-slave's own Open call. In a
	// single-process restore (one Opener, one Registry) this is all
	// that's needed; a driver restoring across process boundaries would
	// instead ship slave's fd onward and populate the peer's own
	// Opener.Transport there, per the Transport field's doc comment.
	if ui.Peer != nil {
		o.Transport[ui.Peer.ID()] = slave
	} else {
		slave.Close()
	}

	return sk0, nil
}

func (o *Opener) openPairSlave(ui *UnixSkInfo) (int, error) {
	ch := o.Transport[ui.ID()]
	if ch == nil {
		return 0, ErrNoTransport
	}
	fd, err := ch.RecvFD()
	ch.Close()
	if err != nil {
		return 0, err
	}

	if err := bindIfApplicable(fd, ui); err != nil {
		unix.Close(fd)
		return 0, err
	}
	applyOwnerFlags(fd, &ui.Entry)
	return fd, nil
}

func (o *Opener) openStandalone(ui *UnixSkInfo, reg *Registry) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, sockType(&ui.Entry), 0)
	if err != nil {
		return 0, err
	}

	if err := bindIfApplicable(fd, ui); err != nil {
		unix.Close(fd)
		return 0, err
	}

	switch {
	case ui.Entry.State == uint32(unixdiag.StateListen):
		backlog := int(ui.Entry.Backlog)
		if backlog < 1 {
			// A socket can be listening with a recorded backlog of
			// 0; listen still needs a usable value here.
			backlog = 1
		}
		if err := unix.Listen(fd, backlog); err != nil {
			unix.Close(fd)
			return 0, err
		}
		applyOwnerFlags(fd, &ui.Entry)
	case ui.Peer != nil:
		// Standalone with a peer: enqueue a connect job rather than
		// connecting now. This also covers a self-connected socket,
		// which skipped pair classification but still has Peer set.
		reg.Queue = append(reg.Queue, ui)
		return fd, nil
	default:
		applyOwnerFlags(fd, &ui.Entry)
	}

	return fd, nil
}

// bindIfApplicable binds fd to the socket's recorded name, skipping bind
// entirely for stream sockets not in listen state: a connected stream
// socket's bound name is never restored (the path would collide with the
// peer's reconstruction).
func bindIfApplicable(fd int, ui *UnixSkInfo) error {
	if len(ui.Name) == 0 {
		return nil
	}
	if ui.Entry.Type == uint32(unixdiag.SockStream) && ui.Entry.State != uint32(unixdiag.StateListen) {
		return nil
	}

	addr := &unix.SockaddrUnix{Name: string(ui.Name)}
	return unix.Bind(fd, addr)
}

// applyOwnerFlags reapplies the descriptor's signal ownership via
// fcntl(F_SETOWN). A zero PID means no owner was recorded at checkpoint
// time.
func applyOwnerFlags(fd int, entry *image.UnixSkEntry) {
	if entry.Fown.PID == 0 {
		return
	}
	unix.FcntlInt(uintptr(fd), unix.F_SETOWN, int(entry.Fown.PID))
}

// restoreQueue writes ui's checkpointed receive-queue payload, if any,
// into fd, so the socket at the other end of fd reads it first.
func (o *Opener) restoreQueue(fd int, ui *UnixSkInfo) {
	payload, ok := o.Queues[ui.ID()]
	if !ok {
		return
	}
	sockqueue.Restore(fd, payload)
}
