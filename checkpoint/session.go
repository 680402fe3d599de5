// Package checkpoint drives the checkpoint-side half of this engine: the
// per-fd dumper and the external finalizer, both operating against one
// Session's socket table, icon index and external-defer list.
package checkpoint

import (
	"errors"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/sockqueue"
	"github.com/sockmigrate/sockets/unixdiag"
)

var missLog = logx.NewLogEvery(nil, time.Second)

// Options configures a Session's admission policy.
type Options struct {
	// ExtUnixSk permits dumping dgram sockets whose peer is outside the
	// process tree. When false, Finalize fails on encountering one.
	ExtUnixSk bool
}

// Session owns the checkpoint-side socket table, icon index and
// external-defer list for one checkpoint run. All of it is mutated from a
// single goroutine, so Session carries no lock.
type Session struct {
	Table    *unixdiag.Table
	Icons    *unixdiag.IconIndex
	Opts     Options
	Image    *image.Writer
	FdInfo   *image.Writer
	Queue    *sockqueue.Writer
	deferred []*unixdiag.UnixSkDesc

	// Events, if non-nil, receives progress notifications for operator
	// visibility. Nil is a valid, silent default.
	Events *sockevents.Server
}

// NewSession constructs a Session writing UNIX socket records to img,
// per-fd info records to fdInfo (which may be the same Writer), and queued
// payload records to queue.
func NewSession(table *unixdiag.Table, icons *unixdiag.IconIndex, opts Options, img, fdInfo *image.Writer, queue *sockqueue.Writer) *Session {
	return &Session{
		Table:  table,
		Icons:  icons,
		Opts:   opts,
		Image:  img,
		FdInfo: fdInfo,
		Queue:  queue,
	}
}

// emit forwards a progress event if the session has an Events sink.
func (s *Session) emit(kind sockevents.Kind, ino, peer uint32, name string) {
	if s.Events == nil {
		return
	}
	s.Events.Emit(kind, ino, peer, name)
}

var (
	// ErrNotCollected is a contract violation: the fd-enumeration pass
	// found an open socket that the netlink collection pass missed.
	ErrNotCollected = errors.New("checkpoint: inode not in socket table")
	// ErrUnsupportedState rejects a socket whose state isn't admitted.
	ErrUnsupportedState = errors.New("checkpoint: socket state not admitted for dump")
	// ErrUnreachablePeer is a graph-inconsistency: the peer can't be
	// reached by path or is not a genuine in-flight pairing.
	ErrUnreachablePeer = errors.New("checkpoint: peer unreachable and not in-flight")
	// ErrDanglingInFlight means an established, zero-peer socket has no
	// matching listen-icon entry.
	ErrDanglingInFlight = errors.New("checkpoint: dangling in-flight connection")
	// ErrRunawayExternal is a policy violation: an external socket was
	// encountered with ext-unix-sk disabled.
	ErrRunawayExternal = errors.New("checkpoint: runaway external socket (ext-unix-sk disabled)")
	// ErrExternalStream is a policy violation: only dgram externals are
	// ever supported.
	ErrExternalStream = errors.New("checkpoint: external stream sockets are unsupported")
)
