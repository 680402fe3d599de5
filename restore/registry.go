// Package restore reconstructs the UNIX socket graph from a checkpoint
// image: loading records, resolving peers into pairs, opening live
// descriptors and draining the deferred-connection queue.
package restore

import (
	"errors"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/sockevents"
)

// Role flags for a UnixSkInfo. Both unset means standalone.
const (
	RolePairMaster = 1 << iota
	RolePairSlave
)

// UnixSkInfo is the restore-side view of one checkpointed socket: the
// loaded record, owned name bytes, a borrowed link to its resolved peer,
// and role flags.
type UnixSkInfo struct {
	Entry image.UnixSkEntry
	Name  []byte

	Peer *UnixSkInfo // borrowed, never owning
	Role int

	// OwnerPID/OwnerFD identify the descriptor-list entry used for the
	// pair-master/pair-slave total order. They are supplied by the
	// driver that knows which process tree fd each socket belongs to;
	// this package treats them as opaque sort keys.
	OwnerPID int
	OwnerFD  int
}

// ID returns the socket's checkpoint identity.
func (u *UnixSkInfo) ID() uint32 { return u.Entry.ID }

// IsExternal reports whether the loaded entry carries the EXTERN uflag.
func (u *UnixSkInfo) IsExternal() bool { return u.Entry.Uflags&image.UFlagExtern != 0 }

// Registry is the restore-side collection of all loaded UnixSkInfo,
// indexed by checkpoint id, plus the queue of jobs waiting on a deferred
// connect.
type Registry struct {
	byID  map[uint32]*UnixSkInfo
	all   []*UnixSkInfo
	Queue []*UnixSkInfo // standalone sockets with a peer, awaiting connect

	// Events, if non-nil, receives progress notifications for operator
	// visibility. Nil is a valid, silent default.
	Events *sockevents.Server
}

// emit forwards a progress event if the registry has an Events sink.
func (r *Registry) emit(kind sockevents.Kind, ino, peer uint32, name string) {
	if r.Events == nil {
		return
	}
	r.Events.Emit(kind, ino, peer, name)
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]*UnixSkInfo)}
}

// Lookup finds a registered UnixSkInfo by checkpoint id.
func (r *Registry) Lookup(id uint32) *UnixSkInfo { return r.byID[id] }

// All returns every registered UnixSkInfo, in load order.
func (r *Registry) All() []*UnixSkInfo { return r.all }

// Register adds ui to the registry under its checkpoint id.
func (r *Registry) Register(ui *UnixSkInfo) {
	r.byID[ui.Entry.ID] = ui
	r.all = append(r.all, ui)
}

var (
	// ErrBadNamelen rejects a UnixSkEntry whose namelen is neither
	// zero nor in [1, UNIX_PATH_MAX).
	ErrBadNamelen = errors.New("restore: namelen out of range")
	// ErrPeerNotFound means the resolver could not find, or was not
	// permitted to use, the peer id a socket names.
	ErrPeerNotFound = errors.New("restore: peer not found")
)
