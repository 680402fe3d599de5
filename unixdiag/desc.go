package unixdiag

// SocketDesc is what every family-specific descriptor looks like to the
// socket table. The table stores SocketDesc values directly and
// type-asserts where family-specific behavior is needed.
type SocketDesc interface {
	Inode() uint32
	Family() uint8
	Dumped() bool
	SetDumped(bool)
}

// base carries the fields every descriptor shares.
type base struct {
	ino    uint32
	family uint8
	dumped bool
}

// Inode returns the descriptor's checkpoint identity.
func (b *base) Inode() uint32 { return b.ino }

// Family returns the socket family (AF_UNIX, AF_INET, AF_INET6).
func (b *base) Family() uint8 { return b.family }

// Dumped reports whether the canonical image record has been written.
func (b *base) Dumped() bool { return b.dumped }

// SetDumped marks the descriptor as having been emitted to the image.
func (b *base) SetDumped(d bool) { b.dumped = d }

// UnixSkDesc is the checkpoint-side decoded state of one AF_UNIX socket.
type UnixSkDesc struct {
	base

	Type     int // SockStream or SockDgram
	State    SockState
	PeerIno  uint32 // 0 if none
	RQueue   uint32
	WQueue   uint32
	UID      uint32
	Shutdown uint8 // RCV_SHUTDOWN/SEND_SHUTDOWN mask; collected, not dumped
	NameKind NameKind
	Name     []byte // nil/empty if NameKind == NameNone

	// Icons holds the inodes of clients queued on this socket's accept
	// queue, in the order the kernel reported them. Only meaningful when
	// State == StateListen.
	Icons []uint32
}

// NewUnixSkDesc constructs an empty descriptor for the given inode.
func NewUnixSkDesc(ino uint32) *UnixSkDesc {
	return &UnixSkDesc{base: base{ino: ino, family: AFUnix}}
}

// InetSkDesc is the minimal checkpoint-side state the thin INET collector
// registers. Full TCP_INFO/MEMINFO decoding belongs to the per-socket INET
// dumper; this core only needs enough identity to satisfy socket-table
// lookups. The per-fd dumper never writes a record for one.
type InetSkDesc struct {
	base

	Type     int
	Protocol uint8
	State    SockState
}

// NewInetSkDesc constructs an empty descriptor for the given inode/family.
func NewInetSkDesc(ino uint32, family uint8, sockType int, protocol uint8, state SockState) *InetSkDesc {
	return &InetSkDesc{base: base{ino: ino, family: family}, Type: sockType, Protocol: protocol, State: state}
}

// UnixListenIcon is the secondary-index entry linking a queued peer's inode
// back to the listening socket whose accept queue it sits on.
type UnixListenIcon struct {
	PeerIno uint32
	SkDesc  *UnixSkDesc
}
