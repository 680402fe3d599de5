package unixdiag

// Table is the checkpoint-side socket table: a map from inode to
// descriptor. Inode uniqueness is the invariant; nothing observable
// depends on iteration order.
type Table struct {
	sockets map[uint32]SocketDesc
}

// NewTable creates an empty socket table.
func NewTable() *Table {
	return &Table{sockets: make(map[uint32]SocketDesc, 512)}
}

// Insert registers a descriptor under its inode. A duplicate insert
// overwrites the previous entry; callers collecting from a single dump
// pass never legitimately do this, but we don't treat it as an error since
// the kernel is the source of truth, not us.
func (t *Table) Insert(d SocketDesc) {
	t.sockets[d.Inode()] = d
}

// Lookup returns the descriptor registered under ino, or nil.
func (t *Table) Lookup(ino uint32) SocketDesc {
	return t.sockets[ino]
}

// LookupUnix returns the descriptor registered under ino if it is a
// UnixSkDesc, or nil otherwise (including when absent).
func (t *Table) LookupUnix(ino uint32) *UnixSkDesc {
	d, ok := t.sockets[ino].(*UnixSkDesc)
	if !ok {
		return nil
	}
	return d
}

// Len returns the number of collected sockets.
func (t *Table) Len() int {
	return len(t.sockets)
}

// IconIndex is the secondary index from a queued peer's inode to the
// listening socket whose accept queue it is sitting on.
type IconIndex struct {
	icons map[uint32]*UnixListenIcon
}

// NewIconIndex creates an empty icon index.
func NewIconIndex() *IconIndex {
	return &IconIndex{icons: make(map[uint32]*UnixListenIcon, 64)}
}

// Add records that peerIno sits on sk's accept queue. If two listening
// sockets somehow claim the same pending peer inode (which a consistent
// kernel snapshot never reports), the most recently added one wins.
func (idx *IconIndex) Add(peerIno uint32, sk *UnixSkDesc) {
	idx.icons[peerIno] = &UnixListenIcon{PeerIno: peerIno, SkDesc: sk}
}

// Lookup returns the listening socket whose accept queue contains peerIno,
// or nil if none was recorded.
func (idx *IconIndex) Lookup(peerIno uint32) *UnixListenIcon {
	return idx.icons[peerIno]
}

// Len returns the number of indexed icon entries.
func (idx *IconIndex) Len() int {
	return len(idx.icons)
}
