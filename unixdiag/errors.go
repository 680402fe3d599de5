package unixdiag

import (
	"errors"
	"unsafe"
)

// Decode errors. A relative-path name is not an error; see decodeName.
var (
	errShortMessage    = errors.New("unixdiag: netlink message too short for unix_diag_msg")
	errBoundWithoutVFS = errors.New("unixdiag: bound socket reported without VFS attribute")
)

func unsafePointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
