package unixdiag

import "unsafe"

// UnixDiagReq is the Netlink request struct, as in linux/unix_diag.h's
// struct unix_diag_req.
type UnixDiagReq struct {
	Family   uint8
	Protocol uint8
	Pad      uint16
	States   uint32
	Ino      uint32
	Show     uint32
	Cookie   [2]uint32
}

// SizeofUnixDiagReq is the size of the wire struct.
const SizeofUnixDiagReq = int(unsafe.Sizeof(UnixDiagReq{}))

// Serialize renders the request to its wire bytes, mirroring
// inetdiag.InetDiagReqV2.Serialize.
func (req *UnixDiagReq) Serialize() []byte {
	return (*(*[SizeofUnixDiagReq]byte)(unsafe.Pointer(req)))[:]
}

// Len implements nl.NetlinkRequestData.
func (req *UnixDiagReq) Len() int {
	return SizeofUnixDiagReq
}

// NewUnixDiagReq builds a request asking for NAME, VFS, PEER, ICONS and
// RQLEN. UID is not requested, so the decoder's UID case is not reached for
// replies to this request.
func NewUnixDiagReq() *UnixDiagReq {
	return &UnixDiagReq{
		Family: AFUnix,
		States: 0xffffffff, // all states
		Show:   ShowName | ShowVFS | ShowPeer | ShowIcons | ShowRqlen,
	}
}

// AFUnix is syscall.AF_UNIX, repeated here so callers of this package don't
// need to import syscall just to build a request.
const AFUnix = 1

// UnixDiagMsg is the binary representation of a unix_diag_msg header.
type UnixDiagMsg struct {
	Family uint8
	Type   uint8
	State  uint8
	Pad    uint8
	Ino    uint32
	Cookie [2]uint32
}

// SizeofUnixDiagMsg is the size of the wire struct.
const SizeofUnixDiagMsg = int(unsafe.Sizeof(UnixDiagMsg{}))

// ParseUnixDiagMsg reinterprets the leading bytes of data as a UnixDiagMsg
// and returns it along with the remaining attribute bytes.
func ParseUnixDiagMsg(data []byte) (*UnixDiagMsg, []byte) {
	if len(data) < SizeofUnixDiagMsg {
		return nil, nil
	}
	return (*UnixDiagMsg)(unsafe.Pointer(&data[0])), data[SizeofUnixDiagMsg:]
}

// UnixDiagVFSAttr is struct unix_diag_vfs: the (dev, ino) a bound pathname
// resolves to in the kernel's eyes.
type UnixDiagVFSAttr struct {
	Ino uint32
	Dev uint32
}

// UnixDiagRqlenAttr is struct unix_diag_rqlen.
type UnixDiagRqlenAttr struct {
	Rqueue uint32
	Wqueue uint32
}
