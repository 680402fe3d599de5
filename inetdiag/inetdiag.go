// Package inetdiag provides the thin INET_DIAG request/response primitives
// this core needs: enough to register listening TCP sockets and UDP/UDP-lite
// sockets in every state in the shared socket table, so inode lookups
// succeed for them. Full per-socket INET dumping lives with the outer
// driver, not here.
//
// Based on uapi/linux/inet_diag.h.
package inetdiag

import (
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"
)

// Families and protocols, repeated here so callers don't need syscall just
// to build a request.
const (
	AFInet  = 2
	AFInet6 = 10

	IPPROTOTCP     = 6
	IPPROTOUDP     = 17
	IPPROTOUDPLite = 136
)

// TCP connection states from linux/tcp_states.h. Only LISTEN is admitted
// for checkpoint; established non-listening connections are not
// reconstructed.
const (
	TCPEstablished = 1
	TCPListen      = 10
)

// InetDiagSockID is the binary linux representation of a socket identity, as
// in linux/inet_diag.h. The kernel documents this struct as network byte
// order.
type InetDiagSockID struct {
	IDiagSPort  [2]byte
	IDiagDPort  [2]byte
	IDiagSrc    [16]byte
	IDiagDst    [16]byte
	IDiagIf     [4]byte
	IDiagCookie [8]byte
}

// SrcIP returns a golang net encoding of source address.
func (id *InetDiagSockID) SrcIP() net.IP { return ip(id.IDiagSrc) }

// DstIP returns a golang net encoding of destination address.
func (id *InetDiagSockID) DstIP() net.IP { return ip(id.IDiagDst) }

// SPort returns the host byte ordered source port.
func (id *InetDiagSockID) SPort() uint16 { return binary.BigEndian.Uint16(id.IDiagSPort[:]) }

// DPort returns the host byte ordered destination port.
func (id *InetDiagSockID) DPort() uint16 { return binary.BigEndian.Uint16(id.IDiagDPort[:]) }

func ip(bytes [16]byte) net.IP {
	for i := 4; i < 16; i++ {
		if bytes[i] != 0 {
			return net.IP(bytes[:]).To16()
		}
	}
	return net.IPv4(bytes[0], bytes[1], bytes[2], bytes[3]).To4()
}

func (id *InetDiagSockID) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", id.SrcIP(), id.SPort(), id.DstIP(), id.DPort())
}

// InetDiagReqV2 is the Netlink request struct, as in linux/inet_diag.h.
type InetDiagReqV2 struct {
	SDiagFamily   uint8
	SDiagProtocol uint8
	IDiagExt      uint8
	Pad           uint8
	IDiagStates   uint32
	ID            InetDiagSockID
}

// SizeofInetDiagReqV2 is the size of the wire struct.
const SizeofInetDiagReqV2 = int(unsafe.Sizeof(InetDiagReqV2{}))

// Serialize renders the request to wire bytes.
func (req *InetDiagReqV2) Serialize() []byte {
	return (*(*[SizeofInetDiagReqV2]byte)(unsafe.Pointer(req)))[:]
}

// Len implements nl.NetlinkRequestData.
func (req *InetDiagReqV2) Len() int { return SizeofInetDiagReqV2 }

// NewInetDiagReqV2 builds a request for the given family/protocol/state mask.
func NewInetDiagReqV2(family, protocol uint8, states uint32) *InetDiagReqV2 {
	return &InetDiagReqV2{SDiagFamily: family, SDiagProtocol: protocol, IDiagStates: states}
}

// InetDiagMsg is the binary representation of an inet_diag_msg header.
type InetDiagMsg struct {
	IDiagFamily  uint8
	IDiagState   uint8
	IDiagTimer   uint8
	IDiagRetrans uint8
	ID           InetDiagSockID
	IDiagExpires uint32
	IDiagRqueue  uint32
	IDiagWqueue  uint32
	IDiagUID     uint32
	IDiagInode   uint32
}

// ParseInetDiagMsg reinterprets the leading bytes of data as an InetDiagMsg
// and returns the remaining attribute bytes.
func ParseInetDiagMsg(data []byte) (*InetDiagMsg, []byte) {
	size := int(unsafe.Sizeof(InetDiagMsg{}))
	if len(data) < size {
		return nil, nil
	}
	return (*InetDiagMsg)(unsafe.Pointer(&data[0])), data[size:]
}
