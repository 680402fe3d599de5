// Package netlink contains the generic SOCK_DIAG_BY_FAMILY dump driver
// used by both the UNIX and INET collectors, plus the route-attribute
// parsing helpers both decoders build on.
//
// The driver itself holds no family-specific knowledge: it sends a prepared
// request, reads messages into a fixed buffer, and hands each one to a
// caller-supplied decoder until the dump ends.
package netlink

import (
	"errors"
	"log"
	"syscall"
	"unsafe"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// SockDiagByFamily is SOCK_DIAG_BY_FAMILY from uapi/linux/sock_diag.h.
const SockDiagByFamily = 20

// Request is anything that can serialize itself as netlink request payload,
// matching vishvananda/netlink/nl.NetlinkRequestData.
type Request interface {
	Serialize() []byte
	Len() int
}

// ErrBadPid is returned when a reply's pid doesn't match our socket's pid.
var ErrBadPid = errors.New("netlink: bad pid in reply")

// ErrBadSequence is returned when a reply's sequence number doesn't match
// the request's.
var ErrBadSequence = errors.New("netlink: bad sequence number in reply")

// Decoder processes one netlink message from a dump. It returns done=true
// to stop the dump early (e.g. once it has everything it needs).
type Decoder func(msg *syscall.NetlinkMessage) (done bool, err error)

// Dump issues a SOCK_DIAG_BY_FAMILY dump request over a fresh
// NETLINK_SOCK_DIAG socket and feeds every reply message to decode.
//
// Reads restart on EINTR; any other transport error is fatal and aborts the
// dump. The driver is stateless beyond its read buffer; nothing here
// survives across calls.
func Dump(req Request, decode Decoder) error {
	s, err := nl.Subscribe(unix.NETLINK_SOCK_DIAG)
	if err != nil {
		return err
	}
	defer s.Close()

	nlreq := nl.NewNetlinkRequest(SockDiagByFamily, syscall.NLM_F_DUMP|syscall.NLM_F_REQUEST)
	nlreq.AddData(req)

	if err := s.Send(nlreq); err != nil {
		return err
	}

	pid, err := s.GetPid()
	if err != nil {
		return err
	}

	for {
		msgs, _, err := s.Receive()
		if err != nil {
			// vishvananda/netlink already retries EINTR internally via
			// syscall.Recvfrom; any error surfaced here is fatal.
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		for i := range msgs {
			m := &msgs[i]
			if m.Header.Seq != nlreq.Seq {
				log.Printf("netlink: wrong seq %d, expected %d", m.Header.Seq, nlreq.Seq)
				return ErrBadSequence
			}
			if m.Header.Pid != pid {
				log.Printf("netlink: wrong pid %d, expected %d", m.Header.Pid, pid)
				return ErrBadPid
			}
			if m.Header.Type == unix.NLMSG_DONE {
				return nil
			}
			if m.Header.Type == unix.NLMSG_ERROR {
				native := nl.NativeEndian()
				errno := int32(native.Uint32(m.Data[0:4]))
				if errno != 0 {
					return syscall.Errno(-errno)
				}
				return nil
			}
			done, err := decode(m)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			if m.Header.Flags&unix.NLM_F_MULTI == 0 {
				return nil
			}
		}
	}
}

/*********************************************************************************************/
/*             Adapted from "github.com/vishvananda/netlink/nl/nl_linux.go"                  */
/*********************************************************************************************/

// ParseRouteAttr parses a byte array into a slice of NetlinkRouteAttr.
func ParseRouteAttr(b []byte) ([]syscall.NetlinkRouteAttr, error) {
	var attrs []syscall.NetlinkRouteAttr
	for len(b) >= unix.SizeofRtAttr {
		a, vbuf, alen, err := netlinkRouteAttrAndValue(b)
		if err != nil {
			return nil, err
		}
		ra := syscall.NetlinkRouteAttr{Attr: syscall.RtAttr(*a), Value: vbuf[:int(a.Len)-unix.SizeofRtAttr]}
		attrs = append(attrs, ra)
		b = b[alen:]
	}
	return attrs, nil
}

// rtaAlignOf rounds the length of a netlink route attribute up to align it properly.
func rtaAlignOf(attrlen int) int {
	return (attrlen + unix.RTA_ALIGNTO - 1) & ^(unix.RTA_ALIGNTO - 1)
}

func netlinkRouteAttrAndValue(b []byte) (*unix.RtAttr, []byte, int, error) {
	if len(b) < unix.SizeofRtAttr {
		return nil, nil, 0, unix.EINVAL
	}
	a := (*unix.RtAttr)(unsafe.Pointer(&b[0]))
	if int(a.Len) < unix.SizeofRtAttr || int(a.Len) > len(b) {
		return nil, nil, 0, unix.EINVAL
	}
	return a, b[unix.SizeofRtAttr:], rtaAlignOf(int(a.Len)), nil
}
