package unixdiag

import (
	"log"
	"syscall"

	"github.com/sockmigrate/sockets/netlink"
	"golang.org/x/sys/unix"
)

// Decode parses one SOCK_DIAG_BY_FAMILY AF_UNIX message, registers the
// resulting UnixSkDesc in table and indexes any reported icons in icons.
//
// A relative-path name causes the socket to be dropped with a log line
// (Decode returns nil), which is a soft-drop, not an error. Any other failure leaves
// the table and icon index untouched and returns a non-nil error.
func Decode(msg *syscall.NetlinkMessage, table *Table, icons *IconIndex) error {
	hdr, attrBytes := ParseUnixDiagMsg(msg.Data)
	if hdr == nil {
		return errShortMessage
	}

	attrs, err := netlink.ParseRouteAttr(attrBytes)
	if err != nil {
		return err
	}

	d := NewUnixSkDesc(hdr.Ino)
	d.Type = int(hdr.Type)
	d.State = SockState(hdr.State)

	var nameAttr, vfsAttr, iconsAttr, rqlenAttr []byte
	var haveName, haveVFS, haveIcons, haveRqlen bool

	for _, a := range attrs {
		switch int(a.Attr.Type) {
		case UnixDiagPeer:
			if len(a.Value) >= 4 {
				d.PeerIno = nativeUint32(a.Value)
			}
		case UnixDiagName:
			nameAttr, haveName = a.Value, true
		case UnixDiagVFS:
			vfsAttr, haveVFS = a.Value, true
		case UnixDiagIcons:
			iconsAttr, haveIcons = a.Value, true
		case UnixDiagRqlen:
			rqlenAttr, haveRqlen = a.Value, true
		case UnixDiagUID:
			if len(a.Value) >= 4 {
				d.UID = nativeUint32(a.Value)
			}
		case UnixDiagShutdown:
			if len(a.Value) >= 1 {
				d.Shutdown = a.Value[0]
			}
		}
	}

	if haveName {
		dropped, err := decodeName(d, nameAttr, vfsAttr, haveVFS)
		if err != nil {
			return err
		}
		if dropped {
			// Relative-path name: log and skip this socket entirely,
			// with zero side effects on the socket table.
			return nil
		}
	}

	if haveIcons {
		decodeIcons(d, iconsAttr, icons)
	}

	if haveRqlen && len(rqlenAttr) >= 8 {
		d.RQueue = nativeUint32(rqlenAttr[0:4])
		d.WQueue = nativeUint32(rqlenAttr[4:8])
	}

	table.Insert(d)
	return nil
}

func nativeUint32(b []byte) uint32 {
	return *(*uint32)(unsafePointer(b))
}

// decodeName classifies the NAME attribute: empty or leading NUL is kept
// as-is, an absolute path must still match the VFS-reported identity to be
// kept, and a relative path drops the whole socket. Returns dropped=true
// when the caller should skip registering the socket entirely.
func decodeName(d *UnixSkDesc, name []byte, vfs []byte, haveVFS bool) (dropped bool, err error) {
	if len(name) == 0 || name[0] == 0 {
		d.NameKind = kindFor(name)
		d.Name = append([]byte(nil), name...)
		return false, nil
	}
	if name[0] != '/' {
		log.Printf("unixdiag: relative bind path %q unsupported, dropping socket", name)
		return true, nil
	}
	if !haveVFS {
		return false, errBoundWithoutVFS
	}
	if len(vfs) < 8 {
		return false, errBoundWithoutVFS
	}
	vfsIno := nativeUint32(vfs[0:4])
	vfsDev := nativeUint32(vfs[4:8])

	var st unix.Stat_t
	path := string(name)
	statErr := unix.Stat(path, &st)
	if statErr != nil || uint32(st.Ino) != vfsIno || uint32(st.Dev) != vfsDev {
		// The file has been unlinked (or replaced): no peer can reach it
		// by name any more, so we drop the name but keep the socket.
		d.NameKind = NameNone
		d.Name = nil
		return false, nil
	}

	d.NameKind = NamePath
	d.Name = append([]byte(nil), name...)
	return false, nil
}

func kindFor(name []byte) NameKind {
	if len(name) == 0 {
		return NameNone
	}
	return NameAbstract
}

func decodeIcons(d *UnixSkDesc, raw []byte, icons *IconIndex) {
	n := len(raw) / 4
	d.Icons = make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		ino := nativeUint32(raw[i*4 : i*4+4])
		d.Icons = append(d.Icons, ino)
		icons.Add(ino, d)
	}
}
