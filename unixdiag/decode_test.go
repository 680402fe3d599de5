package unixdiag

import (
	"encoding/binary"
	"syscall"
	"testing"
)

func rta(attrType int, value []byte) []byte {
	hdr := syscall.RtAttr{Len: uint16(4 + len(value)), Type: uint16(attrType)}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], hdr.Len)
	binary.LittleEndian.PutUint16(b[2:4], hdr.Type)
	b = append(b, value...)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func buildMsg(hdr UnixDiagMsg, attrs ...[]byte) *syscall.NetlinkMessage {
	data := make([]byte, SizeofUnixDiagMsg)
	data[0] = hdr.Family
	data[1] = hdr.Type
	data[2] = hdr.State
	data[3] = hdr.Pad
	binary.LittleEndian.PutUint32(data[4:8], hdr.Ino)
	for _, a := range attrs {
		data = append(data, a...)
	}
	return &syscall.NetlinkMessage{Data: data}
}

func TestDecodeAbstractName(t *testing.T) {
	table := NewTable()
	icons := NewIconIndex()
	msg := buildMsg(UnixDiagMsg{Type: SockDgram, State: uint8(StateListen), Ino: 100},
		rta(UnixDiagName, []byte{0, 'x', 'y'}))

	if err := Decode(msg, table, icons); err != nil {
		t.Fatal(err)
	}
	d := table.LookupUnix(100)
	if d == nil {
		t.Fatal("expected socket registered")
	}
	if d.NameKind != NameAbstract {
		t.Errorf("got NameKind %v, want NameAbstract", d.NameKind)
	}
}

func TestDecodeRelativePathDropsSocket(t *testing.T) {
	table := NewTable()
	icons := NewIconIndex()
	msg := buildMsg(UnixDiagMsg{Type: SockStream, State: uint8(StateListen), Ino: 101},
		rta(UnixDiagName, []byte("relative/path")))

	if err := Decode(msg, table, icons); err != nil {
		t.Fatalf("relative-path drop must not be an error, got %v", err)
	}
	if table.LookupUnix(101) != nil {
		t.Error("relative-path socket must not be registered")
	}
}

func TestDecodeIconsIndexed(t *testing.T) {
	table := NewTable()
	icons := NewIconIndex()
	msg := buildMsg(UnixDiagMsg{Type: SockStream, State: uint8(StateListen), Ino: 200},
		rta(UnixDiagIcons, append(u32le(201), u32le(202)...)))

	if err := Decode(msg, table, icons); err != nil {
		t.Fatal(err)
	}
	d := table.LookupUnix(200)
	if d == nil {
		t.Fatal("expected listener registered")
	}
	for _, peer := range []uint32{201, 202} {
		icon := icons.Lookup(peer)
		if icon == nil || icon.SkDesc != d {
			t.Errorf("lookup_unix_listen_icons(%d) should resolve to the listener", peer)
		}
	}
}

func TestDecodeRqlen(t *testing.T) {
	table := NewTable()
	icons := NewIconIndex()
	msg := buildMsg(UnixDiagMsg{Type: SockStream, State: uint8(StateEstablished), Ino: 300},
		rta(UnixDiagRqlen, append(u32le(7), u32le(9)...)))

	if err := Decode(msg, table, icons); err != nil {
		t.Fatal(err)
	}
	d := table.LookupUnix(300)
	if d.RQueue != 7 || d.WQueue != 9 {
		t.Errorf("got RQueue=%d WQueue=%d, want 7/9", d.RQueue, d.WQueue)
	}
}

func TestDecodePeer(t *testing.T) {
	table := NewTable()
	icons := NewIconIndex()
	msg := buildMsg(UnixDiagMsg{Type: SockStream, State: uint8(StateEstablished), Ino: 400},
		rta(UnixDiagPeer, u32le(401)))

	if err := Decode(msg, table, icons); err != nil {
		t.Fatal(err)
	}
	if d := table.LookupUnix(400); d.PeerIno != 401 {
		t.Errorf("got PeerIno=%d, want 401", d.PeerIno)
	}
}
