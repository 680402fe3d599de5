package inetdiag

import "testing"

func TestInetDiagReqV2SerializeLen(t *testing.T) {
	req := NewInetDiagReqV2(AFInet, IPPROTOTCP, 1<<TCPListen)
	b := req.Serialize()
	if len(b) != req.Len() {
		t.Errorf("Serialize() length %d != Len() %d", len(b), req.Len())
	}
	if req.SDiagFamily != AFInet || req.SDiagProtocol != IPPROTOTCP {
		t.Errorf("got %+v", req)
	}
}

func TestParseInetDiagMsgRejectsShortBuffer(t *testing.T) {
	if msg, _ := ParseInetDiagMsg([]byte{1, 2, 3}); msg != nil {
		t.Error("expected nil for a buffer shorter than InetDiagMsg")
	}
}

func TestInetDiagSockIDPorts(t *testing.T) {
	var id InetDiagSockID
	id.IDiagSPort = [2]byte{0x1F, 0x90} // 8080 big-endian
	id.IDiagDPort = [2]byte{0x00, 0x50} // 80 big-endian

	if id.SPort() != 8080 {
		t.Errorf("got SPort()=%d, want 8080", id.SPort())
	}
	if id.DPort() != 80 {
		t.Errorf("got DPort()=%d, want 80", id.DPort())
	}
}

func TestInetDiagSockIDIPv4(t *testing.T) {
	var id InetDiagSockID
	id.IDiagSrc[0], id.IDiagSrc[1], id.IDiagSrc[2], id.IDiagSrc[3] = 127, 0, 0, 1

	ip := id.SrcIP()
	if ip.String() != "127.0.0.1" {
		t.Errorf("got SrcIP()=%s, want 127.0.0.1", ip)
	}
}
