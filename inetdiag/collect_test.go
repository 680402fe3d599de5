package inetdiag

import (
	"testing"

	"github.com/sockmigrate/sockets/unixdiag"
)

func TestCollectRegistersInSocketTable(t *testing.T) {
	table := unixdiag.NewTable()
	hdr := &InetDiagMsg{IDiagState: uint8(unixdiag.StateListen), IDiagInode: 77}

	Collect(hdr, AFInet, sockStream, IPPROTOTCP, table)

	d := table.Lookup(77)
	if d == nil {
		t.Fatal("expected inode 77 registered")
	}
	if d.Family() != AFInet {
		t.Errorf("got family %d, want AFInet", d.Family())
	}
}
