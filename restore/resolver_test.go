package restore_test

import (
	"testing"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/restore"
)

func reg(entries ...image.UnixSkEntry) *restore.Registry {
	r := restore.NewRegistry()
	for _, e := range entries {
		r.Register(&restore.UnixSkInfo{Entry: e})
	}
	return r
}

func TestResolvePairRoles(t *testing.T) {
	a := image.UnixSkEntry{ID: 3, Peer: 4}
	b := image.UnixSkEntry{ID: 4, Peer: 3}
	r := reg(a, b)
	r.Lookup(3).OwnerPID, r.Lookup(3).OwnerFD = 100, 3
	r.Lookup(4).OwnerPID, r.Lookup(4).OwnerFD = 100, 4

	if err := restore.Resolve(r, restore.Options{}); err != nil {
		t.Fatal(err)
	}

	ui3, ui4 := r.Lookup(3), r.Lookup(4)
	if ui3.Role != restore.RolePairMaster {
		t.Errorf("id 3 (lower fd) should be pair-master, got role %d", ui3.Role)
	}
	if ui4.Role != restore.RolePairSlave {
		t.Errorf("id 4 should be pair-slave, got role %d", ui4.Role)
	}
	if ui3.Peer != ui4 || ui4.Peer != ui3 {
		t.Error("peer links not set reciprocally")
	}
}

func TestResolveSelfLoop(t *testing.T) {
	a := image.UnixSkEntry{ID: 7, Peer: 7}
	r := reg(a)

	if err := restore.Resolve(r, restore.Options{}); err != nil {
		t.Fatal(err)
	}
	ui := r.Lookup(7)
	if ui.Role != 0 {
		t.Errorf("self-loop must not receive pair roles, got %d", ui.Role)
	}
	if ui.Peer != ui {
		t.Error("self-loop peer should point to itself")
	}
}

func TestResolvePeerNotFound(t *testing.T) {
	a := image.UnixSkEntry{ID: 1, Peer: 99}
	r := reg(a)

	if err := restore.Resolve(r, restore.Options{}); err != restore.ErrPeerNotFound {
		t.Errorf("got %v, want ErrPeerNotFound", err)
	}
}

func TestResolveExternalPeerRequiresOption(t *testing.T) {
	ext := image.UnixSkEntry{ID: 5, Uflags: image.UFlagExtern}
	client := image.UnixSkEntry{ID: 6, Peer: 5}
	r := reg(ext, client)

	if err := restore.Resolve(r, restore.Options{ExtUnixSk: false}); err != restore.ErrPeerNotFound {
		t.Errorf("got %v, want ErrPeerNotFound", err)
	}

	r2 := reg(ext, client)
	if err := restore.Resolve(r2, restore.Options{ExtUnixSk: true}); err != nil {
		t.Errorf("unexpected error with ext-unix-sk enabled: %v", err)
	}
}
