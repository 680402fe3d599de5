package restore_test

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/restore"
)

func TestLoadRegistersEverySocket(t *testing.T) {
	dir, err := ioutil.TempDir("", "restore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := dir + "/sockets.img"
	w, err := image.Create(path, image.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSocket(&image.UnixSkEntry{ID: 1, Type: 1, State: 10}, []byte("/tmp/a")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSocket(&image.UnixSkEntry{ID: 2, Type: 2, State: 1}, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := image.Open(path, image.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	registry := restore.NewRegistry()
	if err := restore.Load(r, registry); err != nil {
		t.Fatal(err)
	}

	if len(registry.All()) != 2 {
		t.Fatalf("got %d sockets, want 2", len(registry.All()))
	}
	if registry.Lookup(1) == nil || registry.Lookup(2) == nil {
		t.Error("expected both ids registered")
	}
}
