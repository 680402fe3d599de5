package restore_test

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/restore"
	"github.com/sockmigrate/sockets/unixdiag"
)

func TestRunConnectionsSucceedsAgainstListener(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.sock")

	listenFd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(listenFd)
	if err := unix.Bind(listenFd, &unix.SockaddrUnix{Name: path}); err != nil {
		t.Fatal(err)
	}
	if err := unix.Listen(listenFd, 1); err != nil {
		t.Fatal(err)
	}

	clientFd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(clientFd)

	listener := &restore.UnixSkInfo{Entry: image.UnixSkEntry{ID: 1, Type: uint32(unixdiag.SockStream), State: uint32(unixdiag.StateListen)}, Name: []byte(path)}
	client := &restore.UnixSkInfo{Entry: image.UnixSkEntry{ID: 2, Type: uint32(unixdiag.SockStream), State: uint32(unixdiag.StateEstablished), Peer: 1}}
	client.Peer = listener

	reg := restore.NewRegistry()
	reg.Register(listener)
	reg.Register(client)
	reg.Queue = append(reg.Queue, client)

	jobs := map[uint32]int{client.ID(): clientFd}
	if err := restore.RunConnections(reg, jobs, nil); err != nil {
		t.Fatal(err)
	}
	if len(reg.Queue) != 0 {
		t.Error("RunConnections must drain the queue")
	}

	// A successful connect means the peer accepted us.
	acceptFd, _, err := unix.Accept(listenFd)
	if err != nil {
		t.Fatalf("expected the deferred connect to have reached the listener: %v", err)
	}
	unix.Close(acceptFd)
}

func TestRunConnectionsFailsAfterRetries(t *testing.T) {
	listener := &restore.UnixSkInfo{Entry: image.UnixSkEntry{ID: 1}, Name: []byte("/nonexistent/path/to/socket")}
	client := &restore.UnixSkInfo{Entry: image.UnixSkEntry{ID: 2, Peer: 1}}
	client.Peer = listener

	reg := restore.NewRegistry()
	reg.Register(listener)
	reg.Register(client)
	reg.Queue = append(reg.Queue, client)

	clientFd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(clientFd)

	jobs := map[uint32]int{client.ID(): clientFd}
	if err := restore.RunConnections(reg, jobs, nil); err != restore.ErrConnectFailed {
		t.Errorf("got %v, want ErrConnectFailed", err)
	}
}
