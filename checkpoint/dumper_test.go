package checkpoint_test

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sockmigrate/sockets/checkpoint"
	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/sockqueue"
	"github.com/sockmigrate/sockets/unixdiag"
)

func counterValue(m prometheus.Metric) float64 {
	var mm dto.Metric
	m.Write(&mm)
	return mm.GetCounter().GetValue()
}

func newTestSession(t *testing.T, opts checkpoint.Options) (*checkpoint.Session, string) {
	t.Helper()
	dir, err := ioutil.TempDir("", "checkpoint")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	img, err := image.Create(dir+"/sockets.img", image.Options{})
	if err != nil {
		t.Fatal(err)
	}
	fdinfo, err := image.Create(dir+"/fdinfo.img", image.Options{})
	if err != nil {
		t.Fatal(err)
	}
	q, err := sockqueue.Create(dir + "/sk-queues.img")
	if err != nil {
		t.Fatal(err)
	}

	table := unixdiag.NewTable()
	icons := unixdiag.NewIconIndex()
	return checkpoint.NewSession(table, icons, opts, img, fdinfo, q), dir
}

func TestDumpFdNotCollected(t *testing.T) {
	s, _ := newTestSession(t, checkpoint.Options{})
	err := s.DumpFd(checkpoint.FdParams{Fd: 3, Ino: 999})
	if err != checkpoint.ErrNotCollected {
		t.Errorf("got %v, want ErrNotCollected", err)
	}
}

func TestDumpFdListeningSocket(t *testing.T) {
	s, _ := newTestSession(t, checkpoint.Options{})
	d := unixdiag.NewUnixSkDesc(10)
	d.Type = unixdiag.SockStream
	d.State = unixdiag.StateListen
	d.NameKind = unixdiag.NamePath
	d.Name = []byte("/tmp/sock")
	s.Table.Insert(d)

	before := counterValue(metrics.SocketsDumped)
	if err := s.DumpFd(checkpoint.FdParams{Fd: 3, Ino: 10}); err != nil {
		t.Fatal(err)
	}
	if !d.Dumped() {
		t.Error("expected desc to be marked dumped")
	}

	// A second dump of the same inode must not fail and must not
	// re-emit the canonical record.
	if err := s.DumpFd(checkpoint.FdParams{Fd: 4, Ino: 10}); err != nil {
		t.Fatal(err)
	}
	if got := counterValue(metrics.SocketsDumped) - before; got != 1 {
		t.Errorf("canonical record written %v times, want exactly 1", got)
	}
}

func TestDumpFdRecordsBacklog(t *testing.T) {
	s, dir := newTestSession(t, checkpoint.Options{})
	d := unixdiag.NewUnixSkDesc(12)
	d.Type = unixdiag.SockStream
	d.State = unixdiag.StateListen
	d.WQueue = 5 // the kernel reports a listener's backlog here
	s.Table.Insert(d)

	if err := s.DumpFd(checkpoint.FdParams{Fd: 3, Ino: 12}); err != nil {
		t.Fatal(err)
	}
	if err := s.Image.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := image.Open(dir+"/sockets.img", image.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	e, _, err := r.ReadSocket()
	if err != nil {
		t.Fatal(err)
	}
	if e.Backlog != 5 {
		t.Errorf("got backlog %d, want 5", e.Backlog)
	}
}

func TestDumpFdDanglingInFlight(t *testing.T) {
	s, _ := newTestSession(t, checkpoint.Options{})
	d := unixdiag.NewUnixSkDesc(11)
	d.Type = unixdiag.SockStream
	d.State = unixdiag.StateEstablished
	s.Table.Insert(d)

	err := s.DumpFd(checkpoint.FdParams{Fd: 3, Ino: 11})
	if err != checkpoint.ErrDanglingInFlight {
		t.Errorf("got %v, want ErrDanglingInFlight", err)
	}
}

func TestDumpFdInFlightResolvedViaIcon(t *testing.T) {
	s, _ := newTestSession(t, checkpoint.Options{})

	listener := unixdiag.NewUnixSkDesc(20)
	listener.Type = unixdiag.SockStream
	listener.State = unixdiag.StateListen
	s.Table.Insert(listener)
	s.Icons.Add(21, listener)

	client := unixdiag.NewUnixSkDesc(21)
	client.Type = unixdiag.SockStream
	client.State = unixdiag.StateEstablished
	s.Table.Insert(client)

	if err := s.DumpFd(checkpoint.FdParams{Fd: 5, Ino: 21}); err != nil {
		t.Fatal(err)
	}
}

func TestFinalizeRunawayExternal(t *testing.T) {
	s, _ := newTestSession(t, checkpoint.Options{ExtUnixSk: false})

	named := unixdiag.NewUnixSkDesc(30)
	named.Type = unixdiag.SockDgram
	named.State = unixdiag.StateListen
	named.NameKind = unixdiag.NamePath
	named.Name = []byte("/tmp/ext")
	s.Table.Insert(named)

	client := unixdiag.NewUnixSkDesc(31)
	client.Type = unixdiag.SockDgram
	client.State = unixdiag.StateEstablished
	client.PeerIno = 30
	s.Table.Insert(client)

	if err := s.DumpFd(checkpoint.FdParams{Fd: 3, Ino: 31}); err != nil {
		t.Fatal(err)
	}

	if err := s.Finalize(); err != checkpoint.ErrRunawayExternal {
		t.Errorf("got %v, want ErrRunawayExternal", err)
	}
}

func TestFinalizeExternalDgramAllowed(t *testing.T) {
	s, _ := newTestSession(t, checkpoint.Options{ExtUnixSk: true})

	named := unixdiag.NewUnixSkDesc(40)
	named.Type = unixdiag.SockDgram
	named.State = unixdiag.StateListen
	named.NameKind = unixdiag.NamePath
	named.Name = []byte("/tmp/ext2")
	s.Table.Insert(named)

	client := unixdiag.NewUnixSkDesc(41)
	client.Type = unixdiag.SockDgram
	client.State = unixdiag.StateEstablished
	client.PeerIno = 40
	s.Table.Insert(client)

	if err := s.DumpFd(checkpoint.FdParams{Fd: 3, Ino: 41}); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
}
