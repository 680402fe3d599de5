// sockrestore reconstructs the UNIX socket graph from a checkpoint image
// written by sockdump, re-opening every descriptor and restoring it to the
// (pid, fd) slot recorded in the fdinfo image.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"path/filepath"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"golang.org/x/sys/unix"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/restore"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/sockqueue"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	promPort  = flag.String("prom", ":9091", "Prometheus metrics export address and port.")
	inputDir  = flag.String("input", ".", "Directory holding the checkpoint image files written by sockdump.")
	extUnixSk = flag.Bool("ext-unix-sk", false, "Permit resolving peers flagged as external to the checkpointed process tree.")
	compress  = flag.Bool("compress", false, "Read .zst-compressed image files.")

	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)
	defer cancel()

	var events *sockevents.Server
	if *sockevents.Filename != "" {
		events = sockevents.New(*sockevents.Filename)
		rtx.Must(events.Listen(), "Could not listen on %q", *sockevents.Filename)
		go events.Serve(ctx)
	}

	imgR, err := image.Open(filepath.Join(*inputDir, "sockets.img"), image.Options{Compress: *compress})
	rtx.Must(err, "Could not open sockets image")
	defer imgR.Close()

	queues, err := loadQueues(filepath.Join(*inputDir, "queue.img"))
	rtx.Must(err, "Could not load queue image")

	fdinfo, err := loadFdInfo(filepath.Join(*inputDir, "fdinfo.img"), *compress)
	rtx.Must(err, "Could not load fdinfo image")

	reg := restore.NewRegistry()
	reg.Events = events
	rtx.Must(restore.Load(imgR, reg), "Could not load sockets image")

	// The pair-master/pair-slave choice orders on (pid, fd) of each
	// side's first descriptor-list entry. All descriptors restore into
	// this one process, so the fd alone decides.
	for _, e := range fdinfo {
		ui := reg.Lookup(e.ID)
		if ui == nil || ui.OwnerFD != 0 {
			continue
		}
		ui.OwnerFD = int(e.Fd)
	}

	rtx.Must(restore.Resolve(reg, restore.Options{ExtUnixSk: *extUnixSk}), "Could not resolve socket peers")

	opener := restore.NewOpener()
	opener.Queues = queues

	fds := make(map[uint32]int, len(reg.All()))

	// Pair-masters (and standalone sockets) must open first: opening a
	// pair-master is what creates the transport channel a pair-slave's
	// Open call depends on.
	for _, ui := range reg.All() {
		if ui.Role == restore.RolePairSlave {
			continue
		}
		fd, err := opener.Open(ui, reg)
		if err != nil {
			log.Println("open failed for checkpoint id", ui.ID(), ":", err)
			continue
		}
		fds[ui.ID()] = fd
	}
	for _, ui := range reg.All() {
		if ui.Role != restore.RolePairSlave {
			continue
		}
		fd, err := opener.Open(ui, reg)
		if err != nil {
			log.Println("open failed for checkpoint id", ui.ID(), ":", err)
			continue
		}
		fds[ui.ID()] = fd
	}

	rtx.Must(restore.RunConnections(reg, fds, queues), "Could not drain deferred connections")

	placeFds(fdinfo, fds)

	log.Println("restore complete:", len(fds), "descriptors opened")
}

// loadQueues reads every queued-payload record into a map keyed by
// checkpoint id, for the opener and connection runner to consult.
func loadQueues(filename string) (map[uint32][]byte, error) {
	r, err := sockqueue.Open(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	queues := make(map[uint32][]byte)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return queues, nil
		}
		if err != nil {
			return nil, err
		}
		queues[rec.ID] = rec.Payload
	}
}

// loadFdInfo reads every per-fd info record into a slice, in image order.
func loadFdInfo(filename string, compress bool) ([]image.FdInfoEntry, error) {
	r, err := image.Open(filename, image.Options{Compress: compress})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []image.FdInfoEntry
	for {
		e, err := r.ReadFdInfo()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
}

// placeFds dups each restored descriptor onto the fd number recorded in
// the fdinfo image, matching the slot it held at checkpoint time.
func placeFds(entries []image.FdInfoEntry, fds map[uint32]int) {
	placed := make(map[uint32]bool)
	for _, e := range entries {
		fd, ok := fds[e.ID]
		if !ok {
			continue
		}
		if int(e.Fd) == fd {
			placed[e.ID] = true
			continue
		}
		if err := unix.Dup2(fd, int(e.Fd)); err != nil {
			log.Println("could not place fd", e.Fd, "for checkpoint id", e.ID, ":", err)
			continue
		}
		if !placed[e.ID] {
			// Only the opener's own descriptor is closed; an already
			// placed slot stays open.
			unix.Close(fd)
		}
		placed[e.ID] = true
		// Later entries for the same inode dup from the placed slot.
		fds[e.ID] = int(e.Fd)
	}
}
