// sockdump takes one checkpoint of every UNIX socket held open by the
// process tree rooted at -procfs, writing a restorable image to -output.
// Listening TCP and UDP/UDP-lite sockets are collected into the socket
// table as well, but no image record is written for them.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"golang.org/x/sys/unix"

	"github.com/sockmigrate/sockets/checkpoint"
	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/inetdiag"
	"github.com/sockmigrate/sockets/proctree"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/sockqueue"
	"github.com/sockmigrate/sockets/unixdiag"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	promPort  = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
	outputDir = flag.String("output", ".", "Directory to write the checkpoint image files into.")
	procfs    = flag.String("procfs", "/proc", "Root of the /proc filesystem to enumerate socket-holding processes from.")
	extUnixSk = flag.Bool("ext-unix-sk", false, "Permit dumping dgram UNIX sockets whose peer is outside the process tree.")
	compress  = flag.Bool("compress", false, "Write .zst-compressed image files.")

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

	rtx.Must(os.MkdirAll(*outputDir, 0755), "Could not create output directory %q", *outputDir)

	table := unixdiag.NewTable()
	icons := unixdiag.NewIconIndex()
	rtx.Must(unixdiag.Collect(table, icons), "Could not collect UNIX sockets")

	for _, err := range inetdiag.CollectAll(table) {
		log.Println("INET collector error (continuing):", err)
	}

	imgW, err := image.Create(filepath.Join(*outputDir, "sockets.img"), image.Options{Compress: *compress})
	rtx.Must(err, "Could not create sockets image")
	fdW, err := image.Create(filepath.Join(*outputDir, "fdinfo.img"), image.Options{Compress: *compress})
	rtx.Must(err, "Could not create fdinfo image")
	queueW, err := sockqueue.Create(filepath.Join(*outputDir, "queue.img"))
	rtx.Must(err, "Could not create queue image")

	sess := checkpoint.NewSession(table, icons, checkpoint.Options{ExtUnixSk: *extUnixSk}, imgW, fdW, queueW)
	sess.Events = events

	seen, failed := 0, 0
	rtx.Must(proctree.Walk(*procfs, func(sfd proctree.SocketFd) {
		if _, ok := table.Lookup(sfd.Inode).(*unixdiag.UnixSkDesc); !ok {
			// Not a collected UNIX socket: either an INET socket (which
			// the per-fd dumper never needs to touch directly) or one
			// the netlink pass missed for a reason other than "it
			// doesn't exist" (process raced past us; ignore it).
			return
		}

		f, err := os.Open(filepath.Join(*procfs, strconv.Itoa(sfd.PID), "fd", strconv.Itoa(sfd.FD)))
		if err != nil {
			failed++
			return
		}
		defer f.Close()
		fd := int(f.Fd())

		var st unix.Stat_t
		unix.Fstat(fd, &st)
		owner := checkpoint.StatOwner(&st)
		if pid, err := unix.FcntlInt(uintptr(fd), unix.F_GETOWN, 0); err == nil && pid > 0 {
			owner.PID = uint32(pid)
		}
		flags, _ := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)

		if err := sess.DumpFd(checkpoint.FdParams{
			Fd:    fd,
			Ino:   sfd.Inode,
			Flags: uint32(flags),
			Owner: owner,
		}); err != nil {
			log.Println("dump failed for pid", sfd.PID, "fd", sfd.FD, ":", err)
			failed++
			return
		}
		seen++
	}), "Could not walk %q", *procfs)

	rtx.Must(sess.Finalize(), "Could not finalize external-defer list")

	rtx.Must(imgW.Close(), "Could not close sockets image")
	rtx.Must(fdW.Close(), "Could not close fdinfo image")
	rtx.Must(queueW.Close(), "Could not close queue image")

	log.Println("checkpoint complete:", seen, "descriptors dumped,", failed, "skipped/failed")
}
