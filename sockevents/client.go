package sockevents

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"net"
	"strings"
	"time"

	"github.com/m-lab/go/rtx"
)

// Filename is a command-line flag holding the name of the UNIX domain
// socket used by both the client and the server, so the two ends always
// agree on the path.
var Filename = flag.String("sockets.eventsocket", "", "The filename of the unix-domain socket on which checkpoint/restore events are served.")

// Handler receives decoded SocketEvents as they arrive.
type Handler interface {
	Handle(ctx context.Context, timestamp time.Time, inode, peer uint32, name string, kind Kind)
}

// MustRun reads from socket until ctx is canceled, dispatching each decoded
// event to handler. Any error is fatal.
func MustRun(ctx context.Context, socket string, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c, err := net.Dial("unix", socket)
	rtx.Must(err, "Could not connect to %q", socket)
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	s := bufio.NewScanner(c)
	for s.Scan() {
		var event SocketEvent
		rtx.Must(json.Unmarshal(s.Bytes(), &event), "Could not unmarshall")
		handler.Handle(ctx, event.Timestamp, event.Inode, event.Peer, event.Name, event.Event)
	}

	err = s.Err()
	if err != nil && strings.Contains(err.Error(), "use of closed network connection") {
		err = nil
	}
	rtx.Must(err, "Scanning of %q died with non-EOF error", socket)
}
