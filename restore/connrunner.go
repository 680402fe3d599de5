package restore

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/sockqueue"
)

// ErrConnectFailed is fatal: a deferred connect exhausted its retries.
var ErrConnectFailed = errors.New("restore: connect failed after retries")

const (
	connectRetries = 8
	connectDelay   = time.Millisecond
)

// ConnJob pairs a standalone descriptor awaiting connect with its UnixSkInfo.
type ConnJob struct {
	Fd int
	UI *UnixSkInfo
}

// RunConnections drains reg.Queue once. jobs maps each queued UnixSkInfo
// to the raw descriptor the opener returned for it.
func RunConnections(reg *Registry, jobs map[uint32]int, queues map[uint32][]byte) error {
	for _, ui := range reg.Queue {
		fd, ok := jobs[ui.ID()]
		if !ok {
			continue
		}
		if err := connectWithRetry(fd, ui); err != nil {
			return err
		}
		if ui.Peer != nil {
			if payload, ok := queues[ui.Peer.ID()]; ok {
				sockqueue.Restore(fd, payload)
			}
		}
		applyOwnerFlags(fd, &ui.Entry)
		reg.emit(sockevents.Connected, ui.ID(), ui.Entry.Peer, string(ui.Name))
	}
	reg.Queue = nil
	return nil
}

func connectWithRetry(fd int, ui *UnixSkInfo) error {
	addr := &unix.SockaddrUnix{Name: string(ui.Peer.Name)}
	var err error
	for i := 0; i < connectRetries; i++ {
		err = unix.Connect(fd, addr)
		if err == nil {
			metrics.ConnectRetries.Observe(float64(i + 1))
			return nil
		}
		time.Sleep(connectDelay)
	}
	metrics.ConnectRetries.Observe(connectRetries)
	return ErrConnectFailed
}
