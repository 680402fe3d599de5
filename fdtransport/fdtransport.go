// Package fdtransport implements the cross-process descriptor handoff
// channel that moves a live socket descriptor from the process that opened
// it (pair-master) to the process that should hold it (pair-slave), via
// SCM_RIGHTS ancillary data on a short-lived UNIX datagram socket pair.
package fdtransport

import (
	"golang.org/x/sys/unix"
)

// Channel wraps one end of a transport socketpair.
type Channel struct {
	fd int
}

// New wraps an already-open socket fd as a Channel.
func New(fd int) *Channel { return &Channel{fd: fd} }

// NewPair creates a fresh AF_UNIX SOCK_DGRAM socketpair for handing off
// exactly one descriptor. Returns the master's and slave's ends.
func NewPair() (master, slave *Channel, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, nil, err
	}
	return &Channel{fd: fds[0]}, &Channel{fd: fds[1]}, nil
}

// Fd returns the underlying descriptor.
func (c *Channel) Fd() int { return c.fd }

// Close closes the underlying descriptor. Callers must close the transport
// on every exit path from the operation that opened it.
func (c *Channel) Close() error { return unix.Close(c.fd) }

// SendFD hands fd to the peer over this channel via SCM_RIGHTS.
func (c *Channel) SendFD(fd int) error {
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(c.fd, nil, rights, nil, 0)
}

// RecvFD receives one descriptor sent by SendFD.
func (c *Channel) RecvFD() (int, error) {
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := unix.Recvmsg(c.fd, nil, oob, 0)
	if err != nil {
		return 0, err
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, err
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return 0, err
	}
	return fds[0], nil
}
