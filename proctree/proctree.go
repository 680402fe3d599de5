// Package proctree enumerates the open socket file descriptors of a
// process tree by scanning /proc: the driver loop that discovers which
// (pid, fd) pairs to hand to checkpoint.Session.DumpFd.
package proctree

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// ErrCantReadProc is returned when /proc is unreadable for any reason.
var ErrCantReadProc = errors.New("proctree: can't read /proc")

// SocketFd identifies one open socket descriptor discovered under /proc.
type SocketFd struct {
	PID   int
	FD    int
	Inode uint32
}

// Walk enumerates every PID directly under procfs and every socket fd each
// holds open, calling visit once per descriptor found. Non-socket fds and
// unreadable per-pid directories (the process may have exited mid-scan)
// are skipped rather than treated as fatal.
func Walk(procfs string, visit func(SocketFd)) error {
	d, err := os.Open(procfs)
	if err != nil {
		return ErrCantReadProc
	}
	defer d.Close()

	pids, err := d.Readdirnames(0)
	if err != nil {
		return ErrCantReadProc
	}

	for _, p := range pids {
		pid, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		walkPid(procfs, pid, visit)
	}
	return nil
}

func walkPid(procfs string, pid int, visit func(SocketFd)) {
	fdDir := procfs + "/" + strconv.Itoa(pid) + "/fd"
	d, err := os.Open(fdDir)
	if err != nil {
		return
	}
	defer d.Close()

	names, err := d.Readdirnames(0)
	if err != nil {
		return
	}

	for _, name := range names {
		fd, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		target, err := os.Readlink(fdDir + "/" + name)
		if err != nil {
			continue
		}
		ino, ok := socketInode(target)
		if !ok {
			continue
		}
		visit(SocketFd{PID: pid, FD: fd, Inode: ino})
	}
}

// socketInode parses the "socket:[12345]" form /proc/<pid>/fd/<n> symlinks
// take for socket descriptors.
func socketInode(target string) (uint32, bool) {
	if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
		return 0, false
	}
	digits := target[len("socket:[") : len(target)-1]
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
