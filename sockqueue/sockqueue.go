// Package sockqueue drains and restores the buffered payload of a UNIX
// socket's receive queue, keyed by the socket's checkpoint id. Dumping
// peeks the queue length with SIOCINQ and copies the bytes out with
// MSG_PEEK, so the fd's receive queue is left intact for the kernel to
// deliver normally until checkpoint actually tears the descriptor down.
package sockqueue

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Record is one queue-image entry: the owning socket's checkpoint id and
// its buffered bytes.
type Record struct {
	ID      uint32
	Payload []byte
}

// Writer appends Records to an underlying queue-image file.
type Writer struct {
	bw *bufio.Writer
	f  *os.File
}

// Create opens filename for writing a fresh queue image.
func Create(filename string) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &Writer{bw: bufio.NewWriter(f), f: f}, nil
}

func putUint32(w *bufio.Writer, v uint32) error {
	var b [4]byte
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	_, err := w.Write(b[:])
	return err
}

func getUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// write appends one Record.
func (w *Writer) write(r Record) error {
	if err := putUint32(w.bw, r.ID); err != nil {
		return err
	}
	if err := putUint32(w.bw, uint32(len(r.Payload))); err != nil {
		return err
	}
	if len(r.Payload) > 0 {
		if _, err := w.bw.Write(r.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Dump peeks fd's receive queue length via SIOCINQ, copies that many bytes
// out with MSG_PEEK (so the real queue is left untouched), and appends a
// Record for id to w.
func Dump(w *Writer, fd int, id uint32) error {
	n, err := unix.IoctlGetInt(fd, unix.SIOCINQ)
	if err != nil {
		return err
	}
	if n <= 0 {
		return w.write(Record{ID: id})
	}

	buf := make([]byte, n)
	got, _, err := unix.Recvfrom(fd, buf, unix.MSG_PEEK)
	if err != nil {
		return err
	}
	return w.write(Record{ID: id, Payload: buf[:got]})
}

// Reader streams Records back out of a queue image.
type Reader struct {
	br *bufio.Reader
	f  *os.File
}

// Open opens filename for streaming read.
func Open(filename string) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &Reader{br: bufio.NewReader(f), f: f}, nil
}

// Next reads the next Record, or io.EOF at end of stream.
func (r *Reader) Next() (*Record, error) {
	id, err := getUint32(r.br)
	if err != nil {
		return nil, err
	}
	n, err := getUint32(r.br)
	if err != nil {
		return nil, err
	}
	var payload []byte
	if n > 0 {
		payload = make([]byte, n)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return nil, err
		}
	}
	return &Record{ID: id, Payload: payload}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Restore writes payload into fd, so the socket at the other end of fd
// reads the checkpointed bytes first.
func Restore(fd int, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := unix.Write(fd, payload)
	return err
}
