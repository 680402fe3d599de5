// Package image implements the on-disk UNIX socket image format: a framed,
// byte-exact record layout streamed to and from a single file, with an
// optional zstd-compressed variant for archival.
package image

import (
	"bufio"
	"errors"
	"io"
	"os"
	"unsafe"

	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/zstd"
)

// uflags bits.
const (
	UFlagExtern = 1 << 0
)

// FownEntry records the descriptor's owner/signal ownership, restored with
// fcntl(F_SETOWN) on the re-opened socket.
type FownEntry struct {
	UID    uint32
	PID    uint32
	Signum uint32
}

// UnixSkEntry is the wire record, one per checkpointed UNIX socket. Name
// bytes (Namelen of them) immediately follow each record in the stream;
// they are not part of this fixed-size struct.
type UnixSkEntry struct {
	ID      uint32
	Type    uint32
	State   uint32
	Namelen uint32
	Flags   uint32
	Backlog uint32
	Peer    uint32
	Fown    FownEntry
	Uflags  uint32
}

// SizeofUnixSkEntry is the on-disk size of the fixed portion of a record.
const SizeofUnixSkEntry = int(unsafe.Sizeof(UnixSkEntry{}))

// Serialize renders the fixed portion to wire bytes, native byte order,
// matching the struct-reinterpretation idiom used throughout netlink/ and
// unixdiag/ for kernel-facing structs.
func (e *UnixSkEntry) Serialize() []byte {
	return (*(*[SizeofUnixSkEntry]byte)(unsafe.Pointer(e)))[:]
}

// parseUnixSkEntry reinterprets the leading SizeofUnixSkEntry bytes of b.
func parseUnixSkEntry(b []byte) *UnixSkEntry {
	return (*UnixSkEntry)(unsafe.Pointer(&b[0]))
}

// FdInfoEntry is the per-fd info record: emitted once per open descriptor,
// independent of whether the canonical UnixSkEntry for that inode has
// already been written.
type FdInfoEntry struct {
	Fd    uint32
	Type  uint32 // always TypeUnixSk for this core
	ID    uint32
	Flags uint32
}

// SizeofFdInfoEntry is the on-disk size of an FdInfoEntry.
const SizeofFdInfoEntry = int(unsafe.Sizeof(FdInfoEntry{}))

// Serialize renders the fixed portion to wire bytes.
func (e *FdInfoEntry) Serialize() []byte {
	return (*(*[SizeofFdInfoEntry]byte)(unsafe.Pointer(e)))[:]
}

func parseFdInfoEntry(b []byte) *FdInfoEntry {
	return (*FdInfoEntry)(unsafe.Pointer(&b[0]))
}

// TypeUnixSk is the descriptor type tag used in FdInfoEntry.Type.
const TypeUnixSk = 1

var errShortRecord = errors.New("image: truncated record")

// Writer streams UnixSkEntry and FdInfoEntry records to an underlying
// file, in append order. Readers stream records back until end-of-file.
type Writer struct {
	f  io.WriteCloser
	bw *bufio.Writer
}

// Options configures image file creation.
type Options struct {
	// Compress pipes the image through an external zstd process.
	Compress bool
}

// Create opens filename for writing a fresh image, truncating any existing
// contents.
func Create(filename string, opts Options) (*Writer, error) {
	if opts.Compress {
		wc, err := zstd.NewWriter(filename)
		if err != nil {
			return nil, err
		}
		return &Writer{f: wc, bw: bufio.NewWriter(wc)}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, bw: bufio.NewWriter(f)}, nil
}

// WriteSocket appends one UnixSkEntry followed by its name bytes.
func (w *Writer) WriteSocket(e *UnixSkEntry, name []byte) error {
	e.Namelen = uint32(len(name))
	n, err := w.bw.Write(e.Serialize())
	if err != nil {
		return err
	}
	if len(name) > 0 {
		nn, err := w.bw.Write(name)
		if err != nil {
			return err
		}
		n += nn
	}
	metrics.ImageBytesWritten.Add(float64(n))
	return nil
}

// WriteFdInfo appends one per-fd info record.
func (w *Writer) WriteFdInfo(e *FdInfoEntry) error {
	_, err := w.bw.Write(e.Serialize())
	return err
}

// Close flushes buffered output and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Reader streams UnixSkEntry records back out of an image file.
type Reader struct {
	f  io.ReadCloser
	br *bufio.Reader
}

// Open opens filename for streaming read.
func Open(filename string, opts Options) (*Reader, error) {
	if opts.Compress {
		return &Reader{f: nil, br: bufio.NewReader(zstd.NewReader(filename))}, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, br: bufio.NewReader(f)}, nil
}

// ReadSocket reads the next UnixSkEntry and its name bytes. Returns io.EOF
// when the stream is exhausted cleanly at a record boundary.
func (r *Reader) ReadSocket() (*UnixSkEntry, []byte, error) {
	hdr := make([]byte, SizeofUnixSkEntry)
	if _, err := io.ReadFull(r.br, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, nil, errShortRecord
		}
		return nil, nil, err
	}
	e := *parseUnixSkEntry(hdr)
	var name []byte
	if e.Namelen > 0 {
		name = make([]byte, e.Namelen)
		if _, err := io.ReadFull(r.br, name); err != nil {
			return nil, nil, errShortRecord
		}
	}
	return &e, name, nil
}

// ReadFdInfo reads the next FdInfoEntry. Returns io.EOF when the stream is
// exhausted cleanly at a record boundary.
func (r *Reader) ReadFdInfo() (*FdInfoEntry, error) {
	hdr := make([]byte, SizeofFdInfoEntry)
	if _, err := io.ReadFull(r.br, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errShortRecord
		}
		return nil, err
	}
	e := *parseFdInfoEntry(hdr)
	return &e, nil
}

// Close closes the underlying file, if any (a compressed reader's pipe
// closes itself once the external zstd process exits).
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

