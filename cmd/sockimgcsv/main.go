// Main package in sockimgcsv implements a command line tool for converting
// a sockets.img checkpoint file to CSV, one row per socket record.
package main

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/unixdiag"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	// A variable to enable mocking for testing.
	logFatal = log.Fatal
)

// Row is the flattened CSV rendering of one UnixSkEntry plus its name.
type Row struct {
	ID       uint32 `csv:"id"`
	Type     string `csv:"type"`
	State    string `csv:"state"`
	Name     string `csv:"name"`
	Abstract bool   `csv:"abstract"`
	Peer     uint32 `csv:"peer"`
	Backlog  uint32 `csv:"backlog"`
	Flags    uint32 `csv:"flags"`
	External bool   `csv:"external"`
	OwnerPID uint32 `csv:"owner_pid"`
	OwnerUID uint32 `csv:"owner_uid"`
}

func typeName(t uint32) string {
	switch t {
	case unixdiag.SockStream:
		return "stream"
	case unixdiag.SockDgram:
		return "dgram"
	default:
		return "unknown"
	}
}

func toRow(e *image.UnixSkEntry, name []byte) Row {
	abstract := len(name) > 0 && name[0] == 0
	display := string(name)
	if abstract {
		// An abstract name's leading NUL renders as "@", the ss(8)
		// convention.
		display = "@" + string(name[1:])
	}
	return Row{
		ID:       e.ID,
		Type:     typeName(e.Type),
		State:    unixdiag.SockState(e.State).String(),
		Name:     display,
		Abstract: abstract,
		Peer:     e.Peer,
		Backlog:  e.Backlog,
		Flags:    e.Flags,
		External: e.Uflags&image.UFlagExtern != 0,
		OwnerPID: e.Fown.PID,
		OwnerUID: e.Fown.UID,
	}
}

// readRows decodes every socket record in the image into CSV rows.
func readRows(r *image.Reader) ([]Row, error) {
	var rows []Row
	for {
		e, name, err := r.ReadSocket()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, toRow(e, name))
	}
}

func main() {
	args := os.Args[1:]
	if len(args) != 1 {
		logFatal("Usage: sockimgcsv <sockets.img>")
	}
	fn := args[0]

	r, err := image.Open(fn, image.Options{Compress: strings.HasSuffix(fn, ".zst")})
	rtx.Must(err, "Could not open image %q", fn)
	defer r.Close()

	rows, err := readRows(r)
	rtx.Must(err, "Could not read image %q", fn)
	rtx.Must(gocsv.Marshal(&rows, os.Stdout), "Could not convert input to CSV")
}
