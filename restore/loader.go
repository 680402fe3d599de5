package restore

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/sockmigrate/sockets/image"
	"github.com/sockmigrate/sockets/sockevents"
	"github.com/sockmigrate/sockets/unixdiag"
)

// UnixPathMax mirrors unixdiag.UnixPathMax, repeated here so callers of
// this package don't need to import unixdiag just to validate a namelen.
const UnixPathMax = unixdiag.UnixPathMax

// Load streams every UnixSkEntry from r, registering a UnixSkInfo for each
// into reg. Unlinks any stale filesystem path that would block a later
// bind, for non-abstract, non-external names.
func Load(r *image.Reader, reg *Registry) error {
	for {
		entry, name, err := r.ReadSocket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if int(entry.Namelen) >= UnixPathMax {
			return ErrBadNamelen
		}

		ui := &UnixSkInfo{Entry: *entry, Name: name}

		if isBoundPath(name) && entry.Uflags&image.UFlagExtern == 0 {
			unix.Unlink(string(name))
		}

		reg.Register(ui)
		reg.emit(sockevents.Loaded, entry.ID, entry.Peer, string(name))
	}
}

// isBoundPath reports whether name looks like an absolute filesystem path
// rather than an abstract name (leading NUL) or no name at all.
func isBoundPath(name []byte) bool {
	return len(name) > 0 && name[0] != 0
}
