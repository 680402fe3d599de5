package unixdiag

import (
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/netlink"
)

// Collect issues one SOCK_DIAG_BY_FAMILY/AF_UNIX dump and decodes every
// reply into table and icons.
func Collect(table *Table, icons *IconIndex) error {
	start := time.Now()
	req := NewUnixDiagReq()
	before := table.Len()
	err := netlink.Dump(req, func(msg *syscall.NetlinkMessage) (bool, error) {
		if err := Decode(msg, table, icons); err != nil {
			return false, err
		}
		return false, nil
	})
	metrics.SyscallTimeHistogram.With(prometheus.Labels{"af": "unix"}).Observe(time.Since(start).Seconds())
	metrics.SocketsCollected.With(prometheus.Labels{"family": "unix"}).Add(float64(table.Len() - before))
	metrics.IconIndexSize.Observe(float64(icons.Len()))
	return err
}
