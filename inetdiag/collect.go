package inetdiag

import (
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sockmigrate/sockets/metrics"
	"github.com/sockmigrate/sockets/netlink"
	"github.com/sockmigrate/sockets/unixdiag"
)

// Collect is the shared INET collector: every (family, protocol)
// dispatcher below is a one-line call into this. It registers one
// InetSkDesc per reply message in table, tagged with the
// family/type/protocol the dispatcher was called for.
func Collect(header *InetDiagMsg, family uint8, sockType int, protocol uint8, table *unixdiag.Table) {
	state := unixdiag.SockState(header.IDiagState)
	table.Insert(unixdiag.NewInetSkDesc(header.IDiagInode, family, sockType, protocol, state))
	metrics.SocketsCollected.With(prometheus.Labels{"family": familyLabel(family)}).Inc()
}

func familyLabel(family uint8) string {
	if family == AFInet6 {
		return "inet6"
	}
	return "inet4"
}

const (
	sockStream = 1
	sockDgram  = 2
)

func receiveOne(family uint8, sockType int, protocol uint8, table *unixdiag.Table) netlink.Decoder {
	return func(msg *syscall.NetlinkMessage) (bool, error) {
		hdr, _ := ParseInetDiagMsg(msg.Data)
		if hdr == nil {
			return false, nil
		}
		Collect(hdr, family, sockType, protocol, table)
		return false, nil
	}
}

// dump issues one dump request for (family, protocol, states).
func dump(family, protocol uint8, states uint32, sockType int, table *unixdiag.Table) error {
	start := time.Now()
	req := NewInetDiagReqV2(family, protocol, states)
	err := netlink.Dump(req, receiveOne(family, sockType, protocol, table))
	metrics.SyscallTimeHistogram.With(prometheus.Labels{"af": familyLabel(family)}).Observe(time.Since(start).Seconds())
	return err
}

// listenStates admits only TCP_LISTEN, per the non-goal excluding
// established non-listening TCP/UDP reconstruction.
const listenStates = 1 << TCPListen

// CollectTCP4 dumps listening IPv4 TCP sockets.
func CollectTCP4(table *unixdiag.Table) error {
	return dump(AFInet, IPPROTOTCP, listenStates, sockStream, table)
}

// CollectTCP6 dumps listening IPv6 TCP sockets.
func CollectTCP6(table *unixdiag.Table) error {
	return dump(AFInet6, IPPROTOTCP, listenStates, sockStream, table)
}

// CollectUDP4 dumps IPv4 UDP sockets. These populate the table for peer
// resolution but the per-fd dumper never emits an image record for them.
func CollectUDP4(table *unixdiag.Table) error {
	return dump(AFInet, IPPROTOUDP, 0xffffffff, sockDgram, table)
}

// CollectUDP4Lite dumps IPv4 UDP-lite sockets (see CollectUDP4).
func CollectUDP4Lite(table *unixdiag.Table) error {
	return dump(AFInet, IPPROTOUDPLite, 0xffffffff, sockDgram, table)
}

// CollectUDP6 dumps IPv6 UDP sockets (see CollectUDP4).
func CollectUDP6(table *unixdiag.Table) error {
	return dump(AFInet6, IPPROTOUDP, 0xffffffff, sockDgram, table)
}

// CollectUDP6Lite dumps IPv6 UDP-lite sockets (see CollectUDP4).
func CollectUDP6Lite(table *unixdiag.Table) error {
	return dump(AFInet6, IPPROTOUDPLite, 0xffffffff, sockDgram, table)
}

// CollectAll runs every INET collector, logging but not aborting on a
// per-family failure: a single family failing to enumerate shouldn't
// prevent collecting the rest of the socket graph.
func CollectAll(table *unixdiag.Table) []error {
	var errs []error
	for _, c := range []func(*unixdiag.Table) error{
		CollectTCP4, CollectTCP6,
		CollectUDP4, CollectUDP4Lite,
		CollectUDP6, CollectUDP6Lite,
	} {
		if err := c(table); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
