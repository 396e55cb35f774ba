package types

import (
	"fmt"
	"net/netip"
)

type Protocol uint8

const (
	ProtocolTCP Protocol = iota + 1
	ProtocolUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return "unknown"
	}
}

type LocalSocket struct {
	IP       netip.Addr
	Port     uint16
	Protocol Protocol
}

func (s LocalSocket) String() string {
	return fmt.Sprintf("%s (%s)", netip.AddrPortFrom(s.IP, s.Port), s.Protocol)
}

type Socket struct {
	IP   netip.Addr
	Port uint16
}

func (s Socket) String() string {
	return netip.AddrPortFrom(s.IP, s.Port).String()
}

// Connection identifies a flow. It is comparable and used as the
// aggregation key for traffic totals.
type Connection struct {
	Local  LocalSocket
	Remote Socket
}

func (c Connection) String() string {
	return fmt.Sprintf("%s => %s (%s)", netip.AddrPortFrom(c.Local.IP, c.Local.Port), c.Remote, c.Local.Protocol)
}

type Direction uint8

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Segment is one classified traffic event read from an interface.
type Segment struct {
	InterfaceName string
	Connection    Connection
	Direction     Direction
	Size          uint64
}

type ConnectionInfo struct {
	InterfaceName   string
	BytesUploaded   uint64
	BytesDownloaded uint64
}

// Utilization holds per-connection totals accumulated since the last snapshot.
type Utilization map[Connection]ConnectionInfo

// OpenSockets is a point-in-time view of the sockets on the host.
type OpenSockets struct {
	SocketsToProcs map[LocalSocket]string
	Connections    []Connection
}

// IpTable maps remote addresses to resolved host names.
type IpTable map[netip.Addr]string

type Interface struct {
	Name string
	IPs  []netip.Addr
}

func (i Interface) HasIP(ip netip.Addr) bool {
	for _, own := range i.IPs {
		if own == ip {
			return true
		}
	}
	return false
}
