package ui

import (
	"net/netip"
	"sort"

	"github.com/nozo-moto/netbw/pkg/types"
)

const unknownProcess = "<UNKNOWN>"

type NetworkData struct {
	BytesUploaded   uint64
	BytesDownloaded uint64
	ConnectionCount int
}

func (d NetworkData) total() uint64 {
	return d.BytesUploaded + d.BytesDownloaded
}

type ConnectionData struct {
	BytesUploaded   uint64
	BytesDownloaded uint64
	ProcessName     string
	InterfaceName   string
}

func (d ConnectionData) total() uint64 {
	return d.BytesUploaded + d.BytesDownloaded
}

// State is what the tables show. In interval mode each update replaces the
// previous data, in cumulative mode it adds to it.
type State struct {
	cumulative bool

	connections map[types.Connection]*ConnectionData
	processes   map[string]*NetworkData
	remotes     map[netip.Addr]*NetworkData
	ipToHost    types.IpTable

	TotalBytesUploaded   uint64
	TotalBytesDownloaded uint64
}

func NewState(cumulative bool) *State {
	return &State{
		cumulative:  cumulative,
		connections: make(map[types.Connection]*ConnectionData),
		processes:   make(map[string]*NetworkData),
		remotes:     make(map[netip.Addr]*NetworkData),
		ipToHost:    types.IpTable{},
	}
}

func (s *State) Update(socketsToProcs map[types.LocalSocket]string, utilization types.Utilization, ipToHost types.IpTable) {
	if !s.cumulative {
		s.connections = make(map[types.Connection]*ConnectionData, len(utilization))
	}
	if ipToHost != nil {
		s.ipToHost = ipToHost
	}

	for conn, info := range utilization {
		data, ok := s.connections[conn]
		if !ok {
			data = &ConnectionData{ProcessName: unknownProcess}
			s.connections[conn] = data
		}
		if name := processFor(socketsToProcs, conn.Local); name != unknownProcess {
			data.ProcessName = name
		}
		data.InterfaceName = info.InterfaceName
		data.BytesUploaded += info.BytesUploaded
		data.BytesDownloaded += info.BytesDownloaded
	}

	s.aggregate()
}

func (s *State) aggregate() {
	s.processes = make(map[string]*NetworkData)
	s.remotes = make(map[netip.Addr]*NetworkData)
	s.TotalBytesUploaded, s.TotalBytesDownloaded = 0, 0

	for conn, data := range s.connections {
		proc, ok := s.processes[data.ProcessName]
		if !ok {
			proc = &NetworkData{}
			s.processes[data.ProcessName] = proc
		}
		proc.add(data)

		remote, ok := s.remotes[conn.Remote.IP]
		if !ok {
			remote = &NetworkData{}
			s.remotes[conn.Remote.IP] = remote
		}
		remote.add(data)

		s.TotalBytesUploaded += data.BytesUploaded
		s.TotalBytesDownloaded += data.BytesDownloaded
	}
}

func (d *NetworkData) add(c *ConnectionData) {
	d.BytesUploaded += c.BytesUploaded
	d.BytesDownloaded += c.BytesDownloaded
	d.ConnectionCount++
}

// processFor finds the owner of a local socket. Listening sockets bound to
// an unspecified address own every connection on their port.
func processFor(socketsToProcs map[types.LocalSocket]string, local types.LocalSocket) string {
	if name, ok := socketsToProcs[local]; ok {
		return name
	}
	for _, unspecified := range []netip.Addr{netip.IPv4Unspecified(), netip.IPv6Unspecified()} {
		wildcard := types.LocalSocket{IP: unspecified, Port: local.Port, Protocol: local.Protocol}
		if name, ok := socketsToProcs[wildcard]; ok {
			return name
		}
	}
	return unknownProcess
}

// Host returns the resolved name of ip, or the address itself.
func (s *State) Host(ip netip.Addr) string {
	if name, ok := s.ipToHost[ip]; ok && name != "" {
		return name
	}
	return ip.String()
}

type ProcessRow struct {
	Name string
	NetworkData
}

type RemoteRow struct {
	Addr netip.Addr
	Host string
	NetworkData
}

type ConnectionRow struct {
	Connection types.Connection
	ConnectionData
}

func (s *State) ProcessRows() []ProcessRow {
	rows := make([]ProcessRow, 0, len(s.processes))
	for name, data := range s.processes {
		rows = append(rows, ProcessRow{Name: name, NetworkData: *data})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].total() != rows[j].total() {
			return rows[i].total() > rows[j].total()
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

func (s *State) RemoteRows() []RemoteRow {
	rows := make([]RemoteRow, 0, len(s.remotes))
	for addr, data := range s.remotes {
		rows = append(rows, RemoteRow{Addr: addr, Host: s.Host(addr), NetworkData: *data})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].total() != rows[j].total() {
			return rows[i].total() > rows[j].total()
		}
		return rows[i].Addr.Less(rows[j].Addr)
	})
	return rows
}

func (s *State) ConnectionRows() []ConnectionRow {
	rows := make([]ConnectionRow, 0, len(s.connections))
	for conn, data := range s.connections {
		rows = append(rows, ConnectionRow{Connection: conn, ConnectionData: *data})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].total() != rows[j].total() {
			return rows[i].total() > rows[j].total()
		}
		return rows[i].Connection.String() < rows[j].Connection.String()
	})
	return rows
}
