package collector

import (
	"net/netip"
	"syscall"

	"github.com/charmbracelet/log"
	ps "github.com/mitchellh/go-ps"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/nozo-moto/netbw/pkg/types"
)

// ProcessCollector maps open sockets to the processes owning them. Listing is
// best effort: whatever the OS refuses to tell is left out.
type ProcessCollector struct {
	logger *log.Logger

	connections func() ([]psnet.ConnectionStat, error)
	processes   func() ([]ps.Process, error)
	processName func(pid int32) (string, error)
}

func NewProcessCollector(logger *log.Logger) *ProcessCollector {
	return &ProcessCollector{
		logger: logger,
		connections: func() ([]psnet.ConnectionStat, error) {
			return psnet.ConnectionsPid("inet", 0)
		},
		processes: ps.Processes,
		processName: func(pid int32) (string, error) {
			proc, err := process.NewProcess(pid)
			if err != nil {
				return "", err
			}
			return proc.Name()
		},
	}
}

func (pc *ProcessCollector) OpenSockets() types.OpenSockets {
	open := types.OpenSockets{SocketsToProcs: make(map[types.LocalSocket]string)}

	conns, err := pc.connections()
	if err != nil {
		pc.logger.Warn("failed to get connections", "err", err)
		return open
	}

	names := pc.processNames()
	for _, conn := range conns {
		protocol, ok := socketProtocol(conn.Type)
		if !ok {
			continue
		}
		localIP, err := netip.ParseAddr(conn.Laddr.IP)
		if err != nil {
			continue
		}
		local := types.LocalSocket{IP: localIP.Unmap(), Port: uint16(conn.Laddr.Port), Protocol: protocol}

		if name := pc.nameOf(names, conn.Pid); name != "" {
			open.SocketsToProcs[local] = name
		}

		if conn.Raddr.IP == "" || conn.Raddr.Port == 0 {
			continue
		}
		remoteIP, err := netip.ParseAddr(conn.Raddr.IP)
		if err != nil {
			continue
		}
		open.Connections = append(open.Connections, types.Connection{
			Local:  local,
			Remote: types.Socket{IP: remoteIP.Unmap(), Port: uint16(conn.Raddr.Port)},
		})
	}

	return open
}

// processNames takes one process table listing per cycle. Sockets whose
// owner is missing from it fall back to a per-pid lookup.
func (pc *ProcessCollector) processNames() map[int32]string {
	procs, err := pc.processes()
	if err != nil {
		pc.logger.Debug("failed to list processes", "err", err)
		return map[int32]string{}
	}

	names := make(map[int32]string, len(procs))
	for _, p := range procs {
		names[int32(p.Pid())] = p.Executable()
	}
	return names
}

func (pc *ProcessCollector) nameOf(names map[int32]string, pid int32) string {
	if pid <= 0 {
		return ""
	}
	if name, ok := names[pid]; ok && name != "" {
		return name
	}

	name, err := pc.processName(pid)
	if err != nil {
		pc.logger.Debug("failed to get process name", "pid", pid, "err", err)
		return ""
	}
	names[pid] = name
	return name
}

func socketProtocol(sockType uint32) (types.Protocol, bool) {
	switch sockType {
	case syscall.SOCK_STREAM:
		return types.ProtocolTCP, true
	case syscall.SOCK_DGRAM:
		return types.ProtocolUDP, true
	}
	return 0, false
}
