package collector

import (
	"errors"
	"net/netip"
	"syscall"
	"testing"

	ps "github.com/mitchellh/go-ps"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozo-moto/netbw/internal/logging"
	"github.com/nozo-moto/netbw/pkg/types"
)

type fakeProcess struct {
	pid  int
	name string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.name }

func newTestProcessCollector(conns []psnet.ConnectionStat, procs []ps.Process) *ProcessCollector {
	return &ProcessCollector{
		logger:      logging.Discard(),
		connections: func() ([]psnet.ConnectionStat, error) { return conns, nil },
		processes:   func() ([]ps.Process, error) { return procs, nil },
		processName: func(pid int32) (string, error) {
			if pid == 300 {
				return "sshd", nil
			}
			return "", errors.New("no such process")
		},
	}
}

func TestProcessCollector_OpenSockets(t *testing.T) {
	conns := []psnet.ConnectionStat{
		{
			Type:  syscall.SOCK_STREAM,
			Laddr: psnet.Addr{IP: "192.168.1.10", Port: 50000},
			Raddr: psnet.Addr{IP: "93.184.216.34", Port: 443},
			Pid:   100,
		},
		{
			Type:  syscall.SOCK_DGRAM,
			Laddr: psnet.Addr{IP: "0.0.0.0", Port: 5353},
			Pid:   200,
		},
		{
			Type:  syscall.SOCK_STREAM,
			Laddr: psnet.Addr{IP: "::ffff:192.168.1.10", Port: 22},
			Raddr: psnet.Addr{IP: "::ffff:10.0.0.7", Port: 61000},
			Pid:   300,
		},
		{
			Type:  syscall.SOCK_STREAM,
			Laddr: psnet.Addr{IP: "192.168.1.10", Port: 40000},
			Raddr: psnet.Addr{IP: "1.1.1.1", Port: 443},
			Pid:   0,
		},
		{Type: syscall.SOCK_RAW, Laddr: psnet.Addr{IP: "0.0.0.0"}, Pid: 100},
	}
	procs := []ps.Process{fakeProcess{100, "curl"}, fakeProcess{200, "avahi-daemon"}}

	open := newTestProcessCollector(conns, procs).OpenSockets()

	curl := types.LocalSocket{IP: netip.MustParseAddr("192.168.1.10"), Port: 50000, Protocol: types.ProtocolTCP}
	mdns := types.LocalSocket{IP: netip.MustParseAddr("0.0.0.0"), Port: 5353, Protocol: types.ProtocolUDP}
	ssh := types.LocalSocket{IP: netip.MustParseAddr("192.168.1.10"), Port: 22, Protocol: types.ProtocolTCP}

	assert.Equal(t, map[types.LocalSocket]string{
		curl: "curl",
		mdns: "avahi-daemon",
		ssh:  "sshd",
	}, open.SocketsToProcs)

	require.Len(t, open.Connections, 3)
	assert.Equal(t, types.Socket{IP: netip.MustParseAddr("93.184.216.34"), Port: 443}, open.Connections[0].Remote)
	assert.Equal(t, types.Socket{IP: netip.MustParseAddr("10.0.0.7"), Port: 61000}, open.Connections[1].Remote)
	assert.Equal(t, ssh, open.Connections[1].Local)
	assert.Equal(t, uint16(40000), open.Connections[2].Local.Port)
}

func TestProcessCollector_BestEffort(t *testing.T) {
	t.Run("sockets unavailable", func(t *testing.T) {
		pc := newTestProcessCollector(nil, nil)
		pc.connections = func() ([]psnet.ConnectionStat, error) { return nil, errors.New("permission denied") }

		open := pc.OpenSockets()
		assert.Empty(t, open.SocketsToProcs)
		assert.Empty(t, open.Connections)
	})

	t.Run("process table unavailable", func(t *testing.T) {
		conns := []psnet.ConnectionStat{{
			Type:  syscall.SOCK_STREAM,
			Laddr: psnet.Addr{IP: "192.168.1.10", Port: 22},
			Raddr: psnet.Addr{IP: "10.0.0.7", Port: 61000},
			Pid:   300,
		}}
		pc := newTestProcessCollector(conns, nil)
		pc.processes = func() ([]ps.Process, error) { return nil, errors.New("boom") }

		open := pc.OpenSockets()
		assert.Len(t, open.Connections, 1)
		assert.Equal(t, "sshd", open.SocketsToProcs[open.Connections[0].Local])
	})
}
