package monitor

import (
	"net/netip"
	"time"

	"github.com/nozo-moto/netbw/pkg/types"
)

func (m *Monitor) displayLoop() {
	for m.running.Load() {
		start := time.Now()

		utilization := m.aggregator.SnapshotAndReset()
		sockets := m.input.Sockets.OpenSockets()

		ipToHost := types.IpTable{}
		if m.input.Resolver != nil {
			// Read the cache before submitting, so names resolved during this
			// cycle show up on the next one.
			ipToHost = m.input.Resolver.Cache()
			m.input.Resolver.Resolve(unresolvedIPs(sockets.Connections, ipToHost))
		}

		m.render(sockets, utilization, ipToHost)

		if took := time.Since(start); took < m.opts.Cadence {
			m.sleep(m.opts.Cadence - took)
		}
	}

	if !m.opts.Raw {
		m.uiMu.Lock()
		m.display.End()
		m.uiMu.Unlock()
	}
}

func (m *Monitor) render(sockets types.OpenSockets, utilization types.Utilization, ipToHost types.IpTable) {
	m.uiMu.Lock()
	defer m.uiMu.Unlock()

	elapsed, paused := m.stopwatch.Read()
	if !paused {
		m.display.UpdateState(sockets.SocketsToProcs, utilization, ipToHost)
	}

	if m.opts.Raw {
		m.display.OutputText(m.input.Platform.WriteLine)
		return
	}
	m.display.Draw(paused, m.opts.ShowDNS, elapsed, m.Offset())
}

// unresolvedIPs lists each remote address missing from the table once, in
// connection order.
func unresolvedIPs(conns []types.Connection, ipToHost types.IpTable) []netip.Addr {
	seen := make(map[netip.Addr]struct{})
	var ips []netip.Addr
	for _, conn := range conns {
		ip := conn.Remote.IP
		if _, ok := ipToHost[ip]; ok {
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}
	return ips
}
