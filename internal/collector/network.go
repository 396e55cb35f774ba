package collector

import (
	"fmt"
	"net/netip"
	"slices"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/nozo-moto/netbw/pkg/types"
)

type NetworkCollector struct {
	interfaces func() (psnet.InterfaceStatList, error)
}

func NewNetworkCollector() *NetworkCollector {
	return &NetworkCollector{
		interfaces: psnet.Interfaces,
	}
}

// GetActiveInterfaces lists the interfaces to capture on. With an empty name
// every non-loopback interface is returned; otherwise exactly the named one.
func (nc *NetworkCollector) GetActiveInterfaces(name string) ([]types.Interface, error) {
	stats, err := nc.interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var active []types.Interface
	for _, stat := range stats {
		if name != "" && stat.Name != name {
			continue
		}
		if name == "" && isLoopback(stat) {
			continue
		}
		active = append(active, types.Interface{
			Name: stat.Name,
			IPs:  interfaceIPs(stat.Addrs),
		})
	}

	if name != "" && len(active) == 0 {
		return nil, fmt.Errorf("cannot find interface %q", name)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no network interfaces to listen on")
	}
	return active, nil
}

func isLoopback(stat psnet.InterfaceStat) bool {
	return stat.Name == "lo" || stat.Name == "lo0" || slices.Contains(stat.Flags, "loopback")
}

// interfaceIPs parses gopsutil's "addr/prefix" strings, skipping anything
// malformed.
func interfaceIPs(addrs psnet.InterfaceAddrList) []netip.Addr {
	var ips []netip.Addr
	for _, a := range addrs {
		if prefix, err := netip.ParsePrefix(a.Addr); err == nil {
			ips = append(ips, prefix.Addr().Unmap())
			continue
		}
		if ip, err := netip.ParseAddr(a.Addr); err == nil {
			ips = append(ips, ip.Unmap())
		}
	}
	return ips
}
