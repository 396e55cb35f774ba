package collector

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/nozo-moto/netbw/pkg/types"
)

const (
	snapshotLen = 65535
	readTimeout = 100 * time.Millisecond
	bpfFilter   = "tcp or udp"
	dnsPort     = 53
)

// Sniffer reads frames from one interface and classifies them into traffic
// segments. It is used by a single capture goroutine.
type Sniffer struct {
	iface   types.Interface
	source  gopacket.PacketDataSource
	close   func()
	showDNS bool

	eth     layers.Ethernet
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload

	// raw IP links carry no link header, so the first layer depends on the
	// IP version of each packet.
	raw     bool
	parser  *gopacket.DecodingLayerParser
	parser6 *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// OpenLive starts a pcap capture on iface.
func OpenLive(iface types.Interface, showDNS bool) (*Sniffer, error) {
	handle, err := pcap.OpenLive(iface.Name, snapshotLen, false, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for capture: %w", iface.Name, err)
	}
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set capture filter on %s: %w", iface.Name, err)
	}

	s, err := NewSniffer(iface, handle, handle.LinkType(), showDNS)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return s, nil
}

// NewSniffer classifies frames of the given link type read from source. If
// source has a Close method it is called by Close.
func NewSniffer(iface types.Interface, source gopacket.PacketDataSource, linkType layers.LinkType, showDNS bool) (*Sniffer, error) {
	s := &Sniffer{
		iface:   iface,
		source:  source,
		close:   func() {},
		showDNS: showDNS,
	}
	if c, ok := source.(interface{ Close() }); ok {
		s.close = c.Close
	}

	decoders := []gopacket.DecodingLayer{&s.eth, &s.ip4, &s.ip6, &s.tcp, &s.udp, &s.payload}
	switch linkType {
	case layers.LinkTypeEthernet:
		s.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, decoders...)
	case layers.LinkTypeRaw:
		s.raw = true
		s.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, decoders...)
		s.parser6 = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv6, decoders...)
		s.parser6.IgnoreUnsupported = true
	default:
		return nil, fmt.Errorf("unsupported link type %s on %s", linkType, iface.Name)
	}
	s.parser.IgnoreUnsupported = true

	return s, nil
}

func (s *Sniffer) Name() string {
	return s.iface.Name
}

// Next blocks for the next frame. Frames that carry no TCP or UDP traffic,
// and pcap read timeouts, yield a nil segment.
func (s *Sniffer) Next() (*types.Segment, error) {
	data, _, err := s.source.ReadPacketData()
	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, nil
		}
		return nil, err
	}
	return s.classify(data), nil
}

func (s *Sniffer) Close() {
	s.close()
}

func (s *Sniffer) classify(data []byte) *types.Segment {
	parser := s.parser
	if s.raw && len(data) > 0 && data[0]>>4 == 6 {
		parser = s.parser6
	}
	if err := parser.DecodeLayers(data, &s.decoded); err != nil {
		return nil
	}

	var (
		src, dst         net.IP
		size             uint64
		srcPort, dstPort uint16
		protocol         types.Protocol
	)
	for _, typ := range s.decoded {
		switch typ {
		case layers.LayerTypeIPv4:
			src, dst = s.ip4.SrcIP, s.ip4.DstIP
			size = uint64(s.ip4.Length)
		case layers.LayerTypeIPv6:
			src, dst = s.ip6.SrcIP, s.ip6.DstIP
			size = uint64(s.ip6.Length) + 40
		case layers.LayerTypeTCP:
			srcPort, dstPort = uint16(s.tcp.SrcPort), uint16(s.tcp.DstPort)
			protocol = types.ProtocolTCP
		case layers.LayerTypeUDP:
			srcPort, dstPort = uint16(s.udp.SrcPort), uint16(s.udp.DstPort)
			protocol = types.ProtocolUDP
		}
	}
	if src == nil || protocol == 0 {
		return nil
	}
	if !s.showDNS && (srcPort == dnsPort || dstPort == dnsPort) {
		return nil
	}

	srcIP, ok := netip.AddrFromSlice(src)
	if !ok {
		return nil
	}
	dstIP, ok := netip.AddrFromSlice(dst)
	if !ok {
		return nil
	}
	srcIP, dstIP = srcIP.Unmap(), dstIP.Unmap()

	seg := &types.Segment{InterfaceName: s.iface.Name, Size: size}
	if s.iface.HasIP(srcIP) {
		seg.Direction = types.Upload
		seg.Connection = types.Connection{
			Local:  types.LocalSocket{IP: srcIP, Port: srcPort, Protocol: protocol},
			Remote: types.Socket{IP: dstIP, Port: dstPort},
		}
	} else {
		seg.Direction = types.Download
		seg.Connection = types.Connection{
			Local:  types.LocalSocket{IP: dstIP, Port: dstPort, Protocol: protocol},
			Remote: types.Socket{IP: srcIP, Port: srcPort},
		}
	}
	return seg
}
