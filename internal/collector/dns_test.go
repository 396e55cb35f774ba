package collector

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozo-moto/netbw/internal/logging"
)

type scriptedLookup struct {
	mu      sync.Mutex
	names   map[netip.Addr]string
	calls   map[netip.Addr]int
	release chan struct{}
}

func newScriptedLookup() *scriptedLookup {
	return &scriptedLookup{names: map[netip.Addr]string{}, calls: map[netip.Addr]int{}}
}

func (l *scriptedLookup) lookup(ctx context.Context, ip netip.Addr) (string, error) {
	l.mu.Lock()
	l.calls[ip]++
	release := l.release
	l.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.names[ip]
	if !ok {
		return "", errNoPTR
	}
	return name, nil
}

func (l *scriptedLookup) callsFor(ip netip.Addr) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[ip]
}

func TestDNSClient_ResolvesInBackground(t *testing.T) {
	ip := netip.MustParseAddr("93.184.216.34")
	lookup := newScriptedLookup()
	lookup.names[ip] = "example.com."

	c := newDNSClient(logging.Discard(), lookup.lookup, 2)
	defer c.Close()

	assert.Empty(t, c.Cache())
	c.Resolve([]netip.Addr{ip})

	require.Eventually(t, func() bool {
		return c.Cache()[ip] == "example.com"
	}, time.Second, 5*time.Millisecond)

	// Cached names are never looked up again.
	c.Resolve([]netip.Addr{ip})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, lookup.callsFor(ip))
}

func TestDNSClient_InFlightNotDuplicated(t *testing.T) {
	ip := netip.MustParseAddr("10.1.1.1")
	lookup := newScriptedLookup()
	lookup.names[ip] = "host.lan."
	lookup.release = make(chan struct{})

	c := newDNSClient(logging.Discard(), lookup.lookup, 4)
	defer c.Close()

	c.Resolve([]netip.Addr{ip})
	c.Resolve([]netip.Addr{ip})
	c.Resolve([]netip.Addr{ip})
	close(lookup.release)

	require.Eventually(t, func() bool {
		return c.Cache()[ip] == "host.lan"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, lookup.callsFor(ip))
}

func TestDNSClient_FailedLookupIsRetried(t *testing.T) {
	ip := netip.MustParseAddr("10.2.2.2")
	lookup := newScriptedLookup()

	c := newDNSClient(logging.Discard(), lookup.lookup, 1)
	defer c.Close()

	c.Resolve([]netip.Addr{ip})
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, pending := c.pending[ip]
		return lookup.callsFor(ip) == 1 && !pending
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, c.Cache(), ip)

	c.Resolve([]netip.Addr{ip})
	require.Eventually(t, func() bool {
		return lookup.callsFor(ip) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDNSClient_ResolveNeverBlocks(t *testing.T) {
	lookup := newScriptedLookup()
	lookup.release = make(chan struct{})
	c := newDNSClient(logging.Discard(), lookup.lookup, 1)
	defer c.Close()

	ips := make([]netip.Addr, 0, lookupQueue*2)
	for i := 0; i < lookupQueue*2; i++ {
		ips = append(ips, netip.AddrFrom4([4]byte{10, 3, byte(i >> 8), byte(i)}))
	}

	done := make(chan struct{})
	go func() {
		c.Resolve(ips)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resolve blocked on a full queue")
	}
}

func TestDNSClient_LogsOnlyDroppedLookups(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)

	// Without workers nothing drains the queue.
	c := newDNSClient(logger, newScriptedLookup().lookup, 0)
	defer c.Close()

	ips := make([]netip.Addr, 0, lookupQueue+10)
	for i := 0; i < lookupQueue+10; i++ {
		ips = append(ips, netip.AddrFrom4([4]byte{10, 5, byte(i >> 8), byte(i)}))
	}
	c.Resolve(ips)

	assert.Len(t, c.pending, lookupQueue)
	assert.Contains(t, buf.String(), "dropped=10")
}

func TestDNSClient_CloseStopsWorkers(t *testing.T) {
	lookup := newScriptedLookup()
	lookup.release = make(chan struct{})
	c := newDNSClient(logging.Discard(), lookup.lookup, 2)
	c.Resolve([]netip.Addr{netip.MustParseAddr("10.4.4.4")})

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com.", "example.com"},
		{"example.com", "example.com"},
		{"xn--bcher-kva.example.", "bücher.example"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, displayName(tt.in))
		})
	}
}

func startPTRServer(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			if name, ok := records[q.Name]; ok && q.Qtype == dns.TypePTR {
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
					Ptr: name,
				})
			} else {
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestPTRLookup(t *testing.T) {
	addr := startPTRServer(t, map[string]string{
		"34.216.184.93.in-addr.arpa.": "example.com.",
	})
	lookup := ptrLookup(&dns.Client{Net: "udp", Timeout: time.Second}, []string{addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	name, err := lookup(ctx, netip.MustParseAddr("93.184.216.34"))
	require.NoError(t, err)
	assert.Equal(t, "example.com.", name)

	_, err = lookup(ctx, netip.MustParseAddr("10.9.9.9"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errNoPTR))
	assert.Contains(t, err.Error(), "NXDOMAIN")
}
