package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/miekg/dns"
	"golang.org/x/net/idna"

	"github.com/nozo-moto/netbw/pkg/types"
)

const (
	resolvConf    = "/etc/resolv.conf"
	lookupTimeout = 2 * time.Second
	lookupWorkers = 4
	lookupQueue   = 256
)

var errNoPTR = errors.New("no PTR record")

type lookupFunc func(ctx context.Context, ip netip.Addr) (string, error)

// DNSClient resolves remote addresses to host names in the background.
// Resolve only queues work; names show up in Cache once a lookup finishes.
type DNSClient struct {
	logger *log.Logger
	lookup lookupFunc

	mu      sync.RWMutex
	cache   types.IpTable
	pending map[netip.Addr]struct{}

	queue  chan netip.Addr
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDNSClient sends PTR queries to the nameservers of the system resolver
// configuration.
func NewDNSClient(logger *log.Logger) (*DNSClient, error) {
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, fmt.Errorf("failed to read resolver config: %w", err)
	}
	if len(conf.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers in %s", resolvConf)
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, server := range conf.Servers {
		servers = append(servers, net.JoinHostPort(server, conf.Port))
	}
	return newDNSClient(logger, ptrLookup(&dns.Client{Net: "udp"}, servers), lookupWorkers), nil
}

func newDNSClient(logger *log.Logger, lookup lookupFunc, workers int) *DNSClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &DNSClient{
		logger:  logger,
		lookup:  lookup,
		cache:   make(types.IpTable),
		pending: make(map[netip.Addr]struct{}),
		queue:   make(chan netip.Addr, lookupQueue),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.worker()
		}()
	}
	return c
}

// Cache returns a copy of every name resolved so far.
func (c *DNSClient) Cache() types.IpTable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table := make(types.IpTable, len(c.cache))
	for ip, name := range c.cache {
		table[ip] = name
	}
	return table
}

// Resolve queues lookups for ips that are neither cached nor in flight. When
// the queue is full the rest are dropped; callers submit them again later.
func (c *DNSClient) Resolve(ips []netip.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ip := range ips {
		if _, ok := c.cache[ip]; ok {
			continue
		}
		if _, ok := c.pending[ip]; ok {
			continue
		}
		select {
		case c.queue <- ip:
			c.pending[ip] = struct{}{}
		default:
			c.logger.Debug("dns queue full, dropping lookups", "dropped", len(ips)-i)
			return
		}
	}
}

func (c *DNSClient) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *DNSClient) worker() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ip := <-c.queue:
			c.resolveOne(ip)
		}
	}
}

func (c *DNSClient) resolveOne(ip netip.Addr) {
	ctx, cancel := context.WithTimeout(c.ctx, lookupTimeout)
	defer cancel()

	name, err := c.lookup(ctx, ip)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, ip)
	if err != nil {
		// Forgotten, so the next cycle asks again.
		c.logger.Debug("reverse lookup failed", "ip", ip, "err", err)
		return
	}
	c.cache[ip] = displayName(name)
}

func ptrLookup(client *dns.Client, servers []string) lookupFunc {
	return func(ctx context.Context, ip netip.Addr) (string, error) {
		arpa, err := dns.ReverseAddr(ip.String())
		if err != nil {
			return "", fmt.Errorf("failed to build reverse name: %w", err)
		}

		msg := new(dns.Msg)
		msg.SetQuestion(arpa, dns.TypePTR)

		var lastErr error
		for _, server := range servers {
			resp, _, err := client.ExchangeContext(ctx, msg, server)
			if err != nil {
				lastErr = err
				continue
			}
			if resp.Rcode != dns.RcodeSuccess {
				lastErr = fmt.Errorf("%s answered %s", server, dns.RcodeToString[resp.Rcode])
				continue
			}
			for _, rr := range resp.Answer {
				if ptr, ok := rr.(*dns.PTR); ok {
					return ptr.Ptr, nil
				}
			}
			return "", errNoPTR
		}
		return "", lastErr
	}
}

// displayName strips the root label and decodes punycode labels.
func displayName(name string) string {
	name = strings.TrimSuffix(name, ".")
	if unicode, err := idna.Display.ToUnicode(name); err == nil {
		return unicode
	}
	return name
}
