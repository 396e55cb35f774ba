package monitor

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nozo-moto/netbw/internal/config"
	"github.com/nozo-moto/netbw/internal/logging"
	"github.com/nozo-moto/netbw/pkg/types"
)

// FrameSource yields classified traffic from one interface. Next blocks until
// a frame is read. A nil segment with a nil error means the frame carried
// nothing to account; io.EOF means the source is exhausted.
type FrameSource interface {
	Name() string
	Next() (*types.Segment, error)
}

type SocketLister interface {
	OpenSockets() types.OpenSockets
}

// Resolver augments remote addresses with host names. Resolve must not block.
type Resolver interface {
	Cache() types.IpTable
	Resolve(ips []netip.Addr)
}

// Platform holds the OS hooks of the running terminal.
type Platform interface {
	// OnResize calls redraw on every terminal resize and returns once
	// no more notifications will be delivered.
	OnResize(redraw func())
	Cleanup()
	WriteLine(line string)
}

type Display interface {
	UpdateState(socketsToProcs map[types.LocalSocket]string, utilization types.Utilization, ipToHost types.IpTable)
	Draw(paused, showDNS bool, elapsed time.Duration, offset int)
	OutputText(write func(string))
	TableCount() int
	End()
}

type Input struct {
	Sources []FrameSource
	Sockets SocketLister
	Keys    <-chan *tcell.EventKey
	// Resolver is nil when name resolution is disabled.
	Resolver Resolver
	Platform Platform
}

type Options struct {
	Raw     bool
	ShowDNS bool
	Cadence time.Duration
}

// Monitor ties capture, accounting, display and keyboard handling together.
// It lives for the whole session and is shared by every goroutine it starts.
type Monitor struct {
	input  Input
	opts   Options
	logger *log.Logger

	aggregator *Aggregator
	stopwatch  *Stopwatch

	uiMu    sync.Mutex
	display Display

	running     atomic.Bool
	offset      atomic.Int64
	wake        chan struct{}
	stopped     chan struct{}
	cleanupOnce sync.Once
}

func New(input Input, opts Options, display Display, logger *log.Logger) *Monitor {
	if opts.Cadence <= 0 {
		opts.Cadence = config.DisplayDelta
	}
	if logger == nil {
		logger = logging.Discard()
	}
	m := &Monitor{
		input:      input,
		opts:       opts,
		logger:     logger,
		aggregator: NewAggregator(),
		stopwatch:  NewStopwatch(nil),
		display:    display,
		wake:       make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
	m.running.Store(true)
	return m
}

// Run starts every loop and blocks until all of them have returned.
func (m *Monitor) Run() error {
	var g errgroup.Group

	if !m.opts.Raw {
		g.Go(func() error {
			m.input.Platform.OnResize(m.redraw)
			return nil
		})
	}
	g.Go(func() error {
		m.displayLoop()
		return nil
	})
	g.Go(func() error {
		m.inputLoop()
		return nil
	})
	for _, src := range m.input.Sources {
		src := src
		g.Go(func() error {
			m.capture(src)
			return nil
		})
	}

	return g.Wait()
}

func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) Offset() int {
	return int(m.offset.Load())
}

// Wake cuts the current display sleep short. Extra calls while a wake-up is
// already pending are coalesced.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-m.wake:
	}
}

func (m *Monitor) shutdown() {
	m.running.Store(false)
	m.cleanupOnce.Do(func() {
		close(m.stopped)
		m.input.Platform.Cleanup()
	})
	m.Wake()
}

// redraw repaints the current state without touching traffic data.
func (m *Monitor) redraw() {
	m.uiMu.Lock()
	defer m.uiMu.Unlock()
	m.drawLocked(m.Offset())
}

func (m *Monitor) drawLocked(offset int) {
	elapsed, paused := m.stopwatch.Read()
	m.display.Draw(paused, m.opts.ShowDNS, elapsed, offset)
}
