package monitor

import (
	"sync"

	"github.com/nozo-moto/netbw/pkg/types"
)

// Aggregator accumulates per-connection byte counters fed by the capture
// workers until the display loop takes a snapshot.
type Aggregator struct {
	mu          sync.Mutex
	connections types.Utilization
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		connections: make(types.Utilization),
	}
}

func (a *Aggregator) Update(seg types.Segment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info := a.connections[seg.Connection]
	info.InterfaceName = seg.InterfaceName
	switch seg.Direction {
	case types.Upload:
		info.BytesUploaded += seg.Size
	case types.Download:
		info.BytesDownloaded += seg.Size
	}
	a.connections[seg.Connection] = info
}

// SnapshotAndReset returns everything accumulated since the previous call
// and leaves the aggregator empty. Both happen under a single lock hold.
func (a *Aggregator) SnapshotAndReset() types.Utilization {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.connections
	a.connections = make(types.Utilization, len(snapshot))
	return snapshot
}
