package monitor

import (
	"errors"
	"io"
	"time"
)

const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

// capture feeds the aggregator from src until the monitor stops. A worker
// blocked in src.Next only notices the stop once that read returns.
func (m *Monitor) capture(src FrameSource) {
	logger := m.logger.With("interface", src.Name())
	logger.Debug("capture started")
	defer logger.Debug("capture stopped")

	var backoff time.Duration
	for m.running.Load() {
		seg, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			backoff = nextReadBackoff(backoff)
			logger.Warn("failed to read frame", "err", err, "retry_in", backoff)
			if !m.waitOrStop(backoff) {
				return
			}
			continue
		}
		backoff = 0
		if seg != nil {
			m.aggregator.Update(*seg)
		}
	}
}

// nextReadBackoff doubles the wait after each consecutive read failure.
func nextReadBackoff(prev time.Duration) time.Duration {
	if prev < minReadBackoff {
		return minReadBackoff
	}
	return min(prev*2, maxReadBackoff)
}

// waitOrStop waits for d and reports false if the monitor stopped meanwhile.
func (m *Monitor) waitOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-m.stopped:
		return false
	}
}
