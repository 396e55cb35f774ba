package monitor

import (
	"github.com/gdamore/tcell/v2"
)

func (m *Monitor) inputLoop() {
	for ev := range m.input.Keys {
		switch {
		case isQuit(ev):
			m.shutdown()
			return
		case ev.Key() == tcell.KeyRune && ev.Rune() == ' ':
			m.togglePause()
		case isTab(ev):
			m.cycleView()
		}
	}
}

func isQuit(ev *tcell.EventKey) bool {
	return ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q')
}

func isTab(ev *tcell.EventKey) bool {
	return ev.Key() == tcell.KeyTab || (ev.Key() == tcell.KeyRune && ev.Rune() == '\t')
}

func (m *Monitor) togglePause() {
	paused := m.stopwatch.Toggle()
	m.logger.Debug("pause toggled", "paused", paused)
	m.Wake()
}

// cycleView brings the next table to the front and redraws right away.
func (m *Monitor) cycleView() {
	m.uiMu.Lock()
	defer m.uiMu.Unlock()

	count := m.display.TableCount()
	if count == 0 {
		return
	}
	next := (m.Offset() + 1) % count
	m.offset.Store(int64(next))
	if !m.opts.Raw {
		m.drawLocked(next)
	}
}
