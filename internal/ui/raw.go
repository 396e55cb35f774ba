package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// RawOutput is the platform for --raw sessions: text goes line by line to a
// writer and the only keyboard event is the synthetic interrupt.
type RawOutput struct {
	mu   sync.Mutex
	w    io.Writer
	keys chan *tcell.EventKey
	once sync.Once
}

func NewRawOutput(w io.Writer) *RawOutput {
	return &RawOutput{
		w:    w,
		keys: make(chan *tcell.EventKey, 1),
	}
}

func (r *RawOutput) Keys() <-chan *tcell.EventKey {
	return r.keys
}

// Interrupt delivers a Ctrl-C key event, as if typed on an interactive screen.
func (r *RawOutput) Interrupt() {
	r.once.Do(func() {
		r.keys <- tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	})
}

func (r *RawOutput) WriteLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}

// OnResize returns immediately: raw output has no geometry.
func (r *RawOutput) OnResize(func()) {}

func (r *RawOutput) Cleanup() {}
