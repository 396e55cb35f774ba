package ui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Terminal owns the interactive screen. A single poller goroutine splits
// screen events into keyboard events and resize notifications; both
// channels close once the screen is finalized.
type Terminal struct {
	mu     sync.Mutex
	screen tcell.Screen
	closed bool

	keys    chan *tcell.EventKey
	resizes chan struct{}
	done    chan struct{}
	once    sync.Once
}

// OpenTerminal takes over the controlling terminal.
func OpenTerminal() (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	return NewTerminal(screen)
}

func NewTerminal(screen tcell.Screen) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	screen.HideCursor()

	t := &Terminal{
		screen:  screen,
		keys:    make(chan *tcell.EventKey, 16),
		resizes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go t.poll()
	return t, nil
}

func (t *Terminal) poll() {
	defer close(t.keys)
	defer close(t.resizes)

	for {
		switch ev := t.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventKey:
			select {
			case t.keys <- ev:
			case <-t.done:
				return
			}
		case *tcell.EventResize:
			t.screen.Sync()
			select {
			case t.resizes <- struct{}{}:
			default:
			}
		}
	}
}

// Keys is the keyboard event sequence. It ends when the terminal is cleaned up.
func (t *Terminal) Keys() <-chan *tcell.EventKey {
	return t.keys
}

func (t *Terminal) OnResize(redraw func()) {
	for range t.resizes {
		redraw()
	}
}

// Cleanup restores the terminal. Only the first call has an effect.
func (t *Terminal) Cleanup() {
	t.once.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		t.closed = true
		close(t.done)
		t.screen.Fini()
	})
}

// WriteLine is a no-op: interactive sessions draw instead of printing.
func (t *Terminal) WriteLine(string) {}

// Paint runs fn against the screen unless the terminal was already restored.
func (t *Terminal) Paint(fn func(screen tcell.Screen)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	fn(t.screen)
	return true
}
