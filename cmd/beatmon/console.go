// console.go - terminal dashboard showing the published control-bus frame.
//
// Grounded on the teacher's TerminalHost (terminal_host.go): raw mode via
// golang.org/x/term, restored on Stop, running its refresh loop in its own
// goroutine rather than blocking the caller.

package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/synqing/beatcore"
	"golang.org/x/term"
)

type console struct {
	bus *beatcore.ControlBusPublisher

	fd           int
	oldTermState *term.State
	raw          bool

	stopCh  chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func newConsole(bus *beatcore.ControlBusPublisher) *console {
	return &console{bus: bus, stopCh: make(chan struct{}), done: make(chan struct{})}
}

// Start puts stdout's controlling terminal in raw mode (so the dashboard can
// redraw a single line in place) and begins refreshing at refreshHz until
// Stop is called. If stdout is not a terminal, it falls back to scrolling
// plain-text output instead of failing.
func (c *console) Start(refreshHz float64) {
	c.fd = int(os.Stdout.Fd())
	if term.IsTerminal(c.fd) {
		oldState, err := term.MakeRaw(c.fd)
		if err == nil {
			c.oldTermState = oldState
			c.raw = true
		}
	}

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(time.Duration(float64(time.Second) / refreshHz))
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.render()
			}
		}
	}()
}

func (c *console) render() {
	frame := c.bus.Load()
	if frame == nil {
		return
	}
	line := fmt.Sprintf("bpm=%6.1f conf=%4.2f locked=%-5v beat=%-5v down=%-5v clip=%d snr=%5.1f",
		frame.BPM, frame.Confidence, frame.Locked, frame.BeatTick, frame.DownbeatTick,
		frame.SignalQuality.ClipCount, frame.SignalQuality.SNREstimate)
	if c.raw {
		fmt.Fprintf(os.Stdout, "\r\x1b[K%s", line)
	} else {
		fmt.Fprintln(os.Stdout, line)
	}
}

// Stop restores the terminal and waits for the refresh goroutine to exit.
func (c *console) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
		<-c.done
		if c.raw {
			_ = term.Restore(c.fd, c.oldTermState)
			fmt.Fprintln(os.Stdout)
		}
	})
}
