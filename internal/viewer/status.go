package viewer

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// State is the viewer's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is what the user sees. Delay is set only in StateBackoff; Warning
// carries a soft protocol warning that does not change the state.
type Status struct {
	State   State
	Delay   time.Duration
	Err     error
	Warning string
}

// StatusLine prints one coloured line per status change.
type StatusLine struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStatusLine(w io.Writer) *StatusLine {
	return &StatusLine{w: w}
}

func (l *StatusLine) Show(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.w, FormatStatus(s))
}

// FormatStatus renders s for the terminal.
func FormatStatus(s Status) string {
	var line string
	switch s.State {
	case StateConnected:
		line = color.GreenString("● connected")
	case StateConnecting:
		line = color.CyanString("○ connecting")
	case StateBackoff:
		line = color.RedString("● disconnected, retrying") + color.YellowString(" in %s", s.Delay)
	case StateClosed:
		line = color.WhiteString("○ closed")
	default:
		line = color.WhiteString("○ disconnected")
	}
	if s.Err != nil && s.State == StateBackoff {
		line += color.HiBlackString(" (%v)", s.Err)
	}
	if s.Warning != "" {
		line += color.YellowString("  ⚠ %s", s.Warning)
	}
	return line
}
