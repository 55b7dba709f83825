package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Reason classifies why picture-in-picture could not start.
type Reason string

const (
	ReasonUnsupported      Reason = "unsupported"
	ReasonNotReady         Reason = "not-ready"
	ReasonPermissionDenied Reason = "permission-denied"
	ReasonUnknown          Reason = "unknown"

	DefaultPlayer = "mpv"

	DefaultMemoryConfirm = 0.9
)

var defaultPlayerArgs = []string{"--ontop", "--no-border", "--really-quiet", "--title=tilecast", "--profile=low-latency"}

// ErrDeclined is returned when the user declines the memory confirmation.
var ErrDeclined = errors.New("picture-in-picture declined")

type PresentationError struct {
	Reason Reason
	Err    error
}

func (e *PresentationError) Error() string {
	if e.Err == nil {
		return "picture-in-picture " + string(e.Reason)
	}
	return fmt.Sprintf("picture-in-picture %s: %v", e.Reason, e.Err)
}

func (e *PresentationError) Unwrap() error { return e.Err }

// Message is the text shown to the user for each reason.
func (e *PresentationError) Message() string {
	switch e.Reason {
	case ReasonUnsupported:
		return "Picture-in-picture is not available: no player was found."
	case ReasonNotReady:
		return "The video stream is not ready yet, try again in a moment."
	case ReasonPermissionDenied:
		return "Picture-in-picture was blocked: the player could not be started."
	default:
		return "Picture-in-picture failed for an unknown reason."
	}
}

// Readiness reports whether the sink buffered enough frames.
type Readiness interface {
	Ready() bool
}

// Runner reports whether the track is sampling.
type Runner interface {
	Running() bool
}

type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Process is a started player.
type Process interface {
	Wait() error
	Kill() error
}

type StartFunc func(path string, args ...string) (Process, error)

type PresenterOptions struct {
	Command      string
	StreamURL    string
	Probe        *MemoryProbe
	ConfirmAbove float64
	Confirmer    Confirmer
	LookPath     func(file string) (string, error)
	Start        StartFunc
}

// Presenter shows the track in an always-on-top external player.
type Presenter struct {
	sink  Readiness
	track Runner
	opts  PresenterOptions

	mu      sync.Mutex
	current *player
}

type player struct {
	proc Process
	done chan struct{}
}

func NewPresenter(sink Readiness, track Runner, opts PresenterOptions) *Presenter {
	if opts.Command == "" {
		opts.Command = DefaultPlayer
	}
	if opts.ConfirmAbove <= 0 {
		opts.ConfirmAbove = DefaultMemoryConfirm
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Start == nil {
		opts.Start = startProcess
	}
	return &Presenter{sink: sink, track: track, opts: opts}
}

// Toggle starts presenting, or stops when already presenting. It reports
// whether the player is showing afterwards.
func (p *Presenter) Toggle(ctx context.Context) (bool, error) {
	if p.Presenting() {
		p.Stop()
		return false, nil
	}
	if err := p.Present(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Present starts the player. It fails fast with a *PresentationError.
func (p *Presenter) Present(ctx context.Context) error {
	if !p.track.Running() || !p.sink.Ready() {
		return &PresentationError{Reason: ReasonNotReady}
	}
	if err := p.confirmMemory(ctx); err != nil {
		return err
	}

	fields := strings.Fields(p.opts.Command)
	if len(fields) == 0 {
		return &PresentationError{Reason: ReasonUnsupported, Err: errors.New("no player command configured")}
	}
	path, err := p.opts.LookPath(fields[0])
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &PresentationError{Reason: ReasonPermissionDenied, Err: err}
		}
		return &PresentationError{Reason: ReasonUnsupported, Err: err}
	}
	args := fields[1:]
	if len(args) == 0 && filepath.Base(fields[0]) == DefaultPlayer {
		args = defaultPlayerArgs
	}
	args = append(append([]string(nil), args...), p.opts.StreamURL)

	proc, err := p.opts.Start(path, args...)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &PresentationError{Reason: ReasonPermissionDenied, Err: err}
		}
		return &PresentationError{Reason: ReasonUnknown, Err: err}
	}

	pl := &player{proc: proc, done: make(chan struct{})}
	p.mu.Lock()
	p.current = pl
	p.mu.Unlock()

	go p.wait(pl)
	slog.Info("Picture-in-picture started", "player", path)
	return nil
}

func (p *Presenter) confirmMemory(ctx context.Context) error {
	ratio, ok := p.opts.Probe.Ratio()
	if !ok || ratio <= p.opts.ConfirmAbove || p.opts.Confirmer == nil {
		return nil
	}
	question := fmt.Sprintf("Memory usage is at %.0f%%. Open picture-in-picture anyway?", ratio*100)
	yes, err := p.opts.Confirmer.Confirm(ctx, question)
	if err != nil {
		return &PresentationError{Reason: ReasonUnknown, Err: err}
	}
	if !yes {
		return ErrDeclined
	}
	return nil
}

func (p *Presenter) wait(pl *player) {
	err := pl.proc.Wait()
	p.mu.Lock()
	if p.current == pl {
		p.current = nil
	}
	p.mu.Unlock()
	close(pl.done)
	slog.Info("Picture-in-picture ended", "error", err)
}

func (p *Presenter) Presenting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Stop closes the player and waits for it to exit. Safe to call at any time.
func (p *Presenter) Stop() {
	p.mu.Lock()
	pl := p.current
	p.current = nil
	p.mu.Unlock()

	if pl == nil {
		return
	}
	if err := pl.proc.Kill(); err != nil {
		slog.Debug("Failed to kill player", "error", err)
	}
	<-pl.done
}

type execProcess struct {
	cmd *exec.Cmd
}

func startProcess(path string, args ...string) (Process, error) {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }
