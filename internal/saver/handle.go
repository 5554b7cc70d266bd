package saver

import (
	"bufio"
	"encoding/json"
	"io"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/apperror"
)

// EventKind distinguishes a decoded wire message from the child's
// exit.
type EventKind int

const (
	Message EventKind = iota
	Exit
)

// Event is what the Handle surfaces to its consumer (the Locker,
// one per window). Once an Exit event is emitted no more Events
// follow.
type Event struct {
	Kind        EventKind
	Window      uint32
	MessageType string // "initialized", "started", "stopped"
	ExitStatus  int
	Err         error // never set by Handle; malformed lines are logged and dropped
}

// Handle is the per-window saver handle described in spec.md §4.4:
// the child process, its request sender, its response receiver, and
// the was_started/was_stopped flags that let the Locker tell a clean
// shutdown from a crash.
type Handle struct {
	Window uint32

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	requests chan Request
	events   chan Event
	log      zerolog.Logger

	wasStarted atomic.Bool
	wasStopped atomic.Bool
}

// Spawn starts a saver child for the given window. name is the
// executable (resolved from [saver.use] by the caller); args are
// passed through unchanged.
func Spawn(window uint32, name string, args []string, log zerolog.Logger) (*Handle, error) {
	cmd := exec.Command(name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		Window:   window,
		cmd:      cmd,
		stdin:    stdin,
		requests: make(chan Request, 32),
		events:   make(chan Event, 8),
		log:      log.With().Uint32("window", window).Str("saver", name).Logger(),
	}

	go h.writerLoop()
	go h.readerLoop(stdout)
	go h.stderrLoop(stderr)

	return h, nil
}

// Events returns the channel the Locker selects on for this window.
func (h *Handle) Events() <-chan Event { return h.events }

// Send queues a request to the child. If the writer has fallen behind
// enough to fill the buffer, the request is dropped rather than
// blocking the Locker's event loop; this applies to every request
// type, start, lock and stop included.
func (h *Handle) Send(req Request) {
	select {
	case h.requests <- req:
	default:
		h.log.Warn().Str("type", req.Type).Msg("saver request dropped, writer backlogged")
	}
}

// WasStarted reports whether the child has ever acknowledged "started".
func (h *Handle) WasStarted() bool { return h.wasStarted.Load() }

// WasStopped reports whether the child has ever acknowledged "stopped".
func (h *Handle) WasStopped() bool { return h.wasStopped.Load() }

// Close stops accepting new requests, letting the writer goroutine
// drain and exit on its own. Call this once the Locker has decided
// the child's lifecycle is over (stopped cleanly or about to be
// killed); sending on a closed Handle after Close panics, matching
// the rest of this daemon's closed-channel-means-gone convention.
func (h *Handle) Close() {
	close(h.requests)
}

// Kill sends SIGKILL and returns without waiting for the process to
// exit; the reader goroutine reaps it and emits the Exit event. It is
// safe to call concurrently with normal shutdown.
func (h *Handle) Kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(syscall.SIGKILL)
	}
}

func (h *Handle) writerLoop() {
	enc := json.NewEncoder(h.stdin)
	defer h.stdin.Close()
	for req := range h.requests {
		if err := enc.Encode(req); err != nil {
			h.log.Debug().Err(err).Msg("saver writer stopping, stdin broken")
			return
		}
	}
}

func (h *Handle) readerLoop(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			h.log.Warn().Err(apperror.ProtocolViolation{Window: h.Window, Line: line, Reason: err}).Msg("dropping malformed saver line")
			continue
		}
		kind, _ := raw["type"].(string)
		switch kind {
		case "started":
			h.wasStarted.Store(true)
		case "stopped":
			h.wasStopped.Store(true)
		}
		h.events <- Event{Kind: Message, Window: h.Window, MessageType: kind}
	}

	status := h.wait()
	h.events <- Event{Kind: Exit, Window: h.Window, ExitStatus: status}
	close(h.events)
}

func (h *Handle) stderrLoop(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		h.log.Debug().Str("stderr", scanner.Text()).Msg("saver stderr")
	}
}

func (h *Handle) wait() int {
	err := h.cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
