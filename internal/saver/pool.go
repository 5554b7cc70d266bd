package saver

import (
	"sync"

	"github.com/creachadair/mds/queue"
	"github.com/rs/zerolog"
)

// maxPoolQueue bounds the pump buffer below. A Locker that falls
// behind (blocked grabbing X11, say) makes every window's readerLoop
// back up on this queue rather than on each other; past the bound the
// oldest pending event is dropped so the queue itself never becomes
// the reason a child's stdout pipe fills up.
const maxPoolQueue = 256

// Pool is the Saver Supervisor's aggregate view across all currently
// active windows: it owns every Handle, so the Locker never has to
// track child-process bookkeeping itself beyond routing events.
type Pool struct {
	mu      sync.Mutex
	handles map[uint32]*Handle
	log     zerolog.Logger

	wakePump chan struct{}
	pending  queue.Queue[Event]
	events   chan Event
}

func NewPool(log zerolog.Logger) *Pool {
	p := &Pool{
		handles:  make(map[uint32]*Handle),
		log:      log.With().Str("component", "saver-pool").Logger(),
		wakePump: make(chan struct{}, 1),
		events:   make(chan Event),
	}
	go p.pump()
	return p
}

// Events returns the pool-wide fan-in of every handle's Events,
// tagged with Window, so the Locker can select over one channel
// instead of a dynamic set of per-window channels. Events are
// delivered in arrival order across all windows via an internal pump
// buffer, so one window's burst of activity never blocks another's
// readerLoop from enqueuing.
func (p *Pool) Events() <-chan Event { return p.events }

// Spawn starts a child for window and registers it in the pool.
func (p *Pool) Spawn(window uint32, name string, args []string) (*Handle, error) {
	h, err := Spawn(window, name, args, p.log)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.handles[window] = h
	p.mu.Unlock()
	go func() {
		for e := range h.Events() {
			p.enqueue(e)
		}
	}()
	return h, nil
}

// enqueue adds e to the pump buffer, dropping the oldest buffered
// event if the bound is already reached, and wakes the pump if it was
// idle.
func (p *Pool) enqueue(e Event) {
	p.mu.Lock()
	if p.pending.Len() >= maxPoolQueue {
		p.pending.Pop()
		p.log.Warn().Msg("saver event pump buffer full, dropping oldest event")
	}
	p.pending.Add(e)
	wake := p.pending.Len() == 1
	p.mu.Unlock()

	if wake {
		select {
		case p.wakePump <- struct{}{}:
		default:
		}
	}
}

func (p *Pool) popEvent() (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Pop()
}

// pump drains the buffer onto the unbuffered Events channel, parking
// on wakePump whenever the buffer runs dry.
func (p *Pool) pump() {
	for {
		e, ok := p.popEvent()
		if !ok {
			<-p.wakePump
			continue
		}
		p.events <- e
	}
}

// Get returns the handle for window, if any.
func (p *Pool) Get(window uint32) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[window]
	return h, ok
}

// Remove drops window from the pool's bookkeeping. It does not kill
// or close the handle; callers must do that first.
func (p *Pool) Remove(window uint32) {
	p.mu.Lock()
	delete(p.handles, window)
	p.mu.Unlock()
}

// Broadcast sends req to every currently active handle. Used for
// daemon-wide notifications like throttle/auth results that apply to
// every screen at once.
func (p *Pool) Broadcast(req Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		h.Send(req)
	}
}

// Windows returns the set of windows with an active handle.
func (p *Pool) Windows() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint32, 0, len(p.handles))
	for w := range p.handles {
		out = append(out, w)
	}
	return out
}
