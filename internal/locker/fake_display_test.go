package locker

import "sync"

// fakeDisplay is an in-memory display used to test the Locker's
// request/response behavior without a running X server.
type fakeDisplay struct {
	mu sync.Mutex

	screens []ScreenGeometry
	nextWin uint32
	events  chan XEvent

	keyboardGrabErr error
	pointerGrabErr  error

	mapped        map[uint32]bool
	dpmsOff       bool
	closed        bool
	destroyed     map[uint32]bool
	focused       []uint32
	observedCount int
}

func newFakeDisplay(screens ...ScreenGeometry) *fakeDisplay {
	return &fakeDisplay{
		screens:   screens,
		events:    make(chan XEvent, 16),
		mapped:    make(map[uint32]bool),
		destroyed: make(map[uint32]bool),
	}
}

func (f *fakeDisplay) Screens() []ScreenGeometry { return f.screens }

func (f *fakeDisplay) CreateWindow(screen int, geom ScreenGeometry) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWin++
	return f.nextWin, nil
}

func (f *fakeDisplay) MapWindow(win uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapped[win] = true
	return nil
}

func (f *fakeDisplay) UnmapWindow(win uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapped[win] = false
	return nil
}

func (f *fakeDisplay) RaiseWindow(uint32) error { return nil }

func (f *fakeDisplay) DestroyWindow(win uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed[win] = true
	return nil
}

func (f *fakeDisplay) GrabKeyboard(uint32) error { return f.keyboardGrabErr }
func (f *fakeDisplay) GrabPointer(uint32) error  { return f.pointerGrabErr }
func (f *fakeDisplay) UngrabKeyboard() error     { return nil }
func (f *fakeDisplay) UngrabPointer() error      { return nil }

func (f *fakeDisplay) SetInputFocus(win uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = append(f.focused, win)
	return nil
}

func (f *fakeDisplay) ObserveWindows(screen int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observedCount++
	return nil
}

func (f *fakeDisplay) DPMS(off bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dpmsOff = off
	return nil
}

func (f *fakeDisplay) Events() <-chan XEvent { return f.events }

func (f *fakeDisplay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeDisplay) isMapped(win uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mapped[win]
}

func (f *fakeDisplay) isDPMSOff() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dpmsOff
}

func (f *fakeDisplay) isDestroyed(win uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed[win]
}

func (f *fakeDisplay) focusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.focused)
}

func (f *fakeDisplay) observations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observedCount
}
