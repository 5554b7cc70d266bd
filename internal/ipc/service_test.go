package ipc

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/config"
)

func newTestService(ignore ...string) *Service {
	return &Service{
		requests: make(chan Request, 8),
		cfg:      config.Interface{Ignore: ignore},
		log:      zerolog.Nop(),
	}
}

// respondOnce answers the next Request arriving on s.requests with resp.
func respondOnce(t *testing.T, s *Service, resp Response) {
	t.Helper()
	go func() {
		req := <-s.requests
		req.Reply <- resp
	}()
}

func TestCallRoundTrip(t *testing.T) {
	s := newTestService()
	respondOnce(t, s, Response{Bool: true, Cookie: 42})

	r := s.call(Request{Kind: GetActive})
	if !r.Bool || r.Cookie != 42 {
		t.Fatalf("call() = %+v, want Bool=true Cookie=42", r)
	}
}

func TestIgnoredOperation(t *testing.T) {
	s := newTestService("Inhibit", "Throttle")
	if !s.ignored("Inhibit") {
		t.Error("expected Inhibit to be ignored")
	}
	if s.ignored("Lock") {
		t.Error("did not expect Lock to be ignored")
	}
}

func TestDoLockRejectsWhenIgnored(t *testing.T) {
	s := newTestService("Lock")
	if err := s.doLock(); err == nil {
		t.Fatal("expected an error when Lock is ignored")
	}
}

func TestDoGetActiveRoundTrip(t *testing.T) {
	s := newTestService()
	respondOnce(t, s, Response{Bool: true})
	active, err := s.doGetActive()
	if err != nil {
		t.Fatalf("doGetActive() error = %v", err)
	}
	if !active {
		t.Error("expected active=true")
	}
}

func TestDoInhibitReturnsCookie(t *testing.T) {
	s := newTestService()
	respondOnce(t, s, Response{Cookie: 7})
	cookie, err := s.doInhibit("firefox", "playing video")
	if err != nil {
		t.Fatalf("doInhibit() error = %v", err)
	}
	if cookie != 7 {
		t.Fatalf("cookie = %d, want 7", cookie)
	}
}

func TestDoUnInhibitPropagatesError(t *testing.T) {
	s := newTestService()
	respondOnce(t, s, Response{Err: errGrabbage})
	if err := s.doUnInhibit(99); err == nil {
		t.Fatal("expected an error for an invalid cookie")
	}
}

func TestDoCycleIsANoOp(t *testing.T) {
	s := newTestService()
	if err := s.doCycle(); err != nil {
		t.Fatalf("doCycle() error = %v, want nil", err)
	}
	select {
	case <-s.requests:
		t.Fatal("doCycle must not forward a request to the coordinator")
	default:
	}
}

func TestSleepLoopRelaysEnteringSleep(t *testing.T) {
	s := newTestService()
	sig := make(chan *dbus.Signal, 1)
	go s.sleepLoop(sig)

	sig <- &dbus.Signal{Name: login1Iface + ".PrepareForSleep", Body: []interface{}{true}}

	select {
	case req := <-s.requests:
		if req.Kind != PrepareForSleep || !req.Bool {
			t.Fatalf("request = %+v, want PrepareForSleep/true", req)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PrepareForSleep request")
	}
	close(sig)
}

var errGrabbage = testError("invalid cookie")

type testError string

func (e testError) Error() string { return string(e) }
