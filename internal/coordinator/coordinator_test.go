package coordinator

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/auth"
	"github.com/screenruster/screenruster/internal/config"
	"github.com/screenruster/screenruster/internal/ipc"
	"github.com/screenruster/screenruster/internal/locker"
	"github.com/screenruster/screenruster/internal/timer"
)

// recorder is a thread-safe call log shared by every fake peer below.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) log(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) has(call string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (r *recorder) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeLocker struct {
	rec       *recorder
	responses chan locker.Response
}

func newFakeLocker(rec *recorder) *fakeLocker {
	return &fakeLocker{rec: rec, responses: make(chan locker.Response, 16)}
}

func (f *fakeLocker) Responses() <-chan locker.Response { return f.responses }
func (f *fakeLocker) Start()                            { f.rec.log("locker.start") }
func (f *fakeLocker) Lock()                             { f.rec.log("locker.lock") }
func (f *fakeLocker) Auth(ok bool)                      { f.rec.log("locker.auth:%v", ok) }
func (f *fakeLocker) Stop()                             { f.rec.log("locker.stop") }
func (f *fakeLocker) Power(on bool)                     { f.rec.log("locker.power:%v", on) }
func (f *fakeLocker) Throttle(on bool)                  { f.rec.log("locker.throttle:%v", on) }
func (f *fakeLocker) Sanitize()                         { f.rec.log("locker.sanitize") }
func (f *fakeLocker) Timeout(window uint64)             { f.rec.log("locker.timeout:%d", window) }

type fakeTimer struct {
	rec       *recorder
	responses chan timer.Response
	closed    bool
}

func newFakeTimer(rec *recorder) *fakeTimer {
	return &fakeTimer{rec: rec, responses: make(chan timer.Response, 16)}
}

func (f *fakeTimer) Responses() <-chan timer.Response           { return f.responses }
func (f *fakeTimer) ResetIdle()                                 { f.rec.log("timer.resetidle") }
func (f *fakeTimer) ResetBlank()                                { f.rec.log("timer.resetblank") }
func (f *fakeTimer) Suspend(wall time.Time)                     { f.rec.log("timer.suspend") }
func (f *fakeTimer) Resume()                                    { f.rec.log("timer.resume") }
func (f *fakeTimer) Blanked()                                   { f.rec.log("timer.blanked") }
func (f *fakeTimer) Unblanked()                                 { f.rec.log("timer.unblanked") }
func (f *fakeTimer) Started()                                   { f.rec.log("timer.started") }
func (f *fakeTimer) Locked()                                    { f.rec.log("timer.locked") }
func (f *fakeTimer) Stopped()                                   { f.rec.log("timer.stopped") }
func (f *fakeTimer) Report(id uint64)                           { f.rec.log("timer.report:%d", id) }
func (f *fakeTimer) SetTimeout(id uint64, seconds uint64)       { f.rec.log("timer.settimeout:%d", id) }
func (f *fakeTimer) CancelTimeout(id uint64)                    { f.rec.log("timer.canceltimeout:%d", id) }
func (f *fakeTimer) Close()                                     { f.closed = true }

type fakeAuth struct {
	rec       *recorder
	responses chan auth.Response
}

func newFakeAuth(rec *recorder) *fakeAuth {
	return &fakeAuth{rec: rec, responses: make(chan auth.Response, 16)}
}

func (f *fakeAuth) Responses() <-chan auth.Response { return f.responses }
func (f *fakeAuth) Authenticate(password string)    { f.rec.log("auth.authenticate:%s", password) }

type fakeIPC struct {
	rec      *recorder
	requests chan ipc.Request
}

func newFakeIPC(rec *recorder) *fakeIPC {
	return &fakeIPC{rec: rec, requests: make(chan ipc.Request, 16)}
}

func (f *fakeIPC) Requests() <-chan ipc.Request         { return f.requests }
func (f *fakeIPC) SignalActiveChanged(active bool)      { f.rec.log("ipc.activechanged:%v", active) }
func (f *fakeIPC) SignalSessionIdleChanged(idle bool)   { f.rec.log("ipc.sessionidlechanged:%v", idle) }
func (f *fakeIPC) SignalAuthenticationRequestBegin()    { f.rec.log("ipc.authbegin") }
func (f *fakeIPC) SignalAuthenticationRequestEnd()      { f.rec.log("ipc.authend") }

type harness struct {
	rec    *recorder
	locker *fakeLocker
	timer  *fakeTimer
	auth   *fakeAuth
	ipc    *fakeIPC
	coord  *Coordinator
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		rec:    rec,
		locker: newFakeLocker(rec),
		timer:  newFakeTimer(rec),
		auth:   newFakeAuth(rec),
		ipc:    newFakeIPC(rec),
	}
	newTimer := func(config.Timer) TimerPeer { return newFakeTimer(rec) }
	h.coord = Spawn(h.locker, h.timer, h.auth, h.ipc, cfg, newTimer, zerolog.Nop())
	return h
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/missing.toml")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func settle() { time.Sleep(50 * time.Millisecond) }

func TestTimerStartIssuesLockerStart(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.timer.responses <- timer.Response{Kind: timer.Start}
	settle()
	if !h.rec.has("locker.start") {
		t.Error("expected locker.start")
	}
	if !h.rec.has("ipc.activechanged:true") {
		t.Error("expected ActiveChanged(true) signal")
	}
	if !h.rec.has("timer.started") {
		t.Error("expected timer.started")
	}
}

func TestInhibitorBlocksStart(t *testing.T) {
	h := newHarness(t, testConfig(t))

	reply := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.Inhibit, App: "x", Reason: "y", Reply: reply}
	<-reply

	h.timer.responses <- timer.Response{Kind: timer.Start}
	settle()

	if h.rec.has("locker.start") {
		t.Error("did not expect locker.start while an inhibitor is held")
	}
	if !h.rec.has("timer.resetidle") {
		t.Error("expected timer.resetidle instead")
	}
}

func TestLockThenAuthSuccessStopsSaver(t *testing.T) {
	h := newHarness(t, testConfig(t))

	h.timer.responses <- timer.Response{Kind: timer.Start}
	settle()
	h.timer.responses <- timer.Response{Kind: timer.Lock}
	settle()
	if !h.rec.has("locker.lock") {
		t.Fatal("expected locker.lock")
	}

	h.auth.responses <- auth.Response{Kind: auth.Success}
	settle()
	if !h.rec.has("locker.auth:true") || !h.rec.has("locker.stop") {
		t.Error("expected locker.auth(true) followed by locker.stop on auth success")
	}

	h.locker.responses <- locker.Response{Kind: locker.Stopped}
	settle()
	if !h.rec.has("ipc.activechanged:false") {
		t.Error("expected ActiveChanged(false) once Stopped arrives")
	}
	if h.coord.session.StartedSince != nil || h.coord.session.LockedSince != nil {
		t.Error("expected StartedSince/LockedSince cleared after Stopped")
	}
}

func TestAuthFailureDoesNotStop(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.auth.responses <- auth.Response{Kind: auth.Failure}
	settle()
	if !h.rec.has("locker.auth:false") {
		t.Error("expected locker.auth(false)")
	}
	if h.rec.has("locker.stop") {
		t.Error("auth failure must not stop the saver")
	}
}

func TestActivityDebounceWithinActivationWindow(t *testing.T) {
	h := newHarness(t, testConfig(t))
	now := time.Now()
	h.coord.session.StartedSince = &now

	h.locker.responses <- locker.Response{Kind: locker.Activity}
	settle()
	if h.rec.has("locker.stop") {
		t.Error("expected no stop within the activation debounce window")
	}
}

func TestActivityAfterActivationWindowStops(t *testing.T) {
	h := newHarness(t, testConfig(t))
	old := time.Now().Add(-2 * activation)
	h.coord.session.StartedSince = &old

	h.locker.responses <- locker.Response{Kind: locker.Activity}
	settle()
	if !h.rec.has("locker.stop") {
		t.Error("expected locker.stop once the saver has been up past ACTIVATION")
	}
}

func TestActivityWhileBlankedUnblanksFirst(t *testing.T) {
	h := newHarness(t, testConfig(t))
	now := time.Now()
	h.coord.session.BlankedSince = &now

	h.locker.responses <- locker.Response{Kind: locker.Activity}
	settle()
	if !h.rec.has("locker.power:true") || !h.rec.has("timer.unblanked") {
		t.Error("expected power(on) + timer.unblanked on activity while blanked")
	}
}

func TestActivityDroppedWhileSuspended(t *testing.T) {
	h := newHarness(t, testConfig(t))
	now := time.Now()
	h.coord.session.SuspendedSince = &now

	h.locker.responses <- locker.Response{Kind: locker.Activity}
	settle()
	if h.rec.has("timer.resetidle") || h.rec.has("locker.stop") || h.rec.has("locker.power:true") {
		t.Error("expected activity to be dropped entirely while suspended")
	}
}

func TestUnInhibitUnknownCookieIsNoOp(t *testing.T) {
	h := newHarness(t, testConfig(t))
	reply := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.UnInhibit, Cookie: 99999, Reply: reply}
	<-reply // must not block or panic
	if len(h.coord.session.Inhibitors) != 0 {
		t.Error("expected inhibitor set to remain empty")
	}
}

func TestThrottleFirstEntryTogglesLocker(t *testing.T) {
	h := newHarness(t, testConfig(t))

	r1 := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.Throttle, Reply: r1}
	c1 := <-r1

	r2 := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.Throttle, Reply: r2}
	<-r2

	settle()
	if h.rec.count("locker.throttle:true") != 1 {
		t.Errorf("expected exactly one throttle(true), got %d", h.rec.count("locker.throttle:true"))
	}

	r3 := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.UnThrottle, Cookie: c1.Cookie, Reply: r3}
	<-r3
	settle()
	if h.rec.has("locker.throttle:false") {
		t.Error("did not expect throttle(false) while one cookie remains")
	}
}

func TestInhibitIdempotentUnInhibit(t *testing.T) {
	h := newHarness(t, testConfig(t))
	r1 := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.Inhibit, App: "a", Reason: "b", Reply: r1}
	resp := <-r1
	if resp.Cookie == 0 {
		t.Fatal("expected a non-zero cookie")
	}

	r2 := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.UnInhibit, Cookie: resp.Cookie, Reply: r2}
	<-r2

	r3 := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.UnInhibit, Cookie: resp.Cookie, Reply: r3}
	<-r3 // removing it again must still return cleanly
}

// TestSuspendResumeUseSystemTimeCorrection exercises scenario S4: a
// PrepareForSleep(true) followed much later by PrepareForSleep(false)
// should freeze the Timer on entry and apply its correction on exit.
func TestSuspendResumeUseSystemTimeCorrection(t *testing.T) {
	path := t.TempDir() + "/config.toml"
	if err := os.WriteFile(path, []byte("[locker]\non-suspend = \"use-system-time\"\n"), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	h := newHarness(t, cfg)

	h.ipc.requests <- ipc.Request{Kind: ipc.PrepareForSleep, Bool: true}
	settle()
	if !h.rec.has("timer.suspend") {
		t.Fatal("expected timer.suspend on sleep entry")
	}
	if h.coord.session.SuspendedSince == nil {
		t.Fatal("expected SuspendedSince to be set")
	}

	h.ipc.requests <- ipc.Request{Kind: ipc.PrepareForSleep, Bool: false}
	settle()
	if !h.rec.has("timer.resume") {
		t.Error("expected timer.resume on wake with on-suspend=use-system-time")
	}
	if h.coord.session.SuspendedSince != nil {
		t.Error("expected SuspendedSince cleared after resume")
	}
}

func TestReloadPreservesLockedSince(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg)

	now := time.Now()
	h.coord.session.LockedSince = &now

	reply := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.Reload, Path: "", Reply: reply}
	resp := <-reply
	if resp.Err != nil {
		t.Fatalf("Reload() error = %v", resp.Err)
	}
	if h.coord.session.LockedSince == nil {
		t.Error("expected LockedSince to survive a Reload, per scenario S6")
	}
}

func TestGetSessionIdleTimeRoundTripsThroughTimer(t *testing.T) {
	h := newHarness(t, testConfig(t))

	reply := make(chan ipc.Response, 1)
	h.ipc.requests <- ipc.Request{Kind: ipc.GetSessionIdleTime, Reply: reply}
	settle()

	if !h.rec.has("timer.report:1") {
		t.Fatal("expected the coordinator to issue timer.Report")
	}

	h.timer.responses <- timer.Response{Kind: timer.ReportResult, ID: 1, IdleFor: 42 * time.Second}

	select {
	case resp := <-reply:
		if resp.U64 != 42 {
			t.Errorf("U64 = %d, want 42", resp.U64)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deferred GetSessionIdleTime reply")
	}
}
