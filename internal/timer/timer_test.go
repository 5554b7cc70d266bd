package timer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func drain(t *testing.T, ch <-chan Response, want ResponseKind, within time.Duration) Response {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				t.Fatalf("responses channel closed waiting for %v", want)
			}
			if r.Kind == want {
				return r
			}
		case <-deadline:
			t.Fatalf("timed out waiting for response kind %v", want)
		}
	}
}

func TestStartFiresAfterIdleTimeout(t *testing.T) {
	cfg := Config{Beat: time.Hour, Timeout: 30 * time.Millisecond}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)
	drain(t, tm.Responses(), Start, time.Second)
}

func TestResetIdleDelaysStart(t *testing.T) {
	cfg := Config{Beat: time.Hour, Timeout: 40 * time.Millisecond}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)

	// Keep resetting idle for longer than Timeout would allow, then stop
	// and confirm Start still arrives roughly on schedule afterward.
	stop := time.Now().Add(60 * time.Millisecond)
	for time.Now().Before(stop) {
		tm.ResetIdle()
		time.Sleep(5 * time.Millisecond)
	}
	drain(t, tm.Responses(), Start, time.Second)
}

func TestLockFiresAfterStart(t *testing.T) {
	lock := 20 * time.Millisecond
	cfg := Config{Beat: time.Hour, Timeout: 10 * time.Millisecond, Lock: &lock}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)

	drain(t, tm.Responses(), Start, time.Second)
	tm.Started()
	drain(t, tm.Responses(), Lock, time.Second)
}

func TestBlankFiresIndependentlyOfStart(t *testing.T) {
	blank := 10 * time.Millisecond
	cfg := Config{Beat: time.Hour, Timeout: time.Hour, Blank: &blank}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)
	drain(t, tm.Responses(), Blank, time.Second)
}

func TestHeartbeatRepeats(t *testing.T) {
	cfg := Config{Beat: 10 * time.Millisecond, Timeout: time.Hour}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)
	drain(t, tm.Responses(), Heartbeat, time.Second)
	drain(t, tm.Responses(), Heartbeat, time.Second)
}

// TestSuspendFreezesProgressAndResumeAppliesCorrection exercises scenario
// S4: nothing fires while suspended, and Resume emits a Resumed
// notification and adds the suspended wall-clock time to the idle clock.
func TestSuspendFreezesProgressAndResumeAppliesCorrection(t *testing.T) {
	cfg := Config{Beat: time.Hour, Timeout: 30 * time.Millisecond}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)

	tm.Suspend(time.Now())
	// Sleep well past Timeout while suspended; Start must not fire.
	time.Sleep(60 * time.Millisecond)

	select {
	case r := <-tm.Responses():
		t.Fatalf("unexpected response while suspended: %+v", r)
	case <-time.After(20 * time.Millisecond):
	}

	tm.Resume()
	drain(t, tm.Responses(), Resumed, time.Second)
	// The suspended time now counts as idle via the correction, so
	// Start follows shortly after Resume.
	drain(t, tm.Responses(), Start, time.Second)
}

func TestReportReturnsIdleAndActiveDurations(t *testing.T) {
	cfg := Config{Beat: time.Hour, Timeout: time.Hour}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)

	tm.Started()
	time.Sleep(15 * time.Millisecond)
	tm.Report(42)

	r := drain(t, tm.Responses(), ReportResult, time.Second)
	if r.ID != 42 {
		t.Errorf("ID = %d, want 42", r.ID)
	}
	if r.ActiveFor <= 0 {
		t.Errorf("ActiveFor = %v, want > 0", r.ActiveFor)
	}
}

func TestSetTimeoutFiresOnce(t *testing.T) {
	cfg := Config{Beat: time.Hour, Timeout: time.Hour}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)

	tm.SetTimeout(7, 0)
	r := drain(t, tm.Responses(), Timeout, time.Second)
	if r.ID != 7 {
		t.Errorf("ID = %d, want 7", r.ID)
	}
	select {
	case r := <-tm.Responses():
		if r.Kind == Timeout {
			t.Errorf("ticket 7 fired again: %+v", r)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCancelTimeoutSuppressesFiring(t *testing.T) {
	cfg := Config{Beat: time.Hour, Timeout: time.Hour}
	tm := spawn(cfg, testLogger(), 2*time.Millisecond)

	tm.SetTimeout(7, 1) // 1 real second, long enough to cancel before it fires
	tm.CancelTimeout(7)

	select {
	case r := <-tm.Responses():
		if r.Kind == Timeout {
			t.Fatalf("unexpected Timeout after cancel: %+v", r)
		}
	case <-time.After(30 * time.Millisecond):
	}
}
