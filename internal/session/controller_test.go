package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/model"
)

type recorder struct {
	mu       sync.Mutex
	calls    int
	triggers []model.SubmitTrigger
	answers  []map[string]string
	err      error
	snapshot func() map[string]string
}

func (r *recorder) submit(_ context.Context, trigger model.SubmitTrigger) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.triggers = append(r.triggers, trigger)
	if r.snapshot != nil {
		r.answers = append(r.answers, r.snapshot())
	}
	if r.err != nil {
		return "", r.err
	}
	return "result-1", nil
}

func tickN(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Tick(context.Background())
	}
}

func TestLifecycle(t *testing.T) {
	rec := &recorder{}
	c := New(3, 5*time.Second, rec.submit, zerolog.Nop())

	st := c.Status()
	if st.State != StateNotStarted || st.ConfirmLeave || st.CanSubmit {
		t.Fatalf("initial status = %+v", st)
	}

	tickN(c, 2)
	if c.Status().RemainingSeconds != 3 {
		t.Error("ticks before start moved the countdown")
	}

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start err = %v", err)
	}
	if st := c.Status(); st.State != StatePlaying || !st.ConfirmLeave || st.CanSubmit {
		t.Fatalf("playing status = %+v", st)
	}

	if _, err := c.Submit(context.Background(), model.SubmitTriggerManual); !errors.Is(err, ErrSubmitNotAllowed) {
		t.Errorf("early submit err = %v", err)
	}

	tickN(c, 3)
	st = c.Status()
	if st.State != StateGracePeriod || st.GraceSeconds != 5 || !st.CanSubmit || !st.ConfirmLeave {
		t.Fatalf("grace status = %+v", st)
	}

	tickN(c, 4)
	if rec.calls != 0 {
		t.Fatal("submitted before the grace period ended")
	}
	tickN(c, 1)
	if rec.calls != 1 || rec.triggers[0] != model.SubmitTriggerAuto {
		t.Fatalf("calls=%d triggers=%v", rec.calls, rec.triggers)
	}

	st = c.Status()
	if st.State != StateSubmitted || st.ResultID != "result-1" || st.ConfirmLeave || st.CanSubmit {
		t.Errorf("final status = %+v", st)
	}
	if !c.Done() || c.Accepting() {
		t.Error("attempt should be finished")
	}

	tickN(c, 10)
	if rec.calls != 1 {
		t.Errorf("ticks after submission fired %d calls", rec.calls)
	}
}

func TestGracePeriodAutoSubmitCarriesAnswers(t *testing.T) {
	answers := map[string]string{"q1": "library", "q2": "B", "q3": "C"}
	rec := &recorder{snapshot: func() map[string]string { return answers }}
	c := New(60, 300*time.Second, rec.submit, zerolog.Nop())
	_ = c.Start()

	tickN(c, 60)
	if c.Status().State != StateGracePeriod {
		t.Fatalf("state = %s", c.Status().State)
	}

	tickN(c, 299)
	if rec.calls != 0 {
		t.Fatal("auto-submit fired early")
	}
	tickN(c, 1)
	tickN(c, 5)

	if rec.calls != 1 {
		t.Fatalf("auto-submit fired %d times", rec.calls)
	}
	if len(rec.answers[0]) != 3 {
		t.Errorf("submitted answers = %v", rec.answers[0])
	}
}

func TestSubmitInPlayingAtZero(t *testing.T) {
	rec := &recorder{}
	c := New(0, time.Minute, rec.submit, zerolog.Nop())
	_ = c.Start()

	if !c.Status().CanSubmit {
		t.Fatal("submit should be enabled once the main time is at zero")
	}
	if _, err := c.Submit(context.Background(), model.SubmitTriggerManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestManualAndAutoSubmitInSameTick(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	submit := func(ctx context.Context, trigger model.SubmitTrigger) (string, error) {
		calls.Add(1)
		close(entered)
		<-release
		return "result-1", nil
	}

	c := New(1, 1*time.Second, submit, zerolog.Nop())
	_ = c.Start()
	c.Tick(context.Background())
	if c.Status().State != StateGracePeriod {
		t.Fatalf("state = %s", c.Status().State)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), model.SubmitTriggerManual)
		done <- err
	}()
	<-entered

	// The grace countdown expires while the manual request is in flight.
	c.Tick(context.Background())
	if _, err := c.Submit(context.Background(), model.SubmitTriggerAuto); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("auto submit err = %v", err)
	}
	if _, err := c.Submit(context.Background(), model.SubmitTriggerManual); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("second manual submit err = %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("manual submit: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("submission calls = %d, want 1", n)
	}
}

func TestFailedSubmitRevertsState(t *testing.T) {
	rec := &recorder{err: errors.New("backend down")}
	c := New(1, 10*time.Second, rec.submit, zerolog.Nop())
	_ = c.Start()
	c.Tick(context.Background())

	var failed []Event
	c.Subscribe(func(ev Event) {
		if ev.Type == EventSubmitFailed {
			failed = append(failed, ev)
		}
	})

	if _, err := c.Submit(context.Background(), model.SubmitTriggerManual); err == nil {
		t.Fatal("expected error")
	}
	st := c.Status()
	if st.State != StateGracePeriod || !st.CanSubmit || !c.Accepting() {
		t.Fatalf("status after failure = %+v", st)
	}
	if len(failed) != 1 || failed[0].Error != "backend down" {
		t.Errorf("failure events = %+v", failed)
	}

	rec.err = nil
	id, err := c.Submit(context.Background(), model.SubmitTriggerManual)
	if err != nil || id != "result-1" {
		t.Fatalf("retry = %q, %v", id, err)
	}
	if rec.calls != 2 {
		t.Errorf("calls = %d", rec.calls)
	}
}

func TestFailedAutoSubmitIsNotRepeated(t *testing.T) {
	rec := &recorder{err: errors.New("backend down")}
	c := New(1, 2*time.Second, rec.submit, zerolog.Nop())
	_ = c.Start()
	tickN(c, 13)

	if rec.calls != 1 || rec.triggers[0] != model.SubmitTriggerAuto {
		t.Fatalf("calls = %d triggers = %v", rec.calls, rec.triggers)
	}
	st := c.Status()
	if st.State != StateGracePeriod || !st.CanSubmit {
		t.Fatalf("status = %+v", st)
	}

	rec.err = nil
	id, err := c.Submit(context.Background(), model.SubmitTriggerManual)
	if err != nil || id != "result-1" {
		t.Fatalf("manual retry = %q, %v", id, err)
	}
	if rec.calls != 2 || rec.triggers[1] != model.SubmitTriggerManual {
		t.Errorf("calls = %d triggers = %v", rec.calls, rec.triggers)
	}
}

func TestEventsPublished(t *testing.T) {
	rec := &recorder{}
	c := New(2, 2*time.Second, rec.submit, zerolog.Nop())

	var types []string
	c.Subscribe(func(ev Event) { types = append(types, ev.Type) })

	_ = c.Start()
	tickN(c, 4)

	want := []string{EventState, EventTick, EventTick, EventState, EventTick, EventTick, EventSubmitted}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestRunStopsAfterSubmission(t *testing.T) {
	rec := &recorder{}
	c := New(1, 1*time.Second, rec.submit, zerolog.Nop())
	_ = c.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("runner did not stop after submission")
	}
	if rec.calls != 1 {
		t.Errorf("calls = %d", rec.calls)
	}
}
