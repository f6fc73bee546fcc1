// Package session owns the lifecycle of one Listening attempt: the audio
// countdown, the grace period that follows it and the single submission.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/model"
)

// State is the lifecycle state of an attempt.
type State string

const (
	StateNotStarted  State = "NOT_STARTED"
	StatePlaying     State = "PLAYING"
	StateGracePeriod State = "GRACE_PERIOD"
	StateSubmitted   State = "SUBMITTED"
)

var (
	ErrAlreadyStarted   = errors.New("exam already started")
	ErrNotStarted       = errors.New("exam not started")
	ErrSubmitNotAllowed = errors.New("submit is only allowed once the audio time is over")
	ErrAlreadySubmitted = errors.New("exam already submitted")
)

// SubmitFunc sends the answers and returns the result id.
type SubmitFunc func(ctx context.Context, trigger model.SubmitTrigger) (string, error)

// Event types published to subscribers.
const (
	EventState        = "state"
	EventTick         = "tick"
	EventSubmitted    = "submitted"
	EventSubmitFailed = "submit_failed"
)

// Status is a point-in-time view of the controller.
type Status struct {
	State            State  `json:"state"`
	RemainingSeconds int    `json:"remaining_seconds"`
	GraceSeconds     int    `json:"grace_seconds"`
	CanSubmit        bool   `json:"can_submit"`
	ConfirmLeave     bool   `json:"confirm_leave"`
	ResultID         string `json:"result_id,omitempty"`
}

// Event is published after every transition and every tick.
type Event struct {
	Type    string              `json:"type"`
	Status  Status              `json:"status"`
	Trigger model.SubmitTrigger `json:"trigger,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Controller is the attempt state machine. All transitions go through its
// mutex; the submit request itself runs outside it.
type Controller struct {
	mu         sync.Mutex
	state      State
	remaining  int
	grace      int
	graceTotal int
	resultID   string
	autoFired  bool
	submit     SubmitFunc
	subs       []func(Event)
	log        zerolog.Logger
}

// New builds a controller for an exam whose audio lasts audioSeconds.
func New(audioSeconds int, grace time.Duration, submit SubmitFunc, log zerolog.Logger) *Controller {
	return &Controller{
		state:      StateNotStarted,
		remaining:  audioSeconds,
		graceTotal: int(grace / time.Second),
		submit:     submit,
		log:        log.With().Str("component", "session_controller").Logger(),
	}
}

// Subscribe registers fn for every published event.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Start moves NotStarted to Playing.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateNotStarted {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StatePlaying
	ev := c.eventLocked(EventState)
	c.mu.Unlock()

	c.log.Info().Int("remaining_seconds", ev.Status.RemainingSeconds).Msg("Exam started")
	c.publish(ev)
	return nil
}

// Tick advances the active countdown by one second. The main countdown
// reaching zero opens the grace period; the grace countdown reaching zero
// submits automatically, once. A failed automatic submission is not repeated;
// only a manual submit can retry it.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	var events []Event
	auto := false

	switch c.state {
	case StatePlaying:
		if c.remaining > 0 {
			c.remaining--
		}
		events = append(events, c.eventLocked(EventTick))
		if c.remaining <= 0 {
			c.state = StateGracePeriod
			c.grace = c.graceTotal
			events = append(events, c.eventLocked(EventState))
			c.log.Info().Int("grace_seconds", c.grace).Msg("Audio time over, grace period started")
		}
	case StateGracePeriod:
		if c.grace > 0 {
			c.grace--
		}
		events = append(events, c.eventLocked(EventTick))
		if c.grace <= 0 && !c.autoFired {
			c.autoFired = true
			auto = true
		}
	}
	c.mu.Unlock()

	for _, ev := range events {
		c.publish(ev)
	}

	if auto {
		if _, err := c.Submit(ctx, model.SubmitTriggerAuto); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			c.log.Error().Err(err).Msg("Auto-submit failed")
		}
	}
}

// Submit sends the answers once. The state becomes Submitted before the
// request, so any concurrent trigger is rejected with ErrAlreadySubmitted.
// A failed request restores the previous state so a manual submit can retry.
func (c *Controller) Submit(ctx context.Context, trigger model.SubmitTrigger) (string, error) {
	c.mu.Lock()
	switch {
	case c.state == StateSubmitted:
		c.mu.Unlock()
		return "", ErrAlreadySubmitted
	case c.state == StateNotStarted:
		c.mu.Unlock()
		return "", ErrNotStarted
	case !c.canSubmitLocked():
		c.mu.Unlock()
		return "", ErrSubmitNotAllowed
	}
	prev := c.state
	c.state = StateSubmitted
	c.mu.Unlock()

	c.log.Info().Str("trigger", string(trigger)).Msg("Submitting answers")
	resultID, err := c.submit(ctx, trigger)

	c.mu.Lock()
	if err != nil {
		c.state = prev
		ev := c.eventLocked(EventSubmitFailed)
		ev.Trigger = trigger
		ev.Error = err.Error()
		c.mu.Unlock()

		c.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submission failed")
		c.publish(ev)
		return "", err
	}
	c.resultID = resultID
	ev := c.eventLocked(EventSubmitted)
	ev.Trigger = trigger
	c.mu.Unlock()

	c.log.Info().Str("result_id", resultID).Str("trigger", string(trigger)).Msg("Answers submitted")
	c.publish(ev)
	return resultID, nil
}

// Status returns the current view of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Done reports whether the attempt reached its terminal state.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSubmitted && c.resultID != ""
}

// Accepting reports whether answer writes are still allowed.
func (c *Controller) Accepting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateSubmitted
}

// canSubmitLocked: the submit action opens at the same threshold that
// starts the grace period.
func (c *Controller) canSubmitLocked() bool {
	return c.state == StateGracePeriod || (c.state == StatePlaying && c.remaining <= 0)
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:            c.state,
		RemainingSeconds: c.remaining,
		GraceSeconds:     c.grace,
		CanSubmit:        c.canSubmitLocked(),
		ConfirmLeave:     c.state == StatePlaying || c.state == StateGracePeriod,
		ResultID:         c.resultID,
	}
}

func (c *Controller) eventLocked(typ string) Event {
	return Event{Type: typ, Status: c.statusLocked()}
}

func (c *Controller) publish(ev Event) {
	c.mu.Lock()
	subs := slices.Clone(c.subs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
