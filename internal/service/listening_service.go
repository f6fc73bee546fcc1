package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/cache"
	"github.com/stemsi/ielts-listening/internal/logger"
	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/parser"
	"github.com/stemsi/ielts-listening/internal/progress"
	"github.com/stemsi/ielts-listening/internal/render"
	"github.com/stemsi/ielts-listening/internal/resolver"
	"github.com/stemsi/ielts-listening/internal/session"
	"github.com/stemsi/ielts-listening/internal/store"
)

var (
	ErrNoAttempt        = errors.New("no open attempt for this exam")
	ErrInvalidPart      = errors.New("part must be between 1 and 4")
	ErrUnresolvedNumber = errors.New("question number has no question in this exam")
	ErrWrongInteraction = errors.New("question number is answered through another widget")
	ErrNoWidget         = errors.New("no widget found for this request")
	ErrInvalidDuration  = errors.New("exam audio length is invalid")
)

// Backend is the part of the backend client the service depends on.
type Backend interface {
	Exam(ctx context.Context, token, examID string) (*model.Exam, error)
	AudioLength(ctx context.Context, token, examID string) (string, error)
	Audio(ctx context.Context, token, examID, rangeHeader string) (*http.Response, error)
	Submit(ctx context.Context, token, examID string, answers map[string]string) (string, error)
}

// Journal queues a submitted attempt for persistence.
type Journal interface {
	Enqueue(ctx context.Context, attempt model.ListeningAttempt) error
}

// AttemptHistory lists persisted attempts.
type AttemptHistory interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.ListeningAttempt, error)
}

// ListeningOptions tunes the attempt lifecycle.
type ListeningOptions struct {
	GracePeriod  time.Duration
	TickInterval time.Duration
}

// ListeningService holds the live attempts, one per user, and runs their
// timers until submission or shutdown.
type ListeningService struct {
	backend Backend
	cache   cache.Cache
	journal Journal
	history AttemptHistory
	opts    ListeningOptions

	mu       sync.Mutex
	attempts map[string]*Attempt

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log zerolog.Logger
}

// NewListeningService creates a new ListeningService. journal and history may be nil.
func NewListeningService(
	backend Backend,
	c cache.Cache,
	journal Journal,
	history AttemptHistory,
	opts ListeningOptions,
	log zerolog.Logger,
) *ListeningService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ListeningService{
		backend:  backend,
		cache:    c,
		journal:  journal,
		history:  history,
		opts:     opts,
		attempts: make(map[string]*Attempt),
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "listening_service").Logger(),
	}
}

// ExamView is what the exam page needs before the user presses start.
type ExamView struct {
	ExamID        string         `json:"exam_id"`
	Title         string         `json:"title"`
	Parts         []int          `json:"parts"`
	AudioDuration string         `json:"audio_duration"`
	Status        session.Status `json:"status"`
	// Restored is true when answers from an earlier visit were loaded.
	Restored bool `json:"restored"`
	Answered int  `json:"answered"`
}

// PartView is one rendered part.
type PartView struct {
	Part       int               `json:"part"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
	HTML       string            `json:"html"`
	Numbers    []resolver.Entry  `json:"numbers"`
	Unresolved []int             `json:"unresolved,omitempty"`
	Highlights []model.Highlight `json:"highlights"`
}

// Open loads an exam for a user and hydrates its answers. Reopening the same
// exam returns the live attempt; opening another exam closes the previous one.
func (s *ListeningService) Open(ctx context.Context, userID, token, examID string) (*ExamView, error) {
	s.mu.Lock()
	live, ok := s.attempts[userID]
	s.mu.Unlock()

	if ok && live.ExamID == examID && !live.ctrl.Done() {
		live.setToken(token)
		return s.examView(live, false), nil
	}

	exam, err := s.backend.Exam(ctx, token, examID)
	if err != nil {
		return nil, fmt.Errorf("fetch exam: %w", err)
	}
	length, err := s.backend.AudioLength(ctx, token, examID)
	if err != nil {
		return nil, fmt.Errorf("fetch audio length: %w", err)
	}
	seconds, err := model.ParseDuration(length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, err)
	}
	exam.AudioDuration = length

	if ok {
		s.close(userID, live)
	}

	log := logger.ForAttempt(s.log, userID, examID)
	st := store.New(s.cache, userID, log)
	purged, err := st.Hydrate(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("hydrate answers: %w", err)
	}

	a := &Attempt{
		UserID:    userID,
		ExamID:    examID,
		exam:      exam,
		store:     st,
		backend:   s.backend,
		journal:   s.journal,
		token:     token,
		parts:     make(map[int]*partView),
		hard:      make(map[int]bool),
		listeners: make(map[int]func(session.Event)),
		log:       log,
	}
	a.ctrl = session.New(seconds, s.opts.GracePeriod, a.submit, log)
	a.ctrl.Subscribe(a.broadcast)

	s.mu.Lock()
	s.attempts[userID] = a
	s.mu.Unlock()

	log.Info().Int("audio_seconds", seconds).Bool("purged", purged).Msg("Exam opened")
	return s.examView(a, !purged), nil
}

func (s *ListeningService) examView(a *Attempt, restored bool) *ExamView {
	v := &ExamView{
		ExamID:        a.ExamID,
		Title:         a.exam.Title,
		AudioDuration: a.exam.AudioDuration,
		Status:        a.ctrl.Status(),
		Answered:      a.store.AnsweredCount(),
	}
	v.Restored = restored && v.Answered > 0
	for part := 1; part <= model.PartCount; part++ {
		if a.exam.Section(part) != nil {
			v.Parts = append(v.Parts, part)
		}
	}
	return v
}

func (s *ListeningService) attempt(userID, examID string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[userID]
	if !ok || a.ExamID != examID {
		return nil, ErrNoAttempt
	}
	return a, nil
}

// Start begins playback and the countdown.
func (s *ListeningService) Start(userID, examID string) (session.Status, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return session.Status{}, err
	}
	if err := a.ctrl.Start(); err != nil {
		return a.ctrl.Status(), err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	a.mu.Lock()
	a.stop = cancel
	a.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		a.ctrl.Run(ctx, s.opts.TickInterval)
	}()
	return a.ctrl.Status(), nil
}

// Status returns the attempt's lifecycle view.
func (s *ListeningService) Status(userID, examID string) (session.Status, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return session.Status{}, err
	}
	return a.ctrl.Status(), nil
}

// Part renders one part with the current answers, hard flags and highlights.
func (s *ListeningService) Part(ctx context.Context, userID, examID string, part int) (*PartView, error) {
	if !model.ValidPart(part) {
		return nil, ErrInvalidPart
	}
	a, err := s.attempt(userID, examID)
	if err != nil {
		return nil, err
	}

	v := a.view(part)
	highlights, err := a.store.Highlights(ctx, part)
	if err != nil {
		return nil, err
	}

	html := render.Render(render.Input{
		Part:       part,
		Blocks:     v.blocks,
		Numbers:    v.numbers,
		Answers:    a.store,
		Hard:       a.hardFlags(),
		Highlights: highlights,
	})

	return &PartView{
		Part:       part,
		Start:      v.numbers.Start,
		End:        v.numbers.End,
		HTML:       html,
		Numbers:    v.numbers.Entries(),
		Unresolved: v.numbers.Unresolved,
		Highlights: highlights,
	}, nil
}

// writable returns the attempt when answers may still change.
func (s *ListeningService) writable(userID, examID string) (*Attempt, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return nil, err
	}
	if !a.ctrl.Accepting() {
		return nil, session.ErrAlreadySubmitted
	}
	return a, nil
}

// SetAnswer answers a blank, a multiple-choice question or a table-radio row
// by display number.
func (s *ListeningService) SetAnswer(ctx context.Context, userID, examID string, number int, value string) error {
	a, err := s.writable(userID, examID)
	if err != nil {
		return err
	}
	part := model.PartOf(number)
	if part == 0 {
		return ErrUnresolvedNumber
	}

	v := a.view(part)
	id, ok := v.numbers.ID(number)
	if !ok {
		return ErrUnresolvedNumber
	}

	d := v.owner(number)
	if d == nil || d.Kind == parser.KindFillBlank {
		return a.store.SetAnswer(ctx, id, value)
	}
	if d.Kind == parser.KindCheckboxGroup || d.Kind == parser.KindDragDrop {
		return ErrWrongInteraction
	}

	var selErr error
	err = a.store.Apply(ctx, func(w store.Writer) {
		selErr = render.SelectOption(d, v.numbers, w, number, value)
	})
	if err != nil {
		return err
	}
	return selErr
}

// ToggleCheckbox toggles one option of the checkbox group starting at start.
// It reports whether the selection changed; a toggle past the group's cap is
// a no-op.
func (s *ListeningService) ToggleCheckbox(ctx context.Context, userID, examID string, req model.CheckboxToggleRequest) (bool, error) {
	a, err := s.writable(userID, examID)
	if err != nil {
		return false, err
	}
	part := model.PartOf(req.Start)
	if part == 0 {
		return false, ErrNoWidget
	}

	v := a.view(part)
	d := v.find(func(d *parser.Descriptor) bool {
		return d.Kind == parser.KindCheckboxGroup && d.Start == req.Start
	})
	if d == nil {
		return false, ErrNoWidget
	}

	var changed bool
	var toggleErr error
	err = a.store.Apply(ctx, func(w store.Writer) {
		changed, toggleErr = render.ToggleCheckbox(d, v.numbers, w, req.Value)
	})
	if err != nil {
		return false, err
	}
	return changed, toggleErr
}

// Drag moves a drag-drop option between the pool and the drop zones.
func (s *ListeningService) Drag(ctx context.Context, userID, examID string, req model.DragRequest) error {
	if !model.ValidPart(req.Part) {
		return ErrInvalidPart
	}
	a, err := s.writable(userID, examID)
	if err != nil {
		return err
	}

	v := a.view(req.Part)
	d := v.find(func(d *parser.Descriptor) bool {
		if d.Kind != parser.KindDragDrop {
			return false
		}
		for _, o := range d.Options {
			if o.Value == req.Value {
				return true
			}
		}
		return false
	})
	if d == nil {
		return ErrNoWidget
	}

	var dropErr error
	err = a.store.Apply(ctx, func(w store.Writer) {
		dropErr = render.Drop(d, v.numbers, w, req.Value, req.From, req.To)
	})
	if err != nil {
		return err
	}
	return dropErr
}

// ToggleHard flips the "hard" mark of a display number and returns the new value.
func (s *ListeningService) ToggleHard(userID, examID string, number int) (bool, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return false, err
	}
	if model.PartOf(number) == 0 {
		return false, ErrUnresolvedNumber
	}
	return a.toggleHard(number), nil
}

// Progress reports completion of every part. Building it resolves all parts.
func (s *ListeningService) Progress(userID, examID string) (progress.Report, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return progress.Report{}, err
	}
	return progress.Build(a.numbersFor, a.store, a.hardFlags()), nil
}

// AddHighlight records a text highlight for a part.
func (s *ListeningService) AddHighlight(ctx context.Context, userID, examID string, req model.AddHighlightRequest) (model.Highlight, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return model.Highlight{}, err
	}
	return a.store.AddHighlight(ctx, req.Part, req.Text)
}

// Highlights lists the attempt's highlights; part 0 lists all of them.
func (s *ListeningService) Highlights(ctx context.Context, userID, examID string, part int) ([]model.Highlight, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return nil, err
	}
	return a.store.Highlights(ctx, part)
}

// RemoveHighlight deletes one highlight by id.
func (s *ListeningService) RemoveHighlight(ctx context.Context, userID, examID, id string) error {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return err
	}
	return a.store.RemoveHighlight(ctx, id)
}

// Submit is the manual submit action.
func (s *ListeningService) Submit(ctx context.Context, userID, examID string) (string, error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return "", err
	}
	return a.ctrl.Submit(ctx, model.SubmitTriggerManual)
}

// Subscribe streams the attempt's lifecycle events to fn until the returned
// func is called.
func (s *ListeningService) Subscribe(userID, examID string, fn func(session.Event)) (func(), error) {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return nil, err
	}
	return a.listen(fn), nil
}

// Audio proxies the exam audio, forwarding the Range header.
func (s *ListeningService) Audio(ctx context.Context, token, examID, rangeHeader string) (*http.Response, error) {
	return s.backend.Audio(ctx, token, examID, rangeHeader)
}

// History lists the user's submitted attempts, newest first.
func (s *ListeningService) History(ctx context.Context, userID string, limit int) ([]model.ListeningAttempt, error) {
	if s.history == nil {
		return []model.ListeningAttempt{}, nil
	}
	return s.history.ListByUser(ctx, userID, limit)
}

// Close stops the attempt's timer and forgets it. Durable answers stay so a
// later Open of the same exam restores them.
func (s *ListeningService) Close(userID, examID string) error {
	a, err := s.attempt(userID, examID)
	if err != nil {
		return err
	}
	s.close(userID, a)
	return nil
}

func (s *ListeningService) close(userID string, a *Attempt) {
	s.mu.Lock()
	if s.attempts[userID] == a {
		delete(s.attempts, userID)
	}
	s.mu.Unlock()

	a.mu.Lock()
	stop := a.stop
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
	a.log.Info().Msg("Exam closed")
}

// LiveAttempts returns the number of open attempts.
func (s *ListeningService) LiveAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Shutdown stops every running timer and waits for them to exit.
func (s *ListeningService) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("All attempt timers stopped")
}
