package service

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/parser"
	"github.com/stemsi/ielts-listening/internal/render"
	"github.com/stemsi/ielts-listening/internal/resolver"
	"github.com/stemsi/ielts-listening/internal/session"
	"github.com/stemsi/ielts-listening/internal/store"
)

// Attempt is one user's live run of one exam. Exam content is read-only;
// answers go through the store, lifecycle through the controller.
type Attempt struct {
	UserID string
	ExamID string

	exam  *model.Exam
	store *store.Store
	ctrl  *session.Controller

	backend Backend
	journal Journal

	mu        sync.Mutex
	token     string
	parts     map[int]*partView
	hard      map[int]bool
	listeners map[int]func(session.Event)
	nextID    int
	stop      context.CancelFunc

	log zerolog.Logger
}

// partView is the memoised parse and number map of one part.
type partView struct {
	numbers *resolver.Map
	blocks  []render.Block
}

func (a *Attempt) setToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *Attempt) currentToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// view returns the part's parse and number map, building them on first use.
func (a *Attempt) view(part int) *partView {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := a.parts[part]; ok {
		return v
	}

	section := a.exam.Section(part)
	v := &partView{numbers: resolver.Build(section, part)}
	if section != nil {
		for _, q := range section.Questions {
			if q.Content == "" {
				continue
			}
			fallback := v.numbers.Start
			if n, ok := v.numbers.Number(q.ID); ok {
				fallback = n
			}
			res, err := parser.Parse(q.Content, fallback)
			if err != nil {
				a.log.Debug().Err(err).Str("question_id", q.ID).Msg("Content kept as raw markup")
			}
			v.blocks = append(v.blocks, render.Block{QuestionID: q.ID, Raw: q.Content, Result: res})
		}
	}
	if len(v.numbers.Unresolved) > 0 {
		a.log.Warn().Int("part", part).Ints("unresolved", v.numbers.Unresolved).Msg("Display numbers without a question")
	}

	a.parts[part] = v
	return v
}

// find returns the first descriptor of a part accepted by match.
func (v *partView) find(match func(*parser.Descriptor) bool) *parser.Descriptor {
	for _, b := range v.blocks {
		if b.Result == nil {
			continue
		}
		for i := range b.Result.Descriptors {
			if d := &b.Result.Descriptors[i]; match(d) {
				return d
			}
		}
	}
	return nil
}

// owner returns the descriptor that renders the widget for number.
func (v *partView) owner(number int) *parser.Descriptor {
	return v.find(func(d *parser.Descriptor) bool {
		switch d.Kind {
		case parser.KindCheckboxGroup, parser.KindDragDrop:
			if number >= d.Start && number <= d.End {
				return true
			}
		case parser.KindTableRadio:
			for _, r := range d.Rows {
				if r.Number == number {
					return true
				}
			}
		}
		for _, z := range d.Zones {
			if z.Number == number {
				return true
			}
		}
		for _, an := range d.Anchors {
			if an.Number == number {
				return true
			}
		}
		return false
	})
}

func (a *Attempt) hardFlags() map[int]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.hard)
}

func (a *Attempt) toggleHard(number int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hard[number] {
		delete(a.hard, number)
		return false
	}
	a.hard[number] = true
	return true
}

// listen registers fn for controller events and returns its cancel func.
func (a *Attempt) listen(fn func(session.Event)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *Attempt) broadcast(ev session.Event) {
	a.mu.Lock()
	fns := make([]func(session.Event), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// submit is the controller's submit step: freeze, send, then purge and
// journal on success. A failed send unfreezes the store for a retry.
func (a *Attempt) submit(ctx context.Context, trigger model.SubmitTrigger) (string, error) {
	a.store.Freeze()
	answers := a.store.Snapshot()

	resultID, err := a.backend.Submit(ctx, a.currentToken(), a.ExamID, answers)
	if err != nil {
		a.store.Thaw()
		return "", err
	}

	answered := 0
	for _, v := range answers {
		if model.Complete(v) {
			answered++
		}
	}

	if err := a.store.PurgeAll(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Failed to purge durable state after submission")
	}

	if a.journal != nil {
		entry := model.ListeningAttempt{
			ID:            uuid.New(),
			ExamID:        a.ExamID,
			UserID:        a.UserID,
			ResultID:      resultID,
			Trigger:       trigger,
			AnsweredCount: answered,
			SubmittedAt:   time.Now().UTC(),
		}
		if err := a.journal.Enqueue(ctx, entry); err != nil {
			a.log.Error().Err(err).Msg("Failed to queue attempt journal entry")
		}
	}
	return resultID, nil
}

// numbersFor adapts the lazy per-part maps for the progress bar.
func (a *Attempt) numbersFor(part int) render.Numbers {
	return a.view(part).numbers
}
