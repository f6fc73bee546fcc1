// Package store holds the answers of one exam attempt in memory and mirrors
// them into the durable cache on every write.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/cache"
	"github.com/stemsi/ielts-listening/internal/model"
)

var (
	// ErrFrozen is returned for writes after a submission has started.
	ErrFrozen = errors.New("answers are frozen for submission")
	// ErrNotHydrated is returned when the store is used before Hydrate.
	ErrNotHydrated = errors.New("answer store not hydrated")
	// ErrHighlightNotFound is returned when removing an unknown highlight.
	ErrHighlightNotFound = errors.New("highlight not found")
)

// Change lists the question ids touched by one store update.
type Change struct {
	ExamID      string
	QuestionIDs []string
}

// Writer is the view of the store handed to an Apply callback.
type Writer interface {
	Get(questionID string) string
	Set(questionID, value string)
}

// Store is the single writer of a user's answers for one exam.
type Store struct {
	mu      sync.Mutex
	cache   cache.Cache
	userID  string
	examID  string
	answers map[string]string
	frozen  bool
	subs    []func(Change)
	log     zerolog.Logger
}

func New(c cache.Cache, userID string, log zerolog.Logger) *Store {
	return &Store{
		cache:   c,
		userID:  userID,
		answers: make(map[string]string),
		log:     log.With().Str("component", "answer_store").Logger(),
	}
}

// Hydrate loads prior answers for examID. When the durable session marker
// names another exam, all durable state is purged first and the store starts
// empty. It reports whether that purge happened.
func (s *Store) Hydrate(ctx context.Context, examID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.cache.CurrentExam(ctx, s.userID)
	if err != nil {
		return false, fmt.Errorf("read session marker: %w", err)
	}

	s.examID = examID
	s.frozen = false
	s.answers = make(map[string]string)

	if current != examID {
		if err := s.cache.Purge(ctx, s.userID); err != nil {
			return false, fmt.Errorf("purge stale session: %w", err)
		}
		if err := s.cache.SetCurrentExam(ctx, s.userID, examID); err != nil {
			return true, fmt.Errorf("write session marker: %w", err)
		}
		s.log.Info().
			Str("previous_exam_id", current).
			Str("exam_id", examID).
			Msg("New session detected, durable state purged")
		return true, nil
	}

	loaded, err := s.cache.LoadAnswers(ctx, s.userID, examID)
	if err != nil {
		return false, fmt.Errorf("load answers: %w", err)
	}
	s.answers = loaded

	s.log.Debug().
		Str("exam_id", examID).
		Int("answers", len(loaded)).
		Msg("Answers hydrated")
	return false, nil
}

// SetAnswer records value for a question and mirrors the full map.
func (s *Store) SetAnswer(ctx context.Context, questionID, value string) error {
	return s.Apply(ctx, func(w Writer) {
		w.Set(questionID, value)
	})
}

// Apply runs fn against the current answers and commits every Set it made
// as one update with a single mirror write.
func (s *Store) Apply(ctx context.Context, fn func(w Writer)) error {
	s.mu.Lock()
	if s.examID == "" {
		s.mu.Unlock()
		return ErrNotHydrated
	}
	if s.frozen {
		s.mu.Unlock()
		return ErrFrozen
	}

	tx := &txWriter{base: s.answers, pending: make(map[string]string)}
	fn(tx)
	if len(tx.pending) == 0 {
		s.mu.Unlock()
		return nil
	}

	maps.Copy(s.answers, tx.pending)
	s.mirrorLocked(ctx)

	change := Change{ExamID: s.examID, QuestionIDs: sortedKeys(tx.pending)}
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
	return nil
}

// mirrorLocked writes the answer map through to the cache. The cache is a
// mirror, so a failed write is logged and the in-memory value stands.
func (s *Store) mirrorLocked(ctx context.Context) {
	if err := s.cache.SaveAnswers(ctx, s.userID, s.examID, s.answers); err != nil {
		s.log.Warn().Err(err).Str("exam_id", s.examID).Msg("Failed to mirror answers")
	}
}

// Answer returns the current value for a question, "" when unset.
func (s *Store) Answer(questionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[questionID]
}

// Complete reports whether a question has a non-blank answer.
func (s *Store) Complete(questionID string) bool {
	return model.Complete(s.Answer(questionID))
}

// Snapshot returns a copy of all answers.
func (s *Store) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.answers)
}

// AnsweredCount returns how many questions have a non-blank answer.
func (s *Store) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.answers {
		if model.Complete(v) {
			n++
		}
	}
	return n
}

// ExamID returns the exam the store was hydrated for.
func (s *Store) ExamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.examID
}

// Freeze rejects further writes until Thaw.
func (s *Store) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Thaw re-enables writes after a failed submission.
func (s *Store) Thaw() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
}

// PurgeAll clears in-memory and durable state. Calling it again is a no-op.
func (s *Store) PurgeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers = make(map[string]string)
	if err := s.cache.Purge(ctx, s.userID); err != nil {
		return fmt.Errorf("purge durable state: %w", err)
	}
	return nil
}

// Subscribe registers fn to be called after every committed update.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// AddHighlight records a highlight for the hydrated exam.
func (s *Store) AddHighlight(ctx context.Context, part int, text string) (model.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.examID == "" {
		return model.Highlight{}, ErrNotHydrated
	}

	h := model.Highlight{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(text),
		Part:      part,
		ExamID:    s.examID,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.cache.AppendHighlight(ctx, s.userID, h); err != nil {
		return model.Highlight{}, fmt.Errorf("append highlight: %w", err)
	}
	return h, nil
}

// Highlights returns the highlights of the hydrated exam, optionally limited
// to one part when part > 0.
func (s *Store) Highlights(ctx context.Context, part int) ([]model.Highlight, error) {
	s.mu.Lock()
	examID := s.examID
	s.mu.Unlock()

	all, err := s.cache.Highlights(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Highlight, 0, len(all))
	for _, h := range all {
		if h.ExamID != examID || (part > 0 && h.Part != part) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// RemoveHighlight drops one highlight by id.
func (s *Store) RemoveHighlight(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.cache.Highlights(ctx, s.userID)
	if err != nil {
		return err
	}
	kept := make([]model.Highlight, 0, len(all))
	found := false
	for _, h := range all {
		if h.ID == id {
			found = true
			continue
		}
		kept = append(kept, h)
	}
	if !found {
		return ErrHighlightNotFound
	}
	if err := s.cache.ReplaceHighlights(ctx, s.userID, kept); err != nil {
		return fmt.Errorf("remove highlight: %w", err)
	}
	return nil
}

type txWriter struct {
	base    map[string]string
	pending map[string]string
}

func (t *txWriter) Get(questionID string) string {
	if v, ok := t.pending[questionID]; ok {
		return v
	}
	return t.base[questionID]
}

func (t *txWriter) Set(questionID, value string) {
	t.pending[questionID] = value
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
