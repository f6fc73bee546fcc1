package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/stemsi/ielts-listening/internal/model"
)

type memoryUser struct {
	answers    map[string]map[string]string
	highlights []model.Highlight
	current    string
}

// Memory is a process-local Cache. It backs tests and single-process dev runs.
type Memory struct {
	mu    sync.Mutex
	users map[string]*memoryUser
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]*memoryUser)}
}

func (m *Memory) user(userID string) *memoryUser {
	u, ok := m.users[userID]
	if !ok {
		u = &memoryUser{answers: make(map[string]map[string]string)}
		m.users[userID] = u
	}
	return u
}

func (m *Memory) LoadAnswers(_ context.Context, userID, examID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	maps.Copy(out, m.user(userID).answers[examID])
	return out, nil
}

func (m *Memory) SaveAnswers(_ context.Context, userID, examID string, answers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user(userID).answers[examID] = maps.Clone(answers)
	return nil
}

func (m *Memory) AppendHighlight(_ context.Context, userID string, h model.Highlight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.user(userID)
	u.highlights = append(u.highlights, h)
	return nil
}

func (m *Memory) Highlights(_ context.Context, userID string) ([]model.Highlight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Highlight(nil), m.user(userID).highlights...), nil
}

func (m *Memory) ReplaceHighlights(_ context.Context, userID string, hs []model.Highlight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user(userID).highlights = append([]model.Highlight(nil), hs...)
	return nil
}

func (m *Memory) CurrentExam(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user(userID).current, nil
}

func (m *Memory) SetCurrentExam(_ context.Context, userID, examID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user(userID).current = examID
	return nil
}

func (m *Memory) Purge(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}
