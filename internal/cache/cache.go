// Package cache is the durable mirror behind the answer store. It is never
// authoritative: the store owns the values and writes them through here.
package cache

import (
	"context"
	"errors"

	"github.com/stemsi/ielts-listening/internal/model"
)

// ErrUnknownDriver is returned by Open for an unsupported CACHE_DRIVER.
var ErrUnknownDriver = errors.New("unknown cache driver")

// Cache persists one user's Listening state. Every method is scoped to a user
// id; nothing is shared between users.
type Cache interface {
	// LoadAnswers returns the stored answer map for an exam, empty when none.
	LoadAnswers(ctx context.Context, userID, examID string) (map[string]string, error)
	// SaveAnswers overwrites the answer map for an exam.
	SaveAnswers(ctx context.Context, userID, examID string, answers map[string]string) error

	AppendHighlight(ctx context.Context, userID string, h model.Highlight) error
	Highlights(ctx context.Context, userID string) ([]model.Highlight, error)
	ReplaceHighlights(ctx context.Context, userID string, hs []model.Highlight) error

	// CurrentExam returns the session marker, "" when unset.
	CurrentExam(ctx context.Context, userID string) (string, error)
	SetCurrentExam(ctx context.Context, userID, examID string) error

	// Purge removes every answer map, highlight and the marker of a user.
	Purge(ctx context.Context, userID string) error
}
