package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stemsi/ielts-listening/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listening_answers (
  user_id TEXT NOT NULL,
  exam_id TEXT NOT NULL,
  answers_json TEXT NOT NULL,
  PRIMARY KEY (user_id, exam_id)
);

CREATE TABLE IF NOT EXISTS listening_highlights (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  highlight_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listening_highlights_user ON listening_highlights(user_id, seq);

CREATE TABLE IF NOT EXISTS listening_current_exam (
  user_id TEXT PRIMARY KEY,
  exam_id TEXT NOT NULL
);`

// SQLite keeps the same state as Redis in three tables of an embedded database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite ensures the cache tables exist.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) LoadAnswers(ctx context.Context, userID, examID string) (map[string]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT answers_json FROM listening_answers WHERE user_id = ? AND exam_id = ?`,
		userID, examID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	answers := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}

func (s *SQLite) SaveAnswers(ctx context.Context, userID, examID string, answers map[string]string) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listening_answers (user_id, exam_id, answers_json) VALUES (?, ?, ?)
		ON CONFLICT (user_id, exam_id) DO UPDATE SET answers_json = excluded.answers_json`,
		userID, examID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

func (s *SQLite) AppendHighlight(ctx context.Context, userID string, h model.Highlight) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode highlight: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listening_highlights (user_id, highlight_json) VALUES (?, ?)`,
		userID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("append highlight: %w", err)
	}
	return nil
}

func (s *SQLite) Highlights(ctx context.Context, userID string) ([]model.Highlight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT highlight_json FROM listening_highlights WHERE user_id = ? ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer rows.Close()

	hs := []model.Highlight{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		var h model.Highlight
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			continue
		}
		hs = append(hs, h)
	}
	return hs, rows.Err()
}

func (s *SQLite) ReplaceHighlights(ctx context.Context, userID string, hs []model.Highlight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listening_highlights WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear highlights: %w", err)
	}
	for _, h := range hs {
		raw, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("encode highlight: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO listening_highlights (user_id, highlight_json) VALUES (?, ?)`,
			userID, string(raw),
		); err != nil {
			return fmt.Errorf("insert highlight: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) CurrentExam(ctx context.Context, userID string) (string, error) {
	var examID string
	err := s.db.QueryRowContext(ctx,
		`SELECT exam_id FROM listening_current_exam WHERE user_id = ?`, userID,
	).Scan(&examID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current exam: %w", err)
	}
	return examID, nil
}

func (s *SQLite) SetCurrentExam(ctx context.Context, userID, examID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listening_current_exam (user_id, exam_id) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET exam_id = excluded.exam_id`,
		userID, examID,
	)
	if err != nil {
		return fmt.Errorf("set current exam: %w", err)
	}
	return nil
}

func (s *SQLite) Purge(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM listening_answers WHERE user_id = ?`,
		`DELETE FROM listening_highlights WHERE user_id = ?`,
		`DELETE FROM listening_current_exam WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return fmt.Errorf("purge: %w", err)
		}
	}
	return tx.Commit()
}
