package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ielts-listening/internal/model"
)

// AttemptRepository handles the submitted-attempt journal.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// InsertBatch writes attempts in one statement. Entries already stored are
// skipped, so a requeued entry is written once.
func (r *AttemptRepository) InsertBatch(ctx context.Context, batch []model.ListeningAttempt) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, n)
	examIDs := make([]string, 0, n)
	userIDs := make([]string, 0, n)
	resultIDs := make([]string, 0, n)
	triggers := make([]string, 0, n)
	answered := make([]int, 0, n)
	submittedAts := make([]time.Time, 0, n)

	for _, a := range batch {
		ids = append(ids, a.ID)
		examIDs = append(examIDs, a.ExamID)
		userIDs = append(userIDs, a.UserID)
		resultIDs = append(resultIDs, a.ResultID)
		triggers = append(triggers, string(a.Trigger))
		answered = append(answered, a.AnsweredCount)
		submittedAts = append(submittedAts, a.SubmittedAt)
	}

	query := `
		INSERT INTO listening_attempts
			(id, exam_id, user_id, result_id, trigger, answered_count, submitted_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::text[],
			$6::int[],
			$7::timestamptz[]
		)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, ids, examIDs, userIDs, resultIDs, triggers, answered, submittedAts); err != nil {
		return fmt.Errorf("insert attempts: %w", err)
	}
	return nil
}

// Insert writes a single attempt.
func (r *AttemptRepository) Insert(ctx context.Context, a model.ListeningAttempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO listening_attempts
			(id, exam_id, user_id, result_id, trigger, answered_count, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.ExamID, a.UserID, a.ResultID, string(a.Trigger), a.AnsweredCount, a.SubmittedAt,
	)
	return err
}

// ListByUser returns a user's attempts, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.ListeningAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, result_id, trigger, answered_count, submitted_at
		 FROM listening_attempts
		 WHERE user_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ListeningAttempt
	for rows.Next() {
		var a model.ListeningAttempt
		var trigger string
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.ResultID, &trigger, &a.AnsweredCount, &a.SubmittedAt); err != nil {
			return nil, err
		}
		a.Trigger = model.SubmitTrigger(trigger)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
