package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/model"
)

const (
	JournalBatchSize    = 50
	JournalBatchTimeout = 2 * time.Second
	JournalPollTimeout  = 1 * time.Second
)

// AttemptWriter persists journal entries.
type AttemptWriter interface {
	InsertBatch(ctx context.Context, batch []model.ListeningAttempt) error
	Insert(ctx context.Context, a model.ListeningAttempt) error
}

// JournalQueue pushes submitted attempts onto the Redis journal queue.
type JournalQueue struct {
	rdb *redis.Client
}

func NewJournalQueue(rdb *redis.Client) *JournalQueue {
	return &JournalQueue{rdb: rdb}
}

// Enqueue appends one attempt to the queue.
func (q *JournalQueue) Enqueue(ctx context.Context, a model.ListeningAttempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw).Err()
}

// JournalWorker drains the journal queue into PostgreSQL in batches.
type JournalWorker struct {
	repo AttemptWriter
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewJournalWorker(repo AttemptWriter, rdb *redis.Client, log zerolog.Logger) *JournalWorker {
	return &JournalWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "journal_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *JournalWorker) Start(ctx context.Context) {
	w.log.Info().Msg("JournalWorker started")

	batch := make([]model.ListeningAttempt, 0, JournalBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= JournalBatchSize || time.Since(lastFlush) >= JournalBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, JournalPollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var a model.ListeningAttempt
			if err := json.Unmarshal([]byte(item[1]), &a); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, a)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

func (w *JournalWorker) flushSafe(ctx context.Context, batch []model.ListeningAttempt) {
	if len(batch) == 0 {
		return
	}

	if err := w.repo.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk attempt insert failed, using fallback")

		for _, a := range batch {
			if err := w.repo.Insert(ctx, a); err != nil {
				w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Insert failed, requeueing")
				raw, _ := json.Marshal(a)
				w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Attempts persisted")
}
