package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/model"
)

// Redis stores each user's state under three keys: a hash of JSON answer
// maps by exam id, a highlight list and a session marker string.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) LoadAnswers(ctx context.Context, userID, examID string) (map[string]string, error) {
	raw, err := r.rdb.HGet(ctx, config.CacheKey.ListeningAnswersKey(userID), examID).Result()
	if err == redis.Nil {
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

func (r *Redis) SaveAnswers(ctx context.Context, userID, examID string, answers map[string]string) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if err := r.rdb.HSet(ctx, config.CacheKey.ListeningAnswersKey(userID), examID, raw).Err(); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}

func (r *Redis) AppendHighlight(ctx context.Context, userID string, h model.Highlight) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode highlight: %w", err)
	}
	if err := r.rdb.RPush(ctx, config.CacheKey.ListeningHighlightsKey(userID), raw).Err(); err != nil {
		return fmt.Errorf("append highlight: %w", err)
	}
	return nil
}

func (r *Redis) Highlights(ctx context.Context, userID string) ([]model.Highlight, error) {
	items, err := r.rdb.LRange(ctx, config.CacheKey.ListeningHighlightsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}

	hs := make([]model.Highlight, 0, len(items))
	for _, item := range items {
		var h model.Highlight
		if err := json.Unmarshal([]byte(item), &h); err != nil {
			continue
		}
		hs = append(hs, h)
	}
	return hs, nil
}

func (r *Redis) ReplaceHighlights(ctx context.Context, userID string, hs []model.Highlight) error {
	key := config.CacheKey.ListeningHighlightsKey(userID)

	values := make([]any, 0, len(hs))
	for _, h := range hs {
		raw, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("encode highlight: %w", err)
		}
		values = append(values, raw)
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace highlights: %w", err)
	}
	return nil
}

func (r *Redis) CurrentExam(ctx context.Context, userID string) (string, error) {
	v, err := r.rdb.Get(ctx, config.CacheKey.ListeningCurrentExamKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current exam: %w", err)
	}
	return v, nil
}

func (r *Redis) SetCurrentExam(ctx context.Context, userID, examID string) error {
	if err := r.rdb.Set(ctx, config.CacheKey.ListeningCurrentExamKey(userID), examID, 0).Err(); err != nil {
		return fmt.Errorf("set current exam: %w", err)
	}
	return nil
}

func (r *Redis) Purge(ctx context.Context, userID string) error {
	err := r.rdb.Del(ctx,
		config.CacheKey.ListeningAnswersKey(userID),
		config.CacheKey.ListeningHighlightsKey(userID),
		config.CacheKey.ListeningCurrentExamKey(userID),
	).Err()
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}
