package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/model"
)

// QuestionStore is the persistent static question pool.
type QuestionStore interface {
	ListBySubject(ctx context.Context, subject string) ([]model.Question, error)
	BulkInsert(ctx context.Context, qs []model.Question) (int, error)
	CountBySubject(ctx context.Context) ([]model.SubjectCount, error)
}

// QuestionService serves the static question pool. Each subject's pool is
// cached in Redis as a JSON list and sampled per request.
type QuestionService struct {
	store QuestionStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(store QuestionStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "question_service").Logger(),
	}
}

// GetStaticQuestions returns up to limit random questions of subject. Errors
// are logged and yield an empty result; the static pool is best effort.
func (s *QuestionService) GetStaticQuestions(ctx context.Context, subject string, limit int) []model.Question {
	if limit <= 0 {
		return nil
	}

	pool, err := s.pool(ctx, subject)
	if err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("Static pool unavailable")
		return nil
	}
	if len(pool) == 0 {
		return nil
	}

	picked := make([]model.Question, len(pool))
	copy(picked, pool)
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if len(picked) > limit {
		picked = picked[:limit]
	}
	return picked
}

func (s *QuestionService) pool(ctx context.Context, subject string) ([]model.Question, error) {
	key := config.CacheKey.StaticPoolKey(subject)

	cached, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var qs []model.Question
		if jsonErr := json.Unmarshal(cached, &qs); jsonErr == nil {
			return qs, nil
		}
		s.log.Warn().Str("key", key).Msg("Discarding corrupt static pool cache")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("key", key).Msg("Static pool cache read failed")
	}

	qs, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("list static questions: %w", err)
	}

	if raw, err := json.Marshal(qs); err == nil {
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Static pool cache write failed")
		}
	}
	return qs, nil
}

// Seed validates and stores questions, then drops the cache of every subject touched.
func (s *QuestionService) Seed(ctx context.Context, qs []model.Question) (int, error) {
	subjects := make(map[string]struct{})
	for i := range qs {
		qs[i].Subject = strings.TrimSpace(qs[i].Subject)
		if err := qs[i].Validate(); err != nil {
			return 0, fmt.Errorf("question %d: %w", i, err)
		}
		subjects[strings.ToLower(qs[i].Subject)] = struct{}{}
	}

	n, err := s.store.BulkInsert(ctx, qs)
	if err != nil {
		return 0, fmt.Errorf("insert static questions: %w", err)
	}

	keys := make([]string, 0, len(subjects))
	for subject := range subjects {
		keys = append(keys, config.CacheKey.StaticPoolKey(subject))
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to invalidate static pool cache")
		}
	}

	s.log.Info().Int("inserted", n).Int("subjects", len(keys)).Msg("Static pool seeded")
	return n, nil
}

// Counts returns the pool size of every subject.
func (s *QuestionService) Counts(ctx context.Context) ([]model.SubjectCount, error) {
	counts, err := s.store.CountBySubject(ctx)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []model.SubjectCount{}
	}
	return counts, nil
}
