package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/model"
)

// BookmarkWriter persists bookmarked questions.
type BookmarkWriter interface {
	Upsert(ctx context.Context, candidateID int, q model.Question) error
}

// BookmarkWorker consumes persist_bookmarks_queue and UPSERTs bookmarks to PostgreSQL.
type BookmarkWorker struct {
	repo       BookmarkWriter
	rdb        *redis.Client
	log        zerolog.Logger
	retryDelay time.Duration
}

// NewBookmarkWorker creates a new BookmarkWorker.
func NewBookmarkWorker(repo BookmarkWriter, rdb *redis.Client, log zerolog.Logger) *BookmarkWorker {
	return &BookmarkWorker{
		repo:       repo,
		rdb:        rdb,
		log:        log.With().Str("component", "bookmark_worker").Logger(),
		retryDelay: 5 * time.Second,
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *BookmarkWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *BookmarkWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistBookmarksQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var b model.Bookmark
	if err := json.Unmarshal([]byte(result[1]), &b); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.repo.Upsert(ctx, b.CandidateID, b.Question); err != nil {
		w.log.Error().Err(err).
			Int("candidate_id", b.CandidateID).
			Msg("Persist error, retrying later")
		w.rdb.RPush(ctx, config.WorkerKey.PersistBookmarksQueue, result[1])
		select {
		case <-time.After(w.retryDelay):
		case <-ctx.Done():
		}
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *BookmarkWorker) drain(ctx context.Context) int {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistBookmarksQueue).Result()
		if err != nil {
			break
		}

		var b model.Bookmark
		if err := json.Unmarshal([]byte(result), &b); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.repo.Upsert(ctx, b.CandidateID, b.Question); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistBookmarksQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
	return drained
}
