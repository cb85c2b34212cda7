package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAttempts struct {
	mu        sync.Mutex
	batchErr  error
	failFor   uuid.UUID
	batches   int
	persisted []model.Attempt
}

func (f *fakeAttempts) InsertBatch(_ context.Context, batch []model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.batchErr != nil {
		return f.batchErr
	}
	f.persisted = append(f.persisted, batch...)
	return nil
}

func (f *fakeAttempts) Insert(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.SessionID == f.failFor {
		return errors.New("constraint violation")
	}
	f.persisted = append(f.persisted, *a)
	return nil
}

func (f *fakeAttempts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.persisted)
}

type fakeBookmarks struct {
	mu    sync.Mutex
	fail  bool
	saved []model.Bookmark
}

func (f *fakeBookmarks) Upsert(_ context.Context, candidateID int, q model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.saved = append(f.saved, model.Bookmark{CandidateID: candidateID, Question: q})
	return nil
}

func (f *fakeBookmarks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func pushJSON(t *testing.T, rdb *redis.Client, queue string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), queue, raw).Err())
}

func TestAttemptWorker_PersistsQueuedAttempts(t *testing.T) {
	_, rdb := newRedis(t)
	repo := &fakeAttempts{}
	w := NewAttemptWorker(repo, rdb, zerolog.Nop())

	for i := 0; i < 3; i++ {
		pushJSON(t, rdb, config.WorkerKey.PersistAttemptsQueue, model.Attempt{SessionID: uuid.New(), CandidateID: i + 1, Score: i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return repo.count() == 3 }, 10*time.Second, 50*time.Millisecond)
	cancel()
	<-done
}

func TestAttemptWorker_FallbackRequeuesFailures(t *testing.T) {
	mr, rdb := newRedis(t)
	bad := uuid.New()
	repo := &fakeAttempts{batchErr: errors.New("bulk failed"), failFor: bad}
	w := NewAttemptWorker(repo, rdb, zerolog.Nop())

	w.flushSafe(context.Background(), []model.Attempt{
		{SessionID: uuid.New(), CandidateID: 1},
		{SessionID: bad, CandidateID: 2},
	})

	assert.Equal(t, 1, repo.count())
	items, err := mr.List(config.WorkerKey.PersistAttemptsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var a model.Attempt
	require.NoError(t, json.Unmarshal([]byte(items[0]), &a))
	assert.Equal(t, bad, a.SessionID)
}

func TestBookmarkWorker_ProcessAndDrain(t *testing.T) {
	_, rdb := newRedis(t)
	repo := &fakeBookmarks{}
	w := NewBookmarkWorker(repo, rdb, zerolog.Nop())

	q := model.Question{Text: "q", Options: [4]string{"a", "b", "c", "d"}, Subject: "Physics"}
	pushJSON(t, rdb, config.WorkerKey.PersistBookmarksQueue, model.Bookmark{CandidateID: 3, Question: q})
	pushJSON(t, rdb, config.WorkerKey.PersistBookmarksQueue, model.Bookmark{CandidateID: 4, Question: q})

	w.processNext(context.Background())
	assert.Equal(t, 1, repo.count())

	assert.Equal(t, 1, w.drain(context.Background()))
	assert.Equal(t, 2, repo.count())
	assert.Equal(t, 4, repo.saved[1].CandidateID)
}

func TestBookmarkWorker_RequeuesOnFailure(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := &fakeBookmarks{fail: true}
	w := NewBookmarkWorker(repo, rdb, zerolog.Nop())
	w.retryDelay = time.Millisecond

	pushJSON(t, rdb, config.WorkerKey.PersistBookmarksQueue, model.Bookmark{CandidateID: 3})
	w.processNext(context.Background())

	items, err := mr.List(config.WorkerKey.PersistBookmarksQueue)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
