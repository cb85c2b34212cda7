package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/metrics"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	fail bool
}

func (g stubGenerator) GenerateQuestions(_ context.Context, subject string, count, window int) ([]model.Question, error) {
	if g.fail {
		return nil, errors.New("model offline")
	}
	out := make([]model.Question, count)
	for i := range out {
		out[i] = model.Question{
			Text:               fmt.Sprintf("%s w%d q%d", subject, window, i),
			Options:            [4]string{"a", "b", "c", "d"},
			CorrectAnswerIndex: 1,
			Subject:            subject,
		}
	}
	return out, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newSessionService(t *testing.T, gen engine.Generator, rdb *redis.Client) *SessionService {
	t.Helper()
	src := engine.NewQuestionSource(gen, nil, engine.SourceConfig{BatchSize: 10, Concurrency: 4}, zerolog.Nop())
	svc := NewSessionService(src, rdb, SessionOptions{
		Budget:               engine.TimeBudget{Full: 180 * time.Minute, SecondsPerQuestion: 60},
		SubjectQuestionCount: 10,
		StartWait:            5 * time.Second,
	}, metrics.New(), zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestSessionService_Blueprint(t *testing.T) {
	_, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	bp, subject, err := svc.Blueprint(model.StartSessionRequest{TestKind: model.TestKindFull})
	require.NoError(t, err)
	assert.Equal(t, 200, bp.TotalQuestions())
	assert.Empty(t, subject)

	bp, subject, err = svc.Blueprint(model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: " physics "})
	require.NoError(t, err)
	assert.Equal(t, "Physics", subject)
	assert.Equal(t, 10, bp.TotalQuestions())
	assert.Equal(t, 1, bp.WindowCount())

	_, _, err = svc.Blueprint(model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "Astrology"})
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestSessionService_StartAndOwnership(t *testing.T) {
	mr, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	ctrl, err := svc.Start(context.Background(), 5, model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "Biology"})
	require.NoError(t, err)

	claim, err := mr.Get(config.CacheKey.CandidateActiveSessionKey(5))
	require.NoError(t, err)
	assert.Equal(t, ctrl.ID().String(), claim)

	got, err := svc.Get(5, ctrl.ID())
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	_, err = svc.Get(6, ctrl.ID())
	assert.ErrorIs(t, err, ErrNotSessionOwner)
	_, err = svc.Get(5, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Start(context.Background(), 5, model.StartSessionRequest{TestKind: model.TestKindFull})
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
}

func TestSessionService_SubmitEnqueuesAttemptAndReleasesClaim(t *testing.T) {
	mr, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	ctrl, err := svc.Start(context.Background(), 9, model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "Chemistry"})
	require.NoError(t, err)
	ctrl.Wait()

	require.NoError(t, ctrl.SelectOption(0, 1))
	require.NoError(t, ctrl.SelectOption(1, 0))
	_, err = ctrl.ToggleBookmark(1)
	require.NoError(t, err)

	res, err := ctrl.Submit(engine.SubmitReasonCandidate)
	require.NoError(t, err)
	assert.Equal(t, engine.Result{Score: 1, Total: 10, Accuracy: 10}, res)

	assert.False(t, mr.Exists(config.CacheKey.CandidateActiveSessionKey(9)))

	items, err := mr.List(config.WorkerKey.PersistAttemptsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)
	var a model.Attempt
	require.NoError(t, json.Unmarshal([]byte(items[0]), &a))
	assert.Equal(t, ctrl.ID(), a.SessionID)
	assert.Equal(t, 9, a.CandidateID)
	assert.Equal(t, model.TestKindSubject, a.TestKind)
	require.NotNil(t, a.Subject)
	assert.Equal(t, "Chemistry", *a.Subject)
	assert.Equal(t, "CANDIDATE", a.SubmitReason)

	bookmarks, err := mr.List(config.WorkerKey.PersistBookmarksQueue)
	require.NoError(t, err)
	require.Len(t, bookmarks, 1)
	var b model.Bookmark
	require.NoError(t, json.Unmarshal([]byte(bookmarks[0]), &b))
	assert.Equal(t, 9, b.CandidateID)
	assert.Equal(t, "Chemistry", b.Question.Subject)

	// A submitted session no longer blocks a new one.
	next, err := svc.Start(context.Background(), 9, model.StartSessionRequest{TestKind: model.TestKindFull})
	require.NoError(t, err)
	assert.NotEqual(t, ctrl.ID(), next.ID())

	_, err = svc.Get(9, ctrl.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_FirstWindowFailure(t *testing.T) {
	mr, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{fail: true}, rdb)

	_, err := svc.Start(context.Background(), 3, model.StartSessionRequest{TestKind: model.TestKindFull})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrSessionFailed)
	assert.False(t, mr.Exists(config.CacheKey.CandidateActiveSessionKey(3)))

	// The candidate can retry immediately.
	svc2 := newSessionService(t, stubGenerator{}, rdb)
	_, err = svc2.Start(context.Background(), 3, model.StartSessionRequest{TestKind: model.TestKindFull})
	require.NoError(t, err)
}

type slowFailingGenerator struct {
	delay time.Duration
}

func (g slowFailingGenerator) GenerateQuestions(ctx context.Context, _ string, _, _ int) ([]model.Question, error) {
	select {
	case <-time.After(g.delay):
		return nil, errors.New("model timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSessionService_LateFirstWindowFailureFreesCandidate(t *testing.T) {
	mr, rdb := newRedis(t)
	src := engine.NewQuestionSource(slowFailingGenerator{delay: 200 * time.Millisecond}, nil, engine.SourceConfig{BatchSize: 10}, zerolog.Nop())
	svc := NewSessionService(src, rdb, SessionOptions{
		Budget:    engine.TimeBudget{Full: 180 * time.Minute, SecondsPerQuestion: 60},
		StartWait: 50 * time.Millisecond,
	}, metrics.New(), zerolog.Nop())
	t.Cleanup(svc.Shutdown)

	req := model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "Physics"}
	ctrl, err := svc.Start(context.Background(), 11, req)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ctrl.Phase() == engine.PhaseFailed
	}, 5*time.Second, 10*time.Millisecond)

	key := config.CacheKey.CandidateActiveSessionKey(11)
	require.Eventually(t, func() bool { return !mr.Exists(key) }, time.Second, 10*time.Millisecond)

	retry, err := svc.Start(context.Background(), 11, req)
	require.NoError(t, err)
	assert.NotEqual(t, ctrl.ID(), retry.ID())

	_, err = svc.Get(11, ctrl.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_Leave(t *testing.T) {
	mr, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	ctrl, err := svc.Start(context.Background(), 4, model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "English"})
	require.NoError(t, err)

	require.NoError(t, svc.Leave(4, ctrl.ID()))
	assert.Equal(t, engine.PhaseReviewing, ctrl.Phase())

	_, err = svc.Get(4, ctrl.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	items, err := mr.List(config.WorkerKey.PersistAttemptsQueue)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSessionService_ClaimHeldElsewhere(t *testing.T) {
	mr, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	require.NoError(t, mr.Set(config.CacheKey.CandidateActiveSessionKey(8), uuid.NewString()))
	_, err := svc.Start(context.Background(), 8, model.StartSessionRequest{TestKind: model.TestKindFull})
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
}

func TestSessionService_SweepEvictsExpiredReviews(t *testing.T) {
	_, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	ctrl, err := svc.Start(context.Background(), 2, model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "Physics"})
	require.NoError(t, err)
	_, err = ctrl.Submit(engine.SubmitReasonCandidate)
	require.NoError(t, err)

	assert.Equal(t, 0, svc.sweep(time.Now()))
	assert.Equal(t, 1, svc.sweep(time.Now().Add(3*time.Hour)))

	_, err = svc.Get(2, ctrl.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_PublishesSnapshots(t *testing.T) {
	_, rdb := newRedis(t)
	svc := newSessionService(t, stubGenerator{}, rdb)

	ctrl, err := svc.Start(context.Background(), 11, model.StartSessionRequest{TestKind: model.TestKindSubject, Subject: "Biology"})
	require.NoError(t, err)
	ctrl.Wait()

	sub := rdb.Subscribe(context.Background(), config.CacheKey.SessionEventsChannel(ctrl.ID().String()))
	defer sub.Close()
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	require.NoError(t, ctrl.SelectOption(0, 2))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Clock ticks publish too; wait for the snapshot carrying the answer.
	for {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)

		var snap engine.Snapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &snap))
		assert.Equal(t, ctrl.ID(), snap.Session.ID)
		if sel := snap.Slots[0].Selected; sel != nil {
			assert.Equal(t, 2, *sel)
			return
		}
	}
}
