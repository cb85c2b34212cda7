package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/metrics"
	"github.com/stemsi/exstem-prep/internal/model"
)

// Session registry errors.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotSessionOwner      = errors.New("session belongs to another candidate")
	ErrSessionAlreadyActive = errors.New("candidate already has a session in progress")
	ErrUnknownSubject       = errors.New("subject is not offered")
)

const enqueueTimeout = 5 * time.Second

// SessionOptions tunes how sessions are built.
type SessionOptions struct {
	Policy               engine.WindowAdvancementPolicy
	Budget               engine.TimeBudget
	SubjectQuestionCount int
	StaticBlend          int
	// StartWait bounds how long Start blocks for the first question.
	StartWait time.Duration
	// ReviewRetention is how long a submitted session stays reviewable.
	ReviewRetention time.Duration
}

type liveSession struct {
	ctrl       *engine.Controller
	finishedAt time.Time
}

// SessionService owns every live SessionController. A candidate holds at most
// one session that is not yet submitted; the claim is mirrored in Redis so that
// other instances reject a second start.
type SessionService struct {
	source  *engine.QuestionSource
	rdb     *redis.Client
	opts    SessionOptions
	metrics *metrics.Metrics
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	sessions    map[uuid.UUID]*liveSession
	byCandidate map[int]uuid.UUID
}

// NewSessionService creates a new SessionService.
func NewSessionService(source *engine.QuestionSource, rdb *redis.Client, opts SessionOptions, m *metrics.Metrics, log zerolog.Logger) *SessionService {
	if opts.Policy == nil {
		opts.Policy = engine.GatedPolicy{}
	}
	if opts.StartWait <= 0 {
		opts.StartWait = 30 * time.Second
	}
	if opts.ReviewRetention <= 0 {
		opts.ReviewRetention = 2 * time.Hour
	}
	if opts.SubjectQuestionCount <= 0 {
		opts.SubjectQuestionCount = 30
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionService{
		source:      source,
		rdb:         rdb,
		opts:        opts,
		metrics:     m,
		log:         log.With().Str("component", "session_service").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[uuid.UUID]*liveSession),
		byCandidate: make(map[int]uuid.UUID),
	}
}

// Blueprint resolves the question distribution of a start request.
func (s *SessionService) Blueprint(req model.StartSessionRequest) (engine.Blueprint, string, error) {
	full := engine.DefaultFullBlueprint()
	if req.TestKind != model.TestKindSubject {
		return full, "", nil
	}

	want := strings.TrimSpace(req.Subject)
	for _, subject := range full.Subjects() {
		if strings.EqualFold(subject, want) {
			return engine.SubjectBlueprint(subject, s.opts.SubjectQuestionCount, s.opts.StaticBlend), subject, nil
		}
	}
	return engine.Blueprint{}, "", fmt.Errorf("%w: %q", ErrUnknownSubject, want)
}

// Start creates and starts a session, then waits up to StartWait for its first
// question. A session whose first window fails is discarded and its error returned.
func (s *SessionService) Start(ctx context.Context, candidateID int, req model.StartSessionRequest) (*engine.Controller, error) {
	bp, subject, err := s.Blueprint(req)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	total := s.opts.Budget.SecondsFor(bp)
	log := s.log.With().Str("session_id", id.String()).Int("candidate_id", candidateID).Logger()

	ctrl, err := engine.NewController(engine.Config{
		ID:           id,
		CandidateID:  candidateID,
		Subject:      subject,
		Blueprint:    bp,
		TotalSeconds: total,
		Policy:       s.opts.Policy,
		Hooks: engine.Hooks{
			SaveAttempt: s.saveAttempt,
			AddBookmark: s.addBookmark,
			Publish:     s.publishSnapshot,
			Failed:      s.sessionFailed,
		},
	}, s.source, s.log)
	if err != nil {
		return nil, err
	}

	if err := s.claim(ctx, candidateID, id, time.Duration(total)*time.Second+s.opts.ReviewRetention); err != nil {
		return nil, err
	}

	s.register(ctrl)

	if err := ctrl.Start(s.ctx, false); err != nil {
		s.discard(id)
		return nil, err
	}
	s.metrics.SessionsStarted.WithLabelValues(string(bp.Kind)).Inc()
	log.Info().Str("test_kind", string(bp.Kind)).Str("subject", subject).Msg("Session created")

	select {
	case <-ctrl.Ready():
	case <-time.After(s.opts.StartWait):
		log.Warn().Dur("waited", s.opts.StartWait).Msg("First questions still loading")
		return ctrl, nil
	case <-ctx.Done():
		return ctrl, nil
	}

	if err := ctrl.Err(); err != nil {
		s.discard(id)
		return nil, err
	}
	return ctrl, nil
}

// claim registers the controller slot for candidateID. A failed previous
// session is discarded before the Redis claim is taken; a submitted one once
// the new claim holds.
func (s *SessionService) claim(ctx context.Context, candidateID int, id uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	var failed uuid.UUID
	if prev, ok := s.byCandidate[candidateID]; ok {
		if live := s.sessions[prev]; live != nil {
			switch phase := live.ctrl.Phase(); {
			case phase == engine.PhaseFailed:
				failed = prev
			case !phase.Terminal():
				s.mu.Unlock()
				return ErrSessionAlreadyActive
			}
		}
	}
	s.mu.Unlock()

	if failed != uuid.Nil {
		s.discard(failed)
	}

	key := config.CacheKey.CandidateActiveSessionKey(candidateID)
	ok, err := s.rdb.SetNX(ctx, key, id.String(), ttl).Result()
	if err != nil {
		return fmt.Errorf("claim active session: %w", err)
	}
	if !ok {
		return ErrSessionAlreadyActive
	}

	s.mu.Lock()
	prev, hadPrev := s.byCandidate[candidateID]
	s.byCandidate[candidateID] = id
	s.mu.Unlock()

	if hadPrev {
		s.discard(prev)
	}
	return nil
}

// register makes a controller addressable by ID.
func (s *SessionService) register(ctrl *engine.Controller) {
	s.mu.Lock()
	s.sessions[ctrl.ID()] = &liveSession{ctrl: ctrl}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SessionsActive.Set(float64(n))
}

// Count reports how many sessions are held in memory and how many of them
// are still in progress.
func (s *SessionService) Count() (total, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, live := range s.sessions {
		if !live.ctrl.Phase().Terminal() {
			active++
		}
	}
	return len(s.sessions), active
}

// Get returns the controller of sessionID if candidateID owns it.
func (s *SessionService) Get(candidateID int, sessionID uuid.UUID) (*engine.Controller, error) {
	s.mu.Lock()
	live, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if live.ctrl.CandidateID() != candidateID {
		return nil, ErrNotSessionOwner
	}
	return live.ctrl, nil
}

// Leave ends the candidate's visit. A session still in progress is submitted
// first; then all in-memory state is discarded.
func (s *SessionService) Leave(candidateID int, sessionID uuid.UUID) error {
	ctrl, err := s.Get(candidateID, sessionID)
	if err != nil {
		return err
	}

	if ctrl.Phase() == engine.PhaseActive {
		if _, err := ctrl.Submit(engine.SubmitReasonCandidate); err != nil {
			return err
		}
	}
	s.discard(sessionID)
	return nil
}

// discard removes a session from the registry and releases its Redis claim.
func (s *SessionService) discard(id uuid.UUID) {
	s.mu.Lock()
	live, ok := s.sessions[id]
	delete(s.sessions, id)
	var candidateID int
	if ok {
		candidateID = live.ctrl.CandidateID()
		if s.byCandidate[candidateID] == id {
			delete(s.byCandidate, candidateID)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SessionsActive.Set(float64(n))

	if !ok {
		return
	}
	live.ctrl.Close()
	s.releaseClaim(candidateID, id)
}

func (s *SessionService) releaseClaim(candidateID int, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	key := config.CacheKey.CandidateActiveSessionKey(candidateID)
	current, err := s.rdb.Get(ctx, key).Result()
	if err != nil || current != id.String() {
		return
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn().Err(err).Int("candidate_id", candidateID).Msg("Failed to release active session claim")
	}
}

func (s *SessionService) saveAttempt(sub engine.Submission) {
	s.metrics.Submissions.WithLabelValues(string(sub.Reason)).Inc()

	s.mu.Lock()
	if live, ok := s.sessions[sub.Session.ID]; ok {
		live.finishedAt = time.Now()
	}
	s.mu.Unlock()
	s.releaseClaim(sub.Session.CandidateID, sub.Session.ID)

	a := model.Attempt{
		SessionID:       sub.Session.ID,
		CandidateID:     sub.Session.CandidateID,
		TestKind:        sub.Session.TestKind,
		Score:           sub.Result.Score,
		Total:           sub.Result.Total,
		Accuracy:        sub.Result.Accuracy,
		DurationMinutes: sub.DurationMinutes,
		SubmitReason:    string(sub.Reason),
		CreatedAt:       time.Now().UTC(),
	}
	if sub.Session.Subject != "" {
		subject := sub.Session.Subject
		a.Subject = &subject
	}
	s.enqueue(config.WorkerKey.PersistAttemptsQueue, "attempt", a)
}

// sessionFailed frees the candidate as soon as a session's first window is lost,
// even when Start has already returned the loading controller.
func (s *SessionService) sessionFailed(info engine.Session, err error) {
	s.metrics.SessionsFailed.WithLabelValues(string(info.TestKind)).Inc()
	s.releaseClaim(info.CandidateID, info.ID)
	s.log.Warn().Err(err).
		Str("session_id", info.ID.String()).
		Int("candidate_id", info.CandidateID).
		Msg("Session failed, claim released")
}

func (s *SessionService) addBookmark(candidateID int, q model.Question) {
	s.enqueue(config.WorkerKey.PersistBookmarksQueue, "bookmark", model.Bookmark{
		CandidateID: candidateID,
		Question:    q,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *SessionService) enqueue(queue, kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		err = s.rdb.RPush(ctx, queue, raw).Err()
		cancel()
	}
	if err != nil {
		s.metrics.PersistenceErrors.WithLabelValues(kind).Inc()
		s.log.Warn().
			Err(fmt.Errorf("%w: %w", engine.ErrPersistenceFailure, err)).
			Str("queue", queue).
			Msg("Failed to enqueue " + kind)
	}
}

func (s *SessionService) publishSnapshot(snap engine.Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	channel := config.CacheKey.SessionEventsChannel(snap.Session.ID.String())
	if err := s.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		s.log.Debug().Err(err).Str("channel", channel).Msg("Snapshot publish failed")
	}
}

// Run evicts submitted sessions once their review period lapses. Blocks until ctx ends.
func (s *SessionService) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *SessionService) sweep(now time.Time) int {
	var stale []uuid.UUID
	s.mu.Lock()
	for id, live := range s.sessions {
		phase := live.ctrl.Phase()
		switch {
		case phase == engine.PhaseFailed:
			stale = append(stale, id)
		case phase.Terminal() && !live.finishedAt.IsZero() && now.Sub(live.finishedAt) > s.opts.ReviewRetention:
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.discard(id)
	}
	if len(stale) > 0 {
		s.log.Info().Int("evicted", len(stale)).Msg("Evicted finished sessions")
	}
	return len(stale)
}

// Shutdown abandons every live session. In-progress attempts are not scored.
func (s *SessionService) Shutdown() {
	s.cancel()

	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.discard(id)
	}
	s.log.Info().Int("closed", len(ids)).Msg("Session service stopped")
}
