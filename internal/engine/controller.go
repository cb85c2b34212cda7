package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
)

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseActive       Phase = "ACTIVE"
	PhaseSubmitted    Phase = "SUBMITTED"
	PhaseReviewing    Phase = "REVIEWING"
	PhaseFailed       Phase = "FAILED"
)

// Terminal reports whether no further answers are accepted.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseReviewing || p == PhaseFailed
}

// SubmitReason records what triggered submission.
type SubmitReason string

const (
	SubmitReasonCandidate SubmitReason = "CANDIDATE"
	SubmitReasonExpired   SubmitReason = "EXPIRED"
	SubmitReasonExhausted SubmitReason = "EXHAUSTED"
)

// Submission is handed to the SaveAttempt hook once a session is scored.
type Submission struct {
	Session         Session
	Result          Result
	Reason          SubmitReason
	DurationMinutes int
}

// Hooks connect a controller to its external collaborators. They are
// fire-and-forget and run after the controller lock is released.
type Hooks struct {
	SaveAttempt func(Submission)
	AddBookmark func(candidateID int, q model.Question)
	// Publish receives every snapshot pushed to subscribers.
	Publish func(Snapshot)
	// Failed runs once when the first window cannot be loaded.
	Failed func(Session, error)
}

// Config describes one test attempt.
type Config struct {
	ID           uuid.UUID
	CandidateID  int
	Subject      string
	Blueprint    Blueprint
	TotalSeconds int
	Policy       WindowAdvancementPolicy
	Hooks        Hooks
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Controller is the state machine of a single test attempt. It owns the slot
// arena, the answers, the bookmarks and the countdown. All methods are safe
// for concurrent use.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	policy    WindowAdvancementPolicy
	loader    *WindowLoader
	answers   *AnswerTracker
	bookmarks *Bookmarks
	countdown *Countdown

	phase       Phase
	current     int
	result      *Result
	reason      SubmitReason
	failure     error
	startedAt   time.Time
	submittedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	loads  sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once

	pubMu   sync.Mutex
	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool

	log zerolog.Logger
}

// NewController validates cfg and builds a controller in the Initializing phase.
func NewController(cfg Config, source *QuestionSource, log zerolog.Logger) (*Controller, error) {
	if err := cfg.Blueprint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid blueprint: %w", err)
	}
	if cfg.TotalSeconds <= 0 {
		return nil, fmt.Errorf("%w: got %ds", ErrInvalidDuration, cfg.TotalSeconds)
	}
	if cfg.Policy == nil {
		cfg.Policy = GatedPolicy{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}

	c := &Controller{
		cfg:       cfg,
		policy:    cfg.Policy,
		bookmarks: NewBookmarks(),
		phase:     PhaseInitializing,
		ready:     make(chan struct{}),
		subs:      make(map[int]chan Snapshot),
		log: log.With().
			Str("session_id", cfg.ID.String()).
			Int("candidate_id", cfg.CandidateID).
			Str("test_kind", string(cfg.Blueprint.Kind)).
			Str("policy", cfg.Policy.Name()).
			Logger(),
	}
	c.loader = NewWindowLoader(cfg.Blueprint, source, c.log)
	c.loader.onBatch = c.onBatch
	c.answers = NewAnswerTracker(c.loader)
	c.countdown = NewCountdown(cfg.TotalSeconds, c.onTick, c.onExpire)
	return c, nil
}

// ID returns the session ID.
func (c *Controller) ID() uuid.UUID { return c.cfg.ID }

// CandidateID returns the owner of the session.
func (c *Controller) CandidateID() int { return c.cfg.CandidateID }

// Start begins loading window 0 and moves the session to Active. ctx bounds
// the whole session, not a single request. The countdown runs on real time
// unless manualClock is set, in which case the caller drives Tick.
func (c *Controller) Start(ctx context.Context, manualClock bool) error {
	c.mu.Lock()
	if c.phase != PhaseInitializing {
		c.mu.Unlock()
		return fmt.Errorf("session already started (phase %s)", c.phase)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.startedAt = c.cfg.Now()
	if err := c.requestWindowLocked(0); err != nil {
		c.mu.Unlock()
		return err
	}
	c.phase = PhaseActive
	if !manualClock {
		c.countdown.Start(c.ctx)
	}
	c.mu.Unlock()

	c.log.Info().
		Int("total_questions", c.cfg.Blueprint.TotalQuestions()).
		Int("total_seconds", c.cfg.TotalSeconds).
		Msg("Session started")
	c.publish()
	return nil
}

// Ready is closed once window 0 has delivered its first question or failed.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Err returns the fatal first-window error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Tick advances the countdown by one second. Used when the clock is driven manually.
func (c *Controller) Tick() { c.countdown.Tick() }

// requestWindowLocked starts an asynchronous load of window w. Caller holds c.mu.
func (c *Controller) requestWindowLocked(w int) error {
	started, err := c.loader.Begin(w)
	if err != nil || !started {
		return err
	}
	c.loads.Add(1)
	go func() {
		defer c.loads.Done()
		loaded, err := c.loader.Run(c.ctx, w)
		c.onWindowSettled(w, loaded, err)
	}()
	return nil
}

func (c *Controller) onBatch(window, written int) {
	if window == 0 && written > 0 {
		c.readyOnce.Do(func() { close(c.ready) })
	}
	c.publish()
}

func (c *Controller) onWindowSettled(w, loaded int, err error) {
	c.mu.Lock()
	if c.phase.Terminal() {
		c.mu.Unlock()
		return
	}

	if w == 0 && loaded == 0 {
		c.failure = fmt.Errorf("%w: %w", ErrSessionFailed, err)
		c.phase = PhaseFailed
		c.loader.Seal()
		c.answers.Close()
		c.countdown.Stop()
		c.cancel()
		info, failure := c.sessionLocked(), c.failure
		c.mu.Unlock()

		c.log.Error().Err(err).Msg("First window failed, session aborted")
		c.readyOnce.Do(func() { close(c.ready) })
		c.publish()
		if c.cfg.Hooks.Failed != nil {
			c.cfg.Hooks.Failed(info, failure)
		}
		return
	}

	size := c.cfg.Blueprint.WindowSize()
	switch {
	case loaded == 0:
		c.log.Warn().Err(err).Int("window", w).Msg("Window unavailable, continuing without it")
	case loaded < size:
		c.log.Warn().Err(err).Int("window", w).Int("loaded", loaded).Msg("Window partially loaded")
	case err != nil:
		c.log.Warn().Err(err).Int("window", w).Msg("Window filled from static pool after generation failure")
	}

	if c.policy.LoadsAhead() && w+1 < c.cfg.Blueprint.WindowCount() {
		if reqErr := c.requestWindowLocked(w + 1); reqErr != nil {
			c.log.Error().Err(reqErr).Int("window", w+1).Msg("Failed to request next window")
		}
	}
	c.mu.Unlock()

	if w == 0 {
		c.readyOnce.Do(func() { close(c.ready) })
	}
	c.publish()
}

// SelectOption records the candidate's answer for slot.
func (c *Controller) SelectOption(slot, option int) error {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	err := c.answers.SetAnswer(slot, option)
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.publish()
	return nil
}

// AdvanceWindow unlocks the next window if the policy allows it. Under a policy
// that submits on exhaust, advancing past the last window submits the session.
func (c *Controller) AdvanceWindow() (int, error) {
	c.mu.Lock()
	if err := c.writableLocked(); err != nil {
		c.mu.Unlock()
		return c.current, err
	}

	cur := c.windowViewLocked(c.current)
	var next *WindowView
	if c.current+1 < c.cfg.Blueprint.WindowCount() {
		v := c.windowViewLocked(c.current + 1)
		next = &v
	}

	if !c.policy.CanAdvance(cur, next) {
		current := c.current
		c.mu.Unlock()
		if next == nil {
			if c.policy.SubmitsOnExhaust() {
				return current, ErrWindowNotComplete
			}
			return current, ErrNoNextWindow
		}
		return current, ErrWindowNotComplete
	}

	if next == nil {
		if !c.policy.SubmitsOnExhaust() {
			current := c.current
			c.mu.Unlock()
			return current, ErrNoNextWindow
		}
		sub := c.submitLocked(SubmitReasonExhausted)
		current := c.current
		c.mu.Unlock()
		c.afterSubmit(sub)
		return current, nil
	}

	c.current++
	if err := c.requestWindowLocked(c.current); err != nil {
		c.log.Error().Err(err).Int("window", c.current).Msg("Failed to request window")
	}
	current := c.current
	c.mu.Unlock()

	c.log.Info().Int("window", current).Msg("Window unlocked")
	c.publish()
	return current, nil
}

// Submit scores the session and freezes it. Calling it again returns the first
// result unchanged.
func (c *Controller) Submit(reason SubmitReason) (Result, error) {
	c.mu.Lock()
	if c.phase == PhaseFailed {
		err := c.failure
		c.mu.Unlock()
		return Result{}, err
	}
	if c.phase == PhaseInitializing {
		c.mu.Unlock()
		return Result{}, errors.New("session not started")
	}
	if c.result != nil {
		r := *c.result
		c.mu.Unlock()
		return r, nil
	}
	sub := c.submitLocked(reason)
	c.mu.Unlock()

	c.afterSubmit(sub)
	return sub.Result, nil
}

// submitLocked is the single transition into Submitted. Caller holds c.mu.
func (c *Controller) submitLocked(reason SubmitReason) Submission {
	c.phase = PhaseSubmitted
	c.loader.Seal()
	c.answers.Close()
	c.bookmarks.Freeze()
	c.countdown.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	c.submittedAt = c.cfg.Now()
	c.reason = reason

	r := Score(c.loader.Slots(), c.answers.Answers())
	c.result = &r
	c.phase = PhaseReviewing

	return Submission{
		Session:         c.sessionLocked(),
		Result:          r,
		Reason:          reason,
		DurationMinutes: durationMinutes(c.startedAt, c.submittedAt),
	}
}

func (c *Controller) afterSubmit(sub Submission) {
	c.log.Info().
		Str("reason", string(sub.Reason)).
		Int("score", sub.Result.Score).
		Int("total", sub.Result.Total).
		Int("accuracy", sub.Result.Accuracy).
		Msg("Session submitted")

	if c.cfg.Hooks.SaveAttempt != nil {
		c.cfg.Hooks.SaveAttempt(sub)
	}
	c.publish()
}

// ToggleBookmark flips the bookmark on a loaded slot. Bookmarking stays
// available while reviewing, but marks can no longer be removed then.
func (c *Controller) ToggleBookmark(slot int) (bool, error) {
	c.mu.Lock()
	if c.phase == PhaseFailed {
		err := c.failure
		c.mu.Unlock()
		return false, err
	}
	if slot < 0 || slot >= c.loader.Len() {
		c.mu.Unlock()
		return false, ErrSlotOutOfRange
	}
	s, ok := c.loader.Question(slot)
	if !ok {
		c.mu.Unlock()
		return false, ErrSlotNotReady
	}
	marked, added := c.bookmarks.Toggle(slot)
	c.mu.Unlock()

	if added && c.cfg.Hooks.AddBookmark != nil {
		c.cfg.Hooks.AddBookmark(c.cfg.CandidateID, s.Question)
	}
	c.publish()
	return marked, nil
}

// Result returns the score once the session is submitted.
func (c *Controller) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// CurrentWindow returns the index of the window the candidate is working in.
func (c *Controller) CurrentWindow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Answers returns a copy of the answer map.
func (c *Controller) Answers() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers.Answers()
}

// Bookmarked returns the bookmarked slots.
func (c *Controller) Bookmarked() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bookmarks.Slots()
}

// Slots returns a copy of the slot arena.
func (c *Controller) Slots() []Slot { return c.loader.Slots() }

// WindowComplete reports, per window, whether every slot is answered.
func (c *Controller) WindowComplete() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bool, c.cfg.Blueprint.WindowCount())
	for w := range out {
		out[w] = c.windowViewLocked(w).Complete()
	}
	return out
}

// TimeRemaining returns the seconds left on the countdown.
func (c *Controller) TimeRemaining() int { return c.countdown.Remaining() }

// Wait blocks until every in-flight window load has returned.
func (c *Controller) Wait() { c.loads.Wait() }

// Close stops the clock, abandons in-flight loads and ends all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	c.countdown.Stop()
	c.loader.Seal()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.loads.Wait()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) writableLocked() error {
	switch c.phase {
	case PhaseFailed:
		return c.failure
	case PhaseSubmitted, PhaseReviewing:
		return ErrSessionClosed
	case PhaseInitializing:
		return errors.New("session not started")
	}
	return nil
}

func (c *Controller) windowViewLocked(w int) WindowView {
	size := c.cfg.Blueprint.WindowSize()
	from, to := w*size, (w+1)*size

	v := WindowView{
		Index:    w,
		Size:     size,
		Loaded:   c.loader.LoadedIn(w),
		Answered: c.answers.AnsweredIn(from, to),
		Load:     c.loader.State(w),
	}
	for slot := from; slot < to; slot++ {
		if _, ok := c.answers.Answer(slot); ok && c.loader.IsLoaded(slot) {
			v.AnsweredLoaded++
		}
	}
	return v
}

func (c *Controller) onTick(int) { c.publish() }

func (c *Controller) onExpire() {
	if _, err := c.Submit(SubmitReasonExpired); err != nil {
		c.log.Warn().Err(err).Msg("Expiry submit rejected")
	}
}

func durationMinutes(from, to time.Time) int {
	if from.IsZero() || !to.After(from) {
		return 0
	}
	d := to.Sub(from)
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}
