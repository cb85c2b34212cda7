package engine

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-prep/internal/model"
)

// Session is the externally visible state of a test attempt.
type Session struct {
	ID                   uuid.UUID      `json:"id"`
	CandidateID          int            `json:"candidate_id"`
	TestKind             model.TestKind `json:"test_kind"`
	Subject              string         `json:"subject,omitempty"`
	TotalQuestionCount   int            `json:"total_question_count"`
	WindowSize           int            `json:"window_size"`
	WindowCount          int            `json:"window_count"`
	CurrentWindowIndex   int            `json:"current_window_index"`
	StartedAtEpochMs     int64          `json:"started_at_epoch_ms"`
	TimeRemainingSeconds int            `json:"time_remaining_seconds"`
	Submitted            bool           `json:"submitted"`
}

// SlotView is one slot as the candidate sees it. Question is nil while Locked.
type SlotView struct {
	Slot       int                         `json:"slot"`
	State      string                      `json:"state"`
	Question   *model.QuestionForCandidate `json:"question,omitempty"`
	Selected   *int                        `json:"selected,omitempty"`
	Bookmarked bool                        `json:"bookmarked"`
}

// WindowStatus summarizes one window for navigation.
type WindowStatus struct {
	Index    int    `json:"index"`
	Size     int    `json:"size"`
	Loaded   int    `json:"loaded"`
	Answered int    `json:"answered"`
	Load     string `json:"load"`
	Complete bool   `json:"complete"`
}

// Snapshot is a consistent copy of a session's state. Correct answers appear
// only in Review, which is filled once the session is submitted.
type Snapshot struct {
	Session    Session        `json:"session"`
	Phase      Phase          `json:"phase"`
	Slots      []SlotView     `json:"slots"`
	Windows    []WindowStatus `json:"windows"`
	CanAdvance bool           `json:"can_advance"`
	Result     *Result        `json:"result,omitempty"`
	Reason     SubmitReason   `json:"submit_reason,omitempty"`
	Review     []ReviewItem   `json:"review,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Snapshot returns the current state of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) sessionLocked() Session {
	s := Session{
		ID:                   c.cfg.ID,
		CandidateID:          c.cfg.CandidateID,
		TestKind:             c.cfg.Blueprint.Kind,
		Subject:              c.cfg.Subject,
		TotalQuestionCount:   c.cfg.Blueprint.TotalQuestions(),
		WindowSize:           c.cfg.Blueprint.WindowSize(),
		WindowCount:          c.cfg.Blueprint.WindowCount(),
		CurrentWindowIndex:   c.current,
		TimeRemainingSeconds: c.countdown.Remaining(),
		Submitted:            c.result != nil,
	}
	if !c.startedAt.IsZero() {
		s.StartedAtEpochMs = c.startedAt.UnixMilli()
	}
	return s
}

func (c *Controller) snapshotLocked() Snapshot {
	slots := c.loader.Slots()
	answers := c.answers.Answers()

	snap := Snapshot{
		Session: c.sessionLocked(),
		Phase:   c.phase,
		Slots:   make([]SlotView, len(slots)),
		Windows: make([]WindowStatus, c.cfg.Blueprint.WindowCount()),
		Reason:  c.reason,
	}

	for i, s := range slots {
		v := SlotView{Slot: i, State: s.State.String(), Bookmarked: c.bookmarks.Has(i)}
		if s.State == SlotLoaded {
			q := s.Question.ForCandidate()
			v.Question = &q
		}
		if opt, ok := answers[i]; ok {
			v.Selected = &opt
		}
		snap.Slots[i] = v
	}

	for w := range snap.Windows {
		view := c.windowViewLocked(w)
		snap.Windows[w] = WindowStatus{
			Index:    w,
			Size:     view.Size,
			Loaded:   view.Loaded,
			Answered: view.Answered,
			Load:     view.Load.String(),
			Complete: view.Complete(),
		}
	}

	if c.phase == PhaseActive {
		cur := c.windowViewLocked(c.current)
		var next *WindowView
		if c.current+1 < c.cfg.Blueprint.WindowCount() {
			v := c.windowViewLocked(c.current + 1)
			next = &v
		}
		snap.CanAdvance = c.policy.CanAdvance(cur, next) && (next != nil || c.policy.SubmitsOnExhaust())
	}

	if c.result != nil {
		r := *c.result
		snap.Result = &r
		snap.Review = Review(slots, answers, c.bookmarks.Has)
	}
	if c.failure != nil {
		snap.Error = c.failure.Error()
	}
	return snap
}

// Subscribe returns a channel that receives a snapshot after every state change.
// Slow readers only see the latest snapshot. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	if c.closed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- c.Snapshot()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// publish pushes the current snapshot to every subscriber. Must be called
// without c.mu held.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.subMu.Lock()
	n := len(c.subs)
	c.subMu.Unlock()
	if n == 0 && c.cfg.Hooks.Publish == nil {
		return
	}

	snap := c.Snapshot()

	c.subMu.Lock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	c.subMu.Unlock()

	if c.cfg.Hooks.Publish != nil {
		c.cfg.Hooks.Publish(snap)
	}
}
