package model

import (
	"time"

	"github.com/google/uuid"
)

// TestKind distinguishes full multi-subject tests from single-subject tests.
type TestKind string

const (
	TestKindFull    TestKind = "FULL"
	TestKindSubject TestKind = "SUBJECT"
)

// StartSessionRequest is the payload for starting a test attempt.
type StartSessionRequest struct {
	TestKind TestKind `json:"test_kind" binding:"required,oneof=FULL SUBJECT"`
	Subject  string   `json:"subject" binding:"required_if=TestKind SUBJECT,max=100"`
}

// SelectOptionRequest records an answer for one slot.
type SelectOptionRequest struct {
	Slot   *int `json:"slot" binding:"required,min=0"`
	Option *int `json:"option" binding:"required,min=0,max=3"`
}

// BookmarkRequest toggles a bookmark on one slot.
type BookmarkRequest struct {
	Slot *int `json:"slot" binding:"required,min=0"`
}

// Attempt is the persisted summary of a finished test.
type Attempt struct {
	ID              int64     `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	CandidateID     int       `json:"candidate_id"`
	TestKind        TestKind  `json:"test_kind"`
	Subject         *string   `json:"subject,omitempty"`
	Score           int       `json:"score"`
	Total           int       `json:"total"`
	Accuracy        int       `json:"accuracy"`
	DurationMinutes int       `json:"duration_minutes"`
	SubmitReason    string    `json:"submit_reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// Bookmark is a question a candidate flagged for later review.
type Bookmark struct {
	ID          int64     `json:"id"`
	CandidateID int       `json:"candidate_id"`
	Question    Question  `json:"question"`
	CreatedAt   time.Time `json:"created_at"`
}
