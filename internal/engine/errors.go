package engine

import "errors"

// Engine errors. Callers match them with errors.Is.
var (
	ErrGenerationFailure  = errors.New("question generation failed")
	ErrSlotNotReady       = errors.New("slot has not been loaded yet")
	ErrSlotOutOfRange     = errors.New("slot index out of range")
	ErrInvalidOption      = errors.New("option index out of range")
	ErrSessionClosed      = errors.New("session is closed")
	ErrSessionFailed      = errors.New("session failed to load its first window")
	ErrPersistenceFailure = errors.New("attempt persistence failed")
	ErrWindowNotComplete  = errors.New("current window is not complete")
	ErrNoNextWindow       = errors.New("no window after the current one")
	ErrWindowOutOfOrder   = errors.New("window requested before its predecessor")
	ErrNoQuestions        = errors.New("no questions delivered for window")
	ErrInvalidDuration    = errors.New("session duration must be positive")
)
