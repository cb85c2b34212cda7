package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// Authorization
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"

	// Validation
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownSubject ErrCode = "UNKNOWN_SUBJECT"

	// Sessions
	ErrSessionNotFound      ErrCode = "SESSION_NOT_FOUND"
	ErrSessionAlreadyActive ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionClosed        ErrCode = "SESSION_CLOSED"
	ErrSessionFailed        ErrCode = "SESSION_FAILED"
	ErrSlotNotReady         ErrCode = "SLOT_NOT_READY"
	ErrSlotOutOfRange       ErrCode = "SLOT_OUT_OF_RANGE"
	ErrInvalidOption        ErrCode = "INVALID_OPTION"
	ErrWindowNotComplete    ErrCode = "WINDOW_NOT_COMPLETE"
	ErrNoNextWindow         ErrCode = "NO_NEXT_WINDOW"
	ErrGenerationFailed     ErrCode = "GENERATION_FAILED"

	// Rate limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrTokenRequired: "An authentication token is required.",
	ErrTokenInvalid:  "The authentication token is invalid or expired.",

	ErrForbidden:           "You are not allowed to access this resource.",
	ErrCandidateAccessOnly: "This resource is restricted to candidates.",
	ErrAdminAccessOnly:     "This resource is restricted to administrators.",

	ErrValidation:     "The request failed validation.",
	ErrInvalidID:      "The ID format is invalid.",
	ErrInvalidPayload: "The request payload is invalid.",
	ErrUnknownSubject: "The subject is not offered.",

	ErrSessionNotFound:      "The test session was not found.",
	ErrSessionAlreadyActive: "You already have a test in progress.",
	ErrSessionClosed:        "The test has been submitted and no longer accepts changes.",
	ErrSessionFailed:        "The test could not be prepared. Please try again.",
	ErrSlotNotReady:         "This question has not loaded yet.",
	ErrSlotOutOfRange:       "The question number is out of range.",
	ErrInvalidOption:        "The selected option does not exist.",
	ErrWindowNotComplete:    "Answer every question in this section before moving on.",
	ErrNoNextWindow:         "This is the last section.",
	ErrGenerationFailed:     "Questions could not be generated.",

	ErrRateLimitExceeded: "Too many requests. Please slow down.",

	ErrNotFound: "The resource was not found.",
	ErrInternal: "An internal server error occurred.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unknown error occurred."
}
