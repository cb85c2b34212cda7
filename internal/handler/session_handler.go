package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stemsi/exstem-prep/internal/validator"
)

// SessionHandler handles the candidate's test session endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/candidate/sessions
// Starts a full or subject test and returns its first snapshot.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.sessionService.Start(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"snapshot": ctrl.Snapshot()})
}

// GetSession godoc
// GET /api/v1/candidate/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
}

// SelectOption godoc
// POST /api/v1/candidate/sessions/:session_id/answers
// Records or replaces the answer of one slot.
func (h *SessionHandler) SelectOption(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.SelectOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.SelectOption(*req.Slot, *req.Option); err != nil {
		h.failWithSnapshot(c, ctrl, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slot": *req.Slot, "option": *req.Option})
}

// AdvanceWindow godoc
// POST /api/v1/candidate/sessions/:session_id/advance
// Moves to the next window. Advancing past the last gated window submits the test.
func (h *SessionHandler) AdvanceWindow(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if _, err := ctrl.AdvanceWindow(); err != nil {
		h.failWithSnapshot(c, ctrl, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
}

// Submit godoc
// POST /api/v1/candidate/sessions/:session_id/submit
// Submits the test. Repeated calls return the first result.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	if _, err := ctrl.Submit(engine.SubmitReasonCandidate); err != nil {
		h.failWithSnapshot(c, ctrl, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
}

// ToggleBookmark godoc
// POST /api/v1/candidate/sessions/:session_id/bookmarks
func (h *SessionHandler) ToggleBookmark(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req model.BookmarkRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	on, err := ctrl.ToggleBookmark(*req.Slot)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slot": *req.Slot, "bookmarked": on})
}

// LeaveSession godoc
// DELETE /api/v1/candidate/sessions/:session_id
// Leaves the session. An unsubmitted test is submitted first.
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.sessionService.Leave(claims.UserID, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// controller resolves the session in the path, writing the failure response itself.
func (h *SessionHandler) controller(c *gin.Context) (*engine.Controller, bool) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	ctrl, err := h.sessionService.Get(claims.UserID, sessionID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code := sessionError(err)
	if status >= http.StatusInternalServerError {
		reqLog := response.RequestLogger(c, h.log)
		reqLog.Error().Err(err).Str("path", c.FullPath()).Msg("Session request failed")
	}
	response.Fail(c, status, code)
}

// failWithSnapshot attaches the snapshot the command was rejected against so
// the client can resync.
func (h *SessionHandler) failWithSnapshot(c *gin.Context, ctrl *engine.Controller, err error) {
	status, code := sessionError(err)
	if status >= http.StatusInternalServerError {
		reqLog := response.RequestLogger(c, h.log)
		reqLog.Error().Err(err).Str("path", c.FullPath()).Msg("Session command failed")
	}
	response.FailWithData(c, status, code, gin.H{"snapshot": ctrl.Snapshot()})
}
