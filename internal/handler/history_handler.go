package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stemsi/exstem-prep/internal/validator"
)

// HistoryHandler serves a candidate's past attempts and bookmarks.
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

type attemptsQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}

type bookmarksQuery struct {
	Subject string `form:"subject" binding:"omitempty,max=100"`
}

// ListAttempts godoc
// GET /api/v1/candidate/attempts?page=1&per_page=10
func (h *HistoryHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var q attemptsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempts, pagination, err := h.historyService.ListAttempts(c.Request.Context(), claims.UserID, q.Page, q.PerPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}

// ListBookmarks godoc
// GET /api/v1/candidate/bookmarks?subject=Physics
func (h *HistoryHandler) ListBookmarks(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var q bookmarksQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	bookmarks, err := h.historyService.ListBookmarks(c.Request.Context(), claims.UserID, q.Subject)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookmarks": bookmarks})
}
