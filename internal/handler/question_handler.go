package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stemsi/exstem-prep/internal/validator"
)

// QuestionHandler handles static question pool administration.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// SeedQuestions godoc
// POST /api/v1/admin/questions
// Bulk inserts questions into the static pool.
func (h *QuestionHandler) SeedQuestions(c *gin.Context) {
	var req model.SeedQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = q.ToQuestion()
	}

	n, err := h.questionService.Seed(c.Request.Context(), questions)
	if err != nil {
		reqLog := response.RequestLogger(c, h.log)
		reqLog.Error().Err(err).Msg("Seeding static pool failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"inserted": n})
}

// CountQuestions godoc
// GET /api/v1/admin/questions/counts
// Lists the static pool size per subject.
func (h *QuestionHandler) CountQuestions(c *gin.Context) {
	counts, err := h.questionService.Counts(c.Request.Context())
	if err != nil {
		reqLog := response.RequestLogger(c, h.log)
		reqLog.Error().Err(err).Msg("Counting static pool failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"counts": counts})
}
