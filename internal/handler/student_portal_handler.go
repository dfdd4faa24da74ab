package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/middleware"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/response"
	"github.com/rurallearn/rurallearn-backend/internal/service"
	"github.com/rurallearn/rurallearn-backend/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints: papers, proctored
// sessions, quizzes and attempt history.
type StudentPortalHandler struct {
	testService    *service.TestService
	sessionService *service.TestSessionService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	testService *service.TestService,
	sessionService *service.TestSessionService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		testService:    testService,
		sessionService: sessionService,
		attemptService: attemptService,
		log:            log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/student/tests/:id
// Returns the test without correct answers.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	paper, err := h.testService.Paper(c.Request.Context(), testID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": paper})
}

// IssueSession godoc
// POST /api/v1/student/tests/:id/sessions
// Creates a session in the created state for a mock test.
func (h *StudentPortalHandler) IssueSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	sess, err := h.sessionService.Issue(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// GetSession godoc
// GET /api/v1/student/sessions/:id
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	sess, err := h.sessionService.Get(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// StartSession godoc
// POST /api/v1/student/sessions/:id/start
// Moves the session to running and returns its deadline and anti-cheat policy.
func (h *StudentPortalHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	res, err := h.sessionService.Start(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// LogInfraction godoc
// POST /api/v1/student/sessions/:id/infractions
// Records a proctoring violation; reaching the limit submits the session.
func (h *StudentPortalHandler) LogInfraction(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.InfractionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.LogInfraction(c.Request.Context(), sessionID, claims.UserID, req.Type, req.Timestamp)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SaveAnswers godoc
// PUT /api/v1/student/sessions/:id/answers
// Autosaves in-progress answers of a running session.
func (h *StudentPortalHandler) SaveAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answers := model.ToAnswers(req.Answers)
	if err := h.sessionService.Autosave(c.Request.Context(), sessionID, claims.UserID, answers); err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": len(answers)})
}

// SubmitSession godoc
// POST /api/v1/student/sessions/:id/submit
// Grades the final answers and closes the session.
func (h *StudentPortalHandler) SubmitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.Submit(c.Request.Context(), sessionID, claims.UserID, model.ToAnswers(req.Answers))
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitQuiz godoc
// POST /api/v1/student/quizzes/:id/submit
func (h *StudentPortalHandler) SubmitQuiz(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	quizID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attemptService.SubmitQuiz(c.Request.Context(), quizID, claims.UserID, model.ToAnswers(req.Answers))
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, res)
}

// ListAttempts godoc
// GET /api/v1/student/attempts?page=1&per_page=10
func (h *StudentPortalHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	attempts, pagination, err := h.attemptService.List(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:id
func (h *StudentPortalHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
