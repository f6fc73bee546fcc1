package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/middleware"
	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
	"github.com/stemsi/ielts-listening/internal/validator"
)

// ListeningHandler handles the exam-taking endpoints.
type ListeningHandler struct {
	listeningService *service.ListeningService
	log              zerolog.Logger
}

// NewListeningHandler creates a new ListeningHandler.
func NewListeningHandler(listeningService *service.ListeningService, log zerolog.Logger) *ListeningHandler {
	return &ListeningHandler{
		listeningService: listeningService,
		log:              log.With().Str("component", "listening_handler").Logger(),
	}
}

// requireUser returns the caller's claims and the exam id, or writes the
// failure and returns nil.
func requireUser(c *gin.Context) (*service.Claims, string) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, ""
	}
	examID := c.Param("exam_id")
	if examID == "" || len(examID) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, ""
	}
	return claims, examID
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return n, true
}

// OpenExam godoc
// POST /api/v1/listening/exams/:exam_id/open
// Loads the exam and restores saved answers. Reopening returns the live attempt.
func (h *ListeningHandler) OpenExam(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	view, err := h.listeningService.Open(c.Request.Context(), claims.UserID(), claims.Token, examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// StartExam godoc
// POST /api/v1/listening/exams/:exam_id/start
// Starts playback and the countdown.
func (h *ListeningHandler) StartExam(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	status, err := h.listeningService.Start(claims.UserID(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// GetStatus godoc
// GET /api/v1/listening/exams/:exam_id/status
func (h *ListeningHandler) GetStatus(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	status, err := h.listeningService.Status(claims.UserID(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// GetPart godoc
// GET /api/v1/listening/exams/:exam_id/parts/:part
// Returns the interactive markup of one part.
func (h *ListeningHandler) GetPart(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}
	part, ok := intParam(c, "part")
	if !ok {
		return
	}

	view, err := h.listeningService.Part(c.Request.Context(), claims.UserID(), examID, part)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SetAnswer godoc
// PUT /api/v1/listening/exams/:exam_id/answers/:number
// Answers a blank, multiple-choice or table-radio question by display number.
func (h *ListeningHandler) SetAnswer(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}
	number, ok := intParam(c, "number")
	if !ok {
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.listeningService.SetAnswer(c.Request.Context(), claims.UserID(), examID, number, req.Value); err != nil {
		h.fail(c, err)
		return
	}
	h.progress(c, claims.UserID(), examID, true)
}

// ToggleCheckbox godoc
// POST /api/v1/listening/exams/:exam_id/checkbox
func (h *ListeningHandler) ToggleCheckbox(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	var req model.CheckboxToggleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	changed, err := h.listeningService.ToggleCheckbox(c.Request.Context(), claims.UserID(), examID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.progress(c, claims.UserID(), examID, changed)
}

// Drag godoc
// POST /api/v1/listening/exams/:exam_id/drag
func (h *ListeningHandler) Drag(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	var req model.DragRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.listeningService.Drag(c.Request.Context(), claims.UserID(), examID, req); err != nil {
		h.fail(c, err)
		return
	}
	h.progress(c, claims.UserID(), examID, true)
}

// progress replies to an answer change with the refreshed navigation bar.
func (h *ListeningHandler) progress(c *gin.Context, userID, examID string, changed bool) {
	rep, err := h.listeningService.Progress(userID, examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"changed": changed, "progress": rep})
}

// ToggleHard godoc
// POST /api/v1/listening/exams/:exam_id/hard/:number
func (h *ListeningHandler) ToggleHard(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}
	number, ok := intParam(c, "number")
	if !ok {
		return
	}

	hard, err := h.listeningService.ToggleHard(claims.UserID(), examID, number)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"number": number, "hard": hard})
}

// GetProgress godoc
// GET /api/v1/listening/exams/:exam_id/progress
func (h *ListeningHandler) GetProgress(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	rep, err := h.listeningService.Progress(claims.UserID(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rep)
}

// ListHighlights godoc
// GET /api/v1/listening/exams/:exam_id/highlights?part=N
func (h *ListeningHandler) ListHighlights(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}
	part, _ := strconv.Atoi(c.DefaultQuery("part", "0"))

	list, err := h.listeningService.Highlights(c.Request.Context(), claims.UserID(), examID, part)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []model.Highlight{}
	}
	response.Success(c, http.StatusOK, gin.H{"highlights": list})
}

// AddHighlight godoc
// POST /api/v1/listening/exams/:exam_id/highlights
func (h *ListeningHandler) AddHighlight(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	var req model.AddHighlightRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	hl, err := h.listeningService.AddHighlight(c.Request.Context(), claims.UserID(), examID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, hl)
}

// DeleteHighlight godoc
// DELETE /api/v1/listening/exams/:exam_id/highlights/:highlight_id
func (h *ListeningHandler) DeleteHighlight(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	if err := h.listeningService.RemoveHighlight(c.Request.Context(), claims.UserID(), examID, c.Param("highlight_id")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Highlight removed"})
}

// SubmitExam godoc
// POST /api/v1/listening/exams/:exam_id/submit
// Manual submission. Allowed once the audio time is over.
func (h *ListeningHandler) SubmitExam(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	resultID, err := h.listeningService.Submit(c.Request.Context(), claims.UserID(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result_id": resultID})
}

// CloseExam godoc
// DELETE /api/v1/listening/exams/:exam_id
// Leaves the exam page. Saved answers are kept for the next visit.
func (h *ListeningHandler) CloseExam(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	if err := h.listeningService.Close(claims.UserID(), examID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Exam closed"})
}

// StreamAudio godoc
// GET /api/v1/listening/exams/:exam_id/audio
// Proxies the exam audio from the backend, passing Range through for seeking.
func (h *ListeningHandler) StreamAudio(c *gin.Context) {
	claims, examID := requireUser(c)
	if claims == nil {
		return
	}

	resp, err := h.listeningService.Audio(c.Request.Context(), claims.Token, examID, c.GetHeader("Range"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer resp.Body.Close()

	for _, k := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "ETag", "Last-Modified"} {
		if v := resp.Header.Get(k); v != "" {
			c.Header(k, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		h.log.Debug().Err(err).Str("exam_id", examID).Msg("Audio stream interrupted")
	}
}

// ListAttempts godoc
// GET /api/v1/listening/attempts?limit=N
// Returns the caller's submitted attempts, newest first.
func (h *ListeningHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"limit": "limit must be between 1 and 100"})
		return
	}

	attempts, err := h.listeningService.History(c.Request.Context(), claims.UserID(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.ListeningAttempt{}
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
