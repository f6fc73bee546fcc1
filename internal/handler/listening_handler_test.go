package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/backend"
	"github.com/stemsi/ielts-listening/internal/cache"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/middleware"
	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/render"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
	"github.com/stemsi/ielts-listening/internal/session"
	"github.com/stemsi/ielts-listening/internal/store"
	"github.com/stemsi/ielts-listening/internal/validator"
)

const testSecret = "handler-secret"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type stubBackend struct{}

func (stubBackend) Exam(_ context.Context, _ string, examID string) (*model.Exam, error) {
	if examID != "7" {
		return nil, backend.ErrNotFound
	}
	blanks := `<p><strong>1</strong> Name: <input type="text"></p>
<p><strong>2</strong> Street: <input type="text"></p>`
	qs := []model.Question{{ID: "c1", Type: model.QuestionTypeMainText, Content: blanks}}
	for n := 1; n <= 8; n++ {
		qs = append(qs, model.Question{ID: fmt.Sprint(n), Type: model.QuestionTypeFillBlank})
	}
	return &model.Exam{
		ID:       "7",
		Title:    "Practice Test",
		Sections: []model.Section{{Part: 1, Questions: qs}},
	}, nil
}

func (stubBackend) AudioLength(context.Context, string, string) (string, error) {
	return "30:00", nil
}

func (stubBackend) Audio(_ context.Context, _ string, _ string, rangeHeader string) (*http.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Accept-Ranges", "bytes")
	status := http.StatusOK
	if rangeHeader != "" {
		status = http.StatusPartialContent
		h.Set("Content-Range", "bytes 0-3/100")
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader("ID3x"))}, nil
}

func (stubBackend) Submit(context.Context, string, string, map[string]string) (string, error) {
	return "result-1", nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc := service.NewListeningService(stubBackend{}, cache.NewMemory(), nil, nil,
		service.ListeningOptions{GracePeriod: time.Minute, TickInterval: time.Hour}, zerolog.Nop())
	t.Cleanup(svc.Shutdown)

	h := NewListeningHandler(svc, zerolog.Nop())
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret})

	r := gin.New()
	g := r.Group("/exams/:exam_id", middleware.RequireJWT(auth))
	g.POST("/open", h.OpenExam)
	g.DELETE("", h.CloseExam)
	g.GET("/status", h.GetStatus)
	g.GET("/parts/:part", h.GetPart)
	g.GET("/progress", h.GetProgress)
	g.PUT("/answers/:number", h.SetAnswer)
	g.POST("/checkbox", h.ToggleCheckbox)
	g.POST("/hard/:number", h.ToggleHard)
	g.POST("/highlights", h.AddHighlight)
	g.GET("/highlights", h.ListHighlights)
	g.POST("/submit", h.SubmitExam)
	g.GET("/audio", h.StreamAudio)
	r.GET("/attempts", middleware.RequireJWT(auth), h.ListAttempts)
	return r
}

func bearer(t *testing.T, user string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

type result struct {
	status int
	body   response.Response
	raw    []byte
	header http.Header
}

func (r result) data(t *testing.T, v interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func (r result) code() response.ErrCode {
	if r.body.Error == nil {
		return ""
	}
	return r.body.Error.Code
}

func send(t *testing.T, r *gin.Engine, auth, method, path, body string) result {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	res := result{status: w.Code, raw: w.Body.Bytes(), header: w.Header()}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		json.Unmarshal(res.raw, &res.body)
	}
	return res
}

func TestListeningEndpoints(t *testing.T) {
	r := newTestRouter(t)
	u := bearer(t, "u1")

	if res := send(t, r, u, http.MethodGet, "/exams/7/status", ""); res.status != http.StatusNotFound || res.code() != response.ErrNoAttempt {
		t.Fatalf("status before open = %d %s", res.status, res.code())
	}

	res := send(t, r, u, http.MethodPost, "/exams/7/open", "")
	if res.status != http.StatusOK {
		t.Fatalf("open = %d: %s", res.status, res.raw)
	}
	var view service.ExamView
	res.data(t, &view)
	if view.ExamID != "7" || view.AudioDuration != "30:00" || view.Status.State != session.StateNotStarted {
		t.Errorf("view = %+v", view)
	}

	res = send(t, r, u, http.MethodGet, "/exams/7/parts/1", "")
	if res.status != http.StatusOK {
		t.Fatalf("part = %d: %s", res.status, res.raw)
	}
	var part service.PartView
	res.data(t, &part)
	if part.Start != 1 || part.End != 10 || !strings.Contains(part.HTML, "<input") {
		t.Errorf("part = %+v", part)
	}

	res = send(t, r, u, http.MethodPut, "/exams/7/answers/2", `{"value":"Baker Street"}`)
	if res.status != http.StatusOK {
		t.Fatalf("answer = %d: %s", res.status, res.raw)
	}
	var saved struct {
		Changed  bool `json:"changed"`
		Progress struct {
			Answered int `json:"answered"`
		} `json:"progress"`
	}
	res.data(t, &saved)
	if !saved.Changed || saved.Progress.Answered != 1 {
		t.Errorf("saved = %+v", saved)
	}

	res = send(t, r, u, http.MethodPost, "/exams/7/hard/2", "")
	var hard struct {
		Hard bool `json:"hard"`
	}
	res.data(t, &hard)
	if res.status != http.StatusOK || !hard.Hard {
		t.Errorf("hard = %d %+v", res.status, hard)
	}

	if res := send(t, r, u, http.MethodPost, "/exams/7/submit", ""); res.status != http.StatusConflict || res.code() != response.ErrNotStarted {
		t.Errorf("submit before start = %d %s", res.status, res.code())
	}

	res = send(t, r, u, http.MethodPost, "/exams/7/highlights", `{"part":1,"text":"Baker"}`)
	if res.status != http.StatusCreated {
		t.Fatalf("highlight = %d: %s", res.status, res.raw)
	}
	res = send(t, r, u, http.MethodGet, "/exams/7/highlights?part=1", "")
	var list struct {
		Highlights []model.Highlight `json:"highlights"`
	}
	res.data(t, &list)
	if len(list.Highlights) != 1 || list.Highlights[0].Text != "Baker" {
		t.Errorf("highlights = %+v", list.Highlights)
	}

	if res := send(t, r, u, http.MethodDelete, "/exams/7", ""); res.status != http.StatusOK {
		t.Errorf("close = %d: %s", res.status, res.raw)
	}
	if res := send(t, r, u, http.MethodGet, "/exams/7/progress", ""); res.status != http.StatusNotFound {
		t.Errorf("progress after close = %d", res.status)
	}
}

func TestListeningRequestValidation(t *testing.T) {
	r := newTestRouter(t)
	u := bearer(t, "u2")

	if res := send(t, r, "", http.MethodPost, "/exams/7/open", ""); res.status != http.StatusUnauthorized {
		t.Errorf("no token = %d", res.status)
	}
	if res := send(t, r, u, http.MethodPost, "/exams/99/open", ""); res.status != http.StatusNotFound || res.code() != response.ErrExamNotAvailable {
		t.Errorf("unknown exam = %d %s", res.status, res.code())
	}
	if res := send(t, r, u, http.MethodPost, "/exams/7/open", ""); res.status != http.StatusOK {
		t.Fatalf("open = %d: %s", res.status, res.raw)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   response.ErrCode
	}{
		{"bad number", http.MethodPut, "/exams/7/answers/x", `{"value":"a"}`, http.StatusBadRequest, response.ErrInvalidID},
		{"bad json", http.MethodPut, "/exams/7/answers/1", `{`, http.StatusBadRequest, response.ErrValidation},
		{"unresolved number", http.MethodPut, "/exams/7/answers/9", `{"value":"a"}`, http.StatusUnprocessableEntity, response.ErrUnresolvedNumber},
		{"part out of range", http.MethodGet, "/exams/7/parts/5", "", http.StatusBadRequest, response.ErrInvalidPart},
		{"checkbox missing value", http.MethodPost, "/exams/7/checkbox", `{"start":21}`, http.StatusBadRequest, response.ErrValidation},
		{"blank highlight", http.MethodPost, "/exams/7/highlights", `{"part":1,"text":"   "}`, http.StatusBadRequest, response.ErrValidation},
		{"bad limit", http.MethodGet, "/attempts?limit=500", "", http.StatusBadRequest, response.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := send(t, r, u, tt.method, tt.path, tt.body)
			if res.status != tt.status || res.code() != tt.code {
				t.Errorf("got %d %s, want %d %s: %s", res.status, res.code(), tt.status, tt.code, res.raw)
			}
		})
	}

	res := send(t, r, u, http.MethodPost, "/exams/7/highlights", `{"part":1,"text":"   "}`)
	if _, ok := res.body.Error.Fields["text"]; !ok {
		t.Errorf("fields = %v", res.body.Error.Fields)
	}

	res = send(t, r, u, http.MethodGet, "/attempts", "")
	var history struct {
		Attempts []model.ListeningAttempt `json:"attempts"`
	}
	res.data(t, &history)
	if res.status != http.StatusOK || history.Attempts == nil {
		t.Errorf("attempts = %d %s", res.status, res.raw)
	}
}

func TestStreamAudioPassesRange(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/exams/7/audio", nil)
	req.Header.Set("Authorization", bearer(t, "u3"))
	req.Header.Set("Range", "bytes=0-3")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Content-Range") != "bytes 0-3/100" || w.Body.String() != "ID3x" {
		t.Errorf("headers = %v body = %q", w.Header(), w.Body.String())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{fmt.Errorf("open: %w", service.ErrNoAttempt), http.StatusNotFound, response.ErrNoAttempt},
		{service.ErrWrongInteraction, http.StatusUnprocessableEntity, response.ErrWrongInteraction},
		{render.ErrUnknownOption, http.StatusUnprocessableEntity, response.ErrUnknownOption},
		{session.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
		{store.ErrFrozen, http.StatusConflict, response.ErrSubmitting},
		{fmt.Errorf("%w: dial tcp", backend.ErrUnavailable), http.StatusBadGateway, response.ErrBackendUnavailable},
		{context.DeadlineExceeded, http.StatusBadGateway, response.ErrBackendUnavailable},
		{backend.ErrUnauthorized, http.StatusUnauthorized, response.ErrBackendUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}
