// Package backend is the HTTP client for the IELTS backend that owns exams,
// audio and scoring.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/model"
)

var (
	ErrNotFound     = errors.New("backend: not found")
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrUnexpected   = errors.New("backend: unexpected response")
	ErrUnavailable  = errors.New("backend: unavailable")
)

// Client calls the backend on behalf of a user; every call forwards the
// user's bearer token. There are no retries.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "backend_client").Logger(),
	}
}

type examPayload struct {
	ID       flexString       `json:"id"`
	Title    string           `json:"title"`
	Sections []sectionPayload `json:"sections"`
}

type sectionPayload struct {
	Part      int               `json:"part"`
	Questions []questionPayload `json:"questions"`
}

type questionPayload struct {
	ID      flexString `json:"id"`
	Type    string     `json:"type"`
	Content string     `json:"content"`
}

// Exam fetches the exam structure with every section and question.
func (c *Client) Exam(ctx context.Context, token, examID string) (*model.Exam, error) {
	var p examPayload
	if err := c.getJSON(ctx, token, c.examPath(examID, ""), &p); err != nil {
		return nil, fmt.Errorf("fetch exam: %w", err)
	}

	exam := &model.Exam{ID: string(p.ID), Title: p.Title}
	if exam.ID == "" {
		exam.ID = examID
	}
	for _, s := range p.Sections {
		sec := model.Section{Part: s.Part}
		for _, q := range s.Questions {
			sec.Questions = append(sec.Questions, model.Question{
				ID:      string(q.ID),
				Type:    model.QuestionType(q.Type),
				Content: q.Content,
			})
		}
		exam.Sections = append(exam.Sections, sec)
	}
	return exam, nil
}

// AudioLength fetches the total audio duration formatted MM:SS.
func (c *Client) AudioLength(ctx context.Context, token, examID string) (string, error) {
	var p struct {
		Duration string `json:"duration"`
	}
	if err := c.getJSON(ctx, token, c.examPath(examID, "/audio-length"), &p); err != nil {
		return "", fmt.Errorf("fetch audio length: %w", err)
	}
	return p.Duration, nil
}

// Audio opens the audio stream. The caller closes the response body.
// rangeHeader is forwarded so browsers can seek.
func (c *Client) Audio(ctx context.Context, token, examID, rangeHeader string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.examPath(examID, "/audio"), token, nil)
	if err != nil {
		return nil, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w: %v", ErrUnavailable, err)
	}
	if err := statusError(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	return resp, nil
}

// Submit posts the flat answer map and returns the result id.
func (c *Client) Submit(ctx context.Context, token, examID string, answers map[string]string) (string, error) {
	body, err := json.Marshal(map[string]any{"answers": answers})
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.examPath(examID, "/submit"), token, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var p struct {
		ResultID flexString `json:"result_id"`
	}
	if err := c.do(req, &p); err != nil {
		return "", fmt.Errorf("submit answers: %w", err)
	}
	if p.ResultID == "" {
		return "", fmt.Errorf("submit answers: %w: missing result_id", ErrUnexpected)
	}

	c.log.Info().
		Str("exam_id", examID).
		Int("answers", len(answers)).
		Str("result_id", string(p.ResultID)).
		Msg("Answers submitted to backend")
	return string(p.ResultID), nil
}

func (c *Client) examPath(examID, suffix string) string {
	return "/api/listening/exams/" + url.PathEscape(examID) + suffix
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend call")

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrUnexpected, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: status %d", ErrUnexpected, resp.StatusCode)
	}
}

// flexString accepts a JSON string or number; backend ids come as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
