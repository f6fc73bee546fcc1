package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/model"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 2*time.Second, zerolog.Nop())
}

func TestExamDecodesNumericIDs(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/listening/exams/7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		io.WriteString(w, `{"id":7,"title":"Mock 1","sections":[{"part":1,"questions":[
			{"id":101,"type":"main_text","content":"<p>Questions 1-10</p>"},
			{"id":"q-2","type":"fill_blank","content":""}]}]}`)
	})

	exam, err := c.Exam(context.Background(), "tok", "7")
	if err != nil {
		t.Fatalf("exam: %v", err)
	}
	if exam.ID != "7" || exam.Title != "Mock 1" || len(exam.Sections) != 1 {
		t.Fatalf("exam = %+v", exam)
	}
	qs := exam.Sections[0].Questions
	if qs[0].ID != "101" || qs[0].Type != model.QuestionTypeMainText || qs[1].ID != "q-2" {
		t.Errorf("questions = %+v", qs)
	}
}

func TestAudioLength(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"duration":"32:15"}`)
	})
	d, err := c.AudioLength(context.Background(), "tok", "7")
	if err != nil || d != "32:15" {
		t.Fatalf("duration = %q, %v", d, err)
	}
}

func TestSubmitPostsFlatAnswers(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/listening/exams/7/submit" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Answers map[string]string `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Answers["101"] != "library" || len(body.Answers) != 2 {
			t.Errorf("answers = %v", body.Answers)
		}
		io.WriteString(w, `{"result_id":991}`)
	})

	id, err := c.Submit(context.Background(), "tok", "7", map[string]string{"101": "library", "102": ""})
	if err != nil || id != "991" {
		t.Fatalf("result = %q, %v", id, err)
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadGateway, ErrUnexpected},
	}
	for _, tc := range tests {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		if _, err := c.Exam(context.Background(), "tok", "7"); !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestSubmitRequiresResultID(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	if _, err := c.Submit(context.Background(), "tok", "7", nil); !errors.Is(err, ErrUnexpected) {
		t.Errorf("err = %v", err)
	}
}

func TestAudioForwardsRange(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-3" {
			t.Errorf("range = %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, "ID3!")
	})

	resp, err := c.Audio(context.Background(), "tok", "7", "bytes=0-3")
	if err != nil {
		t.Fatalf("audio: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusPartialContent || string(b) != "ID3!" {
		t.Errorf("status=%d body=%q", resp.StatusCode, b)
	}
}
