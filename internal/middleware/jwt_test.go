package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/ielts-listening/internal/config"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func protected(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/x", mw, func(c *gin.Context) {
		claims := GetClaims(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID(), "token": claims.Token})
	})
	return r
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil {
		t.Fatalf("no error in %s", w.Body.String())
	}
	return body.Error.Code
}

func TestRequireJWT(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret})
	r := protected(RequireJWT(auth))

	valid := sign(t, jwt.SigningMethodHS256, []byte(testSecret), "u-1", time.Now().Add(time.Hour))
	expired := sign(t, jwt.SigningMethodHS256, []byte(testSecret), "u-1", time.Now().Add(-time.Minute))
	foreign := sign(t, jwt.SigningMethodHS256, []byte("other"), "u-1", time.Now().Add(time.Hour))
	anonymous := sign(t, jwt.SigningMethodHS256, []byte(testSecret), "", time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		target string
		header string
		status int
		code   response.ErrCode
	}{
		{"missing", "/x", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"malformed header", "/x", "Token abc", http.StatusUnauthorized, response.ErrTokenRequired},
		{"expired", "/x", "Bearer " + expired, http.StatusUnauthorized, response.ErrTokenExpired},
		{"wrong secret", "/x", "Bearer " + foreign, http.StatusUnauthorized, response.ErrTokenInvalid},
		{"no subject", "/x", "Bearer " + anonymous, http.StatusUnauthorized, response.ErrTokenInvalid},
		{"bearer", "/x", "Bearer " + valid, http.StatusOK, ""},
		{"lowercase scheme", "/x", "bearer " + valid, http.StatusOK, ""},
		{"query fallback", "/x?token=" + valid, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if got := errCode(t, w); got != tt.code {
					t.Errorf("code = %s, want %s", got, tt.code)
				}
				return
			}
			var body struct {
				User  string `json:"user"`
				Token string `json:"token"`
			}
			json.Unmarshal(w.Body.Bytes(), &body)
			if body.User != "u-1" || body.Token != valid {
				t.Errorf("claims = %+v", body)
			}
		})
	}
}

func TestRequireWSAuthNeedsQueryToken(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret})
	r := protected(RequireWSAuth(auth))
	valid := sign(t, jwt.SigningMethodHS256, []byte(testSecret), "u-2", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || errCode(t, w) != response.ErrTokenRequired {
		t.Fatalf("header token accepted: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?token="+valid, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestRateLimiterKeysByUser(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: testSecret})
	rl := NewRateLimiter(2, time.Hour)

	r := gin.New()
	r.POST("/submit", RequireJWT(auth), rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	post := func(tok string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	alice := sign(t, jwt.SigningMethodHS256, []byte(testSecret), "alice", time.Now().Add(time.Hour))
	bob := sign(t, jwt.SigningMethodHS256, []byte(testSecret), "bob", time.Now().Add(time.Hour))

	for i := 0; i < 2; i++ {
		if code := post(alice); code != http.StatusNoContent {
			t.Fatalf("call %d = %d", i, code)
		}
	}
	if code := post(alice); code != http.StatusTooManyRequests {
		t.Errorf("third call = %d, want 429", code)
	}
	if code := post(bob); code != http.StatusNoContent {
		t.Errorf("other user limited: %d", code)
	}
}
