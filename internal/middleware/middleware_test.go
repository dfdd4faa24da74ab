package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeValidator map[string]*service.Claims

func (f fakeValidator) ValidateAccessToken(token string) (*service.Claims, error) {
	if token == "expired" {
		return nil, fmt.Errorf("parse token: %w", jwt.ErrTokenExpired)
	}
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("signature is invalid")
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func TestRequireAuthAndRole(t *testing.T) {
	tokens := fakeValidator{
		"student": {UserID: uuid.New(), Role: model.RoleStudent},
		"teacher": {UserID: uuid.New(), Role: model.RoleTeacher},
	}

	r := gin.New()
	r.GET("/student", RequireAuth(tokens), RequireRole(model.RoleStudent), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).UserID.String())
	})

	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantErr  string
	}{
		{"missing token", "", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"expired token", "Bearer expired", "", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"invalid token", "Bearer garbage", "", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"wrong scheme", "Basic student", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"wrong role", "Bearer teacher", "", http.StatusForbidden, "STUDENT_ACCESS_ONLY"},
		{"bearer header", "bearer student", "", http.StatusOK, ""},
		{"query fallback", "", "?token=student", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/student"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errorCode(t, w))
			} else {
				assert.Equal(t, tokens["student"].UserID.String(), w.Body.String())
			}
		})
	}
}

func TestRateLimiter_PassThrough(t *testing.T) {
	limited := func(rl *RateLimiter) *gin.Engine {
		r := gin.New()
		r.POST("/login", rl.Middleware("login"), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("nil client", func(t *testing.T) {
		r := limited(NewRateLimiter(nil, 1, time.Minute, zerolog.Nop()))
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("redis unreachable fails open", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			MaxRetries:  -1,
			DialTimeout: 100 * time.Millisecond,
		})
		defer rdb.Close()

		r := limited(NewRateLimiter(rdb, 1, time.Minute, zerolog.Nop()))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
