package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ----------------------------------------------------------------------------
// RequestID
// ----------------------------------------------------------------------------

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"generates when missing", "", false},
		{"keeps client id", "client-req-1", true},
		{"replaces oversized id", strings.Repeat("x", MaxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			r := gin.New()
			r.Use(RequestID())
			r.GET("/", func(c *gin.Context) {
				seen = GetRequestID(c)
				c.Status(http.StatusOK)
			})

			h := http.Header{}
			if tt.header != "" {
				h.Set(HeaderRequestID, tt.header)
			}
			w := perform(r, http.MethodGet, "/", h)

			got := w.Header().Get(HeaderRequestID)
			assert.Equal(t, seen, got)
			if tt.wantSame {
				assert.Equal(t, tt.header, got)
				return
			}
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestGetRequestID_TruncatesHeader(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(HeaderRequestID, strings.Repeat("a", 300))

	assert.Len(t, GetRequestID(c), MaxRequestIDLength)
}

// ----------------------------------------------------------------------------
// Secure
// ----------------------------------------------------------------------------

func TestSecure(t *testing.T) {
	r := gin.New()
	r.Use(Secure())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

// ----------------------------------------------------------------------------
// Timeout
// ----------------------------------------------------------------------------

func TestTimeout(t *testing.T) {
	t.Run("sets a deadline", func(t *testing.T) {
		var deadline time.Time
		var ok bool
		r := gin.New()
		r.Use(Timeout(time.Minute))
		r.GET("/", func(c *gin.Context) {
			deadline, ok = c.Request.Context().Deadline()
			c.Status(http.StatusOK)
		})

		w := perform(r, http.MethodGet, "/", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	})

	t.Run("answers 504 when the handler gave up", func(t *testing.T) {
		r := gin.New()
		r.Use(Timeout(10 * time.Millisecond))
		r.GET("/", func(c *gin.Context) {
			<-c.Request.Context().Done()
		})

		w := perform(r, http.MethodGet, "/", nil)

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})

	t.Run("zero disables", func(t *testing.T) {
		var ctx context.Context
		r := gin.New()
		r.Use(Timeout(0))
		r.GET("/", func(c *gin.Context) {
			ctx = c.Request.Context()
			c.Status(http.StatusOK)
		})

		perform(r, http.MethodGet, "/", nil)

		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})
}
