package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func reqWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginPolicyAllow(t *testing.T) {
	p := NewOriginPolicy("https://app.example.com, http://localhost:3000/")

	assert.True(t, p.Allow(reqWithOrigin("https://app.example.com")))
	assert.True(t, p.Allow(reqWithOrigin("HTTPS://APP.example.com")))
	assert.True(t, p.Allow(reqWithOrigin("http://localhost:3000")))
	assert.True(t, p.Allow(reqWithOrigin("")))
	assert.False(t, p.Allow(reqWithOrigin("https://evil.example.com")))
	assert.False(t, p.Allow(reqWithOrigin("http://localhost:3001")))
}

func TestOriginPolicyWildcardAndUpdate(t *testing.T) {
	p := NewOriginPolicy("*")
	assert.True(t, p.Allow(reqWithOrigin("https://anything.example")))

	p.Update("https://only.example")
	assert.False(t, p.Allow(reqWithOrigin("https://anything.example")))
	assert.True(t, p.Allow(reqWithOrigin("https://only.example")))
}

func TestOriginMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var reasons []string
	r := gin.New()
	r.GET("/ws", Origin(NewOriginPolicy("https://ok.example"), func(reason string) {
		reasons = append(reasons, reason)
	}), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, reqWithOrigin("https://bad.example"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []string{"origin"}, reasons)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, reqWithOrigin("https://ok.example"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
