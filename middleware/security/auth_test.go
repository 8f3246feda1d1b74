package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyToken(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func TestBearerTokenSources(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", BearerToken(r, nil))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=qqq", nil)
	assert.Equal(t, "qqq", BearerToken(r, nil))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "access_token, jwt-value")
	assert.Equal(t, "jwt-value", BearerToken(r, nil))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "chat")
	assert.Equal(t, "", BearerToken(r, nil))
}

func newAuthEngine(opts *Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", Middleware(fakeVerifier{"good": "u1"}, opts), func(c *gin.Context) {
		uid, _ := UserID(c)
		c.String(http.StatusOK, uid)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	var reasons []string
	opts := DefaultOptions()
	opts.OnReject = func(reason string) { reasons = append(reasons, reason) }
	r := newAuthEngine(opts)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AuthenticationError")

	// optional: no token passes through without a user
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", w.Body.String())
	assert.Equal(t, []string{"invalid_token"}, reasons)
}

func TestMiddlewareRequired(t *testing.T) {
	opts := DefaultOptions()
	opts.Optional = false
	r := newAuthEngine(opts)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
