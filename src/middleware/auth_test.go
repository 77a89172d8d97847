package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/RoastRouter/src/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAuth(t *testing.T, trustHeader bool) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := NewAuthMiddleware(auth.NewSessionStore(client), trustHeader)

	r := gin.New()
	r.GET("/me", m.RequireUser(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r, mr
}

func storeSession(t *testing.T, mr *miniredis.Miniredis, id, userID string, expiresAt time.Time) {
	t.Helper()
	data, err := json.Marshal(auth.Session{ID: id, UserID: userID, ExpiresAt: expiresAt})
	require.NoError(t, err)
	require.NoError(t, mr.Set("session:"+id, string(data)))
}

func TestRequireUser_BearerSession(t *testing.T) {
	r, mr := setupAuth(t, false)
	storeSession(t, mr, "abc", "user-1", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"user-1"}`, w.Body.String())
}

func TestRequireUser_CookieSession(t *testing.T) {
	r, mr := setupAuth(t, false)
	storeSession(t, mr, "cookie-sess", "user-2", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "cookie-sess"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"user-2"}`, w.Body.String())
}

func TestRequireUser_Missing(t *testing.T) {
	r, _ := setupAuth(t, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_Expired(t *testing.T) {
	r, mr := setupAuth(t, false)
	storeSession(t, mr, "old", "user-1", time.Now().Add(-time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer old")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_HeaderIgnoredUnlessTrusted(t *testing.T) {
	untrusted, _ := setupAuth(t, false)
	trusted, _ := setupAuth(t, true)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "gateway-user")

	w := httptest.NewRecorder()
	untrusted.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	trusted.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"gateway-user"}`, w.Body.String())
}
