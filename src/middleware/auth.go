package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"www.github.com/Wanderer0074348/RoastRouter/src/auth"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*auth.Session, error)
}

type AuthMiddleware struct {
	sessions        SessionReader
	trustUserHeader bool
}

// NewAuthMiddleware resolves callers from sessions issued by the account
// service. With trustUserHeader set, an X-User-ID header from the gateway is
// accepted as is.
func NewAuthMiddleware(sessions SessionReader, trustUserHeader bool) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:        sessions,
		trustUserHeader: trustUserHeader,
	}
}

func (m *AuthMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.trustUserHeader {
			if userID := strings.TrimSpace(c.GetHeader("X-User-ID")); userID != "" {
				c.Set(UserIDKey, userID)
				c.Next()
				return
			}
		}

		sessionID, err := c.Cookie("session_id")
		if err != nil || sessionID == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
				sessionID = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if sessionID == "" || m.sessions == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		session, err := m.sessions.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			logger.Log.WithError(err).Debug("Rejected session")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, session.UserID)
		c.Next()
	}
}

// UserID returns the id set by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
