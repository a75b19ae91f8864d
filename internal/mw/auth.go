package mw

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/session"
)

// CookieName is the cookie carrying the session token.
const CookieName = "panel_session"

const sessionKey = "panel.session"

// RequireSession resolves the session token from the cookie or a bearer
// Authorization header and aborts with 401 when there is none.
func RequireSession(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := sessions.Resolve(TokenFrom(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the session belongs to the administrator.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok || !s.Identity.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": access.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// RequireMachine aborts with 403 unless the machine named by the route
// parameter is in the session's machine set.
func RequireMachine(gate *access.Gate, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		if err := gate.Authorize(s.Identity, c.Param(param)); err != nil {
			status := http.StatusForbidden
			if !errors.Is(err, access.ErrForbidden) {
				status = http.StatusInternalServerError
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// CurrentSession returns the session RequireSession attached to c.
func CurrentSession(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return session.Session{}, false
	}
	s, ok := v.(session.Session)
	return s, ok
}

// SetCurrentSession replaces the request's session after a change.
func SetCurrentSession(c *gin.Context, s session.Session) {
	c.Set(sessionKey, s)
}

// TokenFrom returns the session token from the cookie or a Bearer header.
func TokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
