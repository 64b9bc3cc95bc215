package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/mealplanner/internal/domain/session"
	apperrors "github.com/yanqian/mealplanner/pkg/errors"
)

const sessionUserKey = "session_user"

// sessionRequired rejects requests unless the session is authenticated.
func sessionRequired(sessions SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := sessions.Snapshot()
		if !snap.Authenticated() {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeAuthorizationExpired, "please sign in", nil))
			return
		}
		c.Set(sessionUserKey, *snap.User)
		c.Next()
	}
}

func currentUser(c *gin.Context) (session.UserProfile, bool) {
	value, ok := c.Get(sessionUserKey)
	if !ok {
		return session.UserProfile{}, false
	}
	user, ok := value.(session.UserProfile)
	return user, ok
}
