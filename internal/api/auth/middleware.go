package auth

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/access"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
)

// LoadIdentity attaches the session identity, if any, to the request.
func LoadIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := identityFromSession(sessions.Default(c)); id != nil {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

// Require aborts the request unless the caller satisfies policy.
func Require(policy access.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.Authorize(c.Request.Context(), CurrentIdentity(c), policy, nil); err != nil {
			c.AbortWithStatusJSON(apperr.Response(err))
			return
		}
		c.Next()
	}
}

// RequireAuth allows any logged-in user.
func RequireAuth() gin.HandlerFunc {
	return Require(access.Authenticated)
}

// RequireAdmin allows admins only.
func RequireAdmin() gin.HandlerFunc {
	return Require(access.AdminOnly)
}
