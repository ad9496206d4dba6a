// Package auth implements session login and the gin middleware guarding
// protected routes.
package auth

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api/models"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/metrics"
	"github.com/receiptdesk/receiptdesk/internal/password"
	"gorm.io/gorm"
)

const (
	MsgCredentialsRequired = "Username and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
)

// Handler serves the login endpoints.
type Handler struct {
	db          database.UserDB
	store       sessions.Store
	sessionName string
	metrics     *metrics.Metrics
}

// NewHandler creates a login handler. store and sessionName must match the
// sessions middleware in front of it. m may be nil.
func NewHandler(db database.UserDB, store sessions.Store, sessionName string, m *metrics.Metrics) *Handler {
	return &Handler{
		db:          db,
		store:       store,
		sessionName: sessionName,
		metrics:     m,
	}
}

func dashboardURL(role database.Role) string {
	if role == database.RoleAdmin {
		return "/admin/dashboard"
	}
	return "/user/dashboard"
}

func respondError(c *gin.Context, err error) {
	if apperr.As(err).Kind == apperr.KindInternal {
		log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(apperr.Response(err))
}

// Login checks the credentials and starts a new session.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Debug("failed to bind login request", "error", err)
	}
	req.Normalize()
	if req.Username == "" || req.Password == "" {
		respondError(c, apperr.Validation(MsgCredentialsRequired))
		return
	}
	if err := models.Validate(&req); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.authenticate(c, req.Username, req.Password)
	if err != nil {
		if apperr.IsKind(err, apperr.KindAuthentication) {
			h.metrics.ObserveLogin(false)
			log.Info("failed login attempt", "username", req.Username, "client", c.ClientIP())
		}
		respondError(c, err)
		return
	}

	if err := renewSession(c.Request, h.store, h.sessionName); err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	if err := SaveIdentity(sessions.Default(c), user); err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	h.metrics.ObserveLogin(true)
	log.Info("user logged in", "username", user.Username, "role", user.Role)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Login successful",
		"role":        user.Role,
		"redirectUrl": dashboardURL(user.Role),
	})
}

// authenticate returns the same error for unknown users and wrong passwords.
func (h *Handler) authenticate(c *gin.Context, username, plain string) (*database.User, error) {
	user, err := h.db.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Authentication(MsgInvalidCredentials)
		}
		return nil, apperr.Internal(err)
	}

	ok, err := password.Verify(user.Password, plain)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Authentication(MsgInvalidCredentials)
	}
	return user, nil
}

// Logout destroys the session.
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		log.Error("failed to destroy session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Could not log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Check reports whether the caller is logged in.
func (h *Handler) Check(c *gin.Context) {
	id := identityFromSession(sessions.Default(c))
	if id == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"role":          id.Role,
		"username":      id.Username,
	})
}
