package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api/models"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/password"
)

// ListUsers returns all non-admin users.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   models.ToUsers(users),
	})
}

// CreateUser creates a user account with the user role.
func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, apperr.Validation(MsgInvalidBody))
		return
	}
	req.Normalize()
	if err := models.Validate(&req); err != nil {
		respondError(c, err)
		return
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := h.db.CreateUser(c.Request.Context(), req.Username, hash, database.RoleUser)
	if err != nil {
		respondError(c, storeError(err, ""))
		return
	}
	log.Info("Created user", "id", user.ID, "username", user.Username)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User created successfully",
		"user":    models.ToUser(*user),
	})
}

// DeleteUser deletes a non-admin user and its record assignments.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := h.idParam(c, MsgInvalidUserID)
	if !ok {
		return
	}

	deleted, err := h.db.DeleteUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		respondError(c, apperr.NotFound("User not found or cannot be deleted"))
		return
	}
	log.Info("Deleted user", "id", id)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted successfully",
	})
}
