// Package handler implements the JSON endpoints for users, records and receipts.
package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/receipts"
	"gorm.io/gorm"
)

const (
	MsgInvalidRecordID = "Invalid record ID"
	MsgInvalidUserID   = "Invalid user ID"
	MsgInvalidBody     = "Invalid request body"
)

var errInvalidID = errors.New("invalid id")

// Handler serves the admin and user API.
type Handler struct {
	db       database.DB
	receipts *receipts.Gateway
}

// New creates a handler.
func New(db database.DB, gw *receipts.Gateway) *Handler {
	return &Handler{
		db:       db,
		receipts: gw,
	}
}

func respondError(c *gin.Context, err error) {
	if apperr.As(err).Kind == apperr.KindInternal {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(apperr.Response(err))
}

func parseUintParam(param string) (uint, error) {
	id, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errInvalidID
	}
	return safecast.Convert[uint](id)
}

func (h *Handler) idParam(c *gin.Context, msg string) (uint, bool) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Validation(msg))
		return 0, false
	}
	return id, true
}

// storeError converts the store's sentinel errors into client errors.
func storeError(err error, notFound string) error {
	var unknown *database.UnknownUsersError
	switch {
	case errors.Is(err, database.ErrUsernameTaken):
		return apperr.Conflict("Username already exists")
	case errors.As(err, &unknown):
		return apperr.Validation("Validation failed", fmt.Sprintf("Unknown user IDs: %v", unknown.IDs))
	case notFound != "" && errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(notFound)
	}
	return err
}
