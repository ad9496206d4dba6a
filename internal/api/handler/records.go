package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api/auth"
	"github.com/receiptdesk/receiptdesk/internal/api/models"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/samber/lo"
)

const MsgRecordNotFound = "Record not found"

func bindRecord(c *gin.Context, update bool) (*models.RecordRequest, bool) {
	var req models.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(MsgInvalidBody))
		return nil, false
	}
	req.Normalize()
	if err := models.ValidateRecord(&req, update); err != nil {
		respondError(c, err)
		return nil, false
	}
	return &req, true
}

// ListRecords returns every record together with its assignees.
func (h *Handler) ListRecords(c *gin.Context) {
	ctx := c.Request.Context()
	records, err := h.db.ListRecords(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	ids := lo.Map(records, func(r database.DataRecord, _ int) uint { return r.ID })
	assignees, err := h.db.GetRecordAssignees(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"records": models.ToAdminRecords(records, assignees),
	})
}

// CreateRecord creates a record and assigns it to the requested users.
func (h *Handler) CreateRecord(c *gin.Context) {
	req, ok := bindRecord(c, false)
	if !ok {
		return
	}

	record := &database.DataRecord{
		Name:          req.Name,
		AadhaarNumber: req.AadhaarNumber,
		SRN:           req.SRN,
		Status:        lo.CoalesceOrEmpty(req.Status, database.RecordStatusPending),
	}
	if err := h.db.CreateRecord(c.Request.Context(), record, req.AssignedUsers); err != nil {
		respondError(c, storeError(err, ""))
		return
	}
	log.Info("Created record", "id", record.ID, "assignees", len(req.AssignedUsers))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Data record created successfully",
		"record":  models.ToRecord(*record),
	})
}

// UpdateRecord replaces a record's fields and its full assignee list.
func (h *Handler) UpdateRecord(c *gin.Context) {
	id, ok := h.idParam(c, MsgInvalidRecordID)
	if !ok {
		return
	}
	req, ok := bindRecord(c, true)
	if !ok {
		return
	}

	if err := h.db.UpdateRecord(c.Request.Context(), id, req.Fields(), req.AssignedUsers); err != nil {
		respondError(c, storeError(err, MsgRecordNotFound))
		return
	}
	log.Info("Updated record", "id", id, "assignees", len(req.AssignedUsers))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Data record updated successfully",
	})
}

// DeleteRecord deletes a record, its assignments and its receipt.
func (h *Handler) DeleteRecord(c *gin.Context) {
	id, ok := h.idParam(c, MsgInvalidRecordID)
	if !ok {
		return
	}

	record, err := h.db.DeleteRecord(c.Request.Context(), id)
	if err != nil {
		respondError(c, storeError(err, MsgRecordNotFound))
		return
	}
	h.receipts.Discard(c.Request.Context(), record.ReceiptFilename)
	log.Info("Deleted record", "id", id)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Data record deleted successfully",
	})
}

// ListUserRecords returns the records assigned to the caller.
func (h *Handler) ListUserRecords(c *gin.Context) {
	id := auth.CurrentIdentity(c)
	records, err := h.db.ListRecordsForUser(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"records": models.ToRecords(records),
	})
}
