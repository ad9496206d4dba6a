package handler

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api/auth"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/receipts"
)

const (
	receiptField = "receipt"
	// maxUploadBody leaves room for the multipart framing around the file.
	maxUploadBody = receipts.MaxReceiptSize + 1<<20
)

// UploadReceipt stores the multipart file "receipt" as the record's receipt.
func (h *Handler) UploadReceipt(c *gin.Context) {
	id, ok := h.idParam(c, MsgInvalidRecordID)
	if !ok {
		return
	}

	if c.Request.ContentLength > maxUploadBody {
		respondError(c, receipts.TooLargeError())
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBody)
	header, err := c.FormFile(receiptField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, receipts.TooLargeError())
			return
		}
		respondError(c, apperr.Validation("No file uploaded"))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, apperr.Internal(err))
		return
	}
	defer file.Close()

	filename, err := h.receipts.Upload(c.Request.Context(), receipts.UploadRequest{
		RecordID:    id,
		Body:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Receipt uploaded successfully",
		"filename": filename,
	})
}

// DownloadReceipt streams a receipt to an admin or an assigned user.
func (h *Handler) DownloadReceipt(c *gin.Context) {
	filename := c.Param("filename")
	rc, info, err := h.receipts.Open(c.Request.Context(), filename, auth.CurrentIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": filename}),
	})
}
