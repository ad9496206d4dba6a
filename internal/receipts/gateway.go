// Package receipts stores uploaded receipt files and serves them to authorized users.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/receiptdesk/receiptdesk/internal/access"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/metrics"
	"gorm.io/gorm"
)

const (
	MsgRecordNotFound = "Record not found"
	MsgFileNotFound   = "File not found"
)

// UploadRequest is a receipt file as received from a client.
type UploadRequest struct {
	RecordID uint
	Body     io.Reader
	// Filename is the client supplied name. Only its extension is kept.
	Filename    string
	ContentType string
	// Size is the declared size in bytes, -1 if unknown.
	Size int64
}

// Gateway validates, stores and serves receipt files.
type Gateway struct {
	store   Storage
	db      database.RecordDB
	metrics *metrics.Metrics
}

// NewGateway returns a gateway writing to store and recording in db.
// m may be nil.
func NewGateway(store Storage, db database.RecordDB, m *metrics.Metrics) *Gateway {
	return &Gateway{
		store:   store,
		db:      db,
		metrics: m,
	}
}

// Upload stores the file under a generated name, points the record at it and
// removes the record's previous receipt. It returns the new filename.
func (g *Gateway) Upload(ctx context.Context, req UploadRequest) (string, error) {
	name, size, err := g.upload(ctx, req)
	if err != nil {
		result := "rejected"
		if apperr.As(err).Kind == apperr.KindInternal {
			result = "error"
		}
		g.metrics.ObserveUpload(result, 0)
		return "", err
	}
	g.metrics.ObserveUpload("success", size)
	return name, nil
}

func (g *Gateway) upload(ctx context.Context, req UploadRequest) (string, int64, error) {
	ext, contentType, err := checkType(req.Filename, req.ContentType)
	if err != nil {
		return "", 0, err
	}
	if req.Size > MaxReceiptSize {
		return "", 0, TooLargeError()
	}

	limited := newLimitReader(req.Body, MaxReceiptSize)
	body, err := sniff(limited, contentType)
	if err != nil {
		return "", 0, err
	}

	name := uuid.NewString() + ext
	if err := g.store.Put(ctx, name, body, req.Size, contentType); err != nil {
		g.discard(ctx, name)
		if limited.exceeded {
			return "", 0, TooLargeError()
		}
		return "", 0, fmt.Errorf("failed to store receipt: %w", err)
	}

	previous, err := g.db.SetReceiptFilename(ctx, req.RecordID, name)
	if err != nil {
		g.discard(ctx, name)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, apperr.NotFound(MsgRecordNotFound)
		}
		return "", 0, fmt.Errorf("failed to update record with receipt: %w", err)
	}

	if previous != "" && previous != name {
		g.discard(ctx, previous)
	}

	log.Info("Uploaded receipt", "record", req.RecordID, "filename", name, "size", limited.read)
	return name, limited.read, nil
}

// Open returns the receipt stored under filename if id may read it.
func (g *Gateway) Open(ctx context.Context, filename string, id *access.Identity) (io.ReadCloser, *ObjectInfo, error) {
	if !ValidFilename(filename) {
		return nil, nil, apperr.Validation(MsgInvalidFilename)
	}

	if _, err := g.store.Stat(ctx, filename); err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, nil, apperr.NotFound(MsgFileNotFound)
		}
		return nil, nil, fmt.Errorf("failed to stat receipt: %w", err)
	}

	if err := access.Authorize(ctx, id, access.Authenticated, access.ReceiptOwner(g.db, filename)); err != nil {
		return nil, nil, err
	}

	rc, info, err := g.store.Open(ctx, filename)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, nil, apperr.NotFound(MsgFileNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open receipt: %w", err)
	}
	return rc, info, nil
}

// Discard deletes a receipt on a best-effort basis. Failures are only logged.
func (g *Gateway) Discard(ctx context.Context, filename string) {
	if filename == "" {
		return
	}
	g.discard(ctx, filename)
}

func (g *Gateway) discard(ctx context.Context, name string) {
	// the request context may already be cancelled
	ctx = context.WithoutCancel(ctx)
	if err := g.store.Delete(ctx, name); err != nil {
		log.Error("failed to delete receipt", "filename", name, "error", err)
	}
}
