package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// RecordStatus is the review state of a data record.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "Pending"
	RecordStatusApproved RecordStatus = "Approved"
	RecordStatusRejected RecordStatus = "Rejected"
)

// Valid reports whether s is one of the known statuses.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordStatusPending, RecordStatusApproved, RecordStatusRejected:
		return true
	}
	return false
}

// DataRecord is an identity verification entry managed by admins.
type DataRecord struct {
	ID            uint         `gorm:"primaryKey"`
	Name          string       `gorm:"size:100;not null"`
	AadhaarNumber string       `gorm:"size:12;not null"`
	SRN           string       `gorm:"column:srn;size:50;not null"`
	Status        RecordStatus `gorm:"size:16;not null;default:Pending"`
	// ReceiptFilename is the storage key of the uploaded receipt, empty if none.
	ReceiptFilename string `gorm:"size:255;not null;default:'';index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasReceipt reports whether a receipt has been uploaded for the record.
func (r *DataRecord) HasReceipt() bool {
	return r.ReceiptFilename != ""
}

// RecordFields are the admin-editable scalar fields of a record.
type RecordFields struct {
	Name          string
	AadhaarNumber string
	SRN           string
	Status        RecordStatus
}

// UnknownUsersError is returned when an assignee list references users that do not exist
// or are admins.
type UnknownUsersError struct {
	IDs []uint
}

func (e *UnknownUsersError) Error() string {
	return fmt.Sprintf("unknown user ids: %v", e.IDs)
}

// CreateRecord inserts record and assigns it to the given users in one transaction.
func (c *Client) CreateRecord(ctx context.Context, record *DataRecord, assignees []uint) error {
	if record.Status == "" {
		record.Status = RecordStatusPending
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return assignRecord(tx, record.ID, assignees)
	})
	if err != nil {
		logUnexpected("failed to create record", err)
		return err
	}
	return nil
}

// UpdateRecord replaces the scalar fields of a record and its full assignment set.
// An empty assignee list unassigns everyone.
func (c *Client) UpdateRecord(ctx context.Context, id uint, fields RecordFields, assignees []uint) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record DataRecord
		if err := tx.Select("id").First(&record, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&record).Updates(map[string]any{
			"name":           fields.Name,
			"aadhaar_number": fields.AadhaarNumber,
			"srn":            fields.SRN,
			"status":         fields.Status,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("record_id = ?", id).Delete(&UserAccess{}).Error; err != nil {
			return err
		}
		return assignRecord(tx, id, assignees)
	})
	if err != nil {
		logUnexpected("failed to update record", err)
		return err
	}
	return nil
}

// DeleteRecord removes a record and its assignments and returns the deleted row.
func (c *Client) DeleteRecord(ctx context.Context, id uint) (*DataRecord, error) {
	var record DataRecord
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&record, id).Error; err != nil {
			return err
		}
		if err := tx.Where("record_id = ?", id).Delete(&UserAccess{}).Error; err != nil {
			return err
		}
		return tx.Delete(&DataRecord{}, id).Error
	})
	if err != nil {
		logUnexpected("failed to delete record", err)
		return nil, err
	}
	return &record, nil
}

func (c *Client) GetRecordByID(ctx context.Context, id uint) (*DataRecord, error) {
	var record DataRecord
	if err := c.db.WithContext(ctx).First(&record, id).Error; err != nil {
		logUnexpected("failed to get record by ID", err)
		return nil, err
	}
	return &record, nil
}

// ListRecords returns all records, newest first.
func (c *Client) ListRecords(ctx context.Context) ([]DataRecord, error) {
	var records []DataRecord
	if err := c.db.WithContext(ctx).Order("id DESC").Find(&records).Error; err != nil {
		log.Error("failed to list records", "error", err)
		return nil, err
	}
	return records, nil
}

// ListRecordsForUser returns the records assigned to userID, newest first.
func (c *Client) ListRecordsForUser(ctx context.Context, userID uint) ([]DataRecord, error) {
	var records []DataRecord
	if err := c.db.WithContext(ctx).
		Joins("JOIN user_access ON user_access.record_id = data_records.id").
		Where("user_access.user_id = ?", userID).
		Order("data_records.id DESC").
		Find(&records).Error; err != nil {
		log.Error("failed to list records for user", "error", err)
		return nil, err
	}
	return records, nil
}

// SetReceiptFilename points a record at a new receipt and returns the previous filename.
func (c *Client) SetReceiptFilename(ctx context.Context, id uint, filename string) (string, error) {
	var previous string
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record DataRecord
		if err := tx.Select("id", "receipt_filename").First(&record, id).Error; err != nil {
			return err
		}
		previous = record.ReceiptFilename
		return tx.Model(&record).Update("receipt_filename", filename).Error
	})
	if err != nil {
		logUnexpected("failed to set receipt filename", err)
		return "", err
	}
	return previous, nil
}

// UserHasReceipt reports whether filename belongs to a record assigned to userID.
func (c *Client) UserHasReceipt(ctx context.Context, userID uint, filename string) (bool, error) {
	if filename == "" {
		return false, nil
	}
	var count int64
	if err := c.db.WithContext(ctx).Model(&DataRecord{}).
		Joins("JOIN user_access ON user_access.record_id = data_records.id").
		Where("user_access.user_id = ? AND data_records.receipt_filename = ?", userID, filename).
		Count(&count).Error; err != nil {
		log.Error("failed to check receipt ownership", "error", err)
		return false, err
	}
	return count > 0, nil
}

// ListReceiptFilenames returns every receipt filename referenced by a record.
func (c *Client) ListReceiptFilenames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.db.WithContext(ctx).Model(&DataRecord{}).
		Where("receipt_filename <> ''").
		Pluck("receipt_filename", &names).Error; err != nil {
		log.Error("failed to list receipt filenames", "error", err)
		return nil, err
	}
	return names, nil
}

// logUnexpected logs err unless it is one the caller is expected to handle.
func logUnexpected(msg string, err error) {
	var unknown *UnknownUsersError
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.As(err, &unknown) {
		return
	}
	log.Error(msg, "error", err)
}
