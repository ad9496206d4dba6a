package models

import (
	"time"

	"github.com/receiptdesk/receiptdesk/internal/database"
)

// User is the client view of an account. It never carries the password hash.
type User struct {
	ID        uint          `json:"id"`
	Username  string        `json:"username"`
	Role      database.Role `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
}

// AssignedUser is a user a record is assigned to.
type AssignedUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// Record is the client view of a data record.
type Record struct {
	ID              uint                  `json:"id"`
	Name            string                `json:"name"`
	AadhaarNumber   string                `json:"aadhaar_number"`
	SRN             string                `json:"srn"`
	Status          database.RecordStatus `json:"status"`
	ReceiptFilename *string               `json:"receipt_filename"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// AdminRecord is a record together with its assignees.
type AdminRecord struct {
	Record
	AssignedUsers []AssignedUser `json:"assignedUsers"`
}
