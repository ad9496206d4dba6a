package models

import (
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/samber/lo"
)

// ToUser converts a database.User to its client view.
func ToUser(u database.User) User {
	return User{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// ToUsers converts a slice of database.User.
func ToUsers(users []database.User) []User {
	return lo.Map(users, func(u database.User, _ int) User {
		return ToUser(u)
	})
}

// ToRecord converts a database.DataRecord to its client view.
func ToRecord(r database.DataRecord) Record {
	rec := Record{
		ID:            r.ID,
		Name:          r.Name,
		AadhaarNumber: r.AadhaarNumber,
		SRN:           r.SRN,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.HasReceipt() {
		rec.ReceiptFilename = lo.ToPtr(r.ReceiptFilename)
	}
	return rec
}

// ToRecords converts a slice of database.DataRecord.
func ToRecords(records []database.DataRecord) []Record {
	return lo.Map(records, func(r database.DataRecord, _ int) Record {
		return ToRecord(r)
	})
}

// ToAdminRecords converts records and attaches the assignees found in assignees,
// keyed by record id. Records without assignees get an empty list.
func ToAdminRecords(records []database.DataRecord, assignees map[uint][]database.User) []AdminRecord {
	return lo.Map(records, func(r database.DataRecord, _ int) AdminRecord {
		return AdminRecord{
			Record: ToRecord(r),
			AssignedUsers: lo.Map(assignees[r.ID], func(u database.User, _ int) AssignedUser {
				return AssignedUser{ID: u.ID, Username: u.Username}
			}),
		}
	})
}
