package database

import (
	"context"
)

// UserDB persists user accounts.
type UserDB interface {
	CreateUser(ctx context.Context, username, passwordHash string, role Role) (*User, error)
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id uint) (bool, error)
	AdminExists(ctx context.Context) (bool, error)
}

// RecordDB persists data records and their assignment to users.
type RecordDB interface {
	CreateRecord(ctx context.Context, record *DataRecord, assignees []uint) error
	UpdateRecord(ctx context.Context, id uint, fields RecordFields, assignees []uint) error
	DeleteRecord(ctx context.Context, id uint) (*DataRecord, error)
	GetRecordByID(ctx context.Context, id uint) (*DataRecord, error)
	ListRecords(ctx context.Context) ([]DataRecord, error)
	ListRecordsForUser(ctx context.Context, userID uint) ([]DataRecord, error)
	GetRecordAssignees(ctx context.Context, recordIDs []uint) (map[uint][]User, error)
	SetReceiptFilename(ctx context.Context, id uint, filename string) (string, error)
	UserHasReceipt(ctx context.Context, userID uint, filename string) (bool, error)
	ListReceiptFilenames(ctx context.Context) ([]string, error)
}

// DB is the full persistence API used by the server.
type DB interface {
	UserDB
	RecordDB
	Ping(ctx context.Context) error
	Close() error
}
