package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

var _ database.DB = (*MockDB)(nil)

// MockDB is a mock implementation of database.DB for testing.
type MockDB struct {
	mu sync.RWMutex

	// User storage
	users      map[uint]*database.User
	nextUserID uint

	// Record storage
	records      map[uint]*database.DataRecord
	nextRecordID uint

	// recordID -> ordered user ids
	access map[uint][]uint

	// Error simulation
	CreateUserError           error
	GetUserByIDError          error
	GetUserByUsernameError    error
	ListUsersError            error
	DeleteUserError           error
	AdminExistsError          error
	CreateRecordError         error
	UpdateRecordError         error
	DeleteRecordError         error
	GetRecordByIDError        error
	ListRecordsError          error
	ListRecordsForUserError   error
	GetRecordAssigneesError   error
	SetReceiptFilenameError   error
	UserHasReceiptError       error
	ListReceiptFilenamesError error
	PingError                 error
}

// NewMockDB creates a new MockDB instance.
func NewMockDB() *MockDB {
	return &MockDB{
		users:        make(map[uint]*database.User),
		nextUserID:   1,
		records:      make(map[uint]*database.DataRecord),
		nextRecordID: 1,
		access:       make(map[uint][]uint),
	}
}

// Reset clears all data and errors from the mock database.
func (m *MockDB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[uint]*database.User)
	m.nextUserID = 1
	m.records = make(map[uint]*database.DataRecord)
	m.nextRecordID = 1
	m.access = make(map[uint][]uint)

	m.CreateUserError = nil
	m.GetUserByIDError = nil
	m.GetUserByUsernameError = nil
	m.ListUsersError = nil
	m.DeleteUserError = nil
	m.AdminExistsError = nil
	m.CreateRecordError = nil
	m.UpdateRecordError = nil
	m.DeleteRecordError = nil
	m.GetRecordByIDError = nil
	m.ListRecordsError = nil
	m.ListRecordsForUserError = nil
	m.GetRecordAssigneesError = nil
	m.SetReceiptFilenameError = nil
	m.UserHasReceiptError = nil
	m.ListReceiptFilenamesError = nil
	m.PingError = nil
}

// User operations

func (m *MockDB) CreateUser(ctx context.Context, username, passwordHash string, role database.Role) (*database.User, error) {
	if m.CreateUserError != nil {
		return nil, m.CreateUserError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return nil, database.ErrUsernameTaken
		}
	}

	user := &database.User{
		ID:        m.nextUserID,
		Username:  username,
		Password:  passwordHash,
		Role:      role,
		CreatedAt: time.Now(),
	}
	m.nextUserID++
	m.users[user.ID] = user

	out := *user
	return &out, nil
}

func (m *MockDB) GetUserByID(ctx context.Context, id uint) (*database.User, error) {
	if m.GetUserByIDError != nil {
		return nil, m.GetUserByIDError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *user
	return &out, nil
}

func (m *MockDB) GetUserByUsername(ctx context.Context, username string) (*database.User, error) {
	if m.GetUserByUsernameError != nil {
		return nil, m.GetUserByUsernameError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.Username == username {
			out := *user
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockDB) ListUsers(ctx context.Context) ([]database.User, error) {
	if m.ListUsersError != nil {
		return nil, m.ListUsersError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]database.User, 0, len(m.users))
	for _, user := range m.users {
		if user.IsAdmin() {
			continue
		}
		out := *user
		out.Password = ""
		users = append(users, out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID > users[j].ID })
	return users, nil
}

func (m *MockDB) DeleteUser(ctx context.Context, id uint) (bool, error) {
	if m.DeleteUserError != nil {
		return false, m.DeleteUserError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok || user.IsAdmin() {
		return false, nil
	}
	delete(m.users, id)
	for recordID, userIDs := range m.access {
		m.access[recordID] = lo.Without(userIDs, id)
	}
	return true, nil
}

func (m *MockDB) AdminExists(ctx context.Context) (bool, error) {
	if m.AdminExistsError != nil {
		return false, m.AdminExistsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

// Record operations

func (m *MockDB) CreateRecord(ctx context.Context, record *database.DataRecord, assignees []uint) error {
	if m.CreateRecordError != nil {
		return m.CreateRecordError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	assignees, err := m.validateAssignees(assignees)
	if err != nil {
		return err
	}

	if record.Status == "" {
		record.Status = database.RecordStatusPending
	}
	now := time.Now()
	record.ID = m.nextRecordID
	record.CreatedAt = now
	record.UpdatedAt = now
	m.nextRecordID++

	stored := *record
	m.records[record.ID] = &stored
	m.access[record.ID] = assignees
	return nil
}

func (m *MockDB) UpdateRecord(ctx context.Context, id uint, fields database.RecordFields, assignees []uint) error {
	if m.UpdateRecordError != nil {
		return m.UpdateRecordError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	assignees, err := m.validateAssignees(assignees)
	if err != nil {
		return err
	}

	record.Name = fields.Name
	record.AadhaarNumber = fields.AadhaarNumber
	record.SRN = fields.SRN
	record.Status = fields.Status
	record.UpdatedAt = time.Now()
	m.access[id] = assignees
	return nil
}

func (m *MockDB) DeleteRecord(ctx context.Context, id uint) (*database.DataRecord, error) {
	if m.DeleteRecordError != nil {
		return nil, m.DeleteRecordError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	delete(m.records, id)
	delete(m.access, id)
	out := *record
	return &out, nil
}

func (m *MockDB) GetRecordByID(ctx context.Context, id uint) (*database.DataRecord, error) {
	if m.GetRecordByIDError != nil {
		return nil, m.GetRecordByIDError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *record
	return &out, nil
}

func (m *MockDB) ListRecords(ctx context.Context) ([]database.DataRecord, error) {
	if m.ListRecordsError != nil {
		return nil, m.ListRecordsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedRecords(func(uint) bool { return true }), nil
}

func (m *MockDB) ListRecordsForUser(ctx context.Context, userID uint) ([]database.DataRecord, error) {
	if m.ListRecordsForUserError != nil {
		return nil, m.ListRecordsForUserError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedRecords(func(recordID uint) bool {
		return slices.Contains(m.access[recordID], userID)
	}), nil
}

func (m *MockDB) GetRecordAssignees(ctx context.Context, recordIDs []uint) (map[uint][]database.User, error) {
	if m.GetRecordAssigneesError != nil {
		return nil, m.GetRecordAssigneesError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[uint][]database.User, len(recordIDs))
	for _, recordID := range recordIDs {
		for _, userID := range m.access[recordID] {
			if user, ok := m.users[userID]; ok {
				result[recordID] = append(result[recordID], database.User{ID: user.ID, Username: user.Username})
			}
		}
	}
	return result, nil
}

func (m *MockDB) SetReceiptFilename(ctx context.Context, id uint, filename string) (string, error) {
	if m.SetReceiptFilenameError != nil {
		return "", m.SetReceiptFilenameError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	previous := record.ReceiptFilename
	record.ReceiptFilename = filename
	return previous, nil
}

func (m *MockDB) UserHasReceipt(ctx context.Context, userID uint, filename string) (bool, error) {
	if m.UserHasReceiptError != nil {
		return false, m.UserHasReceiptError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if filename == "" {
		return false, nil
	}
	for recordID, record := range m.records {
		if record.ReceiptFilename == filename && slices.Contains(m.access[recordID], userID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDB) ListReceiptFilenames(ctx context.Context) ([]string, error) {
	if m.ListReceiptFilenamesError != nil {
		return nil, m.ListReceiptFilenamesError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, record := range m.records {
		if record.ReceiptFilename != "" {
			names = append(names, record.ReceiptFilename)
		}
	}
	return names, nil
}

func (m *MockDB) Ping(ctx context.Context) error {
	return m.PingError
}

func (m *MockDB) Close() error {
	return nil
}

// validateAssignees must be called with the lock held.
func (m *MockDB) validateAssignees(ids []uint) ([]uint, error) {
	ids = lo.Uniq(ids)
	missing := lo.Filter(ids, func(id uint, _ int) bool {
		user, ok := m.users[id]
		return !ok || user.Role == database.RoleAdmin
	})
	if len(missing) > 0 {
		return nil, &database.UnknownUsersError{IDs: missing}
	}
	return ids, nil
}

// sortedRecords must be called with the lock held.
func (m *MockDB) sortedRecords(include func(recordID uint) bool) []database.DataRecord {
	records := make([]database.DataRecord, 0, len(m.records))
	for id, record := range m.records {
		if include(id) {
			records = append(records, *record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	return records
}
