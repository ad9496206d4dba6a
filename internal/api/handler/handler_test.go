package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strconv"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api/auth"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/database/mock"
	"github.com/receiptdesk/receiptdesk/internal/receipts"
	"github.com/stretchr/testify/suite"
)

var (
	pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	pdfData = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
)

type HandlerTestSuite struct {
	suite.Suite
	ctx    context.Context
	dir    string
	db     *mock.MockDB
	router *gin.Engine

	admin *database.User
	alice *database.User
	bob   *database.User
}

func (s *HandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.db = mock.NewMockDB()

	var err error
	s.admin, err = s.db.CreateUser(s.ctx, "admin", "hash", database.RoleAdmin)
	s.Require().NoError(err)
	s.alice, err = s.db.CreateUser(s.ctx, "alice", "hash", database.RoleUser)
	s.Require().NoError(err)
	s.bob, err = s.db.CreateUser(s.ctx, "bob", "hash", database.RoleUser)
	s.Require().NoError(err)

	store, err := receipts.NewLocalStorage(s.dir)
	s.Require().NoError(err)
	h := New(s.db, receipts.NewGateway(store, s.db, nil))

	r := gin.New()
	r.Use(sessions.Sessions("receiptdesk_session", cookie.NewStore([]byte("test-secret"))))
	r.Use(auth.LoadIdentity())
	r.POST("/test/login/:id", func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		user, err := s.db.GetUserByID(c.Request.Context(), uint(id))
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		if err := auth.SaveIdentity(sessions.Default(c), user); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin := r.Group("/api/admin", auth.RequireAdmin())
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
	admin.DELETE("/users/:id", h.DeleteUser)
	admin.GET("/data", h.ListRecords)
	admin.POST("/data", h.CreateRecord)
	admin.PUT("/data/:id", h.UpdateRecord)
	admin.DELETE("/data/:id", h.DeleteRecord)
	admin.POST("/data/:id/upload", h.UploadReceipt)

	user := r.Group("/api/user", auth.RequireAuth())
	user.GET("/data", h.ListUserRecords)
	user.GET("/download/:filename", h.DownloadReceipt)

	s.router = r
}

func (s *HandlerTestSuite) login(u *database.User) []*http.Cookie {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/test/login/%d", u.ID), nil))
	s.Require().Equal(http.StatusNoContent, w.Code)
	return w.Result().Cookies()
}

func (s *HandlerTestSuite) do(as *database.User, method, path string, body io.Reader, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		for _, c := range s.login(as) {
			req.AddCookie(c)
		}
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (s *HandlerTestSuite) doJSON(as *database.User, method, path string, payload any) (*httptest.ResponseRecorder, map[string]any) {
	b, err := json.Marshal(payload)
	s.Require().NoError(err)
	return s.do(as, method, path, bytes.NewReader(b), "application/json")
}

func recordPayload(assigned ...uint) map[string]any {
	return map[string]any{
		"name":           "  Jane Doe ",
		"aadhaar_number": "123456789012",
		"srn":            "SRN-42",
		"assigned_users": assigned,
	}
}

func (s *HandlerTestSuite) createRecord(assigned ...uint) uint {
	record := &database.DataRecord{Name: "r", AadhaarNumber: "123456789012", SRN: "s"}
	s.Require().NoError(s.db.CreateRecord(s.ctx, record, assigned))
	return record.ID
}

func multipartBody(field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(h)
	_, _ = part.Write(data)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func (s *HandlerTestSuite) upload(recordID uint, filename, contentType string, data []byte) (*httptest.ResponseRecorder, map[string]any) {
	body, ct := multipartBody("receipt", filename, contentType, data)
	return s.do(s.admin, http.MethodPost, fmt.Sprintf("/api/admin/data/%d/upload", recordID), body, ct)
}

// users

func (s *HandlerTestSuite) TestListUsersExcludesAdmin() {
	w, body := s.do(s.admin, http.MethodGet, "/api/admin/users", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	users := body["users"].([]any)
	s.Len(users, 2)
	for _, u := range users {
		s.NotEqual("admin", u.(map[string]any)["username"])
		s.NotContains(u, "password")
	}
}

func (s *HandlerTestSuite) TestCreateUser() {
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/users", map[string]string{
		"username": " carol ",
		"password": "secret1",
	})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("User created successfully", body["message"])
	user := body["user"].(map[string]any)
	s.Equal("carol", user["username"])
	s.Equal("user", user["role"])

	created, err := s.db.GetUserByUsername(s.ctx, "carol")
	s.Require().NoError(err)
	s.NotEqual("secret1", created.Password)
}

func (s *HandlerTestSuite) TestCreateUserDuplicate() {
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/users", map[string]string{
		"username": "alice",
		"password": "secret1",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Username already exists", body["error"])

	users, err := s.db.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 2)
}

func (s *HandlerTestSuite) TestCreateUserValidation() {
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/users", map[string]string{
		"username": "ab",
		"password": "123",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Validation failed", body["error"])
	s.Len(body["details"], 2)
}

func (s *HandlerTestSuite) TestDeleteUser() {
	recordID := s.createRecord(s.alice.ID)

	w, body := s.do(s.admin, http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", s.alice.ID), nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("User deleted successfully", body["message"])

	assignees, err := s.db.GetRecordAssignees(s.ctx, []uint{recordID})
	s.Require().NoError(err)
	s.Empty(assignees[recordID])
}

func (s *HandlerTestSuite) TestDeleteUserAdminOrMissing() {
	for _, path := range []string{
		fmt.Sprintf("/api/admin/users/%d", s.admin.ID),
		"/api/admin/users/999",
	} {
		w, body := s.do(s.admin, http.MethodDelete, path, nil, "")
		s.Equal(http.StatusNotFound, w.Code, path)
		s.Equal("User not found or cannot be deleted", body["error"])
	}

	_, err := s.db.GetUserByID(s.ctx, s.admin.ID)
	s.NoError(err)
}

func (s *HandlerTestSuite) TestDeleteUserInvalidID() {
	for _, id := range []string{"abc", "0", "-1"} {
		w, body := s.do(s.admin, http.MethodDelete, "/api/admin/users/"+id, nil, "")
		s.Equal(http.StatusBadRequest, w.Code, id)
		s.Equal(MsgInvalidUserID, body["error"])
	}
}

// records

func (s *HandlerTestSuite) TestCreateRecordAssignsUsers() {
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/data", recordPayload(s.alice.ID, s.bob.ID, s.alice.ID))
	s.Require().Equal(http.StatusOK, w.Code)
	record := body["record"].(map[string]any)
	s.Equal("Jane Doe", record["name"])
	s.Equal("Pending", record["status"])
	s.Nil(record["receipt_filename"])

	for _, u := range []*database.User{s.alice, s.bob} {
		w, body = s.do(u, http.MethodGet, "/api/user/data", nil, "")
		s.Require().Equal(http.StatusOK, w.Code)
		s.Len(body["records"], 1)
	}

	w, body = s.do(s.admin, http.MethodGet, "/api/admin/data", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	records := body["records"].([]any)
	s.Require().Len(records, 1)
	assigned := records[0].(map[string]any)["assignedUsers"].([]any)
	s.Require().Len(assigned, 2)
	s.Equal("alice", assigned[0].(map[string]any)["username"])
}

func (s *HandlerTestSuite) TestCreateRecordValidation() {
	payload := recordPayload()
	payload["aadhaar_number"] = "12345"
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/data", payload)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Validation failed", body["error"])
	s.Contains(body["details"], "Aadhaar number must be exactly 12 digits")

	records, err := s.db.ListRecords(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *HandlerTestSuite) TestCreateRecordUnknownAssignee() {
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/data", recordPayload(s.alice.ID, 999))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Validation failed", body["error"])
}

func (s *HandlerTestSuite) TestCreateRecordAdminAssignee() {
	w, body := s.doJSON(s.admin, http.MethodPost, "/api/admin/data", recordPayload(s.admin.ID))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Validation failed", body["error"])

	records, err := s.db.ListRecords(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *HandlerTestSuite) TestUpdateRecord() {
	id := s.createRecord(s.alice.ID)

	payload := recordPayload(s.bob.ID)
	payload["status"] = "Approved"
	w, body := s.doJSON(s.admin, http.MethodPut, fmt.Sprintf("/api/admin/data/%d", id), payload)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Data record updated successfully", body["message"])

	record, err := s.db.GetRecordByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Jane Doe", record.Name)
	s.Equal(database.RecordStatusApproved, record.Status)

	aliceRecords, err := s.db.ListRecordsForUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Empty(aliceRecords)
	bobRecords, err := s.db.ListRecordsForUser(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Len(bobRecords, 1)
}

func (s *HandlerTestSuite) TestUpdateRecordEmptyAssigneesUnassigns() {
	id := s.createRecord(s.alice.ID, s.bob.ID)

	payload := recordPayload()
	payload["status"] = "Rejected"
	w, _ := s.doJSON(s.admin, http.MethodPut, fmt.Sprintf("/api/admin/data/%d", id), payload)
	s.Require().Equal(http.StatusOK, w.Code)

	w, body := s.do(s.alice, http.MethodGet, "/api/user/data", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Empty(body["records"])
}

func (s *HandlerTestSuite) TestUpdateRecordErrors() {
	id := s.createRecord()

	payload := recordPayload()
	payload["status"] = "Pending"
	w, body := s.doJSON(s.admin, http.MethodPut, "/api/admin/data/999", payload)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(MsgRecordNotFound, body["error"])

	w, body = s.doJSON(s.admin, http.MethodPut, "/api/admin/data/abc", payload)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(MsgInvalidRecordID, body["error"])

	payload["aadhaar_number"] = "12345"
	w, _ = s.doJSON(s.admin, http.MethodPut, fmt.Sprintf("/api/admin/data/%d", id), payload)
	s.Equal(http.StatusBadRequest, w.Code)

	w, body = s.doJSON(s.admin, http.MethodPut, fmt.Sprintf("/api/admin/data/%d", id), recordPayload())
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(body["details"], "Status must be Pending, Approved, or Rejected")
}

func (s *HandlerTestSuite) TestDeleteRecordRemovesReceipt() {
	id := s.createRecord()
	w, body := s.upload(id, "scan.pdf", "application/pdf", pdfData)
	s.Require().Equal(http.StatusOK, w.Code)
	filename := body["filename"].(string)
	s.FileExists(s.dir + "/" + filename)

	w, _ = s.do(s.admin, http.MethodDelete, fmt.Sprintf("/api/admin/data/%d", id), nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.NoFileExists(s.dir + "/" + filename)

	_, err := s.db.GetRecordByID(s.ctx, id)
	s.Error(err)

	w, body = s.do(s.admin, http.MethodDelete, fmt.Sprintf("/api/admin/data/%d", id), nil, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(MsgRecordNotFound, body["error"])
}

func (s *HandlerTestSuite) TestListRecordsStoreError() {
	s.db.ListRecordsError = errors.New("connection reset")
	w, body := s.do(s.admin, http.MethodGet, "/api/admin/data", nil, "")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("Internal server error", body["error"])
}

// receipts

func (s *HandlerTestSuite) TestUploadAndDownload() {
	id := s.createRecord(s.alice.ID)

	w, body := s.upload(id, "receipt.png", "image/png", pngData)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("Receipt uploaded successfully", body["message"])
	filename := body["filename"].(string)

	for _, u := range []*database.User{s.admin, s.alice} {
		w, _ = s.do(u, http.MethodGet, "/api/user/download/"+filename, nil, "")
		s.Require().Equal(http.StatusOK, w.Code, u.Username)
		s.Equal(pngData, w.Body.Bytes())
		s.Equal("image/png", w.Header().Get("Content-Type"))
		s.Contains(w.Header().Get("Content-Disposition"), "attachment")
		s.Contains(w.Header().Get("Content-Disposition"), filename)
	}

	w, body = s.do(s.bob, http.MethodGet, "/api/user/download/"+filename, nil, "")
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("Access denied", body["error"])

	w, _ = s.do(nil, http.MethodGet, "/api/user/download/"+filename, nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerTestSuite) TestDownloadErrors() {
	w, body := s.do(s.alice, http.MethodGet, "/api/user/download/missing.pdf", nil, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("File not found", body["error"])

	w, body = s.do(s.alice, http.MethodGet, "/api/user/download/..secret", nil, "")
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Invalid filename", body["error"])
}

func (s *HandlerTestSuite) TestUploadRejections() {
	id := s.createRecord()

	w, body := s.upload(id, "notes.txt", "text/plain", []byte("hello"))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(receipts.MsgInvalidType, body["error"])

	big := append(bytes.Clone(pdfData), bytes.Repeat([]byte{'a'}, 6<<20)...)
	w, body = s.upload(id, "big.pdf", "application/pdf", big)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(body["error"], "File too large")

	w, body = s.upload(999, "scan.pdf", "application/pdf", pdfData)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(receipts.MsgRecordNotFound, body["error"])

	body2, ct := multipartBody("other", "scan.pdf", "application/pdf", pdfData)
	w, body = s.do(s.admin, http.MethodPost, fmt.Sprintf("/api/admin/data/%d/upload", id), body2, ct)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("No file uploaded", body["error"])

	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *HandlerTestSuite) TestUserCannotUseAdminEndpoints() {
	w, body := s.do(s.alice, http.MethodGet, "/api/admin/data", nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("Admin access required", body["error"])
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
