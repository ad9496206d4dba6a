package receipts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/receiptdesk/receiptdesk/internal/access"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/database/mock"
	"github.com/stretchr/testify/suite"
)

var (
	pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	pdfData = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
)

type GatewayTestSuite struct {
	suite.Suite
	ctx     context.Context
	dir     string
	store   *LocalStorage
	db      *mock.MockDB
	gateway *Gateway

	owner  *database.User
	other  *database.User
	record *database.DataRecord
}

func (s *GatewayTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()

	store, err := NewLocalStorage(s.dir)
	s.Require().NoError(err)
	s.store = store
	s.db = mock.NewMockDB()
	s.gateway = NewGateway(store, s.db, nil)

	s.owner, err = s.db.CreateUser(s.ctx, "owner", "h", database.RoleUser)
	s.Require().NoError(err)
	s.other, err = s.db.CreateUser(s.ctx, "other", "h", database.RoleUser)
	s.Require().NoError(err)

	s.record = &database.DataRecord{Name: "r", AadhaarNumber: "123456789012", SRN: "s"}
	s.Require().NoError(s.db.CreateRecord(s.ctx, s.record, []uint{s.owner.ID}))
}

func (s *GatewayTestSuite) files() []string {
	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (s *GatewayTestSuite) upload(filename, contentType string, data []byte) (string, error) {
	return s.gateway.Upload(s.ctx, UploadRequest{
		RecordID:    s.record.ID,
		Body:        bytes.NewReader(data),
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
	})
}

func (s *GatewayTestSuite) requireKind(err error, kind apperr.Kind) *apperr.Error {
	s.Require().Error(err)
	e := apperr.As(err)
	s.Require().Equal(kind, e.Kind, "unexpected error: %v", err)
	return e
}

func (s *GatewayTestSuite) TestUploadSuccess() {
	name, err := s.upload("Scan.PNG", "image/png", pngData)
	s.Require().NoError(err)
	s.True(strings.HasSuffix(name, ".png"))
	s.Equal([]string{name}, s.files())

	record, err := s.db.GetRecordByID(s.ctx, s.record.ID)
	s.Require().NoError(err)
	s.Equal(name, record.ReceiptFilename)

	stored, err := os.ReadFile(filepath.Join(s.dir, name))
	s.Require().NoError(err)
	s.Equal(pngData, stored)
}

func (s *GatewayTestSuite) TestUploadReplacesPreviousReceipt() {
	first, err := s.upload("a.png", "image/png", pngData)
	s.Require().NoError(err)

	second, err := s.upload("b.pdf", "application/pdf", pdfData)
	s.Require().NoError(err)
	s.NotEqual(first, second)
	s.Equal([]string{second}, s.files())
}

func (s *GatewayTestSuite) TestUploadRejectsTypes() {
	tests := []struct {
		name, filename, contentType string
		data                        []byte
		msg                         string
	}{
		{"extension", "notes.txt", "text/plain", []byte("hello"), MsgInvalidType},
		{"no extension", "receipt", "image/png", pngData, MsgInvalidType},
		{"mismatched pair", "a.png", "application/pdf", pngData, MsgInvalidType},
		{"content mismatch", "a.pdf", "application/pdf", pngData, MsgContentMismatch},
		{"empty file", "a.gif", "image/gif", nil, MsgContentMismatch},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.upload(tt.filename, tt.contentType, tt.data)
			e := s.requireKind(err, apperr.KindValidation)
			s.Equal(tt.msg, e.Message)
			s.Equal(http.StatusBadRequest, e.Status())
		})
	}
	s.Empty(s.files())
}

func (s *GatewayTestSuite) TestUploadRejectsDeclaredOversize() {
	data := append(append([]byte{}, pdfData...), bytes.Repeat([]byte("x"), 6<<20)...)
	_, err := s.upload("big.pdf", "application/pdf", data)
	e := s.requireKind(err, apperr.KindValidation)
	s.Contains(e.Message, "5.0 MiB")
	s.Empty(s.files())
}

func (s *GatewayTestSuite) TestUploadRejectsUndeclaredOversize() {
	data := append(append([]byte{}, pdfData...), bytes.Repeat([]byte("x"), 6<<20)...)
	_, err := s.gateway.Upload(s.ctx, UploadRequest{
		RecordID:    s.record.ID,
		Body:        bytes.NewReader(data),
		Filename:    "big.pdf",
		ContentType: "application/pdf",
		Size:        -1,
	})
	s.requireKind(err, apperr.KindValidation)
	s.Empty(s.files())

	record, err := s.db.GetRecordByID(s.ctx, s.record.ID)
	s.Require().NoError(err)
	s.Empty(record.ReceiptFilename)
}

func (s *GatewayTestSuite) TestUploadExactlyMaxSize() {
	data := append(append([]byte{}, pdfData...), bytes.Repeat([]byte("x"), int(MaxReceiptSize)-len(pdfData))...)
	name, err := s.upload("max.pdf", "application/pdf", data)
	s.Require().NoError(err)
	s.Equal([]string{name}, s.files())
}

func (s *GatewayTestSuite) TestUploadUnknownRecord() {
	_, err := s.gateway.Upload(s.ctx, UploadRequest{
		RecordID:    999,
		Body:        bytes.NewReader(pngData),
		Filename:    "a.png",
		ContentType: "image/png",
		Size:        int64(len(pngData)),
	})
	e := s.requireKind(err, apperr.KindNotFound)
	s.Equal(MsgRecordNotFound, e.Message)
	s.Empty(s.files())
}

func (s *GatewayTestSuite) TestUploadRecordUpdateFailureLeavesNoFile() {
	s.db.SetReceiptFilenameError = errors.New("database is locked")
	_, err := s.upload("a.png", "image/png", pngData)
	s.requireKind(err, apperr.KindInternal)
	s.Empty(s.files())
}

func (s *GatewayTestSuite) TestOpen() {
	name, err := s.upload("a.pdf", "application/pdf", pdfData)
	s.Require().NoError(err)

	ownerID := &access.Identity{UserID: s.owner.ID, Username: "owner", Role: database.RoleUser}
	otherID := &access.Identity{UserID: s.other.ID, Username: "other", Role: database.RoleUser}
	adminID := &access.Identity{UserID: 100, Username: "admin", Role: database.RoleAdmin}

	for _, id := range []*access.Identity{ownerID, adminID} {
		rc, info, err := s.gateway.Open(s.ctx, name, id)
		s.Require().NoError(err)
		s.Equal(name, info.Name)
		s.Require().NoError(rc.Close())
	}

	_, _, err = s.gateway.Open(s.ctx, name, otherID)
	e := s.requireKind(err, apperr.KindAuthorization)
	s.Equal("Access denied", e.Message)

	_, _, err = s.gateway.Open(s.ctx, name, nil)
	s.requireKind(err, apperr.KindAuthentication)

	_, _, err = s.gateway.Open(s.ctx, "missing.pdf", ownerID)
	e = s.requireKind(err, apperr.KindNotFound)
	s.Equal(MsgFileNotFound, e.Message)
}

func (s *GatewayTestSuite) TestOpenRejectsTraversal() {
	adminID := &access.Identity{UserID: 1, Role: database.RoleAdmin}
	for _, name := range []string{"", "..", "../secret.pdf", "a/b.pdf", `..\b.pdf`} {
		_, _, err := s.gateway.Open(s.ctx, name, adminID)
		e := s.requireKind(err, apperr.KindValidation)
		s.Equal(MsgInvalidFilename, e.Message)
	}
}

func (s *GatewayTestSuite) TestSweep() {
	kept, err := s.upload("kept.png", "image/png", pngData)
	s.Require().NoError(err)

	old := filepath.Join(s.dir, "orphan-old.pdf")
	s.Require().NoError(os.WriteFile(old, pdfData, 0o600))
	past := time.Now().Add(-2 * time.Hour)
	s.Require().NoError(os.Chtimes(old, past, past))
	s.Require().NoError(os.Chtimes(filepath.Join(s.dir, kept), past, past))

	fresh := filepath.Join(s.dir, "orphan-fresh.pdf")
	s.Require().NoError(os.WriteFile(fresh, pdfData, 0o600))

	result, err := s.gateway.Sweep(s.ctx, time.Hour)
	s.Require().NoError(err)
	s.Equal(3, result.Scanned)
	s.Equal(1, result.Removed)
	s.Equal(int64(len(pdfData)), result.Bytes)
	s.ElementsMatch([]string{kept, "orphan-fresh.pdf"}, s.files())
}

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}
