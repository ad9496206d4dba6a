package receipts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/receiptdesk/receiptdesk/internal/apperr"
)

// MaxReceiptSize is the largest accepted upload in bytes.
const MaxReceiptSize int64 = 5 << 20

// sniffLen is how much of an upload is inspected to detect its real type.
const sniffLen = 3072

const (
	MsgInvalidType     = "Only PDF and image files are allowed"
	MsgContentMismatch = "File content does not match its file type"
	MsgInvalidFilename = "Invalid filename"
)

var errTooLarge = errors.New("receipt exceeds maximum size")

// allowedTypes maps each accepted extension to its only accepted media type.
var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
}

// ValidFilename reports whether name is a bare filename without path segments.
func ValidFilename(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}

// TooLargeError is returned for uploads above MaxReceiptSize.
func TooLargeError() *apperr.Error {
	return apperr.Validation(fmt.Sprintf("File too large, maximum size is %s", humanize.IBytes(uint64(MaxReceiptSize))))
}

// checkType validates the declared name and media type pair and returns the
// lower-cased extension together with the canonical media type.
func checkType(filename, contentType string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedTypes[ext]
	if !ok {
		return "", "", apperr.Validation(MsgInvalidType)
	}
	declared, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.EqualFold(declared, want) {
		return "", "", apperr.Validation(MsgInvalidType)
	}
	return ext, want, nil
}

// sniff reads the head of r and checks it against want. The returned reader
// yields the complete stream including the inspected head.
func sniff(r io.Reader, want string) (io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	switch {
	case errors.Is(err, errTooLarge):
		return nil, TooLargeError()
	case err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	if detected := mimetype.Detect(head); !detected.Is(want) {
		return nil, apperr.Validation(MsgContentMismatch)
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}

// limitReader fails with errTooLarge once more than limit bytes were read.
type limitReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
	read      int64
}

func newLimitReader(r io.Reader, limit int64) *limitReader {
	return &limitReader{r: r, remaining: limit}
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errTooLarge
	}
	// read one byte past the limit to tell "exactly at the limit" from "over it"
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	if int64(n) <= l.remaining {
		l.remaining -= int64(n)
		l.read += int64(n)
		return n, err
	}
	n = int(l.remaining)
	l.read += l.remaining
	l.remaining = 0
	l.exceeded = true
	return n, errTooLarge
}
