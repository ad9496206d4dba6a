package receipts

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist is returned by a Storage when no object exists under a name.
var ErrNotExist = errors.New("receipt object does not exist")

// ObjectInfo describes a stored receipt.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Storage is a flat namespace of receipt objects keyed by filename.
type Storage interface {
	// Put stores r under name. size may be -1 if unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns the object's content. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error)
	Stat(ctx context.Context, name string) (*ObjectInfo, error)
	// Delete removes name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}
