package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

const tmpPrefix = "tmp_"

var _ Storage = (*LocalStorage)(nil)

// LocalStorage keeps receipts as files in a single directory.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates dir if needed and returns a storage rooted at it.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create receipts directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

func (l *LocalStorage) path(name string) (string, error) {
	if !ValidFilename(name) {
		return "", fmt.Errorf("invalid receipt name %q", name)
	}
	return filepath.Join(l.dir, name), nil
}

// Put writes to a temporary file first and renames it into place.
func (l *LocalStorage) Put(ctx context.Context, name string, r io.Reader, _ int64, _ string) error {
	target, err := l.path(name)
	if err != nil {
		return err
	}
	tmpPath := filepath.Join(l.dir, tmpPrefix+name)
	defer os.Remove(tmpPath) //nolint:errcheck

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to move receipt into place: %w", err)
	}
	log.Debug("Stored receipt", "name", name, "dir", l.dir)
	return nil
}

func (l *LocalStorage) Open(_ context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p) //nolint:gosec
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotExist
		}
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck,gosec
		return nil, nil, err
	}
	return f, fileInfo(st), nil
}

func (l *LocalStorage) Stat(_ context.Context, name string) (*ObjectInfo, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	if st.IsDir() {
		return nil, ErrNotExist
	}
	return fileInfo(st), nil
}

func (l *LocalStorage) Delete(_ context.Context, name string) error {
	p, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns all stored receipts. In-flight temporary files are skipped.
func (l *LocalStorage) List(_ context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipts directory: %w", err)
	}
	objects := make([]ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tmpPrefix) {
			continue
		}
		st, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		objects = append(objects, *fileInfo(st))
	}
	return objects, nil
}

func fileInfo(st fs.FileInfo) *ObjectInfo {
	return &ObjectInfo{
		Name:        st.Name(),
		Size:        st.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(st.Name())),
		ModTime:     st.ModTime(),
	}
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
