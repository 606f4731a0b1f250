package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Disk keeps blobs as files under root/dir. Handles are slash-separated
// paths relative to root, e.g. "uploads/1700000000000_1a2b3c4d_cat.png".
type Disk struct {
	root string
	dir  string
	now  func() time.Time
}

// NewDisk creates the upload directory if needed.
func NewDisk(root, dir string) (*Disk, error) {
	if root == "" {
		root = "."
	}
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{root: root, dir: path.Clean(filepath.ToSlash(dir)), now: time.Now}, nil
}

// Put writes data to a new file and returns its handle.
func (d *Disk) Put(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := path.Join(d.dir, objectName(d.now(), filename))
	full := filepath.Join(d.root, filepath.FromSlash(handle))

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("close blob: %w", err)
	}
	return handle, nil
}

// Get reads the file behind handle.
func (d *Disk) Get(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := path.Clean(filepath.ToSlash(handle))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return nil, fmt.Errorf("handle %q: %w", handle, ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("handle %q: %w", handle, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}
