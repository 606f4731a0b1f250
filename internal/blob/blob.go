// Package blob stores uploaded file bytes behind opaque handles.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a handle does not resolve to stored bytes.
var ErrNotFound = errors.New("blob not found")

// Store is the byte storage collaborator used for file sharing.
type Store interface {
	// Put stores data under a collision-free name derived from filename and returns its handle.
	Put(ctx context.Context, filename string, data []byte) (string, error)
	// Get returns the bytes stored under handle.
	Get(ctx context.Context, handle string) ([]byte, error)
}

// objectName builds "<unix millis>_<short uuid>_<base name>" so that two
// uploads of the same file never collide.
func objectName(now time.Time, filename string) string {
	base := sanitizeName(filename)
	return fmt.Sprintf("%d_%s_%s", now.UnixMilli(), uuid.NewString()[:8], base)
}

func sanitizeName(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "file"
	}
	return name
}
