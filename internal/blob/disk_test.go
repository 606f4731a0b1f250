package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskPutGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	d, err := NewDisk(root, "uploads")
	require.NoError(t, err)

	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	handle, err := d.Put(context.Background(), "cat.png", payload)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(handle, "uploads/"), "handle %q must be relative to root", handle)
	require.True(t, strings.HasSuffix(handle, "_cat.png"))

	onDisk, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(handle)))
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, onDisk))

	got, err := d.Get(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDiskPutSameNameDoesNotCollide(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "uploads")
	require.NoError(t, err)

	h1, err := d.Put(context.Background(), "notes.txt", []byte("one"))
	require.NoError(t, err)
	h2, err := d.Put(context.Background(), "notes.txt", []byte("two"))
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)

	got, err := d.Get(context.Background(), h1)
	require.NoError(t, err)
	require.Equal(t, "one", string(got))
}

func TestDiskPutStripsDirectories(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "uploads")
	require.NoError(t, err)

	handle, err := d.Put(context.Background(), "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(handle, "uploads/"))
	require.True(t, strings.HasSuffix(handle, "_passwd"))
}

func TestDiskGetMissingOrEscaping(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "uploads")
	require.NoError(t, err)

	_, err = d.Get(context.Background(), "uploads/nope.bin")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.Get(context.Background(), "../outside.txt")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.Get(context.Background(), "/etc/hostname")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "cat.png", sanitizeName("cat.png"))
	require.Equal(t, "b.txt", sanitizeName(`a\b.txt`))
	require.Equal(t, "file", sanitizeName(""))
	require.Equal(t, "file", sanitizeName(".."))
}
