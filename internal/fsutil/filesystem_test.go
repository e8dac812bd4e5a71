package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem(t *testing.T) {
	fsys := OrOS(nil)

	data, err := fsys.ReadFile("filesystem.go")
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	info, err := fsys.Stat("filesystem.go")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())

	_, err = fsys.Open("nonexistent_file_xyz.go")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem(t *testing.T) {
	mfs := NewMemoryFileSystem()
	assert.Same(t, mfs, OrOS(mfs))

	src := []byte("hello, world")
	mfs.WriteFile("/data/./a.txt", src)
	src[0] = 'j'

	data, err := mfs.ReadFile("/data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(data), "stored data must be a copy")

	r, err := mfs.Open("/data/a.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, data, got)

	info, err := mfs.Stat("/data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Name())
	assert.Equal(t, int64(12), info.Size())
	assert.False(t, info.IsDir())

	for _, op := range []func(string) error{
		func(n string) error { _, err := mfs.Open(n); return err },
		func(n string) error { _, err := mfs.ReadFile(n); return err },
		func(n string) error { _, err := mfs.Stat(n); return err },
	} {
		assert.ErrorIs(t, op("/missing"), fs.ErrNotExist)
	}
}
