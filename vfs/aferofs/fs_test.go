package aferofs_test

import (
	"io"
	"os"
	"testing"

	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/dargueta/kfs/partition"
	kfstest "github.com/dargueta/kfs/testing"
	"github.com/dargueta/kfs/vfs"
	"github.com/dargueta/kfs/vfs/aferofs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFs(t *testing.T) afero.Fs {
	_, disk := kfstest.NewATADisk(t, 0x80, fat.FAT16, partition.TypeFAT16)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	fs, err := vfs.NewFATFilesystem(parts[0])
	require.NoError(t, err)

	dev := devfs.New()
	require.NoError(t, dev.RegisterStandardDevices(nil))

	table := vfs.New()
	require.NoError(t, table.Mount(fs, "/"))
	require.NoError(t, table.Mount(vfs.NewDevfsFilesystem(dev), "/dev"))
	return aferofs.New(table)
}

func TestFs__WriteFileReadFile(t *testing.T) {
	fs := newTestFs(t)
	data := kfstest.PatternBytes(5000)

	require.NoError(t, afero.WriteFile(fs, "/data.bin", data, 0o644))
	readBack, err := afero.ReadFile(fs, "/data.bin")
	require.NoError(t, err)
	assert.Equal(t, data, readBack)

	// WriteFile truncates.
	require.NoError(t, afero.WriteFile(fs, "data.bin", []byte("short"), 0o644))
	readBack, err = afero.ReadFile(fs, "/data.bin")
	require.NoError(t, err)
	assert.Equal(t, "short", string(readBack))
}

func TestFs__ErrorsWorkWithOsHelpers(t *testing.T) {
	fs := newTestFs(t)

	_, err := fs.Open("/missing.txt")
	assert.True(t, os.IsNotExist(err), "got %v", err)

	exists, err := afero.Exists(fs, "/missing.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, afero.WriteFile(fs, "/here.txt", []byte("x"), 0o644))
	_, err = fs.OpenFile("/here.txt", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	assert.True(t, os.IsExist(err), "got %v", err)

	assert.Error(t, fs.Rename("/here.txt", "/there.txt"))
	assert.Error(t, fs.Chmod("/here.txt", 0o600))
	assert.Equal(t, "kfs", fs.Name())
}

func TestFs__Directories(t *testing.T) {
	fs := newTestFs(t)

	require.NoError(t, fs.MkdirAll("/src/pkg", 0o755))
	require.NoError(t, fs.MkdirAll("/src/pkg", 0o755), "MkdirAll must be idempotent")
	require.NoError(t, afero.WriteFile(fs, "/src/pkg/main.go", []byte("package main"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/readme", []byte("hi"), 0o644))

	info, err := fs.Stat("/src")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, info.Mode().IsDir())

	infos, err := afero.ReadDir(fs, "/src")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "PKG", infos[0].Name())
	assert.Equal(t, "README", infos[1].Name())
	assert.EqualValues(t, 2, infos[1].Size())

	var walked []string
	err = afero.Walk(fs, "/src", func(path string, info os.FileInfo, err error) error {
		walked = append(walked, path)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/src", "/src/PKG", "/src/PKG/MAIN.GO", "/src/README"}, walked)

	err = fs.Remove("/src")
	assert.Error(t, err, "non-empty directories can't be removed with Remove")
	require.NoError(t, fs.RemoveAll("/src"))
	exists, err := afero.DirExists(fs, "/src")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, fs.RemoveAll("/src"), "RemoveAll on a missing path succeeds")
}

func TestFile__SeekReadAtWriteAt(t *testing.T) {
	fs := newTestFs(t)
	f, err := fs.Create("/rw.bin")
	require.NoError(t, err)
	defer f.Close()

	n, err := f.WriteString("0123456789")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	position, err := f.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 6, position)

	buffer := make([]byte, 3)
	_, err = f.ReadAt(buffer, 2)
	require.NoError(t, err)
	assert.Equal(t, "234", string(buffer))

	position, err = f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 6, position, "ReadAt must not move the position")

	_, err = f.WriteAt([]byte("AB"), 0)
	require.NoError(t, err)

	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(rest))

	_, err = f.ReadAt(buffer, 100)
	assert.Equal(t, io.EOF, err)

	_, err = f.Seek(-1, io.SeekStart)
	assert.Error(t, err)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Size())
	assert.Equal(t, "RW.BIN", info.Name())

	assert.NoError(t, f.Sync())
	assert.Error(t, f.Truncate(0))

	contents, err := afero.ReadFile(fs, "/rw.bin")
	require.NoError(t, err)
	assert.Equal(t, "AB23456789", string(contents))
}

func TestFile__Append(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, afero.WriteFile(fs, "/log", []byte("one\n"), 0o644))

	f, err := fs.OpenFile("/log", os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	contents, err := afero.ReadFile(fs, "/log")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(contents))
}

func TestFile__ReaddirPaged(t *testing.T) {
	fs := newTestFs(t)
	for _, name := range []string{"/a", "/b", "/c"} {
		require.NoError(t, afero.WriteFile(fs, name, nil, 0o644))
	}

	dir, err := fs.Open("/")
	require.NoError(t, err)
	defer dir.Close()

	names, err := dir.Readdirnames(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
	names, err = dir.Readdirnames(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, names)
	_, err = dir.Readdirnames(2)
	assert.Equal(t, io.EOF, err)

	_, err = dir.Read(make([]byte, 1))
	assert.Error(t, err, "directories can't be read as files")
}

func TestFs__Devices(t *testing.T) {
	fs := newTestFs(t)

	names, err := afero.ReadDir(fs, "/dev")
	require.NoError(t, err)
	assert.Len(t, names, 5+devfs.TTYCount)

	f, err := fs.Open("/dev/zero")
	require.NoError(t, err)
	buffer := []byte{9, 9, 9}
	_, err = io.ReadFull(f, buffer)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, buffer)
	require.NoError(t, f.Close())

	err = fs.Remove("/dev/null")
	assert.True(t, os.IsPermission(err), "got %v", err)
}
