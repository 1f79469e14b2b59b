package fd_test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/fd"
	"github.com/dargueta/kfs/logging"
	"github.com/dargueta/kfs/partition"
	kfstest "github.com/dargueta/kfs/testing"
	"github.com/dargueta/kfs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T) (*fd.Table, *bytes.Buffer) {
	_, disk := kfstest.NewFloppyDisk(t, 0)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	fs, err := vfs.NewFATFilesystem(parts[0])
	require.NoError(t, err)

	table := vfs.New()
	require.NoError(t, table.Mount(fs, "/"))

	terminal := &bytes.Buffer{}
	return fd.New(table, terminal), terminal
}

func TestOpen__HelloScenario(t *testing.T) {
	table, _ := newTable(t)

	fd, err := table.Open("/a.txt", kfs.O_CREAT|kfs.O_RDWR)
	require.NoError(t, err)
	assert.Equal(t, 3, fd, "first descriptor must skip the standard streams")

	n, err := table.Write(fd, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	offset, err := table.Lseek(fd, 0, kfs.SEEK_SET)
	require.NoError(t, err)
	assert.EqualValues(t, 0, offset)

	buffer := make([]byte, 5)
	n, err = table.Read(fd, buffer)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buffer))
	require.NoError(t, table.Close(fd))

	_, err = table.Get(fd)
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
}

func TestOpen__Missing(t *testing.T) {
	table, _ := newTable(t)
	_, err := table.Open("/nope.txt", kfs.O_RDONLY)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	fd, err := table.Open("/yes.txt", kfs.O_CREAT)
	require.NoError(t, err)
	assert.Equal(t, 3, fd, "a failed open must not use up a slot")
}

func TestOpen__TableFull(t *testing.T) {
	table, _ := newTable(t)
	// The root directory doesn't take up one of the FAT engine's handles, so
	// only the descriptor table limits how often it can be opened.
	for i := 3; i < fd.TableSize; i++ {
		got, err := table.Open("/", kfs.O_RDONLY)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}

	_, err := table.Open("/", kfs.O_RDONLY)
	assert.ErrorIs(t, err, errors.ErrTooManyOpenFiles)

	require.NoError(t, table.Close(11))
	got, err := table.Open("/", kfs.O_RDONLY)
	require.NoError(t, err)
	assert.Equal(t, 11, got, "lowest free descriptor is reused")
}

func TestOpen__RecordsDescriptor(t *testing.T) {
	table, _ := newTable(t)
	// Empty path components are skipped and long paths are cut, so this opens
	// the root directory.
	path := strings.Repeat("/", 300) + "ignored"
	number, err := table.Open(path, kfs.O_RDONLY)
	require.NoError(t, err)

	descriptor, err := table.Get(number)
	require.NoError(t, err)
	assert.Equal(t, path[:fd.MaxPath], descriptor.Path)
	assert.True(t, descriptor.File.IsDirectory())
	assert.True(t, descriptor.Readable)
	assert.False(t, descriptor.Writable)
	assert.EqualValues(t, 0, descriptor.Offset)
}

func TestAccessModes(t *testing.T) {
	table, _ := newTable(t)

	writeOnly, err := table.Open("/w", kfs.O_CREAT|kfs.O_WRONLY)
	require.NoError(t, err)
	_, err = table.Read(writeOnly, make([]byte, 1))
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)
	_, err = table.Write(writeOnly, []byte("x"))
	assert.NoError(t, err)

	readOnly, err := table.Open("/w", kfs.O_RDONLY)
	require.NoError(t, err)
	_, err = table.Write(readOnly, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	_, err = table.Read(readOnly, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.NoError(t, table.CloseAll())
}

func TestWrite__StandardStreams(t *testing.T) {
	table, terminal := newTable(t)

	n, err := table.Write(fd.Stdout, []byte("out "))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = table.Write(fd.Stderr, []byte("err"))
	require.NoError(t, err)
	assert.Equal(t, "out err", terminal.String())

	_, err = table.Write(fd.Stdin, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)

	assert.NoError(t, table.Close(fd.Stdout), "closing a standard stream is a no-op")
	_, err = table.Get(fd.Stdout)
	assert.NoError(t, err)

	_, err = table.Write(9, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	assert.ErrorIs(t, table.Close(-1), errors.ErrInvalidFileDescriptor)
	assert.ErrorIs(t, table.Close(fd.TableSize), errors.ErrInvalidFileDescriptor)
}

// shortTerminal accepts `room` bytes in total, then fails.
type shortTerminal struct {
	room int
}

func (w *shortTerminal) Write(p []byte) (int, error) {
	if len(p) <= w.room {
		w.room -= len(p)
		return len(p), nil
	}
	n := w.room
	w.room = 0
	return n, io.ErrShortWrite
}

func TestWrite__TerminalFailure(t *testing.T) {
	table := fd.New(vfs.New(), &shortTerminal{room: 3})

	n, err := table.Write(fd.Stdout, []byte("abcdef"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 3, n)

	n, err = table.Write(fd.Stderr, []byte("x"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Zero(t, n)
}

func TestWrite__NoTerminal(t *testing.T) {
	table := fd.New(vfs.New(), nil)
	n, err := table.Write(fd.Stdout, []byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestOpen__LogsActualError(t *testing.T) {
	table, _ := newTable(t)
	number, err := table.Open("/file.txt", kfs.O_CREAT|kfs.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, table.Close(number))

	output := &bytes.Buffer{}
	logging.SetOutput(output)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })

	_, err = table.Open("/file.txt/inner", kfs.O_RDONLY)
	require.ErrorIs(t, err, errors.ErrNotADirectory)
	assert.Contains(t, output.String(), err.Error())
	assert.NotContains(t, output.String(), "file not found")
}

func TestWrite__Append(t *testing.T) {
	table, _ := newTable(t)

	fd, err := table.Open("/log", kfs.O_CREAT|kfs.O_WRONLY)
	require.NoError(t, err)
	_, err = table.Write(fd, []byte("one"))
	require.NoError(t, err)
	require.NoError(t, table.Close(fd))

	fd, err = table.Open("/log", kfs.O_WRONLY|kfs.O_APPEND)
	require.NoError(t, err)
	descriptor, err := table.Get(fd)
	require.NoError(t, err)
	assert.EqualValues(t, 3, descriptor.Offset)

	_, err = table.Lseek(fd, 0, kfs.SEEK_SET)
	require.NoError(t, err)
	_, err = table.Write(fd, []byte("two"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, descriptor.Offset)
	require.NoError(t, table.Close(fd))

	fd, err = table.Open("/log", kfs.O_RDONLY)
	require.NoError(t, err)
	buffer := make([]byte, 16)
	n, err := table.Read(fd, buffer)
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(buffer[:n]))
}

func TestWrite__Truncate(t *testing.T) {
	table, _ := newTable(t)
	fd, err := table.Open("/t", kfs.O_CREAT|kfs.O_RDWR)
	require.NoError(t, err)
	_, err = table.Write(fd, []byte("content"))
	require.NoError(t, err)
	require.NoError(t, table.Close(fd))

	fd, err = table.Open("/t", kfs.O_RDWR|kfs.O_TRUNC)
	require.NoError(t, err)
	descriptor, err := table.Get(fd)
	require.NoError(t, err)
	assert.EqualValues(t, 0, descriptor.File.Size())
}

func TestLseek(t *testing.T) {
	table, _ := newTable(t)
	fd, err := table.Open("/s", kfs.O_CREAT|kfs.O_RDWR)
	require.NoError(t, err)
	_, err = table.Write(fd, []byte("0123456789"))
	require.NoError(t, err)

	offset, err := table.Lseek(fd, 4, kfs.SEEK_SET)
	require.NoError(t, err)
	assert.EqualValues(t, 4, offset)
	offset, err = table.Lseek(fd, 2, kfs.SEEK_CUR)
	require.NoError(t, err)
	assert.EqualValues(t, 6, offset)

	buffer := make([]byte, 2)
	_, err = table.Read(fd, buffer)
	require.NoError(t, err)
	assert.Equal(t, "67", string(buffer))

	_, err = table.Lseek(fd, -100, kfs.SEEK_CUR)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = table.Lseek(fd, 0, kfs.SEEK_END)
	assert.ErrorIs(t, err, errors.ErrNotImplemented)
	_, err = table.Lseek(fd, 0, 7)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = table.Lseek(fd, 11, kfs.SEEK_SET)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "FAT files can't seek past the end")

	descriptor, err := table.Get(fd)
	require.NoError(t, err)
	assert.EqualValues(t, 8, descriptor.Offset, "failed seeks leave the offset alone")
}

func TestCloseAll(t *testing.T) {
	table, _ := newTable(t)
	for _, name := range []string{"/a", "/b", "/c"} {
		_, err := table.Open(name, kfs.O_CREAT)
		require.NoError(t, err)
	}
	require.NoError(t, table.CloseAll())

	for fd := 3; fd < 6; fd++ {
		_, err := table.Get(fd)
		assert.ErrorIs(t, err, errors.ErrInvalidFileDescriptor)
	}
	for fd := 0; fd < 3; fd++ {
		_, err := table.Get(fd)
		assert.NoError(t, err)
	}
}
