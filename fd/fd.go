// Package fd implements a process's file descriptor table on top of the VFS.
//
// Descriptors 0, 1 and 2 are always present. Writes to 1 and 2 go to the
// terminal; the rest are open VFS files with their own offset.
package fd

import (
	"io"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/logging"
	"github.com/dargueta/kfs/vfs"
)

const (
	// TableSize is the number of descriptors a process can have, including
	// the three standard streams.
	TableSize = 16
	// MaxPath is the longest path a descriptor records. Longer paths are cut.
	MaxPath = 255

	Stdin  = 0
	Stdout = 1
	Stderr = 2

	firstUserFD = 3
)

var logger = logging.For(logging.FD)

// Descriptor is an open entry in the table.
type Descriptor struct {
	Path     string
	Offset   uint32
	Flags    int
	Readable bool
	Writable bool
	File     *vfs.File
}

// Table is the descriptor table of a single process.
type Table struct {
	vfs         *vfs.VFS
	terminal    io.Writer
	alloc       *common.Allocator
	descriptors [TableSize]*Descriptor
}

// New creates a table with only the standard streams open. Output written to
// stdout and stderr goes to `terminal`, which may be nil to discard it.
func New(v *vfs.VFS, terminal io.Writer) *Table {
	table := &Table{
		vfs:      v,
		terminal: terminal,
		alloc:    common.NewAllocatorWithExhaustionError(TableSize, errors.ErrTooManyOpenFiles),
	}
	for fd := Stdin; fd <= Stderr; fd++ {
		table.alloc.Reserve(common.UnitID(fd))
		table.descriptors[fd] = &Descriptor{
			Flags:    kfs.O_RDWR,
			Readable: fd == Stdin,
			Writable: fd != Stdin,
		}
	}
	return table
}

// Get returns the descriptor for `fd`, or EBADF if it isn't open.
func (t *Table) Get(fd int) (*Descriptor, error) {
	if fd < 0 || fd >= TableSize || t.descriptors[fd] == nil {
		return nil, errors.ErrInvalidFileDescriptor.WithMessagef("bad file descriptor %d", fd)
	}
	return t.descriptors[fd], nil
}

// Open opens `path` and returns the lowest free descriptor. O_CREAT creates a
// missing file, O_TRUNC empties an existing one and O_APPEND makes every write
// go to the end of the file.
func (t *Table) Open(path string, flags int) (int, error) {
	if path == "" {
		return -1, errors.ErrInvalidArgument.WithMessage("empty path")
	}

	slot, err := t.alloc.AllocateSingle()
	if err != nil {
		logger.Errorf("open: too many open files")
		return -1, err
	}

	var openFlags vfs.OpenFlags
	if flags&kfs.O_CREAT != 0 {
		openFlags |= vfs.OpenCreate
	}
	if flags&kfs.O_TRUNC != 0 {
		openFlags |= vfs.OpenTruncate
	}

	file, err := t.vfs.OpenFile(path, openFlags)
	if err != nil {
		t.alloc.FreeSingle(slot)
		logger.Errorf("open: %s: %s", path, err)
		return -1, err
	}

	if len(path) > MaxPath {
		path = path[:MaxPath]
	}
	descriptor := &Descriptor{
		Path:     path,
		Flags:    flags,
		Readable: kfs.IsReadable(flags),
		Writable: kfs.IsWritable(flags),
		File:     file,
	}
	if flags&kfs.O_APPEND != 0 {
		descriptor.Offset = file.Size()
	}

	fd := int(slot)
	t.descriptors[fd] = descriptor
	logger.Infof("opened: fd=%d, path=%s", fd, path)
	return fd, nil
}

// Close closes a descriptor. Closing a standard stream does nothing.
func (t *Table) Close(fd int) error {
	descriptor, err := t.Get(fd)
	if err != nil {
		return err
	}
	if fd < firstUserFD {
		return nil
	}

	t.descriptors[fd] = nil
	t.alloc.FreeSingle(common.UnitID(fd))
	logger.Infof("closed: fd=%d", fd)
	return descriptor.File.Close()
}

// CloseAll closes every descriptor except the standard streams.
func (t *Table) CloseAll() error {
	var result error
	for fd := firstUserFD; fd < TableSize; fd++ {
		if t.descriptors[fd] != nil {
			result = errors.Append(result, t.Close(fd))
		}
	}
	return result
}

// Read reads into `buffer` from the descriptor's offset and advances it.
func (t *Table) Read(fd int, buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, errors.ErrInvalidArgument.WithMessage("read count must be nonzero")
	}
	descriptor, err := t.Get(fd)
	if err != nil {
		return 0, err
	}
	if !descriptor.Readable {
		return 0, errors.ErrPermissionDenied.WithMessagef("fd %d isn't open for reading", fd)
	}
	if descriptor.File == nil {
		// Nothing feeds stdin.
		return 0, nil
	}

	if err := descriptor.File.Seek(descriptor.Offset); err != nil {
		return 0, err
	}
	n, err := descriptor.File.Read(buffer)
	descriptor.Offset += uint32(n)
	return n, err
}

// Write writes `data` at the descriptor's offset, or at the end of the file in
// append mode, and advances the offset.
func (t *Table) Write(fd int, data []byte) (int, error) {
	if fd == Stdout || fd == Stderr {
		if t.terminal == nil {
			return len(data), nil
		}
		return t.terminal.Write(data)
	}
	if fd == Stdin {
		return 0, errors.ErrInvalidFileDescriptor.WithMessage("can't write to stdin")
	}

	descriptor, err := t.Get(fd)
	if err != nil {
		return 0, err
	}
	if !descriptor.Writable {
		return 0, errors.ErrPermissionDenied.WithMessagef("fd %d isn't open for writing", fd)
	}

	if descriptor.Flags&kfs.O_APPEND != 0 {
		descriptor.Offset = descriptor.File.Size()
	}
	if err := descriptor.File.Seek(descriptor.Offset); err != nil {
		return 0, err
	}
	n, err := descriptor.File.Write(data)
	descriptor.Offset += uint32(n)
	return n, err
}

// Lseek moves the offset of a descriptor and returns the new offset. SEEK_END
// isn't supported.
func (t *Table) Lseek(fd int, offset int32, whence int) (uint32, error) {
	descriptor, err := t.Get(fd)
	if err != nil {
		return 0, err
	}

	var target int64
	switch whence {
	case kfs.SEEK_SET:
		target = int64(offset)
	case kfs.SEEK_CUR:
		target = int64(descriptor.Offset) + int64(offset)
	case kfs.SEEK_END:
		logger.Warn("seek: SEEK_END not yet implemented")
		return 0, errors.ErrNotImplemented.WithMessage("SEEK_END")
	default:
		return 0, errors.ErrInvalidArgument.WithMessagef("invalid whence %d", whence)
	}

	if target < 0 || target > int64(^uint32(0)) {
		return 0, errors.ErrInvalidArgument.WithMessagef("can't seek to %d", target)
	}
	if descriptor.File == nil {
		return 0, errors.ErrIllegalSeek.WithMessagef("fd %d is a stream", fd)
	}
	if err := descriptor.File.Seek(uint32(target)); err != nil {
		return 0, err
	}
	descriptor.Offset = uint32(target)
	return descriptor.Offset, nil
}
