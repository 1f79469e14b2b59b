package aferofs

import (
	"io"
	"math"
	"os"

	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/vfs"
)

// File is an [afero.File] wrapping an open [vfs.File].
type File struct {
	fs   *Fs
	file *vfs.File
	name string
	// dirOffset is how many entries Readdir has already returned.
	dirOffset int
}

func (f *File) Close() error {
	return pathError("close", f.name, f.file.Close())
}

// Read reads from the current position. It returns io.EOF once nothing is
// left.
func (f *File) Read(p []byte) (int, error) {
	if f.file.IsDirectory() {
		return 0, pathError("read", f.name, errors.ErrIsADirectory)
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.file.Read(p)
	if err != nil {
		return n, pathError("read", f.name, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt reads at `off` without moving the position used by Read and Write.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	restore, err := f.seekTemporarily(off, "read")
	if err != nil {
		return 0, err
	}
	defer restore()

	total := 0
	for total < len(p) {
		n, err := f.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (f *File) seekTemporarily(off int64, op string) (func(), error) {
	saved, err := f.file.Position()
	if err != nil {
		return nil, pathError(op, f.name, err)
	}
	if off < 0 || off > math.MaxUint32 {
		return nil, pathError(op, f.name, errors.ErrInvalidArgument)
	}
	if err := f.file.Seek(uint32(off)); err != nil {
		if uint64(off) >= uint64(f.file.Size()) && op == "read" {
			return nil, io.EOF
		}
		return nil, pathError(op, f.name, err)
	}
	return func() { f.file.Seek(saved) }, nil
}

// Seek moves the position. FAT files can't seek past their end.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		position, err := f.file.Position()
		if err != nil {
			return 0, pathError("seek", f.name, err)
		}
		base = int64(position)
	case io.SeekEnd:
		base = int64(f.file.Size())
	default:
		return 0, pathError("seek", f.name, errors.ErrInvalidArgument)
	}

	target := base + offset
	if target < 0 || target > math.MaxUint32 {
		return 0, pathError("seek", f.name, errors.ErrInvalidArgument)
	}
	if err := f.file.Seek(uint32(target)); err != nil {
		return 0, pathError("seek", f.name, err)
	}
	return target, nil
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	return n, pathError("write", f.name, err)
}

// WriteAt writes at `off` without moving the position used by Read and Write.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	restore, err := f.seekTemporarily(off, "write")
	if err != nil {
		return 0, err
	}
	defer restore()
	return f.Write(p)
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

func (f *File) Name() string {
	return f.name
}

// Readdir lists the directory. With `count` > 0 it returns at most that many
// entries per call and io.EOF when there are none left; otherwise it returns
// everything that hasn't been returned yet.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.file.IsDirectory() {
		return nil, pathError("readdir", f.name, errors.ErrNotADirectory)
	}

	entries, err := f.fs.vfs.ReadDir(f.name)
	if err != nil {
		return nil, pathError("readdir", f.name, err)
	}
	if f.dirOffset > len(entries) {
		f.dirOffset = len(entries)
	}
	remaining := entries[f.dirOffset:]

	if count > 0 {
		if len(remaining) == 0 {
			return nil, io.EOF
		}
		if len(remaining) > count {
			remaining = remaining[:count]
		}
	}
	f.dirOffset += len(remaining)

	result := make([]os.FileInfo, len(remaining))
	for i := range remaining {
		result[i] = newFileInfo(remaining[i])
	}
	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	infos, err := f.Readdir(count)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (f *File) Stat() (os.FileInfo, error) {
	info, err := f.file.Stat()
	if err != nil {
		return nil, pathError("stat", f.name, err)
	}
	return newFileInfo(info), nil
}

// Sync is a no-op. Writes go straight to the device.
func (f *File) Sync() error {
	return nil
}

func (f *File) Truncate(size int64) error {
	return pathError("truncate", f.name, errors.ErrNotSupported)
}
