package vfs

import (
	"time"

	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/dargueta/kfs/file_systems/fat"
)

// OpenFlags change how [VFS.OpenFile] treats the file at the end of the path.
type OpenFlags int

const (
	// OpenCreate creates a missing file.
	OpenCreate OpenFlags = 1 << iota
	// OpenTruncate empties an existing file. Devices ignore it.
	OpenTruncate
)

// File is an open file on any mounted filesystem. Which handle is valid
// depends on `kind`.
type File struct {
	fs          *Filesystem
	kind        Kind
	name        string
	isDirectory bool
	size        uint32
	closed      bool

	fatHandle fat.Handle
	devFile   *devfs.File
}

// FileInfo describes an open file or a directory entry.
type FileInfo struct {
	Name        string
	IsDirectory bool
	Size        uint32
	// ModTime is the zero time if the filesystem doesn't record one.
	ModTime time.Time
}

// Open opens a file, creating it on FAT filesystems if it doesn't exist.
func (v *VFS) Open(path string) (*File, error) {
	return v.OpenFile(path, OpenCreate)
}

// OpenFile opens a file. Without [OpenCreate] a missing file fails with
// ENOENT.
func (v *VFS) OpenFile(path string, flags OpenFlags) (*File, error) {
	fs, relative, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}

	switch {
	case fs.Kind.IsFAT():
		var fatFlags fat.OpenFlags
		// Read-only filesystems open existing files but never create them.
		if flags&OpenCreate != 0 && !fs.ReadOnly {
			fatFlags |= fat.OpenCreate
		}
		if flags&OpenTruncate != 0 {
			if fs.ReadOnly {
				return nil, errors.ErrReadOnlyFileSystem.WithMessagef("can't truncate %q", path)
			}
			fatFlags |= fat.OpenTruncate
		}

		handle, err := fs.fat.OpenFile(relative, fatFlags)
		if err != nil {
			return nil, err
		}
		info, err := fs.fat.Stat(handle)
		if err != nil {
			fs.fat.Close(handle)
			return nil, err
		}
		return &File{
			fs:          fs,
			kind:        fs.Kind,
			name:        info.Name,
			isDirectory: info.IsDirectory,
			size:        info.Size,
			fatHandle:   handle,
		}, nil

	case fs.Kind == DEVFS:
		if relative == "/" {
			return &File{fs: fs, kind: DEVFS, name: "/", isDirectory: true}, nil
		}
		dev, err := fs.devfs.Open(relative)
		if err != nil {
			return nil, err
		}
		return &File{
			fs:          fs,
			kind:        DEVFS,
			name:        dev.Node().Name,
			isDirectory: dev.IsDirectory(),
			size:        dev.Size(),
			devFile:     dev,
		}, nil
	}

	logger.Warnf("Unsupported filesystem type %d", fs.Kind)
	return nil, errors.ErrNotSupported.WithMessagef("can't open files on %s", fs.Kind)
}

func (f *File) check() error {
	if f == nil || f.closed {
		return errors.ErrInvalidFileDescriptor.WithMessage("file is closed")
	}
	return nil
}

func (f *File) Kind() Kind {
	return f.kind
}

func (f *File) Name() string {
	return f.name
}

func (f *File) IsDirectory() bool {
	return f.isDirectory
}

func (f *File) Filesystem() *Filesystem {
	return f.fs
}

// Read reads from the current position.
func (f *File) Read(buffer []byte) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	if f.kind == DEVFS {
		if f.devFile == nil {
			return 0, errors.ErrIsADirectory.WithMessage("can't read the device directory")
		}
		return f.devFile.Read(buffer)
	}
	return f.fs.fat.Read(f.fatHandle, buffer)
}

// Write writes at the current position.
func (f *File) Write(data []byte) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	if f.kind == DEVFS {
		if f.devFile == nil {
			return 0, errors.ErrIsADirectory.WithMessage("can't write the device directory")
		}
		return f.devFile.Write(data)
	}
	if f.fs.ReadOnly {
		return 0, errors.ErrReadOnlyFileSystem.WithMessagef("can't write to %q", f.name)
	}
	n, err := f.fs.fat.Write(f.fatHandle, data)
	f.refreshSize()
	return n, err
}

// Seek moves the position to `position` bytes from the start of the file.
func (f *File) Seek(position uint32) error {
	if err := f.check(); err != nil {
		return err
	}
	if f.kind == DEVFS {
		if f.devFile == nil {
			return errors.ErrIsADirectory.WithMessage("can't seek in the device directory")
		}
		return f.devFile.Seek(position)
	}
	return f.fs.fat.Seek(f.fatHandle, position)
}

// Position returns the current position.
func (f *File) Position() (uint32, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if f.kind == DEVFS {
		if f.devFile == nil {
			return 0, nil
		}
		return f.devFile.Position(), nil
	}
	info, err := f.fs.fat.Stat(f.fatHandle)
	return info.Position, err
}

func (f *File) refreshSize() {
	if f.kind == DEVFS {
		if f.devFile != nil {
			f.size = f.devFile.Size()
		}
		return
	}
	if info, err := f.fs.fat.Stat(f.fatHandle); err == nil {
		f.size = info.Size
	}
}

// Size returns the size of the file in bytes, asking the backend first in case
// it changed. Reads that hit the end of a short cluster chain, for example,
// shrink a FAT file.
func (f *File) Size() uint32 {
	if f.check() == nil {
		f.refreshSize()
	}
	return f.size
}

// Stat describes the open file.
func (f *File) Stat() (FileInfo, error) {
	if err := f.check(); err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:        f.name,
		IsDirectory: f.isDirectory,
		Size:        f.Size(),
	}, nil
}

// Ioctl sends a control request to a device. Files don't accept any.
func (f *File) Ioctl(request uint32, arg any) error {
	if err := f.check(); err != nil {
		return err
	}
	if f.kind != DEVFS || f.devFile == nil {
		return errors.ErrNotSupported.WithMessagef("%q isn't a device", f.name)
	}
	return f.devFile.Ioctl(request, arg)
}

// Close releases the file. Closing twice fails with EBADF.
func (f *File) Close() error {
	if err := f.check(); err != nil {
		return err
	}
	f.closed = true
	if f.kind == DEVFS {
		if f.devFile == nil {
			return nil
		}
		return f.devFile.Close()
	}
	return f.fs.fat.Close(f.fatHandle)
}

////////////////////////////////////////////////////////////////////////////////
// Path operations

// Delete removes a file, or a directory and everything in it.
func (v *VFS) Delete(path string) error {
	fs, relative, err := v.Resolve(path)
	if err != nil {
		return err
	}
	if fs.ReadOnly {
		return errors.ErrReadOnlyFileSystem.WithMessagef("can't delete %q", path)
	}

	switch {
	case fs.Kind.IsFAT():
		return fs.fat.Delete(relative)
	case fs.Kind == DEVFS:
		return fs.devfs.Delete(relative)
	}
	return errors.ErrNotSupported.WithMessagef("can't delete files on %s", fs.Kind)
}

// Mkdir creates an empty directory. Devices can't be created this way.
func (v *VFS) Mkdir(path string) error {
	fs, relative, err := v.Resolve(path)
	if err != nil {
		return err
	}
	if fs.ReadOnly {
		return errors.ErrReadOnlyFileSystem.WithMessagef("can't create %q", path)
	}
	if !fs.Kind.IsFAT() {
		return errors.ErrNotPermitted.WithMessagef("can't create directories on %s", fs.Kind)
	}
	return fs.fat.Mkdir(relative)
}

// ReadDir lists a directory, leaving out "." and "..". Listing the root of a
// devfs mount gives every registered device.
func (v *VFS) ReadDir(path string) ([]FileInfo, error) {
	fs, relative, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}

	switch {
	case fs.Kind.IsFAT():
		return readFATDir(fs.fat, relative)
	case fs.Kind == DEVFS:
		if relative != "/" {
			return nil, errors.ErrNotADirectory.WithMessagef("%q isn't a directory", path)
		}
		var infos []FileInfo
		fs.devfs.Enumerate(func(node *devfs.Node) bool {
			infos = append(infos, FileInfo{
				Name:        node.Name,
				IsDirectory: node.Type == devfs.Dir,
				Size:        node.Size,
			})
			return true
		})
		return infos, nil
	}
	return nil, errors.ErrNotSupported.WithMessagef("can't list directories on %s", fs.Kind)
}

func readFATDir(volume *fat.Volume, relative string) ([]FileInfo, error) {
	handle, err := volume.OpenFile(relative, 0)
	if err != nil {
		return nil, err
	}
	defer volume.Close(handle)

	entries, err := volume.ReadDir(handle)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		if entry.IsDotEntry() {
			continue
		}
		infos = append(infos, FileInfo{
			Name:        entry.Name.String(),
			IsDirectory: entry.IsDirectory(),
			Size:        entry.Size,
			ModTime:     entry.ModifiedAt(),
		})
	}
	return infos, nil
}
