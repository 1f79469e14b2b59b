// Package aferofs exposes a VFS mount table as an [afero.Fs], so tools can use
// afero's helpers (ReadFile, WriteFile, Walk, ...) on kernel filesystems.
package aferofs

import (
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/vfs"
	"github.com/spf13/afero"
)

// Fs is an [afero.Fs] on top of a [vfs.VFS].
//
// Names are absolute VFS paths. Relative names are taken relative to "/".
type Fs struct {
	vfs *vfs.VFS
}

func New(v *vfs.VFS) afero.Fs {
	return &Fs{vfs: v}
}

// syscallErrnos maps our error codes onto the host's so that os.IsNotExist and
// friends work on errors from this package.
var syscallErrnos = map[errors.Errno]syscall.Errno{
	errors.EPERM:        syscall.EPERM,
	errors.ENOENT:       syscall.ENOENT,
	errors.EIO:          syscall.EIO,
	errors.EBADF:        syscall.EBADF,
	errors.EACCES:       syscall.EACCES,
	errors.EBUSY:        syscall.EBUSY,
	errors.EEXIST:       syscall.EEXIST,
	errors.ENODEV:       syscall.ENODEV,
	errors.ENOTDIR:      syscall.ENOTDIR,
	errors.EISDIR:       syscall.EISDIR,
	errors.EINVAL:       syscall.EINVAL,
	errors.EMFILE:       syscall.EMFILE,
	errors.EFBIG:        syscall.EFBIG,
	errors.ENOSPC:       syscall.ENOSPC,
	errors.ESPIPE:       syscall.ESPIPE,
	errors.EROFS:        syscall.EROFS,
	errors.ENAMETOOLONG: syscall.ENAMETOOLONG,
	errors.ENOSYS:       syscall.ENOSYS,
	errors.ENOTEMPTY:    syscall.ENOTEMPTY,
	errors.ENOTSUP:      syscall.ENOTSUP,
}

func toSyscallErrno(err error) syscall.Errno {
	if errno, ok := syscallErrnos[errors.ErrnoOf(err)]; ok {
		return errno
	}
	return syscall.EIO
}

func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: name, Err: toSyscallErrno(err)}
}

func cleanPath(name string) string {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return path.Clean(name)
}

// Create creates or truncates a file.
func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// Mkdir creates a directory. `perm` is ignored since FAT has no permissions.
func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return pathError("mkdir", name, fs.vfs.Mkdir(cleanPath(name)))
}

// MkdirAll creates a directory and any missing parents.
func (fs *Fs) MkdirAll(name string, perm os.FileMode) error {
	name = cleanPath(name)
	if name == "/" {
		return nil
	}

	current := ""
	for _, component := range strings.Split(strings.TrimPrefix(name, "/"), "/") {
		current += "/" + component
		info, err := fs.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return pathError("mkdir", current, errors.ErrNotADirectory)
			}
			continue
		}
		if !os.IsNotExist(err) {
			return err
		}
		if err := fs.vfs.Mkdir(current); err != nil {
			return pathError("mkdir", current, err)
		}
	}
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens a file. O_CREATE, O_EXCL and O_TRUNC are honored; the access
// mode and `perm` are not, since the VFS has no permissions.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	cleaned := cleanPath(name)

	var flags vfs.OpenFlags
	if flag&os.O_CREATE != 0 {
		if flag&os.O_EXCL != 0 {
			if _, err := fs.Stat(cleaned); err == nil {
				return nil, pathError("open", name, errors.ErrExists)
			}
		}
		flags |= vfs.OpenCreate
	}
	if flag&os.O_TRUNC != 0 {
		flags |= vfs.OpenTruncate
	}

	f, err := fs.vfs.OpenFile(cleaned, flags)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	result := &File{fs: fs, file: f, name: cleaned}
	if flag&os.O_APPEND != 0 {
		if err := f.Seek(f.Size()); err != nil {
			f.Close()
			return nil, pathError("open", name, err)
		}
	}
	return result, nil
}

// Remove deletes a file or an empty directory.
func (fs *Fs) Remove(name string) error {
	cleaned := cleanPath(name)
	info, err := fs.Stat(cleaned)
	if err != nil {
		return err
	}
	if info.IsDir() {
		entries, err := fs.vfs.ReadDir(cleaned)
		if err != nil {
			return pathError("remove", name, err)
		}
		if len(entries) > 0 {
			return pathError("remove", name, errors.ErrDirectoryNotEmpty)
		}
	}
	return pathError("remove", name, fs.vfs.Delete(cleaned))
}

// RemoveAll deletes a file or a directory and everything in it. A missing path
// isn't an error.
func (fs *Fs) RemoveAll(name string) error {
	cleaned := cleanPath(name)
	if _, err := fs.Stat(cleaned); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return pathError("remove", name, fs.vfs.Delete(cleaned))
}

func (fs *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.ENOTSUP}
}

// Stat describes a file without leaving it open.
func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	cleaned := cleanPath(name)
	f, err := fs.vfs.OpenFile(cleaned, 0)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return newFileInfo(info), nil
}

func (fs *Fs) Name() string {
	return "kfs"
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, errors.ErrNotSupported)
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, errors.ErrNotSupported)
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, errors.ErrNotSupported)
}

////////////////////////////////////////////////////////////////////////////////

type fileInfo struct {
	info vfs.FileInfo
}

func newFileInfo(info vfs.FileInfo) os.FileInfo {
	return fileInfo{info: info}
}

func (i fileInfo) Name() string {
	return i.info.Name
}

func (i fileInfo) Size() int64 {
	return int64(i.info.Size)
}

func (i fileInfo) Mode() os.FileMode {
	if i.info.IsDirectory {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func (i fileInfo) ModTime() time.Time {
	return i.info.ModTime
}

func (i fileInfo) IsDir() bool {
	return i.info.IsDirectory
}

func (i fileInfo) Sys() interface{} {
	return i.info
}
