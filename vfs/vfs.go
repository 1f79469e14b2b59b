// Package vfs maps absolute paths onto mounted filesystems and gives every
// backend the same file interface.
package vfs

import (
	"strings"

	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/logging"
)

const (
	// MaxMounts is the size of the mount table.
	MaxMounts = 8
	// MaxPath is the longest path, in bytes, that the mount table will store or
	// resolve. Longer paths are truncated.
	MaxPath = 256
)

var logger = logging.For(logging.VFS)

type mountEntry struct {
	point string
	fs    *Filesystem
}

// MountInfo describes an entry in the mount table.
type MountInfo struct {
	Point      string
	Filesystem *Filesystem
}

// VFS is a mount table.
type VFS struct {
	mounts []mountEntry
}

func New() *VFS {
	v := &VFS{}
	v.Init()
	return v
}

// Init empties the mount table without touching the filesystems that were
// mounted.
func (v *VFS) Init() {
	v.mounts = make([]mountEntry, 0, MaxMounts)
}

func truncatePath(path string) string {
	if len(path) > MaxPath-1 {
		return path[:MaxPath-1]
	}
	return path
}

// normalizeMountPoint checks that `location` is absolute and strips trailing
// slashes, except from "/" itself.
func normalizeMountPoint(location string) (string, error) {
	if location == "" {
		return "", errors.ErrInvalidArgument.WithMessage("mount point can't be empty")
	}
	if location[0] != '/' {
		return "", errors.ErrInvalidArgument.WithMessagef(
			"mount point %q must start with '/'", location)
	}

	end := len(location)
	for end > 1 && location[end-1] == '/' {
		end--
	}
	return truncatePath(location[:end]), nil
}

// Mount attaches an initialized filesystem at `point`.
func (v *VFS) Mount(fs *Filesystem, point string) error {
	if fs == nil {
		return errors.ErrInvalidArgument.WithMessage("invalid filesystem for mount")
	}
	if fs.Kind == EXT2 {
		return errors.ErrNotSupported.WithMessage("EXT2 isn't implemented")
	}
	if !fs.initialized() {
		return errors.ErrInvalidArgument.WithMessage("no filesystem initialized on this volume")
	}
	if len(v.mounts) >= MaxMounts {
		return errors.ErrNoSpaceOnDevice.WithMessage("mount table full")
	}

	normalized, err := normalizeMountPoint(point)
	if err != nil {
		return err
	}
	for _, mount := range v.mounts {
		if mount.point == normalized {
			logger.Warnf("Mount point %s already in use", normalized)
			return errors.ErrBusy.WithMessagef("mount point %q already in use", normalized)
		}
	}

	v.mounts = append(v.mounts, mountEntry{point: normalized, fs: fs})
	fs.Mounted = true
	logger.Infof("Mounted %s at %s", fs.Label(), normalized)
	return nil
}

// Umount detaches whatever is mounted at `point`. The last entry in the table
// takes the freed slot, so [VFS.Mounts] isn't stable across unmounts.
func (v *VFS) Umount(point string) error {
	normalized, err := normalizeMountPoint(point)
	if err != nil {
		return err
	}

	for i, mount := range v.mounts {
		if mount.point != normalized {
			continue
		}
		last := len(v.mounts) - 1
		v.mounts[i] = v.mounts[last]
		v.mounts = v.mounts[:last]
		mount.fs.Mounted = false
		logger.Infof("Unmounted %s", normalized)
		return nil
	}
	return errors.ErrNotFound.WithMessagef("nothing mounted at %q", normalized)
}

// UmountAll detaches every filesystem.
func (v *VFS) UmountAll() {
	for _, mount := range v.mounts {
		mount.fs.Mounted = false
	}
	v.Init()
}

// Mounts lists the mount table in slot order.
func (v *VFS) Mounts() []MountInfo {
	result := make([]MountInfo, len(v.mounts))
	for i, mount := range v.mounts {
		result[i] = MountInfo{Point: mount.point, Filesystem: mount.fs}
	}
	return result
}

// match finds the mount with the longest prefix of `path`. A prefix only counts
// if the path ends there or continues with a '/', so "/datafoo" doesn't match a
// mount at "/data".
func (v *VFS) match(path string) (*mountEntry, int) {
	var best *mountEntry
	bestLength := 0

	for i := range v.mounts {
		mount := &v.mounts[i]
		point := mount.point
		if !strings.HasPrefix(path, point) {
			continue
		}
		if len(path) > len(point) && path[len(point)] != '/' && !strings.HasSuffix(point, "/") {
			continue
		}
		if best == nil || len(point) > bestLength {
			best = mount
			bestLength = len(point)
		}
	}
	return best, bestLength
}

// Resolve finds the filesystem holding `path` and the path relative to its
// root. The relative path always starts with '/'. An empty path means "/".
func (v *VFS) Resolve(path string) (*Filesystem, string, error) {
	if path == "" {
		path = "/"
	}
	path = truncatePath(path)

	mount, prefixLength := v.match(path)
	if mount == nil {
		logger.Warnf("No mount found for path %q", path)
		return nil, "", errors.ErrNotFound.WithMessagef("no mount found for path %q", path)
	}

	tail := path[prefixLength:]
	switch {
	case tail == "":
		tail = "/"
	case tail[0] != '/':
		tail = "/" + tail
	}
	return mount.fs, tail, nil
}
