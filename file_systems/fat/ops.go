package fat

import (
	"io"
	"strings"
	"time"

	"github.com/dargueta/kfs/errors"
)

// maxCreateScanEntries caps the search for a free slot in a subdirectory. The
// fixed root directory is limited by its DirEntryCount instead.
const maxCreateScanEntries = 65536

// maxDeleteClusters and maxTruncateClusters cap how many clusters a single
// delete or truncate will free.
const (
	maxDeleteClusters   = 10000
	maxTruncateClusters = 5000
)

// OpenFlags change how [Volume.OpenFile] treats the file at the end of the
// path.
type OpenFlags int

const (
	// OpenCreate creates the file if it doesn't exist.
	OpenCreate OpenFlags = 1 << iota
	// OpenTruncate empties an existing regular file.
	OpenTruncate
)

// FileInfo describes an open file.
type FileInfo struct {
	Name         string
	IsDirectory  bool
	Size         uint32
	Position     uint32
	FirstCluster uint32
}

// normalizePath trims a path to the maximum length and removes the leading
// slash.
func normalizePath(path string) string {
	if len(path) > MaxPath-1 {
		path = path[:MaxPath-1]
	}
	return strings.TrimPrefix(path, "/")
}

// splitParent breaks a slash-separated path into its parent directory and its
// final component.
func splitParent(path string) (string, string) {
	path = strings.TrimRight(normalizePath(path), "/")
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		return "", path
	}
	return path[:slash], path[slash+1:]
}

// Open opens the file or directory at `path`, relative to the root of the
// volume. If the last component doesn't exist, it's created as an empty file.
func (v *Volume) Open(path string) (Handle, error) {
	return v.OpenFile(path, OpenCreate)
}

// OpenFile opens the file or directory at `path`. Without [OpenCreate], a
// missing file fails with ENOENT, which makes this usable as an existence
// check.
func (v *Volume) OpenFile(path string, flags OpenFlags) (Handle, error) {
	relative := normalizePath(path)
	components := strings.Split(relative, "/")

	current := RootHandle
	closeCurrent := func() {
		if !current.IsRoot() {
			v.handles.release(current)
		}
	}

	for i, component := range components {
		if component == "" {
			continue
		}
		isLast := i == len(components)-1

		dir, err := v.lookup(current)
		if err != nil {
			return Handle{}, err
		}
		if !dir.isDirectory {
			closeCurrent()
			return Handle{}, errors.ErrNotADirectory.WithMessagef(
				"%s in path %q is not a directory", dir.name, path)
		}

		entry, err := v.findEntry(dir, ToShortName(component))
		if err != nil {
			closeCurrent()
			if errors.Is(err, errors.ErrNotFound) && isLast && flags&OpenCreate != 0 {
				return v.Create(path)
			}
			return Handle{}, err
		}

		next, err := v.openEntry(&entry, dir)
		closeCurrent()
		if err != nil {
			return Handle{}, err
		}
		current = next
	}

	if flags&OpenTruncate != 0 && !current.IsRoot() {
		f, err := v.lookup(current)
		if err != nil {
			return Handle{}, err
		}
		if !f.isDirectory && f.size > 0 {
			err = v.truncate(f)
			if err != nil {
				closeCurrent()
				return Handle{}, err
			}
		}
	}
	return current, nil
}

// openEntry allocates a handle for a file found in directory `parent`.
func (v *Volume) openEntry(entry *DirectoryEntry, parent *openFile) (Handle, error) {
	firstCluster := entry.FirstCluster()

	// ".." in a directory just below the root points to cluster 0.
	if entry.IsDirectory() && firstCluster == 0 {
		return RootHandle, nil
	}
	if firstCluster != 0 && entry.Size > 0 && !v.IsValidCluster(firstCluster) {
		logger.Errorf("%s starts at invalid cluster %d", entry.Name, firstCluster)
		return Handle{}, errors.ErrFileSystemCorrupted.WithMessagef(
			"%s starts at invalid cluster %d", entry.Name, firstCluster)
	}

	f := &openFile{
		name:           entry.Name,
		isDirectory:    entry.IsDirectory(),
		size:           entry.Size,
		firstCluster:   firstCluster,
		currentCluster: firstCluster,
		parentCluster:  parent.firstCluster,
		parentIsRoot:   parent.isRoot,
	}

	if v.IsValidCluster(firstCluster) && (f.isDirectory || f.size > 0) {
		err := v.readSector(v.ClusterToLBA(firstCluster), f.buffer[:])
		if err != nil {
			return Handle{}, err
		}
	}

	h, err := v.handles.open(f)
	if err != nil {
		logger.Warnf("Can't open %s: %s", entry.Name, err)
		return Handle{}, err
	}
	return h, nil
}

// openParent opens the directory containing the final component of `path`.
func (v *Volume) openParent(parentPath string) (Handle, *openFile, error) {
	if parentPath == "" {
		return RootHandle, v.root, nil
	}

	h, err := v.OpenFile(parentPath, 0)
	if err != nil {
		return Handle{}, nil, err
	}
	f, err := v.lookup(h)
	if err != nil {
		return Handle{}, nil, err
	}
	if !f.isDirectory {
		v.Close(h)
		return Handle{}, nil, errors.ErrNotADirectory.WithMessagef("%q is not a directory", parentPath)
	}
	return h, f, nil
}

// Create makes a new empty file at `path` and opens it. The parent directory
// must already exist. It fails with EEXIST if the file already exists, and
// with ENOSPC if the parent directory has no free slots.
func (v *Volume) Create(path string) (Handle, error) {
	return v.createEntry(path, AttrArchive)
}

// Mkdir creates an empty directory at `path`, containing only "." and "..".
func (v *Volume) Mkdir(path string) error {
	h, err := v.createEntry(path, AttrDirectory)
	if err != nil {
		return err
	}
	return v.Close(h)
}

func (v *Volume) createEntry(path string, attributes uint8) (Handle, error) {
	parentPath, baseName := splitParent(path)
	if baseName == "" {
		return Handle{}, errors.ErrInvalidArgument.WithMessagef("%q has no file name", path)
	}

	parentHandle, parent, err := v.openParent(parentPath)
	if err != nil {
		return Handle{}, err
	}
	defer v.Close(parentHandle)

	name := ToShortName(baseName)
	_, err = v.findEntry(parent, name)
	if err == nil {
		return Handle{}, errors.ErrExists.WithMessagef("%s already exists", path)
	} else if !errors.Is(err, errors.ErrNotFound) {
		return Handle{}, err
	}

	// Make sure the new file can be opened before touching the disk.
	if v.handles.count() >= MaxFileHandles {
		return Handle{}, errors.ErrTooManyOpenFiles.WithMessagef("can't open %s", path)
	}

	cluster, err := v.FindFreeCluster()
	if err != nil {
		return Handle{}, err
	}
	err = v.WriteFatEntry(cluster, v.EndOfChainValue())
	if err != nil {
		return Handle{}, err
	}

	now := v.now()
	if attributes&AttrDirectory != 0 {
		err = v.initDirectoryCluster(cluster, parent, now)
	}

	var handle Handle
	if err == nil {
		entry := DirectoryEntry{
			Name:       name,
			Attributes: attributes,
		}
		entry.SetFirstCluster(cluster)
		entry.Stamp(now)
		handle, err = v.insertEntry(parent, &entry)
	}

	if err != nil {
		if freeErr := v.WriteFatEntry(cluster, 0); freeErr != nil {
			logger.Errorf("Failed to release cluster %d: %s", cluster, freeErr)
		}
		return Handle{}, err
	}

	logger.Debugf("Created %s at cluster %d", path, cluster)
	return handle, nil
}

// initDirectoryCluster zeroes the first cluster of a new directory and writes
// its "." and ".." entries.
func (v *Volume) initDirectoryCluster(cluster uint32, parent *openFile, now time.Time) error {
	data := make([]byte, v.BytesPerCluster())

	dot := DirectoryEntry{Name: dotName, Attributes: AttrDirectory}
	dot.SetFirstCluster(cluster)
	dot.Stamp(now)
	dot.WriteTo(data[0:])

	// ".." is 0 when the parent is the root, even on FAT32.
	dotDot := DirectoryEntry{Name: dotDotName, Attributes: AttrDirectory}
	if !parent.isRoot {
		dotDot.SetFirstCluster(parent.firstCluster)
	}
	dotDot.Stamp(now)
	dotDot.WriteTo(data[DirentSize:])

	err := v.device.WriteSectors(v.ClusterToLBA(cluster), uint(v.SectorsPerCluster()), data)
	if err != nil {
		logger.Errorf("Failed to initialize directory cluster %d: %s", cluster, err)
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// insertEntry writes `entry` into the first free or deleted slot of `parent`
// and opens it.
func (v *Volume) insertEntry(parent *openFile, entry *DirectoryEntry) (Handle, error) {
	maxEntries := maxCreateScanEntries
	if parent.isRoot && v.hasFixedRoot() {
		maxEntries = int(v.bootSector.DirEntryCount)
	}

	err := v.seek(parent, 0)
	if err != nil {
		return Handle{}, err
	}

	for i := 0; i < maxEntries; i++ {
		_, slot, err := v.readEntry(parent)
		if err == io.EOF {
			break
		} else if err != nil {
			return Handle{}, err
		}
		if !slot.IsReusable() {
			continue
		}

		err = v.seek(parent, parent.position-DirentSize)
		if err != nil {
			return Handle{}, err
		}
		err = v.writeEntry(parent, entry)
		if err != nil {
			return Handle{}, err
		}
		return v.openEntry(entry, parent)
	}

	logger.Warnf("No free directory slot for %s", entry.Name)
	return Handle{}, errors.ErrNoSpaceOnDevice.WithMessagef(
		"no free directory slot for %s", entry.Name)
}

// Delete removes the file or directory at `path`. Directories are removed
// along with everything in them. Failures deleting individual children don't
// stop the rest of the deletion; all of them are reported together.
func (v *Volume) Delete(path string) error {
	parentPath, baseName := splitParent(path)
	if baseName == "" {
		return errors.ErrInvalidArgument.WithMessage("can't delete the root directory")
	}

	parentHandle, parent, err := v.openParent(parentPath)
	if err != nil {
		return err
	}
	defer v.Close(parentHandle)

	entry, err := v.findEntry(parent, ToShortName(baseName))
	if err != nil {
		return err
	}
	return v.deleteEntry(parent, &entry)
}

func (v *Volume) deleteEntry(parent *openFile, entry *DirectoryEntry) error {
	var result error

	if entry.IsDirectory() && v.IsValidCluster(entry.FirstCluster()) {
		result = errors.Append(result, v.deleteChildren(parent, entry))
	}

	if v.IsValidCluster(entry.FirstCluster()) {
		result = errors.Append(
			result, v.freeChain(entry.FirstCluster(), maxDeleteClusters, true))
	}

	result = errors.Append(result, v.markDeleted(parent, entry.Name))
	if result != nil {
		logger.Warnf("Errors deleting %s: %s", entry.Name, result)
	}
	return result
}

func (v *Volume) deleteChildren(parent *openFile, entry *DirectoryEntry) error {
	dirHandle, err := v.openEntry(entry, parent)
	if err != nil {
		return err
	}
	defer v.Close(dirHandle)

	dir, err := v.lookup(dirHandle)
	if err != nil {
		return err
	}

	// Collect everything first, since deleting a child changes the directory
	// being walked.
	children, err := v.ReadDir(dirHandle)
	var result error
	if err != nil {
		result = errors.Append(result, err)
	}

	for i := range children {
		child := &children[i]
		if child.IsDotEntry() {
			continue
		}
		result = errors.Append(result, v.deleteEntry(dir, child))
	}
	return result
}

// Truncate empties a regular file. The first cluster is kept so the file's
// entry stays valid; every cluster after it is freed.
func (v *Volume) Truncate(h Handle) error {
	f, err := v.lookup(h)
	if err != nil {
		return err
	}
	return v.truncate(f)
}

func (v *Volume) truncate(f *openFile) error {
	if f.isRoot || f.isDirectory {
		return errors.ErrIsADirectory.WithMessagef("can't truncate directory %s", f.name)
	}

	resetPosition := func() {
		f.position = 0
		f.size = 0
		f.currentCluster = f.firstCluster
		f.sectorInCluster = 0
		f.pendingAdvance = false
	}

	if !v.IsValidCluster(f.firstCluster) {
		resetPosition()
		return nil
	}

	next, err := v.NextCluster(f.firstCluster)
	if err != nil {
		return err
	}
	if !v.chainEnds(next) {
		err = v.freeChain(next, maxTruncateClusters, false)
		if err != nil {
			return err
		}
	}

	err = v.WriteFatEntry(f.firstCluster, v.EndOfChainValue())
	if err != nil {
		return err
	}

	resetPosition()
	err = v.readSector(v.ClusterToLBA(f.firstCluster), f.buffer[:])
	if err != nil {
		return err
	}

	v.fatCache.Invalidate()
	return v.updateEntry(f)
}

// Close releases a handle. Closing [RootHandle] rewinds the root directory
// instead.
func (v *Volume) Close(h Handle) error {
	if h.IsRoot() {
		return v.rewindRoot()
	}
	return v.handles.release(h)
}

func (v *Volume) rewindRoot() error {
	return v.seek(v.root, 0)
}

// Stat returns information about an open file.
func (v *Volume) Stat(h Handle) (FileInfo, error) {
	f, err := v.lookup(h)
	if err != nil {
		return FileInfo{}, err
	}

	info := FileInfo{
		Name:         f.name.String(),
		IsDirectory:  f.isDirectory,
		Size:         f.size,
		Position:     f.position,
		FirstCluster: f.firstCluster,
	}
	if f.isRoot {
		info.Name = "/"
	}
	return info, nil
}
