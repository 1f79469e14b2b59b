package fat

import (
	"io"
	"strings"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
)

// maxUpdateScanSectors caps how many sectors of the parent directory are
// searched for a file's entry.
const maxUpdateScanSectors = 4096

// ReadEntry reads the 32-byte directory entry at the current position of a
// directory. At the end of the directory it returns [io.EOF].
func (v *Volume) ReadEntry(h Handle) (DirectoryEntry, DirEntrySlot, error) {
	f, err := v.lookup(h)
	if err != nil {
		return DirectoryEntry{}, SlotFree, err
	}
	if !f.isDirectory {
		return DirectoryEntry{}, SlotFree, errors.ErrNotADirectory.WithMessage(f.name.String())
	}
	return v.readEntry(f)
}

func (v *Volume) readEntry(f *openFile) (DirectoryEntry, DirEntrySlot, error) {
	var raw [DirentSize]byte
	n, err := v.read(f, raw[:])
	if err != nil {
		return DirectoryEntry{}, SlotFree, err
	}
	if n < DirentSize {
		return DirectoryEntry{}, SlotFree, io.EOF
	}

	entry := ParseDirectoryEntry(raw[:])
	return entry, entry.Slot(), nil
}

// FindFile looks up `name` in a directory. The name must be a single path
// component.
func (v *Volume) FindFile(dir Handle, name string) (DirectoryEntry, error) {
	if strings.ContainsRune(name, '/') {
		return DirectoryEntry{}, errors.ErrInvalidArgument.WithMessagef(
			"%q is not a single path component", name)
	}
	f, err := v.lookup(dir)
	if err != nil {
		return DirectoryEntry{}, err
	}
	return v.findEntry(f, ToShortName(name))
}

func (v *Volume) findEntry(dir *openFile, name ShortName) (DirectoryEntry, error) {
	if !dir.isDirectory {
		return DirectoryEntry{}, errors.ErrNotADirectory.WithMessage(dir.name.String())
	}

	err := v.seek(dir, 0)
	if err != nil {
		return DirectoryEntry{}, err
	}

	for {
		entry, slot, err := v.readEntry(dir)
		if err == io.EOF {
			break
		} else if err != nil {
			return DirectoryEntry{}, err
		}

		if slot == SlotFree {
			break
		}
		if slot != SlotOccupied || entry.IsVolumeLabel() {
			continue
		}
		if entry.Name == name {
			return entry, nil
		}
	}
	return DirectoryEntry{}, errors.ErrNotFound.WithMessagef("%s not found", name)
}

// ReadDir lists the files and subdirectories in a directory, including "." and
// ".." if present. Volume labels are left out.
func (v *Volume) ReadDir(h Handle) ([]DirectoryEntry, error) {
	f, err := v.lookup(h)
	if err != nil {
		return nil, err
	}
	if !f.isDirectory {
		return nil, errors.ErrNotADirectory.WithMessage(f.name.String())
	}

	err = v.seek(f, 0)
	if err != nil {
		return nil, err
	}

	entries := []DirectoryEntry{}
	for {
		entry, slot, err := v.readEntry(f)
		if err == io.EOF {
			return entries, nil
		} else if err != nil {
			return entries, err
		}

		if slot == SlotFree {
			return entries, nil
		}
		if slot == SlotOccupied && !entry.IsVolumeLabel() {
			entries = append(entries, entry)
		}
	}
}

// WriteEntry writes `entry` into a directory at its current position, then
// moves the position past it.
func (v *Volume) WriteEntry(dir Handle, entry DirectoryEntry) error {
	f, err := v.lookup(dir)
	if err != nil {
		return err
	}
	return v.writeEntry(f, &entry)
}

func (v *Volume) writeEntry(dir *openFile, entry *DirectoryEntry) error {
	if !dir.isDirectory {
		return errors.ErrNotADirectory.WithMessage(dir.name.String())
	}
	if dir.pendingAdvance {
		ok, err := v.advance(dir, false)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrNoSpaceOnDevice.WithMessage("directory is full")
		}
	}

	var sector [kfs.SectorSize]byte
	lba := v.currentLBA(dir)
	err := v.readSector(lba, sector[:])
	if err != nil {
		return err
	}

	offset := dir.position % kfs.SectorSize
	entry.WriteTo(sector[offset:])
	err = v.writeSector(lba, sector[:])
	if err != nil {
		return err
	}

	dir.buffer = sector
	dir.position += DirentSize
	if dir.position%kfs.SectorSize == 0 {
		dir.pendingAdvance = true
	}
	return nil
}

// forEachDirSector reads the sectors of a directory in order and passes each
// one to `visit` along with its LBA, until `visit` returns true or an error,
// the directory ends, or `maxSectors` have been read.
//
// `isRoot` selects the fixed root directory on FAT12/16 volumes. On FAT32 the
// root is an ordinary chain starting at `firstCluster`.
func (v *Volume) forEachDirSector(
	isRoot bool,
	firstCluster uint32,
	maxSectors int,
	visit func(lba uint32, sector []byte) (bool, error),
) error {
	sector := make([]byte, kfs.SectorSize)
	visited := 0

	if isRoot && v.hasFixedRoot() {
		for i := uint32(0); i < v.rootDirSectors && visited < maxSectors; i++ {
			lba := v.rootDirLBA + i
			err := v.readSector(lba, sector)
			if err != nil {
				return err
			}
			visited++
			done, err := visit(lba, sector)
			if done || err != nil {
				return err
			}
		}
		return nil
	}

	cluster := firstCluster
	for v.IsValidCluster(cluster) && visited < maxSectors {
		base := v.ClusterToLBA(cluster)
		for i := uint32(0); i < v.SectorsPerCluster() && visited < maxSectors; i++ {
			err := v.readSector(base+i, sector)
			if err != nil {
				return err
			}
			visited++
			done, err := visit(base+i, sector)
			if done || err != nil {
				return err
			}
		}

		next, err := v.NextCluster(cluster)
		if err != nil {
			return err
		}
		if v.chainEnds(next) {
			break
		}
		cluster = next
	}
	return nil
}

// UpdateEntry writes the size and first cluster of an open file back to its
// entry in the parent directory.
func (v *Volume) UpdateEntry(h Handle) error {
	f, err := v.lookup(h)
	if err != nil {
		return err
	}
	return v.updateEntry(f)
}

func (v *Volume) updateEntry(f *openFile) error {
	if f.isRoot {
		return errors.ErrInvalidArgument.WithMessage("the root directory has no entry")
	}

	found := false
	err := v.forEachDirSector(
		f.parentIsRoot,
		f.parentCluster,
		maxUpdateScanSectors,
		func(lba uint32, sector []byte) (bool, error) {
			for offset := 0; offset < kfs.SectorSize; offset += DirentSize {
				entry := ParseDirectoryEntry(sector[offset:])
				slot := entry.Slot()
				if slot == SlotLongName || slot == SlotFree || entry.Name != f.name {
					continue
				}

				entry.Size = f.size
				entry.SetFirstCluster(f.firstCluster)
				date, clock, _ := TimestampToParts(v.now())
				entry.ModifiedDate = date
				entry.ModifiedTime = clock
				entry.WriteTo(sector[offset:])

				found = true
				return true, v.writeSector(lba, sector)
			}
			return false, nil
		},
	)
	if err != nil {
		return err
	}
	if !found {
		logger.Warnf("No entry for %s in its parent directory", f.name)
		return errors.ErrNotFound.WithMessagef("entry for %s not found", f.name)
	}
	return nil
}

// syncSize picks up a size another handle has written to the file's entry.
// Only a larger size on the same chain is taken, and then the buffered sector
// is read again so the other handle's data isn't overwritten with stale bytes.
func (v *Volume) syncSize(f *openFile) error {
	if f.isRoot {
		return nil
	}

	var onDisk uint32
	err := v.forEachDirSector(
		f.parentIsRoot,
		f.parentCluster,
		maxUpdateScanSectors,
		func(lba uint32, sector []byte) (bool, error) {
			for offset := 0; offset < kfs.SectorSize; offset += DirentSize {
				entry := ParseDirectoryEntry(sector[offset:])
				slot := entry.Slot()
				if slot == SlotLongName || slot == SlotFree || entry.Name != f.name {
					continue
				}
				if entry.FirstCluster() == f.firstCluster {
					onDisk = entry.Size
				}
				return true, nil
			}
			return false, nil
		},
	)
	if err != nil || onDisk <= f.size {
		return err
	}

	f.size = onDisk
	return v.readSector(v.currentLBA(f), f.buffer[:])
}

// markDeleted sets the first byte of the entry named `name` in a directory to
// 0xE5. The scan stops at the first never-used entry.
func (v *Volume) markDeleted(parent *openFile, name ShortName) error {
	found := false
	err := v.forEachDirSector(
		parent.isRoot,
		parent.firstCluster,
		maxUpdateScanSectors,
		func(lba uint32, sector []byte) (bool, error) {
			for offset := 0; offset < kfs.SectorSize; offset += DirentSize {
				entry := ParseDirectoryEntry(sector[offset:])
				switch entry.Slot() {
				case SlotFree:
					return true, nil
				case SlotOccupied:
					if entry.Name == name {
						sector[offset] = direntMarkerDeleted
						found = true
						return true, v.writeSector(lba, sector)
					}
				}
			}
			return false, nil
		},
	)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrNotFound.WithMessagef("%s not found in parent directory", name)
	}
	return nil
}
