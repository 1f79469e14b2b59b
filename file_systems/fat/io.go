package fat

import (
	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
)

// maxReadAdvances caps the number of sectors a single Read call will step
// through.
const maxReadAdvances = 10000

// currentLBA gives the absolute sector held in the file's buffer.
func (v *Volume) currentLBA(f *openFile) uint32 {
	if f.isRoot && v.hasFixedRoot() {
		return f.currentCluster
	}
	return v.ClusterToLBA(f.currentCluster) + f.sectorInCluster
}

// advance moves the file to the sector following the one in its buffer and
// loads it. It returns false if there is no next sector. With `allocate` set,
// a new cluster is appended to the chain instead.
//
// The file isn't modified unless the move succeeds.
func (v *Volume) advance(f *openFile, allocate bool) (bool, error) {
	if f.isRoot && v.hasFixedRoot() {
		next := f.currentCluster + 1
		if next >= v.rootDirLBA+v.rootDirSectors {
			return false, nil
		}
		err := v.readSector(next, f.buffer[:])
		if err != nil {
			return false, err
		}
		f.currentCluster = next
		f.pendingAdvance = false
		return true, nil
	}

	cluster := f.currentCluster
	sectorInCluster := f.sectorInCluster + 1
	if sectorInCluster >= v.SectorsPerCluster() {
		next, err := v.NextCluster(cluster)
		if err != nil {
			return false, err
		}
		if v.chainEnds(next) {
			if !allocate {
				return false, nil
			}
			next, err = v.extendChain(cluster)
			if err != nil {
				return false, err
			}
		}
		cluster = next
		sectorInCluster = 0
	}

	err := v.readSector(v.ClusterToLBA(cluster)+sectorInCluster, f.buffer[:])
	if err != nil {
		return false, err
	}
	f.currentCluster = cluster
	f.sectorInCluster = sectorInCluster
	f.pendingAdvance = false
	return true, nil
}

// Read reads from the file's current position into `buffer`. Reads of regular
// files stop at the end of the file; reads of directories stop at the end of
// their cluster chain. The number of bytes read is returned, which is 0 at the
// end of the file.
//
// If the cluster chain turns out to be shorter than the recorded size, the
// handle's size is cut down to where the data ends.
func (v *Volume) Read(h Handle, buffer []byte) (int, error) {
	f, err := v.lookup(h)
	if err != nil {
		return 0, err
	}
	return v.read(f, buffer)
}

func (v *Volume) read(f *openFile, buffer []byte) (int, error) {
	count := uint32(len(buffer))
	if !f.isDirectory {
		if f.size == 0 {
			return 0, nil
		}
		if remaining := f.size - f.position; count > remaining {
			count = remaining
		}
	} else if f.isRoot && !v.hasFixedRoot() {
		if f.position >= rootFakeSize {
			return 0, nil
		}
		if remaining := uint32(rootFakeSize) - f.position; count > remaining {
			count = remaining
		}
	}
	if count == 0 {
		return 0, nil
	}

	if !f.isRoot && !v.IsValidCluster(f.firstCluster) {
		logger.Warnf("%s has no data clusters, treating it as empty", f.name)
		f.size = f.position
		return 0, nil
	}

	total := uint32(0)
	advances := 0
	for total < count {
		if f.pendingAdvance {
			advances++
			if advances > maxReadAdvances {
				logger.Warnf("Read of %s stopped after %d sectors", f.name, maxReadAdvances)
				break
			}

			ok, err := v.advance(f, false)
			if err != nil {
				return int(total), err
			}
			if !ok {
				if !f.isDirectory && f.size != f.position {
					logger.Warnf(
						"%s ends at byte %d but its size is %d", f.name, f.position, f.size)
				}
				f.size = f.position
				break
			}
		}

		offset := f.position % kfs.SectorSize
		take := kfs.SectorSize - offset
		if take > count-total {
			take = count - total
		}

		copy(buffer[total:total+take], f.buffer[offset:offset+take])
		total += take
		f.position += take
		if offset+take == kfs.SectorSize {
			f.pendingAdvance = true
		}
	}
	return int(total), nil
}

// Seek moves the file's position to the absolute byte offset `position`.
// Regular files can seek anywhere up to and including their size. Directories
// can seek anywhere within their cluster chain.
func (v *Volume) Seek(h Handle, position uint32) error {
	f, err := v.lookup(h)
	if err != nil {
		return err
	}
	return v.seek(f, position)
}

func (v *Volume) seek(f *openFile, position uint32) error {
	if !f.isDirectory && position > f.size {
		return errors.ErrInvalidArgument.WithMessagef(
			"can't seek to %d, %s is only %d bytes", position, f.name, f.size)
	}

	// Seeking to the end of a file that fills its last sector exactly leaves
	// the buffer on that last sector. The next write will take care of moving
	// forward, allocating a cluster if needed.
	target := position
	park := false
	if !f.isDirectory && position > 0 && position == f.size && position%kfs.SectorSize == 0 {
		target = position - 1
		park = true
	}

	if f.isRoot && v.hasFixedRoot() {
		sectorIndex := target / kfs.SectorSize
		if sectorIndex >= v.rootDirSectors {
			if position != v.rootDirSectors*kfs.SectorSize || position == 0 {
				return errors.ErrInvalidArgument.WithMessagef(
					"position %d is past the end of the root directory", position)
			}
			sectorIndex = v.rootDirSectors - 1
			park = true
		}

		lba := v.rootDirLBA + sectorIndex
		err := v.readSector(lba, f.buffer[:])
		if err != nil {
			return err
		}
		f.currentCluster = lba
		f.position = position
		f.pendingAdvance = park
		return nil
	}

	if !v.IsValidCluster(f.firstCluster) {
		if position != 0 {
			return errors.ErrInvalidArgument.WithMessagef(
				"%s has no clusters, can't seek to %d", f.name, position)
		}
		f.currentCluster = f.firstCluster
		f.sectorInCluster = 0
		f.position = 0
		f.pendingAdvance = false
		return nil
	}

	clusterBytes := v.BytesPerCluster()
	linksToFollow := target / clusterBytes
	cluster := f.firstCluster
	for i := uint32(0); i < linksToFollow; i++ {
		next, err := v.NextCluster(cluster)
		if err != nil {
			return err
		}
		if v.chainEnds(next) {
			reachable := (i + 1) * clusterBytes
			if !f.isDirectory && f.size > reachable {
				logger.Warnf(
					"%s claims %d bytes but its chain only holds %d", f.name, f.size, reachable)
				f.size = reachable
			}
			return errors.ErrInvalidArgument.WithMessagef(
				"position %d is past the end of the cluster chain of %s", position, f.name)
		}
		cluster = next
	}

	sectorInCluster := (target % clusterBytes) / kfs.SectorSize
	err := v.readSector(v.ClusterToLBA(cluster)+sectorInCluster, f.buffer[:])
	if err != nil {
		return err
	}
	f.currentCluster = cluster
	f.sectorInCluster = sectorInCluster
	f.position = position
	f.pendingAdvance = park
	return nil
}

// startChain gives a file without any clusters its first one.
func (v *Volume) startChain(f *openFile) error {
	cluster, err := v.FindFreeCluster()
	if err != nil {
		return err
	}
	err = v.WriteFatEntry(cluster, v.EndOfChainValue())
	if err != nil {
		return err
	}

	f.firstCluster = cluster
	f.currentCluster = cluster
	f.sectorInCluster = 0
	f.pendingAdvance = false
	f.buffer = [kfs.SectorSize]byte{}
	return nil
}

// Write writes `data` at the file's current position, growing the file and its
// cluster chain as needed. The directory entry is updated afterwards with the
// new size.
//
// Writing never truncates; use [Volume.Truncate] or [OpenTruncate] for that.
// If an error occurs partway, the number of bytes that made it to disk is
// returned with the error.
func (v *Volume) Write(h Handle, data []byte) (int, error) {
	f, err := v.lookup(h)
	if err != nil {
		return 0, err
	}
	if f.isDirectory {
		return 0, errors.ErrIsADirectory.WithMessagef("can't write to directory %s", f.name)
	}
	if len(data) == 0 {
		return 0, nil
	}

	if !v.IsValidCluster(f.firstCluster) {
		if f.position != 0 {
			return 0, errors.ErrFileSystemCorrupted.WithMessagef(
				"%s has no clusters but its position is %d", f.name, f.position)
		}
		err = v.startChain(f)
		if err != nil {
			return 0, err
		}
	} else if err = v.syncSize(f); err != nil {
		return 0, err
	}

	if f.size == 0 && f.position == 0 {
		f.buffer = [kfs.SectorSize]byte{}
	}

	if f.pendingAdvance {
		_, err = v.advance(f, true)
		if err != nil {
			return 0, err
		}
	}

	written := 0
	var writeErr error
	for written < len(data) {
		offset := f.position % kfs.SectorSize
		take := int(kfs.SectorSize - offset)
		if take > len(data)-written {
			take = len(data) - written
		}

		copy(f.buffer[offset:], data[written:written+take])
		written += take
		f.position += uint32(take)
		if f.position > f.size {
			f.size = f.position
		}

		writeErr = v.writeSector(v.currentLBA(f), f.buffer[:])
		if writeErr != nil {
			break
		}
		if written == len(data) {
			f.pendingAdvance = int(offset)+take == kfs.SectorSize
			break
		}

		_, writeErr = v.advance(f, true)
		if writeErr != nil {
			break
		}
	}

	if _, err := v.ChainLength(f.firstCluster, 100); err != nil {
		logger.Warnf("Chain of %s is damaged after write: %s", f.name, err)
	}

	updateErr := v.updateEntry(f)
	return written, errors.Append(writeErr, updateErr)
}
