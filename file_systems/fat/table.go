package fat

import (
	"encoding/binary"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	c "github.com/dargueta/kfs/file_systems/common"
)

// End-of-chain markers as they're written to disk.
const (
	EndOfChain12 = 0x0FFF
	EndOfChain16 = 0xFFFF
	EndOfChain32 = 0x0FFFFFFF
)

// readFailureValue is what NextCluster reports when the table can't be read.
// Every width treats it as end of chain.
const readFailureValue = 0xFFFFFFFF

// fatEntryLocation gives the sector within the FAT and the byte offset within
// that sector of the entry for `cluster`.
func (v *Volume) fatEntryLocation(cluster uint32) (sector uint32, offset uint32) {
	var byteOffset uint32
	switch v.fatType {
	case FAT12:
		byteOffset = cluster + cluster/2
	case FAT16:
		byteOffset = cluster * 2
	default:
		byteOffset = cluster * 4
	}
	return byteOffset / kfs.SectorSize, byteOffset % kfs.SectorSize
}

// EndOfChainValue is the value written to terminate a chain on this volume.
func (v *Volume) EndOfChainValue() uint32 {
	switch v.fatType {
	case FAT12:
		return EndOfChain12
	case FAT16:
		return EndOfChain16
	default:
		return EndOfChain32
	}
}

// IsEndOfChain returns true if `value` marks the end of a cluster chain. Both
// the raw on-disk value and the sign-extended value [Volume.NextCluster]
// returns are accepted.
func (v *Volume) IsEndOfChain(value uint32) bool {
	switch v.fatType {
	case FAT12:
		return value >= 0xFF8 && (value <= 0xFFF || value >= 0xFFFFFFF8)
	case FAT16:
		return value >= 0xFFF8 && (value <= 0xFFFF || value >= 0xFFFFFFF8)
	default:
		return value&0x0FFFFFFF >= 0x0FFFFFF8
	}
}

// chainEnds returns true if `next` can't be followed: free, reserved, out of
// range, or an end-of-chain marker. Out of range links stop the walk rather
// than reading garbage.
func (v *Volume) chainEnds(next uint32) bool {
	return next < 2 || v.IsEndOfChain(next) || next >= v.maxClusters+2
}

// NextCluster reads the FAT entry for `cluster`. FAT12 and FAT16 end-of-chain
// values are sign-extended to 32 bits so callers can compare every width the
// same way.
//
// If the table can't be read, the returned value is an end-of-chain marker
// along with the error.
func (v *Volume) NextCluster(cluster uint32) (uint32, error) {
	sector, offset := v.fatEntryLocation(cluster)
	data, err := v.fatCache.Get(c.LogicalBlock(sector))
	if err != nil {
		logger.Errorf("Failed to read FAT sector %d for cluster %d: %s", sector, cluster, err)
		return readFailureValue, err
	}

	switch v.fatType {
	case FAT12:
		var raw uint16
		if offset == kfs.SectorSize-1 {
			// The entry straddles two sectors. Copy out the low byte before
			// fetching the next sector in case the window re-anchors.
			low := data[offset]
			next, err := v.fatCache.Get(c.LogicalBlock(sector + 1))
			if err != nil {
				logger.Errorf(
					"Failed to read FAT sector %d for cluster %d: %s", sector+1, cluster, err)
				return readFailureValue, err
			}
			raw = uint16(low) | uint16(next[0])<<8
		} else {
			raw = binary.LittleEndian.Uint16(data[offset : offset+2])
		}

		var value uint32
		if cluster%2 == 0 {
			value = uint32(raw & 0x0FFF)
		} else {
			value = uint32(raw >> 4)
		}
		if value >= 0xFF8 {
			value |= 0xFFFFF000
		}
		return value, nil

	case FAT16:
		value := uint32(binary.LittleEndian.Uint16(data[offset : offset+2]))
		if value >= 0xFFF8 {
			value |= 0xFFFF0000
		}
		return value, nil

	default:
		return binary.LittleEndian.Uint32(data[offset:offset+4]) & 0x0FFFFFFF, nil
	}
}

// WriteFatEntry sets the entry for `cluster` to `value` in every copy of the
// FAT. Each copy is written in turn, and the first failure stops the update.
func (v *Volume) WriteFatEntry(cluster uint32, value uint32) error {
	sector, offset := v.fatEntryLocation(cluster)

	sectorCount := uint32(1)
	if v.fatType == FAT12 && offset == kfs.SectorSize-1 {
		sectorCount = 2
	}
	buffer := make([]byte, sectorCount*kfs.SectorSize)

	var patched []byte
	for copyIndex := uint32(0); copyIndex < v.fatCount; copyIndex++ {
		lba := v.reserved + copyIndex*v.sectorsPerFat + sector

		err := v.device.ReadSectors(lba, uint(sectorCount), buffer)
		if err != nil {
			logger.Errorf("Failed to read FAT copy %d at sector %d: %s", copyIndex, lba, err)
			return errors.ErrIOFailed.Wrap(err)
		}

		switch v.fatType {
		case FAT12:
			raw := uint16(buffer[offset]) | uint16(buffer[offset+1])<<8
			if cluster%2 == 0 {
				raw = (raw & 0xF000) | uint16(value&0x0FFF)
			} else {
				raw = (raw & 0x000F) | uint16(value&0x0FFF)<<4
			}
			buffer[offset] = byte(raw)
			buffer[offset+1] = byte(raw >> 8)
		case FAT16:
			binary.LittleEndian.PutUint16(buffer[offset:offset+2], uint16(value))
			patched = buffer[offset : offset+2]
		default:
			old := binary.LittleEndian.Uint32(buffer[offset : offset+4])
			binary.LittleEndian.PutUint32(
				buffer[offset:offset+4], (old&0xF0000000)|(value&0x0FFFFFFF))
			patched = buffer[offset : offset+4]
		}

		err = v.device.WriteSectors(lba, uint(sectorCount), buffer)
		if err != nil {
			logger.Errorf("Failed to write FAT copy %d at sector %d: %s", copyIndex, lba, err)
			v.fatCache.Invalidate()
			return errors.ErrIOFailed.Wrap(err)
		}

		// Only the first copy is cached.
		if copyIndex == 0 && patched != nil {
			if !v.fatCache.Patch(c.LogicalBlock(sector), uint(offset), patched) {
				logger.Debugf("FAT sector %d not cached, nothing to patch", sector)
			}
			patched = nil
		}
	}

	// FAT12 entries share bytes with their neighbors, so rather than patching
	// the cache it's dropped entirely.
	if v.fatType == FAT12 {
		v.fatCache.Invalidate()
	}
	return nil
}

// FindFreeCluster returns the lowest-numbered free cluster. It does not claim
// it; the caller must write an entry for it.
func (v *Volume) FindFreeCluster() (uint32, error) {
	for cluster := uint32(2); cluster < v.maxClusters; cluster++ {
		next, err := v.NextCluster(cluster)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			return cluster, nil
		}
	}
	logger.Warnf("No free clusters left on %s volume", v.fatType)
	return 0, errors.ErrNoSpaceOnDevice
}

// CountFreeClusters scans the whole table and counts the free entries in the
// range FindFreeCluster searches.
func (v *Volume) CountFreeClusters() (uint32, error) {
	var free uint32
	for cluster := uint32(2); cluster < v.maxClusters; cluster++ {
		next, err := v.NextCluster(cluster)
		if err != nil {
			return free, err
		}
		if next == 0 {
			free++
		}
	}
	return free, nil
}

// ChainLength follows a chain from `first` and counts its clusters, stopping
// after `limit`. A link to a free or out-of-range cluster is reported as
// corruption along with the length up to that point.
func (v *Volume) ChainLength(first uint32, limit uint32) (uint32, error) {
	if !v.IsValidCluster(first) {
		return 0, errors.ErrFileSystemCorrupted.WithMessagef(
			"chain starts at invalid cluster %d", first)
	}

	length := uint32(0)
	cluster := first
	for length < limit {
		length++
		next, err := v.NextCluster(cluster)
		if err != nil {
			return length, err
		}
		if v.IsEndOfChain(next) {
			return length, nil
		}
		if !v.IsValidCluster(next) {
			logger.Errorf(
				"Broken chain from cluster %d: cluster %d links to %#x", first, cluster, next)
			return length, errors.ErrFileSystemCorrupted.WithMessagef(
				"cluster %d links to invalid cluster %#x", cluster, next)
		}
		cluster = next
	}
	return length, nil
}

// InvalidateCache drops the cached FAT sectors and closes every open handle.
// The root directory is rewound.
func (v *Volume) InvalidateCache() error {
	v.fatCache.Invalidate()
	v.handles.releaseAll()
	return v.rewindRoot()
}

// extendChain allocates a cluster and appends it after `tail`.
func (v *Volume) extendChain(tail uint32) (uint32, error) {
	cluster, err := v.FindFreeCluster()
	if err != nil {
		return 0, err
	}

	err = v.WriteFatEntry(cluster, v.EndOfChainValue())
	if err != nil {
		return 0, err
	}
	err = v.WriteFatEntry(tail, cluster)
	if err != nil {
		return 0, err
	}

	link, err := v.NextCluster(tail)
	if err == nil && link != cluster {
		logger.Errorf("Cluster %d should link to %d but links to %#x", tail, cluster, link)
	}
	marker, err := v.NextCluster(cluster)
	if err == nil && !v.IsEndOfChain(marker) {
		logger.Errorf("New cluster %d should end its chain but links to %#x", cluster, marker)
	}

	logger.Debugf("Extended chain: %d -> %d", tail, cluster)
	return cluster, nil
}

// freeChain marks every cluster in the chain starting at `first` as free, up to
// `limit` clusters. If `zeroData` is set, the contents of each cluster are
// overwritten with zeros first.
//
// Errors don't stop the walk unless the table itself can't be updated.
func (v *Volume) freeChain(first uint32, limit int, zeroData bool) error {
	var result error
	var zeros []byte
	if zeroData {
		zeros = make([]byte, v.BytesPerCluster())
	}

	cluster := first
	for count := 0; v.IsValidCluster(cluster) && count < limit; count++ {
		if zeroData {
			err := v.device.WriteSectors(
				v.ClusterToLBA(cluster), uint(v.SectorsPerCluster()), zeros)
			if err != nil {
				logger.Warnf("Failed to zero cluster %d: %s", cluster, err)
				result = errors.Append(result, errors.ErrIOFailed.Wrap(err))
			}
		}

		next, err := v.NextCluster(cluster)
		if err != nil {
			return errors.Append(result, err)
		}
		err = v.WriteFatEntry(cluster, 0)
		if err != nil {
			return errors.Append(result, err)
		}
		if v.IsEndOfChain(next) {
			break
		}
		cluster = next
	}
	return result
}
