package fat

import (
	"fmt"
	"time"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	c "github.com/dargueta/kfs/file_systems/common"
	"github.com/dargueta/kfs/file_systems/common/blockcache"
	"github.com/dargueta/kfs/logging"
)

// CacheSectors is the number of consecutive FAT sectors kept in memory.
const CacheSectors = 5

// MaxPath is the longest path the driver accepts, including a terminator the
// kernel ABI counts. Longer paths are truncated to MaxPath-1 bytes.
const MaxPath = 256

// rootFakeSize bounds reads of the FAT32 root directory, since directories
// don't record a size.
const rootFakeSize = 0x1000000

// FATType is the width of the entries in the allocation table.
type FATType int

const (
	FAT12 FATType = 12
	FAT16 FATType = 16
	FAT32 FATType = 32
)

func (t FATType) String() string {
	return fmt.Sprintf("FAT%d", int(t))
}

var logger = logging.For(logging.FAT)

// Volume is a mounted FAT file system.
type Volume struct {
	device     kfs.BlockDevice
	bootSector *BootSector
	fatType    FATType

	totalSectors   uint32
	sectorsPerFat  uint32
	reserved       uint32
	fatCount       uint32
	rootDirLBA     uint32
	rootDirSectors uint32
	dataLBA        uint32
	maxClusters    uint32

	fatCache *blockcache.Window
	root     *openFile
	handles  *handleArena

	// now provides timestamps for new directory entries.
	now func() time.Time
}

// Mount reads the boot sector from `device` and opens the root directory. No
// Volume is returned if the boot sector is invalid.
func Mount(device kfs.BlockDevice) (*Volume, error) {
	sector := make([]byte, kfs.SectorSize)
	err := device.ReadSectors(0, 1, sector)
	if err != nil {
		logger.Errorf("Failed to read boot sector: %s", err)
		return nil, errors.ErrIOFailed.Wrap(err)
	}

	bootSector, err := ParseBootSector(sector)
	if err != nil {
		logger.Warnf("Invalid boot sector: %s", err)
		return nil, err
	}

	v := &Volume{
		device:        device,
		bootSector:    bootSector,
		totalSectors:  bootSector.TotalSectorCount(),
		sectorsPerFat: bootSector.SectorsPerFatCount(),
		reserved:      uint32(bootSector.ReservedSectors),
		fatCount:      uint32(bootSector.FatCount),
		handles:       newHandleArena(MaxFileHandles),
		now:           time.Now,
	}

	fatEnd := v.reserved + v.sectorsPerFat*v.fatCount
	if v.hasFixedRoot() {
		v.rootDirLBA = fatEnd
		v.rootDirSectors = bootSector.RootDirSectors()
		v.dataLBA = fatEnd + v.rootDirSectors
	} else {
		v.dataLBA = fatEnd
	}

	if v.totalSectors <= v.dataLBA {
		return nil, errors.ErrInvalidFileSystem.WithMessagef(
			"data region starts at sector %d but the volume only has %d",
			v.dataLBA,
			v.totalSectors)
	}

	v.maxClusters = (v.totalSectors - v.dataLBA) / uint32(bootSector.SectorsPerCluster)
	if v.maxClusters < 0xFF5 {
		v.fatType = FAT12
	} else if bootSector.SectorsPerFat != 0 {
		v.fatType = FAT16
	} else {
		v.fatType = FAT32
	}

	v.fatCache = blockcache.New(CacheSectors, v.fetchFATSector)

	err = v.openRoot()
	if err != nil {
		return nil, err
	}

	logger.Infof(
		"Mounted %s volume: %d sectors, %d clusters of %d bytes",
		v.fatType,
		v.totalSectors,
		v.maxClusters,
		v.BytesPerCluster())
	return v, nil
}

func (v *Volume) openRoot() error {
	root := &openFile{
		isDirectory:  true,
		isRoot:       true,
		parentIsRoot: true,
	}

	if v.hasFixedRoot() {
		root.firstCluster = v.rootDirLBA
		root.currentCluster = v.rootDirLBA
		root.size = uint32(v.bootSector.DirEntryCount) * DirentSize
		err := v.readSector(v.rootDirLBA, root.buffer[:])
		if err != nil {
			return err
		}
	} else {
		rootCluster := v.bootSector.FAT32.RootDirectoryCluster
		if !v.IsValidCluster(rootCluster) {
			return errors.ErrInvalidFileSystem.WithMessagef(
				"root directory cluster %d is out of range", rootCluster)
		}
		root.firstCluster = rootCluster
		root.currentCluster = rootCluster
		root.size = rootFakeSize
		err := v.readSector(v.ClusterToLBA(rootCluster), root.buffer[:])
		if err != nil {
			return err
		}
	}

	root.parentCluster = root.firstCluster
	v.root = root
	return nil
}

// fetchFATSector loads a sector of the first FAT copy for the cache. Block
// indices are relative to the start of the FAT.
func (v *Volume) fetchFATSector(block c.LogicalBlock, buffer []byte) error {
	return v.device.ReadSectors(v.reserved+uint32(block), 1, buffer)
}

func (v *Volume) readSector(lba uint32, buffer []byte) error {
	err := v.device.ReadSectors(lba, 1, buffer)
	if err != nil {
		logger.Errorf("Failed to read sector %d: %s", lba, err)
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (v *Volume) writeSector(lba uint32, data []byte) error {
	err := v.device.WriteSectors(lba, 1, data)
	if err != nil {
		logger.Errorf("Failed to write sector %d: %s", lba, err)
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// hasFixedRoot returns true for FAT12/16 layouts, where the root directory is
// a fixed run of sectors between the FATs and the data region.
func (v *Volume) hasFixedRoot() bool {
	return v.bootSector.FAT32 == nil
}

// Type is the FAT width the volume was detected as.
func (v *Volume) Type() FATType {
	return v.fatType
}

// BootSector returns a copy of the volume's boot sector.
func (v *Volume) BootSector() BootSector {
	return *v.bootSector
}

// RootHandle returns the handle of the root directory.
func (v *Volume) RootHandle() Handle {
	return RootHandle
}

// Device returns the block device the volume was mounted from.
func (v *Volume) Device() kfs.BlockDevice {
	return v.device
}

// MaxClusters is the number of clusters in the data region. Valid cluster
// numbers run from 2 to MaxClusters+1.
func (v *Volume) MaxClusters() uint32 {
	return v.maxClusters
}

func (v *Volume) IsValidCluster(cluster uint32) bool {
	return cluster >= 2 && cluster < v.maxClusters+2
}

func (v *Volume) SectorsPerCluster() uint32 {
	return uint32(v.bootSector.SectorsPerCluster)
}

func (v *Volume) BytesPerCluster() uint32 {
	return v.SectorsPerCluster() * kfs.SectorSize
}

// ClusterToLBA gives the absolute sector of the start of a data cluster.
func (v *Volume) ClusterToLBA(cluster uint32) uint32 {
	return v.dataLBA + (cluster-2)*v.SectorsPerCluster()
}

// SetClock replaces the time source used for stamping new files.
func (v *Volume) SetClock(now func() time.Time) {
	v.now = now
}

// OpenHandleCount is the number of handles currently open, not counting the
// root directory.
func (v *Volume) OpenHandleCount() uint {
	return v.handles.count()
}

func (v *Volume) lookup(h Handle) (*openFile, error) {
	if h.IsRoot() {
		return v.root, nil
	}
	return v.handles.get(h)
}
