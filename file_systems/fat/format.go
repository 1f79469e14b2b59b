package fat

import (
	"bytes"
	"encoding/binary"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
)

// FormatOptions describes the volume [Format] creates. Only Type and
// TotalSectors are required; zero values in the other fields are replaced with
// sensible defaults for the FAT type.
type FormatOptions struct {
	Type         FATType
	TotalSectors uint32

	// SectorsPerCluster defaults to 1 on FAT12 and 4 otherwise.
	SectorsPerCluster uint8
	// ReservedSectors defaults to 1 on FAT12/16 and 32 on FAT32.
	ReservedSectors uint16
	// FatCount defaults to 2.
	FatCount uint8
	// RootEntries is ignored on FAT32. It defaults to 224 on FAT12 and 512 on
	// FAT16.
	RootEntries uint16
	// MediaDescriptor defaults to 0xF0 on FAT12 and 0xF8 otherwise.
	MediaDescriptor uint8
	SectorsPerTrack uint16
	Heads           uint16

	// VolumeLabel is written to the boot sector and, if not empty, as a volume
	// label entry in the root directory.
	VolumeLabel string
	VolumeID    uint32
	OEMName     string
}

const (
	fsInfoSector     = 1
	backupBootSector = 6
)

func (opts *FormatOptions) applyDefaults() {
	if opts.SectorsPerCluster == 0 {
		if opts.Type == FAT12 {
			opts.SectorsPerCluster = 1
		} else {
			opts.SectorsPerCluster = 4
		}
	}
	if opts.ReservedSectors == 0 {
		if opts.Type == FAT32 {
			opts.ReservedSectors = 32
		} else {
			opts.ReservedSectors = 1
		}
	}
	if opts.FatCount == 0 {
		opts.FatCount = 2
	}
	if opts.RootEntries == 0 && opts.Type != FAT32 {
		if opts.Type == FAT12 {
			opts.RootEntries = 224
		} else {
			opts.RootEntries = 512
		}
	}
	if opts.Type == FAT32 {
		opts.RootEntries = 0
	}
	if opts.MediaDescriptor == 0 {
		if opts.Type == FAT12 {
			opts.MediaDescriptor = 0xF0
		} else {
			opts.MediaDescriptor = 0xF8
		}
	}
	if opts.SectorsPerTrack == 0 {
		opts.SectorsPerTrack = 63
	}
	if opts.Heads == 0 {
		opts.Heads = 16
	}
	if opts.OEMName == "" {
		opts.OEMName = "KFS"
	}
}

func padded(value string, size int) []byte {
	result := bytes.Repeat([]byte{' '}, size)
	copy(result, value)
	return result
}

// sectorsPerFatFor computes the smallest FAT that can address every cluster in
// the space left over after it.
func sectorsPerFatFor(opts *FormatOptions, rootDirSectors uint32) (uint32, error) {
	overhead := uint32(opts.ReservedSectors) + rootDirSectors
	if opts.TotalSectors <= overhead {
		return 0, errors.ErrInvalidArgument.WithMessagef(
			"%d sectors is too small for the reserved area and root directory",
			opts.TotalSectors)
	}

	var entryBits uint32
	switch opts.Type {
	case FAT12:
		entryBits = 12
	case FAT16:
		entryBits = 16
	default:
		entryBits = 32
	}

	sectorsPerFat := uint32(1)
	for {
		fatSectors := sectorsPerFat * uint32(opts.FatCount)
		if opts.TotalSectors <= overhead+fatSectors {
			return 0, errors.ErrInvalidArgument.WithMessagef(
				"%d sectors is too small for a %s volume", opts.TotalSectors, opts.Type)
		}

		clusters := (opts.TotalSectors - overhead - fatSectors) / uint32(opts.SectorsPerCluster)
		tableBytes := ((clusters+2)*entryBits + 7) / 8
		needed := (tableBytes + kfs.SectorSize - 1) / kfs.SectorSize
		if needed <= sectorsPerFat {
			return sectorsPerFat, nil
		}
		sectorsPerFat = needed
	}
}

// checkClusterCount makes sure the volume will be detected as the requested
// type when it's mounted.
func checkClusterCount(fatType FATType, clusters uint32) error {
	switch fatType {
	case FAT12:
		if clusters < 0xFF5 {
			return nil
		}
	case FAT16:
		if clusters >= 0xFF5 && clusters < 0xFFF5 {
			return nil
		}
	case FAT32:
		if clusters >= 0xFF5 && clusters < 0x0FFFFFF5 {
			return nil
		}
	default:
		return errors.ErrInvalidArgument.WithMessagef("unsupported FAT type %d", int(fatType))
	}
	return errors.ErrInvalidArgument.WithMessagef(
		"%d clusters is the wrong size for %s, try a different size or cluster size",
		clusters,
		fatType)
}

// Format writes an empty FAT file system to `device`. The device must have at
// least `opts.TotalSectors` sectors.
//
// Only the boot sector, the FATs, and the root directory are written. The data
// region is left as it is.
func Format(device kfs.BlockDevice, opts FormatOptions) error {
	opts.applyDefaults()
	if !isPowerOfTwo(uint(opts.SectorsPerCluster)) {
		return errors.ErrInvalidArgument.WithMessagef(
			"sectors per cluster must be a power of 2, got %d", opts.SectorsPerCluster)
	}

	rootDirSectors := (uint32(opts.RootEntries)*DirentSize + kfs.SectorSize - 1) / kfs.SectorSize
	sectorsPerFat, err := sectorsPerFatFor(&opts, rootDirSectors)
	if err != nil {
		return err
	}

	fatStart := uint32(opts.ReservedSectors)
	rootDirStart := fatStart + sectorsPerFat*uint32(opts.FatCount)
	dataStart := rootDirStart + rootDirSectors
	clusters := (opts.TotalSectors - dataStart) / uint32(opts.SectorsPerCluster)

	err = checkClusterCount(opts.Type, clusters)
	if err != nil {
		return err
	}
	if opts.Type == FAT16 && sectorsPerFat > 0xFFFF {
		return errors.ErrInvalidArgument.WithMessage("FAT is too large for a FAT16 volume")
	}

	bootSector := BootSector{
		JumpInstruction:   [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    kfs.SectorSize,
		SectorsPerCluster: opts.SectorsPerCluster,
		ReservedSectors:   opts.ReservedSectors,
		FatCount:          opts.FatCount,
		DirEntryCount:     opts.RootEntries,
		MediaDescriptor:   opts.MediaDescriptor,
		SectorsPerTrack:   opts.SectorsPerTrack,
		Heads:             opts.Heads,
		EBR: ExtendedBootRecord{
			DriveNumber: 0x80,
			Signature:   0x29,
			VolumeID:    opts.VolumeID,
		},
	}
	copy(bootSector.OEMName[:], padded(opts.OEMName, 8))

	label := opts.VolumeLabel
	if label == "" {
		label = "NO NAME"
	}
	copy(bootSector.EBR.VolumeLabel[:], padded(label, 11))

	if opts.TotalSectors <= 0xFFFF {
		bootSector.TotalSectors = uint16(opts.TotalSectors)
	} else {
		bootSector.LargeSectorCount = opts.TotalSectors
	}

	if opts.Type == FAT32 {
		bootSector.JumpInstruction[1] = 0x58
		bootSector.FAT32 = &FAT32BootRecord{
			SectorsPerFat:        sectorsPerFat,
			RootDirectoryCluster: 2,
			FSInfoSector:         fsInfoSector,
			BackupBootSector:     backupBootSector,
		}
		copy(bootSector.EBR.SystemID[:], padded("FAT32", 8))
	} else {
		bootSector.SectorsPerFat = uint16(sectorsPerFat)
		if opts.Type == FAT12 {
			bootSector.EBR.DriveNumber = 0
		}
		copy(bootSector.EBR.SystemID[:], padded(opts.Type.String(), 8))
	}

	err = zeroSectors(device, 0, dataStart)
	if err != nil {
		return err
	}

	err = writeSectors(device, 0, bootSector.Bytes())
	if err != nil {
		return err
	}
	if opts.Type == FAT32 {
		err = writeSectors(device, backupBootSector, bootSector.Bytes())
		if err != nil {
			return err
		}
		err = writeSectors(device, fsInfoSector, buildFSInfo(clusters-1))
		if err != nil {
			return err
		}
	}

	// The first sector of every FAT holds the two reserved entries. On FAT32
	// the root directory's cluster is marked as the end of its chain too.
	fatHead := make([]byte, kfs.SectorSize)
	switch opts.Type {
	case FAT12:
		fatHead[0] = opts.MediaDescriptor
		fatHead[1] = 0xFF
		fatHead[2] = 0xFF
	case FAT16:
		binary.LittleEndian.PutUint16(fatHead[0:2], 0xFF00|uint16(opts.MediaDescriptor))
		binary.LittleEndian.PutUint16(fatHead[2:4], EndOfChain16)
	case FAT32:
		binary.LittleEndian.PutUint32(fatHead[0:4], 0x0FFFFF00|uint32(opts.MediaDescriptor))
		binary.LittleEndian.PutUint32(fatHead[4:8], EndOfChain32)
		binary.LittleEndian.PutUint32(fatHead[8:12], EndOfChain32)
	}

	for i := uint32(0); i < uint32(opts.FatCount); i++ {
		err = writeSectors(device, fatStart+i*sectorsPerFat, fatHead)
		if err != nil {
			return err
		}
	}

	rootStart := rootDirStart
	if opts.Type == FAT32 {
		rootStart = dataStart
		err = zeroSectors(device, dataStart, uint32(opts.SectorsPerCluster))
		if err != nil {
			return err
		}
	}

	if opts.VolumeLabel != "" {
		rootSector := make([]byte, kfs.SectorSize)
		labelEntry := DirectoryEntry{Attributes: AttrVolumeID | AttrArchive}
		copy(labelEntry.Name[:], padded(opts.VolumeLabel, 11))
		labelEntry.WriteTo(rootSector)
		err = writeSectors(device, rootStart, rootSector)
		if err != nil {
			return err
		}
	}

	logger.Infof(
		"Formatted %s volume: %d sectors, %d clusters, %d sectors per FAT",
		opts.Type,
		opts.TotalSectors,
		clusters,
		sectorsPerFat)
	return nil
}

// buildFSInfo creates the FAT32 FSInfo sector. The free count is a hint that we
// never keep up to date, same as most small drivers.
func buildFSInfo(freeClusters uint32) []byte {
	sector := make([]byte, kfs.SectorSize)
	binary.LittleEndian.PutUint32(sector[0:4], 0x41615252)
	binary.LittleEndian.PutUint32(sector[484:488], 0x61417272)
	binary.LittleEndian.PutUint32(sector[488:492], freeClusters)
	binary.LittleEndian.PutUint32(sector[492:496], 3)
	binary.LittleEndian.PutUint32(sector[508:512], 0xAA550000)
	return sector
}

func writeSectors(device kfs.BlockDevice, lba uint32, data []byte) error {
	err := device.WriteSectors(lba, uint(len(data)/kfs.SectorSize), data)
	if err != nil {
		logger.Errorf("Failed to write sector %d while formatting: %s", lba, err)
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// zeroSectors fills `count` sectors starting at `lba` with zeros.
func zeroSectors(device kfs.BlockDevice, lba uint32, count uint32) error {
	zeros := make([]byte, kfs.MaxSectorsPerTransfer*kfs.SectorSize)
	for count > 0 {
		chunk := count
		if chunk > kfs.MaxSectorsPerTransfer {
			chunk = kfs.MaxSectorsPerTransfer
		}
		err := writeSectors(device, lba, zeros[:chunk*kfs.SectorSize])
		if err != nil {
			return err
		}
		lba += chunk
		count -= chunk
	}
	return nil
}
