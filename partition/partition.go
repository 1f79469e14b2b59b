// Package partition finds the volumes on a disk and exposes each one as its own
// block device.
package partition

import (
	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/logging"
)

var logger = logging.For(logging.PART)

// Used when a hard disk has no recognizable partition table.
const (
	defaultPartitionOffset = 16
	defaultPartitionSize   = 0x100000
)

// Partition is a contiguous run of sectors on a disk. LBAs passed to
// ReadSectors and WriteSectors are relative to the start of the partition.
type Partition struct {
	Disk *disks.Disk
	// Offset is the absolute LBA of the partition's first sector.
	Offset uint32
	// Size is the length of the partition in sectors. 0 means the bounds are
	// unknown and accesses aren't checked. Fabricated partitions aren't
	// checked either, since their size is a guess.
	Size uint32
	// Type is the MBR partition type code, or 0 for floppies and fabricated
	// partitions.
	Type  uint8
	Label string
	UUID  uint32
	// IsRoot is set on the partition mounted at "/".
	IsRoot bool
	// Fabricated is true if nothing in the partition table described this
	// partition and Detect had to guess.
	Fabricated bool
}

func (p *Partition) checkBounds(lba uint32, count uint) error {
	if p.Size == 0 || p.Fabricated {
		return nil
	}
	if uint64(lba)+uint64(count) > uint64(p.Size) {
		return errors.ErrInvalidArgument.WithMessagef(
			"sectors [%d, %d) outside partition of %d sectors", lba, uint64(lba)+uint64(count), p.Size)
	}
	return nil
}

// ReadSectors implements [kfs.BlockDevice].
func (p *Partition) ReadSectors(lba uint32, count uint, buffer []byte) error {
	count = kfs.ClampSectorCount(count)
	if err := p.checkBounds(lba, count); err != nil {
		return err
	}
	return p.Disk.ReadSectors(lba+p.Offset, count, buffer)
}

// WriteSectors implements [kfs.BlockDevice].
func (p *Partition) WriteSectors(lba uint32, count uint, data []byte) error {
	count = kfs.ClampSectorCount(count)
	if err := p.checkBounds(lba, count); err != nil {
		return err
	}
	return p.Disk.WriteSectors(lba+p.Offset, count, data)
}

// SizeBytes is the partition's capacity in bytes, capped at what fits in 32
// bits.
func (p *Partition) SizeBytes() uint32 {
	size := uint64(p.Size) * kfs.SectorSize
	if size > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(size)
}

// Detect lists the partitions on a disk.
//
// A floppy is always one partition covering the whole disk. A hard disk's MBR
// is searched for FAT partitions; if there aren't any, a single partition is
// fabricated so something can still try to mount it.
func Detect(disk *disks.Disk) ([]*Partition, error) {
	if disk == nil {
		return nil, errors.ErrInvalidArgument.WithMessage("no disk given")
	}

	if disk.Type == disks.DiskTypeFloppy {
		return []*Partition{
			{
				Disk:   disk,
				Offset: 0,
				Size:   disk.TotalSectors(),
			},
		}, nil
	}

	var partitions []*Partition
	sector := make([]byte, kfs.SectorSize)
	readErr := disk.ReadSectors(0, 1, sector)

	if readErr == nil {
		mbr, err := ParseMBR(sector)
		if err != nil {
			return nil, err
		}
		for i := range mbr.Entries {
			entry := &mbr.Entries[i]
			if !IsFATType(entry.Type) {
				continue
			}
			partitions = append(partitions, &Partition{
				Disk:   disk,
				Offset: entry.LBAStart,
				Size:   entry.Size,
				Type:   entry.Type,
				UUID:   mbr.DiskSignature,
			})
		}
	} else {
		logger.Warnf("Can't read MBR of disk 0x%02x: %s", disk.ID, readErr)
	}

	if len(partitions) == 0 {
		offset := uint32(0)
		if readErr == nil {
			offset = defaultPartitionOffset
		}
		partitions = append(partitions, &Partition{
			Disk:       disk,
			Offset:     offset,
			Size:       defaultPartitionSize,
			Fabricated: true,
		})
	}
	return partitions, nil
}
