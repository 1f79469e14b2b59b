// Package kfs is the storage core of the kernel: the FAT engine, the VFS
// dispatch layer, the file descriptor table and the devfs pseudo-filesystem.
//
// Everything above the hardware talks to disks through [BlockDevice]. Disk
// drivers (ATA PIO, floppy DMA), image files, and in-memory test buffers all
// implement it.
package kfs

//go:generate mockgen -source=api.go -destination=testing/mock_blockdevice.go -package testing

// SectorSize is the size of a single sector on every block device we support,
// in bytes.
const SectorSize = 512

// MaxSectorsPerTransfer is the largest number of sectors a single read or
// write may move. ATA PIO only has an 8-bit sector count register, so larger
// requests are clamped rather than rejected.
const MaxSectorsPerTransfer = 255

// BlockDevice is the interface for sector-addressed storage.
//
// `count` is in sectors; `buffer` must be at least `count * SectorSize` bytes.
// Implementations clamp `count` to [MaxSectorsPerTransfer].
type BlockDevice interface {
	// ReadSectors fills `buffer` with `count` sectors starting at `lba`.
	ReadSectors(lba uint32, count uint, buffer []byte) error
	// WriteSectors writes `count` sectors from `data` starting at `lba`.
	WriteSectors(lba uint32, count uint, data []byte) error
}

// ClampSectorCount limits a transfer size to what one device command can move.
func ClampSectorCount(count uint) uint {
	if count > MaxSectorsPerTransfer {
		return MaxSectorsPerTransfer
	}
	return count
}
