package testing

import (
	"encoding/binary"
	"testing"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/stretchr/testify/require"
)

// PartitionOffset is the LBA where [NewATADisk] puts its partition.
const PartitionOffset = 63

// TestDiskSignature is the MBR disk signature written by [NewATADisk].
const TestDiskSignature = 0x5EED1234

// NewFloppyDisk creates a 1.44M floppy with a FAT12 file system on it.
func NewFloppyDisk(t *testing.T, id uint8) (*MemoryDevice, *disks.Disk) {
	geometry, err := disks.GetPredefinedGeometry("1440k")
	require.NoError(t, err)

	device := NewMemoryDevice(t, geometry.TotalSectors())
	require.NoError(t, fat.Format(device, FormatOptionsFor(fat.FAT12)))
	return device, disks.NewFloppy(id, geometry, device)
}

// NewATADisk creates a hard disk with an MBR holding a single partition at
// [PartitionOffset], formatted with `fatType`. `partitionType` is the type code
// put in the partition table.
func NewATADisk(
	t *testing.T, id uint8, fatType fat.FATType, partitionType uint8,
) (*MemoryDevice, *disks.Disk) {
	volumeSectors := uint32(VolumeSectors[fatType])
	device := NewMemoryDevice(t, uint(PartitionOffset+volumeSectors))

	mbr := device.Sector(0)
	binary.LittleEndian.PutUint32(mbr[440:], TestDiskSignature)
	entry := mbr[446:462]
	entry[0] = 0x80
	entry[4] = partitionType
	binary.LittleEndian.PutUint32(entry[8:], PartitionOffset)
	binary.LittleEndian.PutUint32(entry[12:], volumeSectors)
	mbr[510] = 0x55
	mbr[511] = 0xAA

	start := PartitionOffset * kfs.SectorSize
	volume := NewMemoryDeviceFromBytes(t, device.Data[start:])
	require.NoError(t, fat.Format(volume, FormatOptionsFor(fatType)))

	disk := disks.NewATA(id, "KFS TEST DISK", PartitionOffset+volumeSectors, device)
	return device, disk
}
