package partition_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/dargueta/kfs/partition"
	kfstest "github.com/dargueta/kfs/testing"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMBR__Offsets(t *testing.T) {
	sector := make([]byte, kfs.SectorSize)
	sector[440] = 0x78
	sector[441] = 0x56
	sector[442] = 0x34
	sector[443] = 0x12
	copy(sector[462:478], []byte{
		0x80,             // bootable
		0x01, 0x02, 0x03, // CHS start
		0x0C,             // FAT32 LBA
		0x04, 0x05, 0x06, // CHS end
		0x00, 0x08, 0x00, 0x00, // LBA 2048
		0x00, 0x00, 0x10, 0x00, // 1M sectors
	})
	sector[510] = 0x55
	sector[511] = 0xAA

	mbr, err := partition.ParseMBR(sector)
	require.NoError(t, err)
	assert.True(t, mbr.HasSignature)
	assert.EqualValues(t, 0x12345678, mbr.DiskSignature)

	entry := mbr.Entries[1]
	assert.True(t, entry.IsBootable())
	assert.Equal(t, [3]byte{1, 2, 3}, entry.CHSStart)
	assert.EqualValues(t, partition.TypeFAT32LBA, entry.Type)
	assert.Equal(t, [3]byte{4, 5, 6}, entry.CHSEnd)
	assert.EqualValues(t, 2048, entry.LBAStart)
	assert.EqualValues(t, 0x100000, entry.Size)
	assert.Equal(t, sector[462:478], entry.Bytes())

	assert.Zero(t, mbr.Entries[0].Type)
	assert.False(t, mbr.Entries[0].IsBootable())

	rewritten := make([]byte, kfs.SectorSize)
	mbr.WriteTo(rewritten)
	assert.Equal(t, sector, rewritten)
}

func TestParseMBR__MissingSignature(t *testing.T) {
	mbr, err := partition.ParseMBR(make([]byte, kfs.SectorSize))
	require.NoError(t, err)
	assert.False(t, mbr.HasSignature)

	_, err = partition.ParseMBR(make([]byte, 100))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestIsFATType(t *testing.T) {
	for _, code := range []uint8{0x04, 0x06, 0x0B, 0x0C} {
		assert.True(t, partition.IsFATType(code), "0x%02x", code)
	}
	for _, code := range []uint8{0x00, 0x01, 0x05, 0x07, 0x0E, 0x83, 0xEE} {
		assert.False(t, partition.IsFATType(code), "0x%02x", code)
	}
}

func TestDetect__Floppy(t *testing.T) {
	_, disk := kfstest.NewFloppyDisk(t, 0)

	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Zero(t, parts[0].Offset)
	assert.EqualValues(t, 2880, parts[0].Size)
	assert.Zero(t, parts[0].Type)
	assert.False(t, parts[0].Fabricated)
}

func TestDetect__MBRPartition(t *testing.T) {
	_, disk := kfstest.NewATADisk(t, 0x80, fat.FAT16, partition.TypeFAT16)

	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	part := parts[0]
	assert.EqualValues(t, kfstest.PartitionOffset, part.Offset)
	assert.EqualValues(t, kfstest.VolumeSectors[fat.FAT16], part.Size)
	assert.EqualValues(t, partition.TypeFAT16, part.Type)
	assert.EqualValues(t, kfstest.TestDiskSignature, part.UUID)

	// The partition has to be usable as a block device on its own.
	volume, err := fat.Mount(part)
	require.NoError(t, err)
	assert.Equal(t, fat.FAT16, volume.Type())
}

func TestDetect__NonFATPartitionIgnored(t *testing.T) {
	_, disk := kfstest.NewATADisk(t, 0x80, fat.FAT16, 0x83)

	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].Fabricated)
	assert.EqualValues(t, 16, parts[0].Offset)
	assert.EqualValues(t, 0x100000, parts[0].Size)
}

func TestDetect__UnreadableMBR(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := kfstest.NewMockBlockDevice(ctrl)
	device.EXPECT().
		ReadSectors(uint32(0), uint(1), gomock.Any()).
		Return(errors.ErrIOFailed)

	disk := disks.NewATA(0x81, "BROKEN", 1000, device)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].Fabricated)
	assert.Zero(t, parts[0].Offset)
}

func TestPartition__BoundsChecked(t *testing.T) {
	_, disk := kfstest.NewATADisk(t, 0x80, fat.FAT12, partition.TypeFAT16Small)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	part := parts[0]

	buffer := make([]byte, 2*kfs.SectorSize)
	assert.NoError(t, part.ReadSectors(part.Size-1, 1, buffer))
	assert.ErrorIs(t, part.ReadSectors(part.Size-1, 2, buffer), errors.ErrInvalidArgument)
	assert.ErrorIs(t, part.WriteSectors(part.Size, 1, buffer), errors.ErrInvalidArgument)
}

func TestPartition__OffsetApplied(t *testing.T) {
	device, disk := kfstest.NewATADisk(t, 0x80, fat.FAT12, partition.TypeFAT16Small)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0x5A}, kfs.SectorSize)
	require.NoError(t, parts[0].WriteSectors(10, 1, data))
	assert.Equal(t, data, device.Sector(kfstest.PartitionOffset+10))
}

////////////////////////////////////////////////////////////////////////////////
// devfs nodes

func TestDeviceName(t *testing.T) {
	floppy := &disks.Disk{ID: 0x01, Type: disks.DiskTypeFloppy}
	name, minor := partition.DeviceName(floppy, 0)
	assert.Equal(t, "fd1p1", name)
	assert.EqualValues(t, 17, minor)

	hdb := &disks.Disk{ID: 0x81, Type: disks.DiskTypeATA}
	name, minor = partition.DeviceName(hdb, 2)
	assert.Equal(t, "hdb3", name)
	assert.EqualValues(t, 19, minor)

	hda := &disks.Disk{ID: 0x80, Type: disks.DiskTypeATA}
	name, minor = partition.DeviceName(hda, 0)
	assert.Equal(t, "hda1", name)
	assert.EqualValues(t, 1, minor)
}

func TestRegisterNode__ByteAddressedIO(t *testing.T) {
	device, disk := kfstest.NewATADisk(t, 0x80, fat.FAT12, partition.TypeFAT16Small)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)

	dev := devfs.New()
	node, err := partition.RegisterNode(dev, parts[0], 0)
	require.NoError(t, err)
	assert.Equal(t, "hda1", node.Name)
	assert.Equal(t, devfs.Block, node.Type)
	assert.EqualValues(t, partition.ATAMajor, node.Major)
	assert.EqualValues(t, 2880*kfs.SectorSize, node.Size)

	file, err := dev.Open("/dev/hda1")
	require.NoError(t, err)

	// Straddles sectors 1 and 2 of the partition; neighboring bytes must
	// survive.
	before := append([]byte(nil), device.Sector(kfstest.PartitionOffset+1)...)
	require.NoError(t, file.Seek(kfs.SectorSize+500))
	n, err := file.Write([]byte("0123456789ABCDEFGHIJ"))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	sector1 := device.Sector(kfstest.PartitionOffset + 1)
	assert.Equal(t, before[:500], sector1[:500])
	assert.Equal(t, "0123456789AB", string(sector1[500:]))
	assert.Equal(t, "CDEFGHIJ", string(device.Sector(kfstest.PartitionOffset + 2)[:8]))

	require.NoError(t, file.Seek(kfs.SectorSize+505))
	buffer := make([]byte, 10)
	n, err = file.Read(buffer)
	require.NoError(t, err)
	assert.Equal(t, "56789ABCDE", string(buffer[:n]))

	// Reads stop at the end of the node.
	require.NoError(t, file.Seek(node.Size-4))
	n, err = file.Read(buffer)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRegisterNode__FabricatedSkipped(t *testing.T) {
	_, disk := kfstest.NewATADisk(t, 0x80, fat.FAT12, 0x83)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)

	dev := devfs.New()
	node, err := partition.RegisterNode(dev, parts[0], 0)
	assert.NoError(t, err)
	assert.Nil(t, node)
	assert.EqualValues(t, 0, dev.Count())
}
