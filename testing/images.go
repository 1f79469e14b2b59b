// Package testing contains helpers shared by the tests of the other packages.
// Import it as kfstest to keep it apart from the standard library's package.
package testing

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/dargueta/kfs/utilities/compression"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Create an image with the given number of blocks and bytes per block. It is
// guaranteed to either return a valid slice or fail the test and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// MemoryDevice is a block device backed by a byte slice. Tests can inspect and
// modify Data directly.
type MemoryDevice struct {
	*common.BlockStream
	Data []byte
}

// NewMemoryDevice creates a zero-filled block device with `sectors` sectors.
func NewMemoryDevice(t *testing.T, sectors uint) *MemoryDevice {
	return NewMemoryDeviceFromBytes(t, make([]byte, sectors*kfs.SectorSize))
}

// NewMemoryDeviceFromBytes creates a block device on top of `data`, which must
// be a whole number of sectors. Writes to the device modify `data`.
func NewMemoryDeviceFromBytes(t *testing.T, data []byte) *MemoryDevice {
	require.Zero(t, len(data)%kfs.SectorSize, "image size must be a multiple of the sector size")

	stream := bytesextra.NewReadWriteSeeker(data)
	return &MemoryDevice{
		BlockStream: common.NewBlockStream(stream, uint32(len(data)/kfs.SectorSize), 0),
		Data:        data,
	}
}

// Sector returns a slice of the device's contents for sector `lba`.
func (d *MemoryDevice) Sector(lba uint32) []byte {
	start := int(lba) * kfs.SectorSize
	return d.Data[start : start+kfs.SectorSize]
}

// VolumeSectors gives the size of the volumes created by [FormatVolume]. They're
// the smallest sizes that still get detected as the right FAT type with the
// cluster sizes [FormatOptionsFor] uses.
var VolumeSectors = map[fat.FATType]uint{
	fat.FAT12: 2880,
	fat.FAT16: 20480,
	fat.FAT32: 20480,
}

// FormatOptionsFor returns the options [FormatVolume] uses for `fatType`.
// FAT12 volumes mirror a 1.44M floppy but with two sectors per cluster, so that
// sector and cluster boundaries differ; the others use four.
func FormatOptionsFor(fatType fat.FATType) fat.FormatOptions {
	opts := fat.FormatOptions{
		Type:         fatType,
		TotalSectors: uint32(VolumeSectors[fatType]),
		VolumeID:     0x1234ABCD,
	}
	if fatType == fat.FAT12 {
		opts.SectorsPerCluster = 2
		opts.SectorsPerTrack = 18
		opts.Heads = 2
	} else {
		opts.SectorsPerCluster = 4
	}
	return opts
}

// FormatVolume creates an in-memory device, formats it with a FAT file system
// of the given type and mounts it. Any failure aborts the test.
func FormatVolume(t *testing.T, fatType fat.FATType) (*MemoryDevice, *fat.Volume) {
	opts := FormatOptionsFor(fatType)
	device := NewMemoryDevice(t, uint(opts.TotalSectors))

	err := fat.Format(device, opts)
	require.NoError(t, err, "failed to format %s volume", fatType)

	volume, err := fat.Mount(device)
	require.NoError(t, err, "failed to mount freshly formatted %s volume", fatType)
	require.Equal(t, fatType, volume.Type(), "volume was detected as the wrong type")
	return device, volume
}

// AllFATTypes lists the FAT widths, for tests that run on each of them.
var AllFATTypes = []fat.FATType{fat.FAT12, fat.FAT16, fat.FAT32}

// PatternBytes returns `size` bytes of a repeating non-trivial pattern, so that
// misplaced sectors are easy to spot.
func PatternBytes(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*7 + i/512) % 251)
	}
	return data
}

// CompressDevice returns the contents of `device` in the compressed image
// format, as the CLI's `image compress` would write it.
func CompressDevice(t *testing.T, device *MemoryDevice) []byte {
	var buffer bytes.Buffer
	_, err := compression.CompressDevice(device, uint32(len(device.Data)/kfs.SectorSize), &buffer)
	require.NoError(t, err, "failed to compress device")
	return buffer.Bytes()
}

// NewMemoryDeviceFromImage creates a device with `sectors` sectors and fills it
// from a compressed image.
func NewMemoryDeviceFromImage(t *testing.T, image []byte, sectors uint) *MemoryDevice {
	device := NewMemoryDevice(t, sectors)
	_, err := compression.DecompressToDevice(bytes.NewReader(image), device, uint32(sectors))
	require.NoError(t, err, "failed to decompress image")
	return device
}
