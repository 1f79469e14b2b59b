package fat

import (
	"encoding/binary"
	"testing"

	"github.com/dargueta/kfs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFAT16BootSector() *BootSector {
	bs := &BootSector{
		JumpInstruction:   [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		FatCount:          2,
		DirEntryCount:     512,
		TotalSectors:      20480,
		MediaDescriptor:   0xF8,
		SectorsPerFat:     20,
		SectorsPerTrack:   63,
		Heads:             16,
		EBR: ExtendedBootRecord{
			DriveNumber: 0x80,
			Signature:   0x29,
			VolumeID:    0xCAFEBABE,
		},
	}
	copy(bs.OEMName[:], "KFS     ")
	copy(bs.EBR.VolumeLabel[:], "TEST VOLUME")
	copy(bs.EBR.SystemID[:], "FAT16   ")
	return bs
}

func TestBootSector__FAT16Offsets(t *testing.T) {
	raw := makeFAT16BootSector().Bytes()
	require.Len(t, raw, 512)

	assert.Equal(t, "KFS     ", string(raw[3:11]))
	assert.EqualValues(t, 512, binary.LittleEndian.Uint16(raw[11:13]))
	assert.EqualValues(t, 4, raw[13])
	assert.EqualValues(t, 1, binary.LittleEndian.Uint16(raw[14:16]))
	assert.EqualValues(t, 2, raw[16])
	assert.EqualValues(t, 512, binary.LittleEndian.Uint16(raw[17:19]))
	assert.EqualValues(t, 20480, binary.LittleEndian.Uint16(raw[19:21]))
	assert.EqualValues(t, 0xF8, raw[21])
	assert.EqualValues(t, 20, binary.LittleEndian.Uint16(raw[22:24]))
	assert.EqualValues(t, 0x80, raw[36])
	assert.EqualValues(t, 0x29, raw[38])
	assert.EqualValues(t, 0xCAFEBABE, binary.LittleEndian.Uint32(raw[39:43]))
	assert.Equal(t, "TEST VOLUME", string(raw[43:54]))
	assert.Equal(t, "FAT16   ", string(raw[54:62]))
	assert.Equal(t, []byte{0x55, 0xAA}, raw[510:512])
}

func TestBootSector__RoundTripFAT16(t *testing.T) {
	original := makeFAT16BootSector()
	parsed, err := ParseBootSector(original.Bytes())
	require.NoError(t, err)

	assert.Nil(t, parsed.FAT32)
	assert.EqualValues(t, 20480, parsed.TotalSectorCount())
	assert.EqualValues(t, 20, parsed.SectorsPerFatCount())
	assert.EqualValues(t, 32, parsed.RootDirSectors())
	assert.Equal(t, original.EBR, parsed.EBR)
	assert.Equal(t, original.OEMName, parsed.OEMName)
}

func TestBootSector__RoundTripFAT32(t *testing.T) {
	original := makeFAT16BootSector()
	original.SectorsPerFat = 0
	original.DirEntryCount = 0
	original.TotalSectors = 0
	original.LargeSectorCount = 100000
	original.FAT32 = &FAT32BootRecord{
		SectorsPerFat:        200,
		RootDirectoryCluster: 2,
		FSInfoSector:         1,
		BackupBootSector:     6,
	}

	raw := original.Bytes()
	assert.EqualValues(t, 200, binary.LittleEndian.Uint32(raw[36:40]))
	assert.EqualValues(t, 2, binary.LittleEndian.Uint32(raw[44:48]))
	assert.EqualValues(t, 0x80, raw[64])
	assert.Equal(t, "TEST VOLUME", string(raw[71:82]))

	parsed, err := ParseBootSector(raw)
	require.NoError(t, err)
	require.NotNil(t, parsed.FAT32)
	assert.Equal(t, *original.FAT32, *parsed.FAT32)
	assert.EqualValues(t, 100000, parsed.TotalSectorCount())
	assert.EqualValues(t, 200, parsed.SectorsPerFatCount())
	assert.Zero(t, parsed.RootDirSectors())
}

func TestParseBootSector__BadSignature(t *testing.T) {
	raw := makeFAT16BootSector().Bytes()
	raw[511] = 0
	_, err := ParseBootSector(raw)
	assert.ErrorIs(t, err, errors.ErrInvalidFileSystem)
}

func TestParseBootSector__BadGeometry(t *testing.T) {
	tests := map[string]func(*BootSector){
		"SectorsPerClusterNotPowerOf2": func(bs *BootSector) { bs.SectorsPerCluster = 3 },
		"SectorsPerClusterZero":        func(bs *BootSector) { bs.SectorsPerCluster = 0 },
		"UnsupportedSectorSize":        func(bs *BootSector) { bs.BytesPerSector = 1024 },
		"NoFATs":                       func(bs *BootSector) { bs.FatCount = 0 },
		"NoSectors":                    func(bs *BootSector) { bs.TotalSectors = 0 },
	}

	for name, breakIt := range tests {
		t.Run(name, func(t *testing.T) {
			bs := makeFAT16BootSector()
			breakIt(bs)
			_, err := ParseBootSector(bs.Bytes())
			assert.ErrorIs(t, err, errors.ErrInvalidFileSystem)
		})
	}
}
