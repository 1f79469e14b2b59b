// Package fat implements the FAT12, FAT16 and FAT32 file system driver.
//
// A [Volume] is created by mounting a block device and owns everything the
// driver needs to operate on it: the parsed boot sector, the derived geometry,
// the FAT sector cache and the table of open files. Any number of volumes can
// be mounted at once.
//
// On-disk structures are decoded from and encoded into byte slices at fixed
// offsets, never by reinterpreting memory, so the layout is the same on every
// host.
package fat

import (
	"bytes"
	"encoding/binary"
	"math/bits"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	"github.com/noxer/bytewriter"
)

// BootSectorSignature is the little-endian value of bytes 510-511 of every
// valid boot sector, 0x55 0xAA.
const BootSectorSignature = 0xAA55

// ExtendedBootRecord is the trailing part of the BIOS parameter block shared by
// all FAT versions. It starts at offset 36 on FAT12/16 and offset 64 on FAT32.
//
//	+0   1  DriveNumber
//	+1   1  reserved
//	+2   1  Signature (0x28 or 0x29)
//	+3   4  VolumeID
//	+7  11  VolumeLabel, space padded
//	+18  8  SystemID, space padded
type ExtendedBootRecord struct {
	DriveNumber uint8
	Signature   uint8
	VolumeID    uint32
	VolumeLabel [11]byte
	SystemID    [8]byte
}

const extendedBootRecordSize = 26

// FAT32BootRecord holds the fields FAT32 inserts at offset 36, before its
// extended boot record.
//
//	36  4  SectorsPerFat
//	40  2  Flags
//	42  2  Version
//	44  4  RootDirectoryCluster
//	48  2  FSInfoSector
//	50  2  BackupBootSector
//	52 12  reserved
type FAT32BootRecord struct {
	SectorsPerFat        uint32
	Flags                uint16
	Version              uint16
	RootDirectoryCluster uint32
	FSInfoSector         uint16
	BackupBootSector     uint16
}

// BootSector is the decoded BIOS parameter block.
//
//	 0  3  JumpInstruction
//	 3  8  OEMName
//	11  2  BytesPerSector
//	13  1  SectorsPerCluster
//	14  2  ReservedSectors
//	16  1  FatCount
//	17  2  DirEntryCount
//	19  2  TotalSectors
//	21  1  MediaDescriptor
//	22  2  SectorsPerFat
//	24  2  SectorsPerTrack
//	26  2  Heads
//	28  4  HiddenSectors
//	32  4  LargeSectorCount
//	36     FAT12/16: ExtendedBootRecord; FAT32: FAT32BootRecord then EBR at 64
//	510 2  0x55 0xAA
type BootSector struct {
	JumpInstruction   [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FatCount          uint8
	DirEntryCount     uint16
	TotalSectors      uint16
	MediaDescriptor   uint8
	SectorsPerFat     uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	LargeSectorCount  uint32

	// FAT32 is nil for FAT12/16 layouts, i.e. when the legacy SectorsPerFat
	// field is nonzero.
	FAT32 *FAT32BootRecord
	EBR   ExtendedBootRecord

	// BootCode is everything between the end of the EBR and the signature.
	BootCode []byte
}

func isPowerOfTwo(value uint) bool {
	return value != 0 && bits.OnesCount(value) == 1
}

func parseExtendedBootRecord(data []byte) ExtendedBootRecord {
	ebr := ExtendedBootRecord{
		DriveNumber: data[0],
		Signature:   data[2],
		VolumeID:    binary.LittleEndian.Uint32(data[3:7]),
	}
	copy(ebr.VolumeLabel[:], data[7:18])
	copy(ebr.SystemID[:], data[18:26])
	return ebr
}

// ParseBootSector decodes and validates sector 0 of a volume. It fails with
// EMEDIUMTYPE if the signature is missing or the geometry is unusable.
func ParseBootSector(data []byte) (*BootSector, error) {
	if len(data) < kfs.SectorSize {
		return nil, errors.ErrInvalidArgument.WithMessagef(
			"boot sector must be %d bytes, got %d", kfs.SectorSize, len(data))
	}

	if binary.LittleEndian.Uint16(data[510:512]) != BootSectorSignature {
		return nil, errors.ErrInvalidFileSystem.WithMessagef(
			"invalid boot sector signature: %02x %02x", data[510], data[511])
	}

	bs := &BootSector{
		BytesPerSector:    binary.LittleEndian.Uint16(data[11:13]),
		SectorsPerCluster: data[13],
		ReservedSectors:   binary.LittleEndian.Uint16(data[14:16]),
		FatCount:          data[16],
		DirEntryCount:     binary.LittleEndian.Uint16(data[17:19]),
		TotalSectors:      binary.LittleEndian.Uint16(data[19:21]),
		MediaDescriptor:   data[21],
		SectorsPerFat:     binary.LittleEndian.Uint16(data[22:24]),
		SectorsPerTrack:   binary.LittleEndian.Uint16(data[24:26]),
		Heads:             binary.LittleEndian.Uint16(data[26:28]),
		HiddenSectors:     binary.LittleEndian.Uint32(data[28:32]),
		LargeSectorCount:  binary.LittleEndian.Uint32(data[32:36]),
	}
	copy(bs.JumpInstruction[:], data[0:3])
	copy(bs.OEMName[:], data[3:11])

	var bootCodeStart int
	if bs.SectorsPerFat == 0 {
		bs.FAT32 = &FAT32BootRecord{
			SectorsPerFat:        binary.LittleEndian.Uint32(data[36:40]),
			Flags:                binary.LittleEndian.Uint16(data[40:42]),
			Version:              binary.LittleEndian.Uint16(data[42:44]),
			RootDirectoryCluster: binary.LittleEndian.Uint32(data[44:48]),
			FSInfoSector:         binary.LittleEndian.Uint16(data[48:50]),
			BackupBootSector:     binary.LittleEndian.Uint16(data[50:52]),
		}
		bs.EBR = parseExtendedBootRecord(data[64:])
		bootCodeStart = 64 + extendedBootRecordSize
	} else {
		bs.EBR = parseExtendedBootRecord(data[36:])
		bootCodeStart = 36 + extendedBootRecordSize
	}
	bs.BootCode = append([]byte(nil), data[bootCodeStart:510]...)

	if !isPowerOfTwo(uint(bs.BytesPerSector)) {
		return nil, errors.ErrInvalidFileSystem.WithMessagef(
			"BytesPerSector must be a nonzero power of 2, got %d", bs.BytesPerSector)
	}
	if !isPowerOfTwo(uint(bs.SectorsPerCluster)) {
		return nil, errors.ErrInvalidFileSystem.WithMessagef(
			"SectorsPerCluster must be a nonzero power of 2, got %d", bs.SectorsPerCluster)
	}
	if bs.BytesPerSector != kfs.SectorSize {
		return nil, errors.ErrInvalidFileSystem.WithMessagef(
			"unsupported sector size %d, only %d is supported",
			bs.BytesPerSector,
			kfs.SectorSize)
	}
	if bs.FatCount == 0 {
		return nil, errors.ErrInvalidFileSystem.WithMessage("FatCount is 0")
	}
	if bs.TotalSectorCount() == 0 || bs.SectorsPerFatCount() == 0 {
		return nil, errors.ErrInvalidFileSystem.WithMessage(
			"total sector count and sectors per FAT must both be nonzero")
	}
	return bs, nil
}

// TotalSectorCount gives the size of the volume in sectors, falling back to
// LargeSectorCount when the 16-bit field is 0.
func (bs *BootSector) TotalSectorCount() uint32 {
	if bs.TotalSectors != 0 {
		return uint32(bs.TotalSectors)
	}
	return bs.LargeSectorCount
}

// SectorsPerFatCount gives the size of one FAT copy, from the FAT32 field if
// the legacy one is 0.
func (bs *BootSector) SectorsPerFatCount() uint32 {
	if bs.SectorsPerFat != 0 {
		return uint32(bs.SectorsPerFat)
	}
	if bs.FAT32 != nil {
		return bs.FAT32.SectorsPerFat
	}
	return 0
}

// RootDirSectors is the number of sectors taken up by the fixed root
// directory. It's 0 for FAT32.
func (bs *BootSector) RootDirSectors() uint32 {
	rootDirSize := uint32(bs.DirEntryCount) * DirentSize
	return (rootDirSize + uint32(bs.BytesPerSector) - 1) / uint32(bs.BytesPerSector)
}

func writeExtendedBootRecord(writer *bytewriter.Writer, ebr *ExtendedBootRecord) {
	writer.Write([]byte{ebr.DriveNumber, 0, ebr.Signature})
	binary.Write(writer, binary.LittleEndian, ebr.VolumeID)
	writer.Write(ebr.VolumeLabel[:])
	writer.Write(ebr.SystemID[:])
}

// Bytes encodes the boot sector into a full 512-byte sector, including the
// signature.
func (bs *BootSector) Bytes() []byte {
	output := make([]byte, kfs.SectorSize)
	writer := bytewriter.New(output)

	writer.Write(bs.JumpInstruction[:])
	writer.Write(bs.OEMName[:])
	binary.Write(writer, binary.LittleEndian, bs.BytesPerSector)
	writer.Write([]byte{bs.SectorsPerCluster})
	binary.Write(writer, binary.LittleEndian, bs.ReservedSectors)
	writer.Write([]byte{bs.FatCount})
	binary.Write(writer, binary.LittleEndian, bs.DirEntryCount)
	binary.Write(writer, binary.LittleEndian, bs.TotalSectors)
	writer.Write([]byte{bs.MediaDescriptor})
	binary.Write(writer, binary.LittleEndian, bs.SectorsPerFat)
	binary.Write(writer, binary.LittleEndian, bs.SectorsPerTrack)
	binary.Write(writer, binary.LittleEndian, bs.Heads)
	binary.Write(writer, binary.LittleEndian, bs.HiddenSectors)
	binary.Write(writer, binary.LittleEndian, bs.LargeSectorCount)

	if bs.FAT32 != nil {
		binary.Write(writer, binary.LittleEndian, bs.FAT32.SectorsPerFat)
		binary.Write(writer, binary.LittleEndian, bs.FAT32.Flags)
		binary.Write(writer, binary.LittleEndian, bs.FAT32.Version)
		binary.Write(writer, binary.LittleEndian, bs.FAT32.RootDirectoryCluster)
		binary.Write(writer, binary.LittleEndian, bs.FAT32.FSInfoSector)
		binary.Write(writer, binary.LittleEndian, bs.FAT32.BackupBootSector)
		writer.Write(bytes.Repeat([]byte{0}, 12))
	}
	writeExtendedBootRecord(writer, &bs.EBR)

	// Boot code runs up to the signature; anything longer is cut off.
	bootCodeStart := 36 + extendedBootRecordSize
	if bs.FAT32 != nil {
		bootCodeStart = 64 + extendedBootRecordSize
	}
	copy(output[bootCodeStart:510], bs.BootCode)
	binary.LittleEndian.PutUint16(output[510:], BootSectorSignature)
	return output
}
