package partition

import (
	"encoding/binary"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	"github.com/noxer/bytewriter"
)

// Offsets within the master boot record.
const (
	mbrDiskSignatureOffset = 440
	mbrEntriesOffset       = 446
	mbrEntrySize           = 16
	mbrSignatureOffset     = 510
	MBRSignature           = 0xAA55
)

// Partition type codes for the FAT variants we can mount.
const (
	TypeFAT16Small = 0x04
	TypeFAT16      = 0x06
	TypeFAT32CHS   = 0x0B
	TypeFAT32LBA   = 0x0C
)

// IsFATType returns true if `partitionType` is an MBR code for a FAT volume.
func IsFATType(partitionType uint8) bool {
	switch partitionType {
	case TypeFAT16Small, TypeFAT16, TypeFAT32CHS, TypeFAT32LBA:
		return true
	}
	return false
}

// MBREntry is one of the four primary partition slots.
//
//	0x00  1  attributes (bit 7 = bootable)
//	0x01  3  CHS address of the first sector
//	0x04  1  partition type
//	0x05  3  CHS address of the last sector
//	0x08  4  LBA of the first sector
//	0x0C  4  number of sectors
type MBREntry struct {
	Attributes uint8
	CHSStart   [3]byte
	Type       uint8
	CHSEnd     [3]byte
	LBAStart   uint32
	Size       uint32
}

func (e *MBREntry) IsBootable() bool {
	return e.Attributes&0x80 != 0
}

func parseMBREntry(data []byte) MBREntry {
	entry := MBREntry{
		Attributes: data[0],
		Type:       data[4],
		LBAStart:   binary.LittleEndian.Uint32(data[8:12]),
		Size:       binary.LittleEndian.Uint32(data[12:16]),
	}
	copy(entry.CHSStart[:], data[1:4])
	copy(entry.CHSEnd[:], data[5:8])
	return entry
}

// Bytes encodes the entry into its 16-byte on-disk form.
func (e *MBREntry) Bytes() []byte {
	output := make([]byte, mbrEntrySize)
	writer := bytewriter.New(output)
	writer.Write([]byte{e.Attributes})
	writer.Write(e.CHSStart[:])
	writer.Write([]byte{e.Type})
	writer.Write(e.CHSEnd[:])
	binary.Write(writer, binary.LittleEndian, e.LBAStart)
	binary.Write(writer, binary.LittleEndian, e.Size)
	return output
}

// MBR is the partition table in sector 0 of a hard disk.
type MBR struct {
	DiskSignature uint32
	Entries       [4]MBREntry
	// HasSignature is true if the sector ends with 55 AA. Some BIOSes boot
	// disks without it, so a missing signature isn't an error.
	HasSignature bool
}

// ParseMBR decodes the partition table from sector 0.
func ParseMBR(sector []byte) (*MBR, error) {
	if len(sector) < kfs.SectorSize {
		return nil, errors.ErrInvalidArgument.WithMessagef(
			"MBR must be %d bytes, got %d", kfs.SectorSize, len(sector))
	}

	mbr := &MBR{
		DiskSignature: binary.LittleEndian.Uint32(sector[mbrDiskSignatureOffset:]),
		HasSignature:  binary.LittleEndian.Uint16(sector[mbrSignatureOffset:]) == MBRSignature,
	}
	for i := range mbr.Entries {
		start := mbrEntriesOffset + i*mbrEntrySize
		mbr.Entries[i] = parseMBREntry(sector[start : start+mbrEntrySize])
	}
	return mbr, nil
}

// WriteTo writes the partition table and signature into `sector`, leaving the
// boot code alone.
func (m *MBR) WriteTo(sector []byte) {
	binary.LittleEndian.PutUint32(sector[mbrDiskSignatureOffset:], m.DiskSignature)
	for i := range m.Entries {
		start := mbrEntriesOffset + i*mbrEntrySize
		copy(sector[start:start+mbrEntrySize], m.Entries[i].Bytes())
	}
	binary.LittleEndian.PutUint16(sector[mbrSignatureOffset:], MBRSignature)
}
