package fat

import (
	"encoding/binary"
	"time"

	"github.com/noxer/bytewriter"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 0x01

	// AttrHidden is an attribute flag marking a directory entry as "hidden",
	// meaning it wouldn't show up in normal directory listings.
	AttrHidden = 0x02

	// AttrSystem is an attribute flag marking a directory entry as essential to
	// the operating system.
	AttrSystem = 0x04

	// AttrVolumeID marks the entry holding the volume label. It must reside in
	// the root directory, and there must be only one.
	AttrVolumeID = 0x08

	// AttrDirectory is an attribute flag marking a directory entry as being a
	// directory.
	AttrDirectory = 0x10

	// AttrArchive is set whenever the directory entry is created or modified.
	AttrArchive = 0x20

	// AttrLongName is the combination of flags VFAT uses to mark long file name
	// fragments. We never write these and skip them when reading.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

const (
	direntMarkerFree    = 0x00
	direntMarkerDeleted = 0xE5
)

// DirEntrySlot classifies a 32-byte directory slot.
type DirEntrySlot int

const (
	// SlotFree marks the end of the directory: this slot and every one after
	// it are unused.
	SlotFree DirEntrySlot = iota
	// SlotDeleted is a slot whose file was deleted. It can be reused.
	SlotDeleted
	// SlotLongName is a VFAT long file name fragment.
	SlotLongName
	// SlotOccupied holds a live 8.3 entry.
	SlotOccupied
)

func (s DirEntrySlot) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotDeleted:
		return "deleted"
	case SlotLongName:
		return "long-name"
	default:
		return "occupied"
	}
}

// IsReusable returns true if a new entry may be written into the slot.
func (s DirEntrySlot) IsReusable() bool {
	return s == SlotFree || s == SlotDeleted
}

// DirectoryEntry is a decoded 32-byte directory record.
//
//	 0 11  Name (8.3, space padded, no dot)
//	11  1  Attributes
//	12  1  reserved
//	13  1  CreatedTimeTenths
//	14  2  CreatedTime
//	16  2  CreatedDate
//	18  2  AccessedDate
//	20  2  FirstClusterHigh
//	22  2  ModifiedTime
//	24  2  ModifiedDate
//	26  2  FirstClusterLow
//	28  4  Size
type DirectoryEntry struct {
	Name              ShortName
	Attributes        uint8
	Reserved          uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	AccessedDate      uint16
	FirstClusterHigh  uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	FirstClusterLow   uint16
	Size              uint32
}

// ParseDirectoryEntry decodes the first 32 bytes of `data`.
func ParseDirectoryEntry(data []byte) DirectoryEntry {
	entry := DirectoryEntry{
		Attributes:        data[11],
		Reserved:          data[12],
		CreatedTimeTenths: data[13],
		CreatedTime:       binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(data[16:18]),
		AccessedDate:      binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(data[20:22]),
		ModifiedTime:      binary.LittleEndian.Uint16(data[22:24]),
		ModifiedDate:      binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:   binary.LittleEndian.Uint16(data[26:28]),
		Size:              binary.LittleEndian.Uint32(data[28:32]),
	}
	copy(entry.Name[:], data[0:11])
	return entry
}

// Bytes encodes the entry into its 32-byte on-disk form.
func (e *DirectoryEntry) Bytes() []byte {
	output := make([]byte, DirentSize)
	e.WriteTo(output)
	return output
}

// WriteTo encodes the entry into the first 32 bytes of `output`.
func (e *DirectoryEntry) WriteTo(output []byte) {
	writer := bytewriter.New(output[:DirentSize])
	writer.Write(e.Name[:])
	writer.Write([]byte{e.Attributes, e.Reserved, e.CreatedTimeTenths})
	binary.Write(writer, binary.LittleEndian, e.CreatedTime)
	binary.Write(writer, binary.LittleEndian, e.CreatedDate)
	binary.Write(writer, binary.LittleEndian, e.AccessedDate)
	binary.Write(writer, binary.LittleEndian, e.FirstClusterHigh)
	binary.Write(writer, binary.LittleEndian, e.ModifiedTime)
	binary.Write(writer, binary.LittleEndian, e.ModifiedDate)
	binary.Write(writer, binary.LittleEndian, e.FirstClusterLow)
	binary.Write(writer, binary.LittleEndian, e.Size)
}

// Slot classifies the entry. The first name byte is checked before the
// attributes, so a deleted long-name fragment counts as deleted.
func (e *DirectoryEntry) Slot() DirEntrySlot {
	switch {
	case e.Name[0] == direntMarkerFree:
		return SlotFree
	case e.Name[0] == direntMarkerDeleted:
		return SlotDeleted
	case e.Attributes&AttrLongName == AttrLongName:
		return SlotLongName
	default:
		return SlotOccupied
	}
}

// FirstCluster combines the two halves of the starting cluster number.
func (e *DirectoryEntry) FirstCluster() uint32 {
	return uint32(e.FirstClusterLow) | uint32(e.FirstClusterHigh)<<16
}

// SetFirstCluster splits `cluster` into the low and high halves.
func (e *DirectoryEntry) SetFirstCluster(cluster uint32) {
	e.FirstClusterLow = uint16(cluster & 0xFFFF)
	e.FirstClusterHigh = uint16(cluster >> 16)
}

func (e *DirectoryEntry) IsDirectory() bool {
	return e.Attributes&AttrDirectory != 0
}

func (e *DirectoryEntry) IsVolumeLabel() bool {
	return e.Attributes&AttrVolumeID != 0
}

// IsDotEntry returns true for the "." and ".." entries of a subdirectory.
func (e *DirectoryEntry) IsDotEntry() bool {
	return e.Name == dotName || e.Name == dotDotName
}

// ModifiedAt decodes the last-modified timestamp.
func (e *DirectoryEntry) ModifiedAt() time.Time {
	return TimestampFromParts(e.ModifiedDate, e.ModifiedTime, 0)
}

// CreatedAt decodes the creation timestamp.
func (e *DirectoryEntry) CreatedAt() time.Time {
	return TimestampFromParts(e.CreatedDate, e.CreatedTime, e.CreatedTimeTenths)
}

// Stamp sets the created and modified times to `t`.
func (e *DirectoryEntry) Stamp(t time.Time) {
	date, clock, tenths := TimestampToParts(t)
	e.CreatedDate = date
	e.CreatedTime = clock
	e.CreatedTimeTenths = tenths
	e.ModifiedDate = date
	e.ModifiedTime = clock
	e.AccessedDate = date
}

////////////////////////////////////////////////////////////////////////////////
// Timestamps

// fatEpoch is the earliest representable FAT timestamp, 1980-01-01 00:00:00.
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateFromInt converts the FAT on-disk representation of a date into a Go
// time.Time object. Bits 0-4 are the day, 5-8 the month, and 9-15 the year
// since 1980.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts converts a FAT timestamp into a time.Time object.
// `datePart` is required; `timePart` and `tenths` should be 0 if they're not
// present in the source field(s). Times have two-second granularity, which
// `tenths` refines with values in [0, 200).
func TimestampFromParts(datePart uint16, timePart uint16, tenths uint8) time.Time {
	if datePart == 0 {
		return fatEpoch
	}
	date := DateFromInt(datePart)

	seconds := int(timePart&0x001f) * 2
	hundredths := int(tenths)
	seconds += hundredths / 100
	hundredths %= 100

	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)

	return time.Date(
		date.Year(),
		date.Month(),
		date.Day(),
		hours,
		minutes,
		seconds,
		hundredths*int(10*time.Millisecond),
		time.UTC,
	)
}

// TimestampToParts is the inverse of [TimestampFromParts]. Times before the FAT
// epoch are clamped to it.
func TimestampToParts(t time.Time) (datePart uint16, timePart uint16, tenths uint8) {
	t = t.UTC()
	if t.Before(fatEpoch) {
		t = fatEpoch
	}
	datePart = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timePart = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	tenths = uint8((t.Second()%2)*100 + t.Nanosecond()/int(10*time.Millisecond))
	return
}
