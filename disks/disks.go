package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	"github.com/gocarina/gocsv"
)

////////////////////////////////////////////////////////////////////////////////
// Geometry

// Geometry describes the physical layout of a floppy format.
type Geometry struct {
	Name            string `csv:"name"`
	Slug            string `csv:"slug"`
	Cylinders       uint   `csv:"cylinders"`
	Heads           uint   `csv:"heads"`
	SectorsPerTrack uint   `csv:"sectors_per_track"`
	BytesPerSector  uint   `csv:"bytes_per_sector"`
}

// TotalSectors gives the number of addressable sectors on the device.
func (g Geometry) TotalSectors() uint {
	return g.Cylinders * g.Heads * g.SectorsPerTrack
}

// TotalSizeBytes gives the size of the storage device in bytes. This is the
// minimum size of an image file for it.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.TotalSectors()) * int64(g.BytesPerSector)
}

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]Geometry

// GetPredefinedGeometry looks up a floppy geometry by its slug, e.g. "1440k".
func GetPredefinedGeometry(slug string) (Geometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}
	return Geometry{}, errors.ErrNotFound.WithMessagef(
		"no predefined disk geometry exists with slug %q", slug)
}

// PredefinedGeometrySlugs lists the slugs of every known geometry, in the order
// they're defined.
func PredefinedGeometrySlugs() []string {
	return geometrySlugs
}

var geometrySlugs []string

func init() {
	csvReader := csv.NewReader(strings.NewReader(diskGeometriesRawCSV))
	csvReader.Comma = '|'
	csvReader.LazyQuotes = true

	var rows []Geometry
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		panic(fmt.Errorf("failed to decode disk geometries: %w", err))
	}

	diskGeometries = make(map[string]Geometry, len(rows))
	for i, row := range rows {
		_, exists := diskGeometries[row.Slug]
		if exists {
			message := fmt.Errorf(
				"duplicate definition for disk %q found on row %d",
				row.Slug,
				i+1)
			panic(message)
		}
		diskGeometries[row.Slug] = row
		geometrySlugs = append(geometrySlugs, row.Slug)
	}
}

////////////////////////////////////////////////////////////////////////////////
// Disks

type DiskType int

const (
	DiskTypeFloppy DiskType = 0
	DiskTypeATA    DiskType = 1
)

func (t DiskType) String() string {
	switch t {
	case DiskTypeFloppy:
		return "floppy"
	case DiskTypeATA:
		return "ata"
	default:
		return fmt.Sprintf("DiskType(%d)", int(t))
	}
}

// Disk is a physical drive found during the hardware scan.
type Disk struct {
	// ID is the BIOS drive number: 0x00, 0x01 for floppies, 0x80 and up for
	// hard drives.
	ID        uint8
	Type      DiskType
	Cylinders uint16
	Heads     uint16
	Sectors   uint16
	// Brand is the model name reported by the drive, at most 40 characters.
	Brand string
	// Size is the total size of the disk in bytes.
	Size   uint64
	Device kfs.BlockDevice
}

// NewFloppy creates a floppy disk record from a predefined geometry.
func NewFloppy(id uint8, geometry Geometry, device kfs.BlockDevice) *Disk {
	return &Disk{
		ID:        id,
		Type:      DiskTypeFloppy,
		Cylinders: uint16(geometry.Cylinders),
		Heads:     uint16(geometry.Heads),
		Sectors:   uint16(geometry.SectorsPerTrack),
		Brand:     geometry.Name,
		Size:      uint64(geometry.TotalSizeBytes()),
		Device:    device,
	}
}

// NewATA creates a hard disk record for a device with `totalSectors` sectors.
// The CHS values are the usual LBA-assist translation with 16 heads and 63
// sectors per track.
func NewATA(id uint8, brand string, totalSectors uint32, device kfs.BlockDevice) *Disk {
	cylinders := totalSectors / (16 * 63)
	if cylinders > 0xFFFF {
		cylinders = 0xFFFF
	}
	if len(brand) > 40 {
		brand = brand[:40]
	}
	return &Disk{
		ID:        id,
		Type:      DiskTypeATA,
		Cylinders: uint16(cylinders),
		Heads:     16,
		Sectors:   63,
		Brand:     brand,
		Size:      uint64(totalSectors) * kfs.SectorSize,
		Device:    device,
	}
}

// TotalSectors gives the number of sectors addressable through CHS.
func (d *Disk) TotalSectors() uint32 {
	return uint32(d.Cylinders) * uint32(d.Heads) * uint32(d.Sectors)
}

// LBAToCHS converts a linear block address into cylinder, head and sector
// numbers. Sectors are 1-based.
func (d *Disk) LBAToCHS(lba uint32) (cylinder, head, sector uint16) {
	sector = uint16(lba%uint32(d.Sectors) + 1)
	cylinder = uint16((lba / uint32(d.Sectors)) / uint32(d.Heads))
	head = uint16((lba / uint32(d.Sectors)) % uint32(d.Heads))
	return
}

// ReadSectors implements [kfs.BlockDevice].
func (d *Disk) ReadSectors(lba uint32, count uint, buffer []byte) error {
	if d.Device == nil {
		return errors.ErrNoDevice.WithMessagef("disk 0x%02x has no driver", d.ID)
	}
	if count == 0 {
		return errors.ErrInvalidArgument.WithMessage("can't read zero sectors")
	}
	count = kfs.ClampSectorCount(count)
	if uint(len(buffer)) < count*kfs.SectorSize {
		return errors.ErrInvalidArgument.WithMessagef(
			"buffer of %d bytes can't hold %d sectors", len(buffer), count)
	}
	return d.Device.ReadSectors(lba, count, buffer)
}

// WriteSectors implements [kfs.BlockDevice].
func (d *Disk) WriteSectors(lba uint32, count uint, data []byte) error {
	if d.Device == nil {
		return errors.ErrNoDevice.WithMessagef("disk 0x%02x has no driver", d.ID)
	}
	if count == 0 {
		return errors.ErrInvalidArgument.WithMessage("can't write zero sectors")
	}
	count = kfs.ClampSectorCount(count)
	if uint(len(data)) < count*kfs.SectorSize {
		return errors.ErrInvalidArgument.WithMessagef(
			"%d bytes of data is less than %d sectors", len(data), count)
	}
	return d.Device.WriteSectors(lba, count, data)
}
