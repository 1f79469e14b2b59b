package main

import (
	"fmt"
	"os"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/dargueta/kfs/partition"
	"github.com/dargueta/kfs/utilities/compression"
	"github.com/urfave/cli/v2"
	"github.com/xaionaro-go/bytesextra"
)

// HardDiskPartitionOffset is where `format` puts the only partition of a hard
// disk image, the traditional first track boundary.
const HardDiskPartitionOffset = 63

// ImageSpec describes an image for [BuildImage] to create.
type ImageSpec struct {
	Type fat.FATType
	// Floppy images have no partition table. Their size comes from Geometry.
	Floppy   bool
	Geometry disks.Geometry
	// Sectors is the size of a hard disk image, partition table included.
	Sectors uint32
	Label   string
}

func partitionTypeFor(fatType fat.FATType, sectors uint32) uint8 {
	switch {
	case fatType == fat.FAT32:
		return partition.TypeFAT32LBA
	case sectors < 65536:
		return partition.TypeFAT16Small
	}
	return partition.TypeFAT16
}

// BuildImage creates a formatted image in memory.
func BuildImage(spec ImageSpec) ([]byte, error) {
	if spec.Floppy {
		spec.Sectors = uint32(spec.Geometry.TotalSectors())
	}
	if spec.Sectors == 0 {
		return nil, errors.ErrInvalidArgument.WithMessage("image size must be given in sectors")
	}

	data := make([]byte, uint64(spec.Sectors)*kfs.SectorSize)
	opts := fat.FormatOptions{
		Type:        spec.Type,
		VolumeLabel: spec.Label,
	}

	if spec.Floppy {
		device := common.NewBlockStream(bytesextra.NewReadWriteSeeker(data), spec.Sectors, 0)
		opts.TotalSectors = spec.Sectors
		opts.SectorsPerTrack = uint16(spec.Geometry.SectorsPerTrack)
		opts.Heads = uint16(spec.Geometry.Heads)
		return data, fat.Format(device, opts)
	}

	if spec.Sectors <= HardDiskPartitionOffset {
		return nil, errors.ErrInvalidArgument.WithMessagef(
			"hard disk images need more than %d sectors", HardDiskPartitionOffset)
	}
	volumeSectors := spec.Sectors - HardDiskPartitionOffset

	mbr := partition.MBR{}
	mbr.Entries[0] = partition.MBREntry{
		Attributes: 0x80,
		Type:       partitionTypeFor(spec.Type, volumeSectors),
		LBAStart:   HardDiskPartitionOffset,
		Size:       volumeSectors,
	}
	mbr.WriteTo(data[:kfs.SectorSize])

	device := common.NewBlockStream(
		bytesextra.NewReadWriteSeeker(data),
		volumeSectors,
		HardDiskPartitionOffset*kfs.SectorSize)
	opts.TotalSectors = volumeSectors
	return data, fat.Format(device, opts)
}

func formatImage(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}

	spec := ImageSpec{
		Type:    fat.FATType(c.Uint("type")),
		Floppy:  c.Bool("floppy"),
		Sectors: uint32(c.Uint("sectors")),
		Label:   c.String("label"),
	}
	switch spec.Type {
	case fat.FAT12, fat.FAT16, fat.FAT32:
	default:
		return cli.Exit(fmt.Sprintf("unsupported FAT type %d", spec.Type), 1)
	}
	if spec.Floppy {
		geometry, err := disks.GetPredefinedGeometry(c.String("geometry"))
		if err != nil {
			return err
		}
		spec.Geometry = geometry
	}

	data, err := BuildImage(spec)
	if err != nil {
		return err
	}

	output, err := os.Create(c.Args().First())
	if err != nil {
		return err
	}
	if c.Bool("compress") {
		_, err = compression.CompressImage(bytesextra.NewReadWriteSeeker(data), output)
	} else {
		_, err = output.Write(data)
	}
	return errors.Append(err, output.Close())
}

func convertImage(c *cli.Context, convert func(*os.File, *os.File) error) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}

	input, err := os.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.Create(c.Args().Get(1))
	if err != nil {
		return err
	}
	return errors.Append(convert(input, output), output.Close())
}

func compressImage(c *cli.Context) error {
	return convertImage(c, func(input, output *os.File) error {
		_, err := compression.CompressImage(input, output)
		return err
	})
}

func decompressImage(c *cli.Context) error {
	return convertImage(c, func(input, output *os.File) error {
		n, err := compression.DecompressImage(input, output)
		if err == nil {
			fmt.Fprintf(c.App.Writer, "Decompressed image is %d bytes.\n", n)
		}
		return err
	})
}
