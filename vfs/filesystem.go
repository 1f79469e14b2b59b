package vfs

import (
	"fmt"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/dargueta/kfs/partition"
)

// Kind identifies the implementation behind a [Filesystem]. The values match
// the kernel's filesystem type codes.
type Kind int

const (
	FAT12 Kind = 1
	FAT16 Kind = 2
	FAT32 Kind = 3
	// EXT2 is reserved. Nothing implements it, so it can't be mounted.
	EXT2  Kind = 4
	DEVFS Kind = 5
)

func (k Kind) String() string {
	switch k {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	case EXT2:
		return "EXT2"
	case DEVFS:
		return "devfs"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsFAT returns true for the three FAT widths.
func (k Kind) IsFAT() bool {
	return k == FAT12 || k == FAT16 || k == FAT32
}

func kindForFATType(t fat.FATType) Kind {
	switch t {
	case fat.FAT12:
		return FAT12
	case fat.FAT16:
		return FAT16
	default:
		return FAT32
	}
}

// Filesystem is an initialized filesystem that can be mounted. Exactly one
// backend is set, according to Kind.
type Filesystem struct {
	Kind Kind
	// Partition is the volume the filesystem lives on. It's nil for devfs.
	Partition *partition.Partition
	Mounted   bool
	ReadOnly  bool
	// BlockSize is the allocation unit in bytes: the cluster size for FAT.
	BlockSize uint32

	fat   *fat.Volume
	devfs *devfs.Devfs
}

// NewFATFilesystem mounts the FAT volume on a partition.
func NewFATFilesystem(part *partition.Partition) (*Filesystem, error) {
	if part == nil {
		return nil, errors.ErrInvalidArgument.WithMessage("no partition given")
	}

	volume, err := fat.Mount(part)
	if err != nil {
		return nil, err
	}

	return &Filesystem{
		Kind:      kindForFATType(volume.Type()),
		Partition: part,
		BlockSize: volume.BytesPerCluster(),
		fat:       volume,
	}, nil
}

// NewDevfsFilesystem wraps a device table so it can be mounted.
func NewDevfsFilesystem(dev *devfs.Devfs) *Filesystem {
	return &Filesystem{
		Kind:      DEVFS,
		BlockSize: kfs.SectorSize,
		devfs:     dev,
	}
}

// FAT returns the FAT volume, or nil if this isn't a FAT filesystem.
func (fs *Filesystem) FAT() *fat.Volume {
	return fs.fat
}

// Devfs returns the device table, or nil if this isn't devfs.
func (fs *Filesystem) Devfs() *devfs.Devfs {
	return fs.devfs
}

func (fs *Filesystem) initialized() bool {
	switch {
	case fs.Kind.IsFAT():
		return fs.fat != nil
	case fs.Kind == DEVFS:
		return fs.devfs != nil
	}
	return false
}

// Label names the filesystem in logs and listings: the partition's label or
// the disk's model name.
func (fs *Filesystem) Label() string {
	if fs.Kind == DEVFS {
		return devfs.Label
	}
	if fs.Partition == nil {
		return fs.Kind.String()
	}
	if fs.Partition.Label != "" {
		return fs.Partition.Label
	}
	if fs.Partition.Disk != nil && fs.Partition.Disk.Brand != "" {
		return fs.Partition.Disk.Brand
	}
	return fs.Kind.String()
}
