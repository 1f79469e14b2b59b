// Package scan finds the volumes on a set of disks and brings up the file
// system tree: devfs at /dev and the first FAT volume at /.
package scan

import (
	"io"
	"strings"

	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/dargueta/kfs/logging"
	"github.com/dargueta/kfs/partition"
	"github.com/dargueta/kfs/vfs"
)

// MaxVolumes is the size of the volume table, devfs included.
const MaxVolumes = 32

// DevfsMountPoint and RootMountPoint are where [Initialize] mounts things.
const (
	DevfsMountPoint = "/dev"
	RootMountPoint  = "/"
)

var logger = logging.For(logging.SCAN)

// Volume is one entry of the volume table: a partition, or the devfs
// pseudo-volume.
type Volume struct {
	// Partition is nil for devfs.
	Partition *partition.Partition
	// Filesystem is nil if nothing on the partition could be mounted.
	Filesystem *vfs.Filesystem
	// Node is the block device registered for the partition, if any.
	Node  *devfs.Node
	UUID  uint32
	Label string
}

// IsDevfs returns true for the devfs pseudo-volume.
func (v *Volume) IsDevfs() bool {
	return v.Partition == nil && v.Filesystem != nil && v.Filesystem.Kind == vfs.DEVFS
}

// volumeLabel reads the label out of the boot sector. Unlabeled volumes give
// an empty string.
func volumeLabel(fs *vfs.Filesystem) string {
	bootSector := fs.FAT().BootSector()
	label := strings.TrimRight(string(bootSector.EBR.VolumeLabel[:]), " \x00")
	if label == "NO NAME" {
		return ""
	}
	return label
}

// Scan detects the partitions on `diskList`, registers a block device for each
// in `dev`, and initializes a filesystem on every floppy and every FAT
// partition. A volume whose filesystem fails to initialize stays in the table
// without one. The devfs volume is always last.
func Scan(diskList []*disks.Disk, dev *devfs.Devfs) ([]*Volume, error) {
	var volumes []*Volume
	var result error

scanLoop:
	for _, disk := range diskList {
		parts, err := partition.Detect(disk)
		if err != nil {
			logger.Errorf("Failed to detect partitions on disk 0x%02x: %s", disk.ID, err)
			result = errors.Append(result, err)
			continue
		}

		for index, part := range parts {
			// One slot stays free for devfs.
			if len(volumes) >= MaxVolumes-1 {
				logger.Warnf("Volume table full, ignoring the rest of disk 0x%02x", disk.ID)
				break scanLoop
			}

			volume := &Volume{Partition: part, UUID: part.UUID}
			volumes = append(volumes, volume)
			logger.Infof(
				"Populated volume[%d]: Offset=%d, Size=%d, Type=0x%02x",
				len(volumes)-1, part.Offset, part.Size, part.Type)

			if dev != nil {
				node, err := partition.RegisterNode(dev, part, index)
				if err != nil {
					logger.Warnf("Can't register device for volume[%d]: %s", len(volumes)-1, err)
				}
				volume.Node = node
			}

			if disk.Type != disks.DiskTypeFloppy && !partition.IsFATType(part.Type) {
				logger.Infof("Skipping filesystem init for partition type 0x%02x", part.Type)
				continue
			}

			fs, err := vfs.NewFATFilesystem(part)
			if err != nil {
				logger.Errorf("Failed to initialize FAT on volume[%d]: %s", len(volumes)-1, err)
				continue
			}
			volume.Filesystem = fs
			volume.Label = volumeLabel(fs)
			part.Label = volume.Label
		}
	}

	if dev != nil {
		volumes = append(volumes, &Volume{
			Filesystem: vfs.NewDevfsFilesystem(dev),
			UUID:       devfs.UUID,
			Label:      devfs.Label,
		})
		logger.Infof("Registered devfs at volume[%d]", len(volumes)-1)
	}
	return volumes, result
}

// System is everything [Initialize] brought up.
type System struct {
	VFS     *vfs.VFS
	Devfs   *devfs.Devfs
	Volumes []*Volume
	// Root is the volume mounted at "/", or nil if no FAT volume was found.
	Root *Volume
}

// Initialize creates devfs with the standard devices, mounts it at /dev, scans
// the disks and mounts the first usable FAT volume at /. `terminal` backs the
// tty devices and may be nil.
//
// Failing to find a root filesystem isn't an error; the tree just has /dev.
func Initialize(
	diskList []*disks.Disk, terminal func(id int) io.ReadWriter, v *vfs.VFS,
) (*System, error) {
	v.Init()

	dev := devfs.New()
	if err := dev.RegisterStandardDevices(terminal); err != nil {
		logger.Errorf("Failed to initialize devfs: %s", err)
		return nil, err
	}

	system := &System{VFS: v, Devfs: dev}
	devfsFS := vfs.NewDevfsFilesystem(dev)
	if err := v.Mount(devfsFS, DevfsMountPoint); err != nil {
		return nil, err
	}

	volumes, err := Scan(diskList, dev)
	if err != nil {
		logger.Warnf("Some disks couldn't be scanned: %s", err)
	}
	// Scan appends its own devfs volume. Point it at the mounted filesystem so
	// the table reflects what's mounted.
	if len(volumes) > 0 && volumes[len(volumes)-1].IsDevfs() {
		volumes[len(volumes)-1].Filesystem = devfsFS
	}
	system.Volumes = volumes

	for _, volume := range volumes {
		if volume.Filesystem == nil || !volume.Filesystem.Kind.IsFAT() {
			continue
		}
		if err := v.Mount(volume.Filesystem, RootMountPoint); err != nil {
			return system, err
		}
		volume.Partition.IsRoot = true
		system.Root = volume
		break
	}

	if system.Root == nil {
		logger.Warn("No FAT volume found, nothing mounted at /")
	}
	logger.Infof("Filesystem initialization complete, disks detected: %d", len(diskList))
	return system, nil
}
