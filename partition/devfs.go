package partition

import (
	"fmt"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/file_systems/devfs"
)

// Device numbers for partition nodes.
const (
	FloppyMajor = 2
	ATAMajor    = 3
)

// DeviceName gives the devfs name and minor number for the `index`th
// partition (0-based) found on `disk`: fd0p1 for floppies, hda1, hda2, hdb1
// and so on for hard disks.
func DeviceName(disk *disks.Disk, index int) (string, uint32) {
	if disk.Type == disks.DiskTypeFloppy {
		id := int(disk.ID & 0x0F)
		return fmt.Sprintf("fd%dp1", id), uint32(id*16 + 1)
	}

	diskIndex := 0
	if disk.ID >= 0x80 {
		diskIndex = int(disk.ID - 0x80)
	}
	return fmt.Sprintf("hd%c%d", 'a'+diskIndex, index+1), uint32(diskIndex*16 + index + 1)
}

// RegisterNode adds a block device node for a partition. Fabricated
// partitions don't get one.
func RegisterNode(dev *devfs.Devfs, part *Partition, index int) (*devfs.Node, error) {
	if part.Fabricated {
		return nil, nil
	}

	name, minor := DeviceName(part.Disk, index)
	major := uint32(ATAMajor)
	if part.Disk.Type == disks.DiskTypeFloppy {
		major = FloppyMajor
	}
	return dev.Register(devfs.Node{
		Name:    name,
		Type:    devfs.Block,
		Major:   major,
		Minor:   minor,
		Size:    part.SizeBytes(),
		Ops:     blockNodeOps{},
		Private: part,
	})
}

// blockNodeOps gives byte-addressed access to the partition stored in a node's
// Private field. Transfers stop at the end of the node.
type blockNodeOps struct{}

func (blockNodeOps) clamp(node *devfs.Node, offset uint32, length int) int {
	if node.Size == 0 {
		return length
	}
	if offset >= node.Size {
		return 0
	}
	if remaining := node.Size - offset; uint32(length) > remaining {
		return int(remaining)
	}
	return length
}

func (ops blockNodeOps) ReadAt(node *devfs.Node, offset uint32, buffer []byte) int {
	part, ok := node.Private.(*Partition)
	if !ok {
		return 0
	}

	total := ops.clamp(node, offset, len(buffer))
	sector := make([]byte, kfs.SectorSize)
	done := 0
	for done < total {
		position := offset + uint32(done)
		if err := part.ReadSectors(position/kfs.SectorSize, 1, sector); err != nil {
			logger.Warnf("Read of %s failed at byte %d: %s", node.Name, position, err)
			break
		}
		done += copy(buffer[done:total], sector[position%kfs.SectorSize:])
	}
	return done
}

func (ops blockNodeOps) WriteAt(node *devfs.Node, offset uint32, data []byte) int {
	part, ok := node.Private.(*Partition)
	if !ok {
		return 0
	}

	total := ops.clamp(node, offset, len(data))
	sector := make([]byte, kfs.SectorSize)
	done := 0
	for done < total {
		position := offset + uint32(done)
		lba := position / kfs.SectorSize
		inSector := position % kfs.SectorSize
		chunk := total - done
		if chunk > int(kfs.SectorSize-inSector) {
			chunk = int(kfs.SectorSize - inSector)
		}

		// Partial sectors have to be read first so the rest of the sector
		// isn't clobbered.
		if chunk < kfs.SectorSize {
			if err := part.ReadSectors(lba, 1, sector); err != nil {
				logger.Warnf("Read of %s failed at byte %d: %s", node.Name, position, err)
				break
			}
		}
		copy(sector[inSector:], data[done:done+chunk])
		if err := part.WriteSectors(lba, 1, sector); err != nil {
			logger.Warnf("Write to %s failed at byte %d: %s", node.Name, position, err)
			break
		}
		done += chunk
	}
	return done
}
