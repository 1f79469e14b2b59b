package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/disks"
	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/scan"
	"github.com/dargueta/kfs/vfs"
	"github.com/dargueta/kfs/vfs/aferofs"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// session is a set of attached disk images with the file system tree built
// on top of them.
type session struct {
	files  []*os.File
	disks  []*disks.Disk
	system *scan.System
	fs     afero.Fs
	stdout io.Writer
}

// console backs /dev/tty0. Everything else has no terminal attached.
type console struct {
	io.Reader
	io.Writer
}

func attachDisk(spec DiskSpec, id uint8, readOnly bool) (*os.File, *disks.Disk, error) {
	mode := os.O_RDWR
	if readOnly {
		mode = os.O_RDONLY
	}
	file, err := os.OpenFile(spec.Path, mode, 0)
	if err != nil {
		return nil, nil, err
	}

	stream, err := common.NewBlockStreamFromSize(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("%s: %w", spec.Path, err)
	}

	if !spec.isFloppy() {
		return file, disks.NewATA(id, spec.Path, stream.TotalBlocks, stream), nil
	}

	geometry, err := disks.GetPredefinedGeometry(spec.Geometry)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if int64(stream.TotalBlocks)*kfs.SectorSize < geometry.TotalSizeBytes() {
		file.Close()
		return nil, nil, fmt.Errorf(
			"%s: image has %d sectors, too small for a %s floppy", spec.Path, stream.TotalBlocks, geometry.Name)
	}
	return file, disks.NewFloppy(id, geometry, stream), nil
}

func openSession(m Manifest, stdout io.Writer) (*session, error) {
	s := &session{stdout: stdout}

	nextFloppy := uint8(0)
	nextHardDisk := uint8(0x80)
	for _, spec := range m.Disks {
		var id uint8
		if spec.isFloppy() {
			id = nextFloppy
			nextFloppy++
		} else {
			id = nextHardDisk
			nextHardDisk++
		}

		file, disk, err := attachDisk(spec, id, m.ReadOnly)
		if err != nil {
			return nil, errors.Append(err, s.Close())
		}
		s.files = append(s.files, file)
		s.disks = append(s.disks, disk)
	}

	terminal := func(id int) io.ReadWriter {
		if id == 0 {
			return console{Reader: os.Stdin, Writer: stdout}
		}
		return nil
	}

	system, err := scan.Initialize(s.disks, terminal, vfs.New())
	if err != nil {
		return nil, errors.Append(err, s.Close())
	}
	s.system = system

	for _, volume := range system.Volumes {
		if volume.Filesystem != nil && m.ReadOnly {
			volume.Filesystem.ReadOnly = true
		}
	}
	for _, mount := range m.Mounts {
		if mount.Volume < 0 || mount.Volume >= len(system.Volumes) {
			return nil, errors.Append(
				fmt.Errorf("no volume %d to mount at %s", mount.Volume, mount.Point), s.Close())
		}
		volume := system.Volumes[mount.Volume]
		if volume.Filesystem == nil {
			return nil, errors.Append(
				fmt.Errorf("volume %d has no file system", mount.Volume), s.Close())
		}
		if err := system.VFS.Mount(volume.Filesystem, mount.Point); err != nil {
			return nil, errors.Append(err, s.Close())
		}
	}

	s.fs = aferofs.New(system.VFS)
	return s, nil
}

// Close unmounts everything and closes the image files.
func (s *session) Close() error {
	if s.system != nil {
		s.system.VFS.UmountAll()
	}
	var result error
	for _, file := range s.files {
		result = errors.Append(result, file.Close())
	}
	s.files = nil
	return result
}

// withSession wraps a command so it runs with the disks from the global flags
// attached.
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		m, err := manifestFromFlags(c)
		if err != nil {
			return err
		}
		s, err := openSession(m, c.App.Writer)
		if err != nil {
			return err
		}
		return errors.Append(action(c, s), s.Close())
	}
}

func requireArgs(c *cli.Context, count int) error {
	if c.NArg() != count {
		return cli.Exit(
			fmt.Sprintf("%s: expected %d argument(s), got %d", c.Command.Name, count, c.NArg()), 1)
	}
	return nil
}
