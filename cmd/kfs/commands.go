package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/fd"
	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func listDirectory(c *cli.Context, s *session) error {
	path := "/"
	if c.NArg() > 0 {
		path = c.Args().First()
	}

	infos, err := afero.ReadDir(s.fs, path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	for _, info := range infos {
		kind := "-"
		if info.IsDir() {
			kind = "d"
		}
		fmt.Fprintf(
			w, "%s\t%d\t%s\t%s\n",
			kind, info.Size(), info.ModTime().Format("2006-01-02 15:04"), info.Name())
	}
	return w.Flush()
}

// catFile goes through a file descriptor table, so the output reaches the
// terminal the same way a process's writes to stdout would.
func catFile(c *cli.Context, s *session) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}

	table := fd.New(s.system.VFS, s.stdout)
	number, err := table.Open(c.Args().First(), kfs.O_RDONLY)
	if err != nil {
		return err
	}
	defer table.Close(number)

	buffer := make([]byte, 4096)
	for {
		n, err := table.Read(number, buffer)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := table.Write(fd.Stdout, buffer[:n]); err != nil {
			return err
		}
	}
}

func putFile(c *cli.Context, s *session) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}

	data, err := os.ReadFile(c.Args().Get(0))
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, c.Args().Get(1), data, 0o644)
}

func removeFile(c *cli.Context, s *session) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	if c.Bool("recursive") {
		return s.fs.RemoveAll(c.Args().First())
	}
	return s.fs.Remove(c.Args().First())
}

func makeDirectory(c *cli.Context, s *session) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	if c.Bool("parents") {
		return s.fs.MkdirAll(c.Args().First(), 0o755)
	}
	return s.fs.Mkdir(c.Args().First(), 0o755)
}

func showMounts(c *cli.Context, s *session) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "POINT\tTYPE\tLABEL\tBLOCK SIZE\tFLAGS")
	for _, mount := range s.system.VFS.Mounts() {
		flags := "rw"
		if mount.Filesystem.ReadOnly {
			flags = "ro"
		}
		fmt.Fprintf(
			w, "%s\t%s\t%s\t%d\t%s\n",
			mount.Point,
			mount.Filesystem.Kind,
			mount.Filesystem.Label(),
			mount.Filesystem.BlockSize,
			flags)
	}
	return w.Flush()
}

func showVolumes(c *cli.Context, s *session) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDEVICE\tOFFSET\tSECTORS\tTYPE\tFILESYSTEM\tUUID\tLABEL")
	for i, volume := range s.system.Volumes {
		device := "-"
		if volume.Node != nil {
			device = "/dev/" + volume.Node.Name
		}
		filesystem := "-"
		if volume.Filesystem != nil {
			filesystem = volume.Filesystem.Kind.String()
		}

		var offset, size uint32
		var partitionType uint8
		if volume.Partition != nil {
			offset = volume.Partition.Offset
			size = volume.Partition.Size
			partitionType = volume.Partition.Type
		}
		fmt.Fprintf(
			w, "%d\t%s\t%d\t%d\t0x%02x\t%s\t%08X\t%s\n",
			i, device, offset, size, partitionType, filesystem, volume.UUID, volume.Label)
	}
	return w.Flush()
}

func showDevices(c *cli.Context, s *session) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tMAJOR\tMINOR\tSIZE")
	s.system.Devfs.Enumerate(func(node *devfs.Node) bool {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", node.Name, node.Type, node.Major, node.Minor, node.Size)
		return true
	})
	return w.Flush()
}

func runSelfTest(c *cli.Context, s *session) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	if err := s.system.VFS.SelfTest(c.Args().First()); err != nil {
		if errors.ErrnoOf(err) == errors.EUCLEAN {
			return cli.Exit("self test FAILED: data read back doesn't match", 2)
		}
		return err
	}
	fmt.Fprintln(c.App.Writer, "self test passed")
	return nil
}
