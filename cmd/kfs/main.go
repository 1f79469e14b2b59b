// Command kfs inspects and modifies FAT disk images with the kernel's own
// storage stack: partition detection, the FAT driver, devfs and the VFS.
package main

import (
	"log"
	"os"

	"github.com/dargueta/kfs/logging"
	"github.com/urfave/cli/v2"
)

var globalFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:    "image",
		Aliases: []string{"i"},
		Usage:   "disk image to attach; repeat for more disks",
	},
	&cli.BoolFlag{
		Name:  "floppy",
		Usage: "attach --image files as floppies instead of hard disks",
	},
	&cli.StringFlag{
		Name:  "geometry",
		Value: defaultFloppyGeometry,
		Usage: "floppy geometry for --floppy images",
	},
	&cli.StringFlag{
		Name:    "manifest",
		Aliases: []string{"m"},
		Usage:   "YAML file listing the disks to attach and where to mount them",
	},
	&cli.BoolFlag{
		Name:  "read-only",
		Usage: "refuse to modify any attached volume",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Value: "warning",
		Usage: "log level: debug, info, warning, error",
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kfs",
		Usage: "Read and write FAT disk images",
		Flags: globalFlags,
		Before: func(c *cli.Context) error {
			return logging.SetLevelFromString(c.String("log-level"))
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create a new image with an empty FAT file system",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "type", Value: 16, Usage: "FAT width: 12, 16 or 32"},
					&cli.UintFlag{Name: "sectors", Usage: "image size in sectors (hard disks)"},
					&cli.StringFlag{Name: "label", Usage: "volume label"},
					&cli.BoolFlag{Name: "compress", Usage: "write a compressed image"},
				},
				Action: formatImage,
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "PATH",
				Action:    withSession(listDirectory),
			},
			{
				Name:      "cat",
				Usage:     "Write a file to standard output",
				ArgsUsage: "PATH",
				Action:    withSession(catFile),
			},
			{
				Name:      "put",
				Usage:     "Copy a host file into an image",
				ArgsUsage: "SOURCE DEST",
				Action:    withSession(putFile),
			},
			{
				Name:      "rm",
				Usage:     "Delete a file or directory",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "delete non-empty directories"},
				},
				Action: withSession(removeFile),
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents"},
				},
				Action: withSession(makeDirectory),
			},
			{
				Name:   "mounts",
				Usage:  "Show the mount table",
				Action: withSession(showMounts),
			},
			{
				Name:   "volumes",
				Usage:  "Show every volume found on the attached disks",
				Action: withSession(showVolumes),
			},
			{
				Name:   "devices",
				Usage:  "List the device nodes in /dev",
				Action: withSession(showDevices),
			},
			{
				Name:      "selftest",
				Usage:     "Write a test pattern to a file and read it back",
				ArgsUsage: "PATH",
				Action:    withSession(runSelfTest),
			},
			{
				Name:  "image",
				Usage: "Convert images to and from the compressed format",
				Subcommands: []*cli.Command{
					{
						Name:      "compress",
						ArgsUsage: "RAW COMPRESSED",
						Action:    compressImage,
					},
					{
						Name:      "decompress",
						ArgsUsage: "COMPRESSED RAW",
						Action:    decompressImage,
					},
				},
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
