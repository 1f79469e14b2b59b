package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dargueta/kfs/disks"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

const defaultFloppyGeometry = "1440k"

// Manifest is the type of a --manifest file:
//
//	disks:
//	  - path: boot.img
//	    kind: floppy
//	    geometry: 1440k
//	  - path: hd.img
//	mounts:
//	  - volume: 1
//	    point: /data
//	readonly: true
type Manifest struct {
	Disks    []DiskSpec  `yaml:"disks"`
	Mounts   []MountSpec `yaml:"mounts,omitempty"`
	ReadOnly bool        `yaml:"readonly,omitempty"`
}

// DiskSpec is one disk image to attach.
type DiskSpec struct {
	Path string `yaml:"path"`
	// Kind is "ata" (the default) or "floppy".
	Kind string `yaml:"kind,omitempty"`
	// Geometry is the slug of a predefined floppy geometry.
	Geometry string `yaml:"geometry,omitempty"`
}

// MountSpec mounts a volume, by its index in the volume table, somewhere other
// than where it would normally go.
type MountSpec struct {
	Volume int    `yaml:"volume"`
	Point  string `yaml:"point"`
}

func (spec *DiskSpec) isFloppy() bool {
	return strings.EqualFold(spec.Kind, "floppy")
}

func (spec *DiskSpec) validate() error {
	switch strings.ToLower(spec.Kind) {
	case "", "ata", "floppy":
	default:
		return fmt.Errorf("disk %q: unknown kind %q", spec.Path, spec.Kind)
	}
	if spec.Path == "" {
		return fmt.Errorf("disk entry has no path")
	}
	if spec.isFloppy() {
		if spec.Geometry == "" {
			spec.Geometry = defaultFloppyGeometry
		}
		if _, err := disks.GetPredefinedGeometry(spec.Geometry); err != nil {
			return fmt.Errorf(
				"disk %q: unknown geometry %q, expected one of %s",
				spec.Path,
				spec.Geometry,
				strings.Join(disks.PredefinedGeometrySlugs(), ", "))
		}
	}
	return nil
}

// ParseManifest decodes and checks a manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return m, err
	}
	for i := range m.Disks {
		if err := m.Disks[i].validate(); err != nil {
			return m, err
		}
	}
	for _, mount := range m.Mounts {
		if !strings.HasPrefix(mount.Point, "/") {
			return m, fmt.Errorf("mount point %q isn't absolute", mount.Point)
		}
	}
	return m, nil
}

// manifestFromFlags builds the manifest from --manifest, then adds the disks
// given with --image.
func manifestFromFlags(c *cli.Context) (Manifest, error) {
	var m Manifest
	if path := c.String("manifest"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return m, err
		}
		m, err = ParseManifest(data)
		if err != nil {
			return m, fmt.Errorf("%s: %w", path, err)
		}
	}

	kind := "ata"
	if c.Bool("floppy") {
		kind = "floppy"
	}
	for _, path := range c.StringSlice("image") {
		spec := DiskSpec{Path: path, Kind: kind, Geometry: c.String("geometry")}
		if err := spec.validate(); err != nil {
			return m, err
		}
		m.Disks = append(m.Disks, spec)
	}

	if c.Bool("read-only") {
		m.ReadOnly = true
	}
	if len(m.Disks) == 0 {
		return m, cli.Exit("no disks given; use --image or --manifest", 1)
	}
	return m, nil
}
