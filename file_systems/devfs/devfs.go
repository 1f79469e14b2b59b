// Package devfs is the in-memory device filesystem mounted at /dev. Drivers
// register nodes here and processes reach them through the normal VFS calls.
package devfs

import (
	"strings"

	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/logging"
)

const (
	// MaxNodes is the number of device nodes that can be registered at once.
	MaxNodes = 256
	// MaxNameLength is the size of a node's name field, including the
	// terminator the kernel ABI reserves, so names are at most 63 characters.
	MaxNameLength = 64
)

// UUID and Label identify the devfs pseudo-partition in volume listings.
const (
	UUID  = 0xDEADBEEF
	Label = "devfs"
)

var logger = logging.For(logging.DEVFS)

type NodeType int

const (
	Block NodeType = 1
	Char  NodeType = 2
	Dir   NodeType = 3
)

func (t NodeType) String() string {
	switch t {
	case Block:
		return "block"
	case Char:
		return "char"
	case Dir:
		return "dir"
	}
	return "unknown"
}

// DeviceOps moves data to and from a device. Both methods return the number
// of bytes transferred; a device that can't transfer anything returns 0.
type DeviceOps interface {
	ReadAt(node *Node, offset uint32, buffer []byte) int
	WriteAt(node *Node, offset uint32, data []byte) int
}

// Ioctler is implemented by devices that accept control requests.
type Ioctler interface {
	Ioctl(node *Node, request uint32, arg any) error
}

// Closer is implemented by devices that need to know when a file referring to
// them is closed.
type Closer interface {
	Close(node *Node) error
}

// Node is a registered device.
type Node struct {
	Name  string
	Type  NodeType
	Major uint32
	Minor uint32
	// Size is the device's capacity in bytes, or 0 for character devices.
	Size uint32
	Ops  DeviceOps
	// Private is driver-specific data, e.g. the partition behind a block node.
	Private any

	slot common.UnitID
}

// Devfs is a table of device nodes.
type Devfs struct {
	nodes []*Node
	alloc *common.Allocator
}

func New() *Devfs {
	return &Devfs{
		nodes: make([]*Node, MaxNodes),
		alloc: common.NewAllocator(MaxNodes),
	}
}

// normalizeDevicePath strips leading slashes and a "dev/" prefix, so "null",
// "/null" and "/dev/null" all name the same node.
func normalizeDevicePath(path string) string {
	path = strings.TrimLeft(path, "/")
	return strings.TrimPrefix(path, "dev/")
}

// Register adds a device. The node is copied; the returned pointer is the one
// stored in the table and is what [Devfs.Unregister] expects.
func (fs *Devfs) Register(node Node) (*Node, error) {
	if node.Name == "" {
		return nil, errors.ErrInvalidArgument.WithMessage("device name can't be empty")
	}
	if len(node.Name) >= MaxNameLength {
		return nil, errors.ErrNameTooLong.WithMessagef(
			"device name %q is longer than %d characters", node.Name, MaxNameLength-1)
	}
	if fs.Count() >= MaxNodes {
		return nil, errors.ErrNoSpaceOnDevice.WithMessage("device table full")
	}
	if _, err := fs.Find(node.Name); err == nil {
		return nil, errors.ErrExists.WithMessagef("device %q already exists", node.Name)
	}

	slot, err := fs.alloc.AllocateSingle()
	if err != nil {
		return nil, err
	}

	stored := node
	stored.slot = slot
	fs.nodes[slot] = &stored

	logger.Infof(
		"Registered device: %s (type=%d, major=%d, minor=%d)",
		node.Name, node.Type, node.Major, node.Minor)
	return &stored, nil
}

// Unregister removes a node returned by [Devfs.Register].
func (fs *Devfs) Unregister(node *Node) error {
	if node == nil || int(node.slot) >= len(fs.nodes) || fs.nodes[node.slot] != node {
		return errors.ErrNotFound.WithMessage("node not registered")
	}

	fs.nodes[node.slot] = nil
	logger.Infof("Unregistered device: %s", node.Name)
	return fs.alloc.FreeSingle(node.slot)
}

// Find looks up a device by name or path.
func (fs *Devfs) Find(path string) (*Node, error) {
	name := normalizeDevicePath(path)
	for _, node := range fs.nodes {
		if node != nil && node.Name == name {
			return node, nil
		}
	}
	return nil, errors.ErrNotFound.WithMessagef("no device named %q", name)
}

// Enumerate calls `callback` for every registered node in table order.
// Returning false stops the walk.
func (fs *Devfs) Enumerate(callback func(node *Node) bool) {
	for _, node := range fs.nodes {
		if node != nil && !callback(node) {
			return
		}
	}
}

// Count returns the number of registered nodes.
func (fs *Devfs) Count() uint {
	return fs.alloc.CountAllocated()
}

// Delete always fails. Nodes can only be removed by the driver that
// registered them.
func (fs *Devfs) Delete(path string) error {
	return errors.ErrNotPermitted.WithMessagef(
		"can't delete device %q", normalizeDevicePath(path))
}

////////////////////////////////////////////////////////////////////////////////
// Files

// File is an open device node.
type File struct {
	node     *Node
	position uint32
}

// Open opens a device by name or path. The position starts at 0.
func (fs *Devfs) Open(path string) (*File, error) {
	node, err := fs.Find(path)
	if err != nil {
		logger.Warnf("Device not found: %s", path)
		return nil, err
	}
	return &File{node: node}, nil
}

func (f *File) Node() *Node {
	return f.node
}

func (f *File) IsDirectory() bool {
	return f.node.Type == Dir
}

// Read reads from the device at the current position and advances it by the
// number of bytes read.
func (f *File) Read(buffer []byte) (int, error) {
	if len(buffer) == 0 || f.node.Ops == nil {
		return 0, nil
	}
	n := f.node.Ops.ReadAt(f.node, f.position, buffer)
	f.position += uint32(n)
	return n, nil
}

// Write writes to the device at the current position and advances it by the
// number of bytes written.
func (f *File) Write(data []byte) (int, error) {
	if len(data) == 0 || f.node.Ops == nil {
		return 0, nil
	}
	n := f.node.Ops.WriteAt(f.node, f.position, data)
	f.position += uint32(n)
	return n, nil
}

// Seek sets the position. Devices don't have a meaningful end, so any
// position is accepted.
func (f *File) Seek(position uint32) error {
	f.position = position
	return nil
}

func (f *File) Position() uint32 {
	return f.position
}

func (f *File) Size() uint32 {
	return f.node.Size
}

// Ioctl sends a control request to the device.
func (f *File) Ioctl(request uint32, arg any) error {
	ioctler, ok := f.node.Ops.(Ioctler)
	if !ok {
		return errors.ErrNotSupported.WithMessagef(
			"device %q doesn't accept control requests", f.node.Name)
	}
	return ioctler.Ioctl(f.node, request, arg)
}

func (f *File) Close() error {
	if closer, ok := f.node.Ops.(Closer); ok {
		return closer.Close(f.node)
	}
	return nil
}
