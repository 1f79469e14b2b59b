package devfs

import (
	"fmt"
	"io"

	"github.com/dargueta/kfs/errors"
)

// TTYCount is the number of virtual terminals, /dev/tty0 through /dev/tty7.
const TTYCount = 8

// Control requests accepted by terminal devices.
const (
	TTYIoctlGetFlags uint32 = 0x0001
	TTYIoctlSetFlags uint32 = 0x0002
	TTYIoctlFlush    uint32 = 0x0003
	TTYIoctlGetSize  uint32 = 0x0004
)

// Terminal dimensions reported by TTYIoctlGetSize.
const (
	ScreenWidth  = 80
	ScreenHeight = 25
)

// nullDevice discards writes and reads as end of file. With `zeroReads` set,
// reads return zeros instead; with `rejectWrites`, writes transfer nothing.
type nullDevice struct {
	zeroReads    bool
	rejectWrites bool
}

func (d nullDevice) ReadAt(node *Node, offset uint32, buffer []byte) int {
	if !d.zeroReads {
		return 0
	}
	for i := range buffer {
		buffer[i] = 0
	}
	return len(buffer)
}

func (d nullDevice) WriteAt(node *Node, offset uint32, data []byte) int {
	if d.rejectWrites {
		return 0
	}
	return len(data)
}

var (
	nullOps DeviceOps = nullDevice{}
	zeroOps DeviceOps = nullDevice{zeroReads: true}
	fullOps DeviceOps = nullDevice{zeroReads: true, rejectWrites: true}
)

// ttyState is the per-terminal data stored in a node's Private field.
type ttyState struct {
	id    int
	flags uint32
}

// ttyDevice forwards reads and writes to a terminal. Offsets are ignored.
type ttyDevice struct {
	terminal func(id int) io.ReadWriter
}

func (d *ttyDevice) stream(node *Node) io.ReadWriter {
	id := 0
	if state, ok := node.Private.(*ttyState); ok {
		id = state.id
	}
	if d.terminal == nil {
		return nil
	}
	return d.terminal(id)
}

func (d *ttyDevice) ReadAt(node *Node, offset uint32, buffer []byte) int {
	rw := d.stream(node)
	if rw == nil {
		return 0
	}
	n, _ := rw.Read(buffer)
	return n
}

func (d *ttyDevice) WriteAt(node *Node, offset uint32, data []byte) int {
	rw := d.stream(node)
	if rw == nil {
		return 0
	}
	rw.Write(data)
	return len(data)
}

func (d *ttyDevice) Ioctl(node *Node, request uint32, arg any) error {
	state, ok := node.Private.(*ttyState)
	if !ok {
		return errors.ErrNoDevice.WithMessagef("%s has no terminal attached", node.Name)
	}

	switch request {
	case TTYIoctlGetFlags:
		if out, ok := arg.(*uint32); ok {
			*out = state.flags
		}
	case TTYIoctlSetFlags:
		if in, ok := arg.(*uint32); ok {
			state.flags = *in
		}
	case TTYIoctlFlush:
	case TTYIoctlGetSize:
		if out, ok := arg.(*[2]uint16); ok {
			out[0] = ScreenWidth
			out[1] = ScreenHeight
		}
	default:
		return errors.ErrInvalidArgument.WithMessagef(
			"unknown terminal request 0x%04x", request)
	}
	return nil
}

// RegisterStandardDevices adds null, zero, full, the console and the virtual
// terminals. `terminal` returns the stream for a terminal number; /dev/tty and
// /dev/console both refer to terminal 0.
func (fs *Devfs) RegisterStandardDevices(terminal func(id int) io.ReadWriter) error {
	ttyOps := &ttyDevice{terminal: terminal}
	nodes := []Node{
		{Name: "null", Type: Char, Major: 1, Minor: 3, Ops: nullOps},
		{Name: "zero", Type: Char, Major: 1, Minor: 5, Ops: zeroOps},
		{Name: "full", Type: Char, Major: 1, Minor: 7, Ops: fullOps},
		{Name: "tty", Type: Char, Major: 5, Minor: 0, Ops: ttyOps, Private: &ttyState{}},
		{Name: "console", Type: Char, Major: 5, Minor: 1, Ops: ttyOps, Private: &ttyState{}},
	}
	for i := 0; i < TTYCount; i++ {
		nodes = append(nodes, Node{
			Name:    fmt.Sprintf("tty%d", i),
			Type:    Char,
			Major:   4,
			Minor:   uint32(i),
			Ops:     ttyOps,
			Private: &ttyState{id: i},
		})
	}

	var result error
	for _, node := range nodes {
		if _, err := fs.Register(node); err != nil {
			result = errors.Append(result, err)
		}
	}
	logger.Info("Registered standard devices (null, zero, full, tty, console)")
	return result
}
