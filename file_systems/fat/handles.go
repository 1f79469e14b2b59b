package fat

import (
	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/errors"
)

// MaxFileHandles is the number of files and directories that can be open on a
// volume at once, not counting the root directory.
const MaxFileHandles = 10

// Handle refers to an open file or directory on a [Volume]. Handles are only
// valid until they're closed; using one afterwards fails with ESTALE even if
// its slot has since been reused.
//
// The zero value is never a valid handle.
type Handle struct {
	slot       int32
	generation uint32
}

// RootHandle always refers to the volume's root directory, which is opened at
// mount time and never closes.
var RootHandle = Handle{slot: -1}

// IsRoot returns true for [RootHandle].
func (h Handle) IsRoot() bool {
	return h.slot == -1
}

// openFile is the in-memory state of an open file.
//
// `buffer` holds the sector containing byte `position`, except when
// `pendingAdvance` is set. Then `position` is at a sector boundary and the
// buffer still holds the sector before it; the next transfer has to step
// forward first. This way a transfer that ends exactly at the end of a sector
// or cluster doesn't touch the FAT until there's something to put there.
type openFile struct {
	name        ShortName
	isDirectory bool
	isRoot      bool
	position    uint32
	size        uint32

	firstCluster uint32
	// currentCluster is the cluster holding `buffer`. For the fixed FAT12/16
	// root directory it is the absolute LBA of the sector instead, and
	// firstCluster is the root's starting LBA.
	currentCluster  uint32
	sectorInCluster uint32
	pendingAdvance  bool
	buffer          [kfs.SectorSize]byte

	// Identity of the directory holding this file's entry.
	parentCluster uint32
	parentIsRoot  bool
}

type handleSlot struct {
	generation uint32
	file       *openFile
}

// handleArena is the table of open files on a volume.
type handleArena struct {
	slots []handleSlot
	alloc *common.Allocator
}

func newHandleArena(size uint) *handleArena {
	return &handleArena{
		slots: make([]handleSlot, size),
		alloc: common.NewAllocatorWithExhaustionError(size, errors.ErrTooManyOpenFiles),
	}
}

func (a *handleArena) open(file *openFile) (Handle, error) {
	slot, err := a.alloc.AllocateSingle()
	if err != nil {
		return Handle{}, err
	}

	entry := &a.slots[slot]
	entry.generation++
	entry.file = file
	return Handle{slot: int32(slot), generation: entry.generation}, nil
}

func (a *handleArena) get(h Handle) (*openFile, error) {
	if h.slot < 0 || int(h.slot) >= len(a.slots) {
		return nil, errors.ErrInvalidFileDescriptor.WithMessagef("invalid handle slot %d", h.slot)
	}

	entry := &a.slots[h.slot]
	if entry.file == nil || entry.generation != h.generation {
		return nil, errors.ErrStaleFileHandle.WithMessagef(
			"handle %d.%d is closed", h.slot, h.generation)
	}
	return entry.file, nil
}

func (a *handleArena) release(h Handle) error {
	if _, err := a.get(h); err != nil {
		return err
	}
	entry := &a.slots[h.slot]
	entry.file = nil
	entry.generation++
	return a.alloc.FreeSingle(common.UnitID(h.slot))
}

func (a *handleArena) releaseAll() {
	for i := range a.slots {
		if a.slots[i].file != nil {
			a.slots[i].file = nil
			a.slots[i].generation++
			a.alloc.FreeSingle(common.UnitID(i))
		}
	}
}

func (a *handleArena) count() uint {
	return a.alloc.CountAllocated()
}
