// Bitmap slot allocator

package common

import (
	"github.com/boljen/go-bitmap"
	"github.com/dargueta/kfs/errors"
)

type UnitID uint32

// Allocator hands out slots from a fixed-size table in first-fit order. It
// backs every bounded table in the kernel: FAT file handles, devfs nodes and
// file descriptors.
type Allocator struct {
	allocationBitmap bitmap.Bitmap
	totalUnits       uint
	allocated        uint
	// exhausted is the error returned when no slot is free. Tables report
	// exhaustion differently (EMFILE for handles, ENOSPC for storage).
	exhausted errors.DriverError
}

// NewAllocator creates a new allocator with all slots free. Exhaustion is
// reported as ENOSPC.
func NewAllocator(totalUnits uint) *Allocator {
	return NewAllocatorWithExhaustionError(totalUnits, errors.ErrNoSpaceOnDevice)
}

// NewAllocatorWithExhaustionError is like [NewAllocator] but reports a full
// table with `exhausted` instead of ENOSPC.
func NewAllocatorWithExhaustionError(totalUnits uint, exhausted errors.DriverError) *Allocator {
	return &Allocator{
		allocationBitmap: bitmap.New(int(totalUnits)),
		totalUnits:       totalUnits,
		exhausted:        exhausted,
	}
}

func (alloc *Allocator) TotalUnits() uint {
	return alloc.totalUnits
}

// CountAllocated returns the number of slots currently in use.
func (alloc *Allocator) CountAllocated() uint {
	return alloc.allocated
}

func (alloc *Allocator) checkUnit(unit UnitID) error {
	if uint(unit) >= alloc.totalUnits {
		return errors.ErrInvalidArgument.WithMessagef(
			"invalid unit id: %d not in range [0, %d)", unit, alloc.totalUnits)
	}
	return nil
}

// IsAllocated returns true if the slot is in use. Out-of-range slots are never
// allocated.
func (alloc *Allocator) IsAllocated(unit UnitID) bool {
	if alloc.checkUnit(unit) != nil {
		return false
	}
	return alloc.allocationBitmap.Get(int(unit))
}

// AllocateSingle allocates the first available unit it finds and returns its
// index. If no units are available, it returns the exhaustion error.
func (alloc *Allocator) AllocateSingle() (UnitID, error) {
	for i := uint(0); i < alloc.totalUnits; i++ {
		if !alloc.allocationBitmap.Get(int(i)) {
			alloc.allocationBitmap.Set(int(i), true)
			alloc.allocated++
			return UnitID(i), nil
		}
	}
	return 0, alloc.exhausted
}

// Reserve marks a specific slot as allocated. It fails with EALREADY if the slot
// is already taken.
func (alloc *Allocator) Reserve(unit UnitID) error {
	if err := alloc.checkUnit(unit); err != nil {
		return err
	}
	if alloc.allocationBitmap.Get(int(unit)) {
		return errors.ErrAlreadyInProgress.WithMessagef("unit %d is already allocated", unit)
	}
	alloc.allocationBitmap.Set(int(unit), true)
	alloc.allocated++
	return nil
}

// FreeSingle frees an allocated unit. Trying to free a unit that isn't allocated
// will return the errno code EALREADY.
func (alloc *Allocator) FreeSingle(unit UnitID) error {
	if err := alloc.checkUnit(unit); err != nil {
		return err
	}
	if !alloc.allocationBitmap.Get(int(unit)) {
		return errors.ErrAlreadyInProgress.WithMessagef("unit %d is already free", unit)
	}

	alloc.allocationBitmap.Set(int(unit), false)
	alloc.allocated--
	return nil
}

// FindContiguousValues returns the index of the beginning of a run of units of
// length `count` that all have the value `value`.
func (alloc *Allocator) FindContiguousValues(value bool, count uint) (UnitID, error) {
	if count == 0 {
		return 0, errors.ErrInvalidArgument.WithMessage("run length must be nonzero")
	}

	runSize := uint(0)
	runStart := UnitID(0)

	for i := uint(0); i < alloc.totalUnits; i++ {
		if alloc.allocationBitmap.Get(int(i)) != value {
			runSize = 0
			continue
		}

		if runSize == 0 {
			runStart = UnitID(i)
		}
		runSize++
		if runSize == count {
			return runStart, nil
		}
	}

	return 0, alloc.exhausted
}

func (alloc *Allocator) hasContiguousValuesAt(start UnitID, value bool, count uint) bool {
	if uint(start)+count > alloc.totalUnits {
		return false
	}
	for i := uint(0); i < count; i++ {
		if alloc.allocationBitmap.Get(int(uint(start)+i)) != value {
			return false
		}
	}
	return true
}

// AllocateContiguous allocates a set of contiguous units in a first-fit manner.
func (alloc *Allocator) AllocateContiguous(count uint) (UnitID, error) {
	runStart, err := alloc.FindContiguousValues(false, count)
	if err != nil {
		return 0, err
	}

	for i := uint(0); i < count; i++ {
		alloc.allocationBitmap.Set(int(uint(runStart)+i), true)
	}
	alloc.allocated += count
	return runStart, nil
}

// FreeContiguous frees a set of contiguous `count` units starting at index
// `start`. If any units in the range are already free, it fails immediately and
// the bitmap is *not* modified.
func (alloc *Allocator) FreeContiguous(start UnitID, count uint) error {
	if !alloc.hasContiguousValuesAt(start, true, count) {
		return errors.ErrInvalidArgument.WithMessagef(
			"tried to free already free units: there aren't %d allocated units starting at %d",
			count,
			start)
	}

	for i := uint(0); i < count; i++ {
		alloc.allocationBitmap.Set(int(uint(start)+i), false)
	}
	alloc.allocated -= count
	return nil
}
