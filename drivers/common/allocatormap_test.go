package common_test

import (
	"testing"

	"github.com/dargueta/kfs/drivers/common"
	"github.com/dargueta/kfs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator__AllocateSingle__FirstFit(t *testing.T) {
	alloc := common.NewAllocator(4)

	for i := common.UnitID(0); i < 4; i++ {
		unit, err := alloc.AllocateSingle()
		require.NoError(t, err)
		assert.Equal(t, i, unit)
	}
	assert.EqualValues(t, 4, alloc.CountAllocated())

	_, err := alloc.AllocateSingle()
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)

	// Freeing a slot in the middle makes it the next one handed out.
	require.NoError(t, alloc.FreeSingle(2))
	assert.False(t, alloc.IsAllocated(2))
	unit, err := alloc.AllocateSingle()
	require.NoError(t, err)
	assert.EqualValues(t, 2, unit)
}

func TestAllocator__CustomExhaustionError(t *testing.T) {
	alloc := common.NewAllocatorWithExhaustionError(1, errors.ErrTooManyOpenFiles)
	_, err := alloc.AllocateSingle()
	require.NoError(t, err)

	_, err = alloc.AllocateSingle()
	assert.ErrorIs(t, err, errors.ErrTooManyOpenFiles)
}

func TestAllocator__FreeSingle__DoubleFree(t *testing.T) {
	alloc := common.NewAllocator(8)
	unit, err := alloc.AllocateSingle()
	require.NoError(t, err)

	require.NoError(t, alloc.FreeSingle(unit))
	assert.ErrorIs(t, alloc.FreeSingle(unit), errors.ErrAlreadyInProgress)
	assert.ErrorIs(t, alloc.FreeSingle(8), errors.ErrInvalidArgument)
	assert.EqualValues(t, 0, alloc.CountAllocated())
}

func TestAllocator__Reserve(t *testing.T) {
	alloc := common.NewAllocator(16)
	for i := common.UnitID(0); i < 3; i++ {
		require.NoError(t, alloc.Reserve(i))
	}
	assert.ErrorIs(t, alloc.Reserve(1), errors.ErrAlreadyInProgress)
	assert.ErrorIs(t, alloc.Reserve(16), errors.ErrInvalidArgument)

	unit, err := alloc.AllocateSingle()
	require.NoError(t, err)
	assert.EqualValues(t, 3, unit, "reserved slots were handed out")
}

func TestAllocator__Contiguous(t *testing.T) {
	alloc := common.NewAllocator(10)
	require.NoError(t, alloc.Reserve(1))
	require.NoError(t, alloc.Reserve(4))

	// Slots 0, 2-3 and 5-9 are free. The first run of three starts at 5.
	start, err := alloc.FindContiguousValues(false, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, start)

	start, err = alloc.AllocateContiguous(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, start)
	assert.True(t, alloc.IsAllocated(2))
	assert.True(t, alloc.IsAllocated(3))
	assert.EqualValues(t, 4, alloc.CountAllocated())

	_, err = alloc.AllocateContiguous(6)
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)

	// Range 3-5 includes a free slot, so nothing gets freed.
	assert.ErrorIs(t, alloc.FreeContiguous(3, 3), errors.ErrInvalidArgument)
	assert.True(t, alloc.IsAllocated(3))

	require.NoError(t, alloc.FreeContiguous(2, 3))
	assert.EqualValues(t, 1, alloc.CountAllocated())
}
