// Package blockcache provides a small read-through cache over a run of
// consecutive blocks. The FAT driver uses it to keep the part of the
// allocation table it's currently walking in memory.
//
// All block indices are relative to the start of the volume.

package blockcache

import (
	"github.com/boljen/go-bitmap"
	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
	c "github.com/dargueta/kfs/file_systems/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. `buffer` is always
// exactly one sector.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// Window caches up to `size` consecutive blocks starting at an anchor block.
// Blocks are loaded lazily the first time they're requested. Asking for a block
// outside the window discards the entire window and re-anchors it at the
// requested block.
type Window struct {
	fetch        FetchBlockCallback
	size         uint
	start        c.LogicalBlock
	valid        bool
	loadedBlocks bitmap.Bitmap
	data         []byte
}

// New creates an empty window of `size` blocks.
func New(size uint, fetch FetchBlockCallback) *Window {
	return &Window{
		fetch:        fetch,
		size:         size,
		loadedBlocks: bitmap.New(int(size)),
		data:         make([]byte, size*kfs.SectorSize),
	}
}

// Size returns the capacity of the window, in blocks.
func (w *Window) Size() uint {
	return w.size
}

// Start returns the block the window is anchored at. It's meaningless if
// [Window.Valid] returns false.
func (w *Window) Start() c.LogicalBlock {
	return w.start
}

// Valid returns true if the window is anchored anywhere.
func (w *Window) Valid() bool {
	return w.valid
}

// Contains returns true if `block` falls within the window's current range. The
// block may not have been loaded yet.
func (w *Window) Contains(block c.LogicalBlock) bool {
	return w.valid && block >= w.start && uint(block-w.start) < w.size
}

// Invalidate drops every cached block.
func (w *Window) Invalidate() {
	w.valid = false
	for i := 0; i < int(w.size); i++ {
		w.loadedBlocks.Set(i, false)
	}
}

func (w *Window) anchor(block c.LogicalBlock) {
	w.Invalidate()
	w.start = block
	w.valid = true
}

func (w *Window) slot(block c.LogicalBlock) []byte {
	offset := uint(block-w.start) * kfs.SectorSize
	return w.data[offset : offset+kfs.SectorSize]
}

// Get returns the contents of `block`, fetching it if it isn't cached yet. The
// returned slice aliases the cache and is only good until the next call to a
// method on the window; use [Window.Patch] to modify it.
//
// If the fetch fails, the block stays unloaded and the error is returned. Other
// blocks in the window are unaffected.
func (w *Window) Get(block c.LogicalBlock) ([]byte, error) {
	if !w.Contains(block) {
		w.anchor(block)
	}

	index := int(block - w.start)
	buffer := w.slot(block)
	if w.loadedBlocks.Get(index) {
		return buffer, nil
	}

	err := w.fetch(block, buffer)
	if err != nil {
		return nil, errors.ErrIOFailed.WithMessagef(
			"failed to load block %d into cache: %s", block, err.Error())
	}
	w.loadedBlocks.Set(index, true)
	return buffer, nil
}

// Patch overwrites part of a cached block in place after the caller has written
// the same bytes to storage. If the block isn't loaded it does nothing and
// returns false; the next [Window.Get] will fetch the updated data anyway.
func (w *Window) Patch(block c.LogicalBlock, offset uint, data []byte) bool {
	if !w.Contains(block) || !w.loadedBlocks.Get(int(block-w.start)) {
		return false
	}
	if offset+uint(len(data)) > kfs.SectorSize {
		w.Invalidate()
		return false
	}
	copy(w.slot(block)[offset:], data)
	return true
}
