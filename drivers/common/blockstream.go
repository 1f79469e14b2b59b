package common

import (
	"io"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
)

// BlockStream is an abstraction layer around a stream to make it look like a
// block device, e.g. a disk image file that can only be read from or written to
// in whole sectors.
//
// The exposed fields are for informational purposes only and should never be
// changed.
type BlockStream struct {
	// TotalBlocks is the total number of sectors in this stream.
	TotalBlocks uint32
	// StartOffset is an offset from the beginning of the stream, in bytes, that
	// will be considered the beginning of sector 0 for the device. This is
	// useful for images with a header in front of the disk data.
	StartOffset int64
	stream      io.ReadWriteSeeker
}

// NewBlockStream wraps `stream` as a device of `totalBlocks` sectors.
func NewBlockStream(stream io.ReadWriteSeeker, totalBlocks uint32, startOffset int64) *BlockStream {
	return &BlockStream{
		TotalBlocks: totalBlocks,
		StartOffset: startOffset,
		stream:      stream,
	}
}

// NewBlockStreamFromSize is like [NewBlockStream], but sizes the device from the
// length of the stream.
func NewBlockStreamFromSize(stream io.ReadWriteSeeker) (*BlockStream, error) {
	totalBlocks, err := DetermineBlockCount(stream)
	if err != nil {
		return nil, err
	}
	return NewBlockStream(stream, totalBlocks, 0), nil
}

// DetermineBlockCount gives the total number of sectors in a stream, rounded
// down to the nearest sector.
func DetermineBlockCount(stream io.Seeker) (uint32, error) {
	offset, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.ErrIOFailed.Wrap(err)
	}
	return uint32(offset / kfs.SectorSize), nil
}

// BlockIDToFileOffset converts a sector number into a byte offset into the
// backing I/O stream.
func (device *BlockStream) BlockIDToFileOffset(lba uint32) (int64, error) {
	if lba >= device.TotalBlocks {
		return -1, errors.ErrInvalidArgument.WithMessagef(
			"invalid block ID %d: not in range [0, %d)", lba, device.TotalBlocks)
	}
	return device.StartOffset + int64(lba)*kfs.SectorSize, nil
}

// CheckIOBounds checks to see if `count` sectors can be read from or written to
// the block stream, starting at `lba`, using a buffer of `bufferLength` bytes.
func (device *BlockStream) CheckIOBounds(lba uint32, count uint, bufferLength int) error {
	if count == 0 {
		return errors.ErrInvalidArgument.WithMessage("transfer size must be nonzero")
	}
	if uint64(lba)+uint64(count) > uint64(device.TotalBlocks) {
		return errors.ErrInvalidArgument.WithMessagef(
			"block %d plus %d blocks of data extends past end of image (%d blocks)",
			lba,
			count,
			device.TotalBlocks)
	}
	if uint(bufferLength) < count*kfs.SectorSize {
		return errors.ErrInvalidArgument.WithMessagef(
			"buffer must hold %d sectors (%d B), got %d B",
			count,
			count*kfs.SectorSize,
			bufferLength)
	}
	return nil
}

func (device *BlockStream) seekToBlock(lba uint32) error {
	offset, err := device.BlockIDToFileOffset(lba)
	if err != nil {
		return err
	}
	_, err = device.stream.Seek(offset, io.SeekStart)
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// ReadSectors implements [kfs.BlockDevice].
func (device *BlockStream) ReadSectors(lba uint32, count uint, buffer []byte) error {
	count = kfs.ClampSectorCount(count)
	err := device.CheckIOBounds(lba, count, len(buffer))
	if err != nil {
		return err
	}

	err = device.seekToBlock(lba)
	if err != nil {
		return err
	}

	_, err = io.ReadFull(device.stream, buffer[:count*kfs.SectorSize])
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}

// WriteSectors implements [kfs.BlockDevice].
func (device *BlockStream) WriteSectors(lba uint32, count uint, data []byte) error {
	count = kfs.ClampSectorCount(count)
	err := device.CheckIOBounds(lba, count, len(data))
	if err != nil {
		return err
	}

	err = device.seekToBlock(lba)
	if err != nil {
		return err
	}

	_, err = device.stream.Write(data[:count*kfs.SectorSize])
	if err != nil {
		return errors.ErrIOFailed.Wrap(err)
	}
	return nil
}
