package compression

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/dargueta/kfs"
	"github.com/dargueta/kfs/errors"
)

// CompressImage compresses a raw disk image using RLE8, then gzip. It returns
// the number of RLE8 bytes fed to gzip.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	// Images are small enough that the best level costs nothing noticeable.
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	n, err := CompressRLE8(input, gzWriter)
	return n, errors.Append(err, gzWriter.Close())
}

// DecompressImage reverses [CompressImage]. It returns the size of the raw
// image.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, err
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressImageToBytes is [DecompressImage] into a new byte slice.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	_, err := DecompressImage(input, &buffer)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

////////////////////////////////////////////////////////////////////////////////
// Block devices

// sectorReader reads a block device front to back as a byte stream.
type sectorReader struct {
	device  kfs.BlockDevice
	next    uint32
	total   uint32
	pending []byte
	sector  [kfs.SectorSize]byte
}

func (r *sectorReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		if r.next >= r.total {
			return 0, io.EOF
		}
		if err := r.device.ReadSectors(r.next, 1, r.sector[:]); err != nil {
			return 0, err
		}
		r.next++
		r.pending = r.sector[:]
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// sectorWriter writes a byte stream to a block device, one sector at a time.
type sectorWriter struct {
	device   kfs.BlockDevice
	next     uint32
	total    uint32
	sector   [kfs.SectorSize]byte
	buffered int
}

func (w *sectorWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if w.next >= w.total {
			return written, errors.ErrNoSpaceOnDevice.WithMessagef(
				"image is larger than the %d-sector device", w.total)
		}

		n := copy(w.sector[w.buffered:], p)
		w.buffered += n
		written += n
		p = p[n:]

		if w.buffered == kfs.SectorSize {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// flush writes out a partially filled sector, padded with nulls.
func (w *sectorWriter) flush() error {
	if w.buffered == 0 {
		return nil
	}
	for i := w.buffered; i < kfs.SectorSize; i++ {
		w.sector[i] = 0
	}
	if err := w.device.WriteSectors(w.next, 1, w.sector[:]); err != nil {
		return err
	}
	w.next++
	w.buffered = 0
	return nil
}

// CompressDevice compresses the first `totalSectors` sectors of `device` the
// same way [CompressImage] compresses a raw image.
func CompressDevice(device kfs.BlockDevice, totalSectors uint32, output io.Writer) (int64, error) {
	return CompressImage(&sectorReader{device: device, total: totalSectors}, output)
}

// DecompressToDevice writes a compressed image to `device`, which has
// `totalSectors` sectors. An image that doesn't end on a sector boundary is
// padded with nulls. It returns the number of sectors written.
func DecompressToDevice(input io.Reader, device kfs.BlockDevice, totalSectors uint32) (uint32, error) {
	writer := &sectorWriter{device: device, total: totalSectors}
	_, err := DecompressImage(input, writer)
	if err != nil {
		return writer.next, err
	}
	err = writer.flush()
	return writer.next, err
}
