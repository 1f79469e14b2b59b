package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxRunPerGroup is the longest run one RLE8 group can hold: the byte twice,
// then up to 255 repeats.
const maxRunPerGroup = 257

type countingWriter struct {
	w     io.Writer
	total int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.total += int64(n)
	return n, err
}

// CompressRLE8 RLE8-encodes `input` into `output` until the input runs out.
// It returns the number of bytes written.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	out := &countingWriter{w: output}
	runs := NewRunReader(input)

	for {
		run, err := runs.Next()
		if errors.Is(err, io.EOF) {
			return out.total, nil
		} else if err != nil {
			return out.total, err
		}

		for run.RunLength >= 2 {
			group := run.RunLength
			if group > maxRunPerGroup {
				group = maxRunPerGroup
			}
			_, err := out.Write([]byte{run.Byte, run.Byte, byte(group - 2)})
			if err != nil {
				return out.total, err
			}
			run.RunLength -= group
		}

		if run.RunLength == 1 {
			if _, err := out.Write([]byte{run.Byte}); err != nil {
				return out.total, err
			}
		}
	}
}

// DecompressRLE8 decodes RLE8 data from `input` into `output`. It returns the
// number of decoded bytes written.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	out := &countingWriter{w: output}
	previous := -1

	for {
		current, err := source.ReadByte()
		if errors.Is(err, io.EOF) {
			return out.total, nil
		} else if err != nil {
			return out.total, fmt.Errorf("error reading input: %w", err)
		}

		var decoded []byte
		if int(current) == previous {
			repeats, err := source.ReadByte()
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf(
					"%w: missing repeat count after two %02x bytes",
					io.ErrUnexpectedEOF,
					current)
			}
			if err != nil {
				return out.total, fmt.Errorf("error reading input: %w", err)
			}

			// The first of the pair went out on the last iteration.
			decoded = bytes.Repeat([]byte{current}, int(repeats)+1)
			// A group is closed now. Without this, a run of 258+ bytes would
			// be mistaken for another pair.
			previous = -1
		} else {
			decoded = []byte{current}
			previous = int(current)
		}

		if _, err := out.Write(decoded); err != nil {
			return out.total, fmt.Errorf("failed to write to output: %w", err)
		}
	}
}
