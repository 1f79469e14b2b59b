package compression

import (
	"bufio"
	"io"
)

// ByteRun is a run of one byte value.
type ByteRun struct {
	Byte byte
	// RunLength is the number of times the byte occurs, not the number of
	// repeats. It's 0 only for [InvalidRLERun].
	RunLength int
}

// InvalidRLERun is what [RunReader.Next] returns along with an error.
var InvalidRLERun = ByteRun{}

// RunReader splits a byte stream into runs of identical bytes.
type RunReader struct {
	rd *bufio.Reader
}

func NewRunReader(rd io.Reader) *RunReader {
	return &RunReader{rd: bufio.NewReader(rd)}
}

// Next returns the next run in the stream. At the end of the stream it returns
// [InvalidRLERun] and io.EOF.
func (r *RunReader) Next() (ByteRun, error) {
	first, err := r.rd.ReadByte()
	if err != nil {
		return InvalidRLERun, err
	}

	run := ByteRun{Byte: first, RunLength: 1}
	for {
		next, err := r.rd.ReadByte()
		if err == io.EOF {
			return run, nil
		} else if err != nil {
			return InvalidRLERun, err
		}

		if next != first {
			r.rd.UnreadByte()
			return run, nil
		}
		run.RunLength++
	}
}
