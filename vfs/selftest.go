package vfs

import (
	"bytes"

	"github.com/dargueta/kfs/errors"
)

// SelfTestSize is the number of bytes [VFS.SelfTest] writes.
const SelfTestSize = 4096

// selfTestPattern is the alphabet repeated to fill SelfTestSize bytes.
func selfTestPattern() []byte {
	data := make([]byte, SelfTestSize)
	for i := range data {
		data[i] = 'A' + byte(i%26)
	}
	return data
}

// SelfTest writes a 4 KiB pattern to `path`, closes it, opens it again and
// checks that the same bytes come back. The file is left in place.
func (v *VFS) SelfTest(path string) error {
	expected := selfTestPattern()

	file, err := v.OpenFile(path, OpenCreate|OpenTruncate)
	if err != nil {
		logger.Errorf("SelfTest=FAILED: can't open %s: %s", path, err)
		return err
	}
	written, err := file.Write(expected)
	err = errors.Append(err, file.Close())
	if err != nil {
		logger.Errorf("SelfTest=FAILED: write to %s failed: %s", path, err)
		return err
	}
	if written != len(expected) {
		logger.Errorf("SelfTest=FAILED: wrote %d of %d bytes", written, len(expected))
		return errors.ErrIOFailed.WithMessagef(
			"short write: %d of %d bytes", written, len(expected))
	}

	file, err = v.OpenFile(path, 0)
	if err != nil {
		logger.Errorf("SelfTest=FAILED: can't reopen %s: %s", path, err)
		return err
	}
	defer file.Close()

	actual := make([]byte, len(expected))
	read, err := file.Read(actual)
	if err != nil {
		logger.Errorf("SelfTest=FAILED: read from %s failed: %s", path, err)
		return err
	}
	if read != len(expected) || !bytes.Equal(expected, actual) {
		logger.Errorf("SelfTest=FAILED: read back %d bytes that don't match", read)
		return errors.ErrFileSystemCorrupted.WithMessagef(
			"%s: data read back doesn't match what was written", path)
	}

	logger.Info("SelfTest=PASS")
	return nil
}
