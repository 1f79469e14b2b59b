package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// hardDiskSectors is the smallest FAT16 hard disk image `format` accepts with
// its default cluster size, partition table included.
const hardDiskSectors = 20480 + HardDiskPartitionOffset

func runApp(t *testing.T, args ...string) (string, error) {
	var output bytes.Buffer
	app := newApp()
	app.Writer = &output
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"kfs"}, args...))
	return output.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	output, err := runApp(t, args...)
	require.NoError(t, err, "kfs %v failed", args)
	return output
}

func newHardDiskImage(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "hd.img")
	mustRun(t, "format", "--type", "16", "--sectors", strconv.Itoa(hardDiskSectors), path)
	return path
}

func TestFormat__HardDisk(t *testing.T) {
	image := newHardDiskImage(t)
	info, err := os.Stat(image)
	require.NoError(t, err)
	assert.EqualValues(t, hardDiskSectors*512, info.Size())

	output := mustRun(t, "-i", image, "mounts")
	assert.Contains(t, output, "/dev")
	assert.Contains(t, output, "FAT16")

	output = mustRun(t, "-i", image, "volumes")
	assert.Contains(t, output, "hda1")
	assert.Contains(t, output, "0x04")
}

func TestFormat__Floppy(t *testing.T) {
	image := filepath.Join(t.TempDir(), "boot.img")
	mustRun(t, "--floppy", "format", "--type", "12", "--label", "BOOTDISK", image)

	info, err := os.Stat(image)
	require.NoError(t, err)
	assert.EqualValues(t, 1474560, info.Size())

	output := mustRun(t, "--floppy", "-i", image, "volumes")
	assert.Contains(t, output, "fd0p1")
	assert.Contains(t, output, "BOOTDISK")
	assert.Contains(t, output, "FAT12")
}

func TestFormat__BadType(t *testing.T) {
	image := filepath.Join(t.TempDir(), "bad.img")
	_, err := runApp(t, "format", "--type", "24", "--sectors", strconv.Itoa(hardDiskSectors), image)
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.NoFileExists(t, image)
}

func TestFormat__HardDiskTooSmall(t *testing.T) {
	image := filepath.Join(t.TempDir(), "tiny.img")
	_, err := runApp(t, "format", "--sectors", "63", image)
	assert.Error(t, err)
}

func TestFiles__PutCatRemove(t *testing.T) {
	image := newHardDiskImage(t)
	source := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(source, []byte("hello world\n"), 0o644))

	mustRun(t, "-i", image, "put", source, "/hello.txt")

	output := mustRun(t, "-i", image, "cat", "/HELLO.TXT")
	assert.Equal(t, "hello world\n", output, "file didn't survive closing the image")

	output = mustRun(t, "-i", image, "ls", "/")
	assert.Contains(t, output, "HELLO.TXT")
	assert.Contains(t, output, "12")

	mustRun(t, "-i", image, "rm", "/hello.txt")
	_, err := runApp(t, "-i", image, "cat", "/hello.txt")
	assert.Error(t, err)
}

func TestFiles__Directories(t *testing.T) {
	image := newHardDiskImage(t)

	_, err := runApp(t, "-i", image, "mkdir", "/a/b")
	assert.Error(t, err, "mkdir without -p needs the parent to exist")

	mustRun(t, "-i", image, "mkdir", "-p", "/a/b")
	output := mustRun(t, "-i", image, "ls", "/a")
	assert.Regexp(t, `(?m)^d\s+.*\bB$`, output)

	_, err = runApp(t, "-i", image, "rm", "/a")
	assert.Error(t, err, "non-empty directory was removed without -r")

	mustRun(t, "-i", image, "rm", "-r", "/a")
	output = mustRun(t, "-i", image, "ls")
	assert.NotRegexp(t, `(?m)\bA$`, output)
}

func TestFiles__ReadOnly(t *testing.T) {
	image := newHardDiskImage(t)
	source := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(source, []byte{1, 2, 3}, 0o644))

	_, err := runApp(t, "--read-only", "-i", image, "put", source, "/data.bin")
	assert.Error(t, err)

	_, err = runApp(t, "-i", image, "cat", "/data.bin")
	assert.Error(t, err, "file was created on a read-only volume")
}

func TestDevices(t *testing.T) {
	image := newHardDiskImage(t)
	output := mustRun(t, "-i", image, "devices")

	for _, name := range []string{"null", "zero", "tty", "tty0", "hda1"} {
		assert.Regexp(t, `(?m)^`+name+`\s`, output)
	}
}

func TestSelfTest(t *testing.T) {
	image := newHardDiskImage(t)
	output := mustRun(t, "-i", image, "selftest", "/selftest.bin")
	assert.Contains(t, output, "self test passed")
}

func TestNoDisks(t *testing.T) {
	_, err := runApp(t, "ls")
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
}

func TestWrongArgumentCount(t *testing.T) {
	image := newHardDiskImage(t)
	_, err := runApp(t, "-i", image, "put", "/only-one")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 argument(s), got 1")
}

func TestImage__CompressDecompress(t *testing.T) {
	directory := t.TempDir()
	raw := newHardDiskImage(t)
	compressed := filepath.Join(directory, "hd.img.kz")
	restored := filepath.Join(directory, "restored.img")

	mustRun(t, "image", "compress", raw, compressed)
	output := mustRun(t, "image", "decompress", compressed, restored)
	assert.Contains(t, output, "Decompressed image is 10518016 bytes.")

	original, err := os.ReadFile(raw)
	require.NoError(t, err)
	roundTripped, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, roundTripped), "decompressed image differs")

	info, err := os.Stat(compressed)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(original)/10), "an empty volume should compress well")
}

func TestFormat__Compressed(t *testing.T) {
	directory := t.TempDir()
	compressed := filepath.Join(directory, "boot.img.kz")
	raw := filepath.Join(directory, "boot.img")

	mustRun(t, "--floppy", "format", "--type", "12", "--compress", compressed)
	mustRun(t, "image", "decompress", compressed, raw)

	output := mustRun(t, "--floppy", "-i", raw, "mounts")
	assert.Contains(t, output, "FAT12")
}
