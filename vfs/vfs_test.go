package vfs_test

import (
	"testing"

	"github.com/dargueta/kfs/errors"
	"github.com/dargueta/kfs/file_systems/devfs"
	"github.com/dargueta/kfs/file_systems/fat"
	"github.com/dargueta/kfs/partition"
	kfstest "github.com/dargueta/kfs/testing"
	"github.com/dargueta/kfs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFATFilesystem(t *testing.T, fatType fat.FATType) *vfs.Filesystem {
	var part *partition.Partition
	if fatType == fat.FAT12 {
		_, disk := kfstest.NewFloppyDisk(t, 0)
		parts, err := partition.Detect(disk)
		require.NoError(t, err)
		part = parts[0]
	} else {
		_, disk := kfstest.NewATADisk(t, 0x80, fatType, partition.TypeFAT32LBA)
		parts, err := partition.Detect(disk)
		require.NoError(t, err)
		part = parts[0]
	}

	fs, err := vfs.NewFATFilesystem(part)
	require.NoError(t, err)
	return fs
}

func newDevfsFilesystem(t *testing.T) *vfs.Filesystem {
	dev := devfs.New()
	require.NoError(t, dev.RegisterStandardDevices(nil))
	return vfs.NewDevfsFilesystem(dev)
}

func TestNewFATFilesystem__Kind(t *testing.T) {
	expected := map[fat.FATType]vfs.Kind{
		fat.FAT12: vfs.FAT12,
		fat.FAT16: vfs.FAT16,
		fat.FAT32: vfs.FAT32,
	}
	for fatType, kind := range expected {
		t.Run(fatType.String(), func(t *testing.T) {
			fs := newFATFilesystem(t, fatType)
			assert.Equal(t, kind, fs.Kind)
			assert.True(t, fs.Kind.IsFAT())
			assert.Equal(t, fs.FAT().BytesPerCluster(), fs.BlockSize)
			assert.False(t, fs.Mounted)
			assert.Nil(t, fs.Devfs())
		})
	}
}

func TestNewFATFilesystem__Unformatted(t *testing.T) {
	_, disk := kfstest.NewATADisk(t, 0x80, fat.FAT16, partition.TypeFAT16)
	parts, err := partition.Detect(disk)
	require.NoError(t, err)
	parts[0].Offset += 10

	_, err = vfs.NewFATFilesystem(parts[0])
	assert.ErrorIs(t, err, errors.ErrInvalidFileSystem)
	_, err = vfs.NewFATFilesystem(nil)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

////////////////////////////////////////////////////////////////////////////////
// Mount table

func TestMount__Rejections(t *testing.T) {
	table := vfs.New()

	assert.ErrorIs(t, table.Mount(nil, "/"), errors.ErrInvalidArgument)
	assert.ErrorIs(t, table.Mount(&vfs.Filesystem{Kind: vfs.FAT16}, "/"), errors.ErrInvalidArgument)
	assert.ErrorIs(t, table.Mount(&vfs.Filesystem{Kind: vfs.EXT2}, "/"), errors.ErrNotSupported)

	dev := newDevfsFilesystem(t)
	assert.ErrorIs(t, table.Mount(dev, ""), errors.ErrInvalidArgument)
	assert.ErrorIs(t, table.Mount(dev, "dev"), errors.ErrInvalidArgument)

	require.NoError(t, table.Mount(dev, "/dev/"))
	assert.True(t, dev.Mounted)
	assert.ErrorIs(t, table.Mount(dev, "/dev"), errors.ErrBusy)
	assert.ErrorIs(t, table.Mount(dev, "/dev//"), errors.ErrBusy)

	mounts := table.Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, "/dev", mounts[0].Point)
}

func TestMount__TableFull(t *testing.T) {
	table := vfs.New()
	dev := newDevfsFilesystem(t)
	points := []string{"/a", "/b", "/c", "/d", "/e", "/f", "/g", "/h"}
	require.Len(t, points, vfs.MaxMounts)

	for _, point := range points {
		require.NoError(t, table.Mount(dev, point))
	}
	assert.ErrorIs(t, table.Mount(dev, "/i"), errors.ErrNoSpaceOnDevice)
}

func TestUmount__SwapsInLastEntry(t *testing.T) {
	table := vfs.New()
	a := newDevfsFilesystem(t)
	b := newDevfsFilesystem(t)
	c := newDevfsFilesystem(t)
	require.NoError(t, table.Mount(a, "/a"))
	require.NoError(t, table.Mount(b, "/b"))
	require.NoError(t, table.Mount(c, "/c"))

	require.NoError(t, table.Umount("/a/"))
	assert.False(t, a.Mounted)
	assert.True(t, c.Mounted)

	mounts := table.Mounts()
	require.Len(t, mounts, 2)
	assert.Equal(t, "/c", mounts[0].Point)
	assert.Same(t, c, mounts[0].Filesystem)
	assert.Equal(t, "/b", mounts[1].Point)

	assert.ErrorIs(t, table.Umount("/a"), errors.ErrNotFound)

	table.UmountAll()
	assert.Empty(t, table.Mounts())
	assert.False(t, b.Mounted)
	assert.False(t, c.Mounted)
}

func TestResolve__LongestPrefix(t *testing.T) {
	table := vfs.New()
	root := newDevfsFilesystem(t)
	data := newDevfsFilesystem(t)
	nested := newDevfsFilesystem(t)
	require.NoError(t, table.Mount(root, "/"))
	require.NoError(t, table.Mount(data, "/data"))
	require.NoError(t, table.Mount(nested, "/data/archive"))

	cases := []struct {
		path     string
		fs       *vfs.Filesystem
		relative string
	}{
		{"/data/x.txt", data, "/x.txt"},
		{"/data", data, "/"},
		{"/data/", data, "/"},
		{"/datafoo", root, "/datafoo"},
		{"/data/archive/2020/a.bin", nested, "/2020/a.bin"},
		{"/data/archived", data, "/archived"},
		{"/x.txt", root, "/x.txt"},
		{"/", root, "/"},
		{"", root, "/"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			fs, relative, err := table.Resolve(tc.path)
			require.NoError(t, err)
			assert.Same(t, tc.fs, fs)
			assert.Equal(t, tc.relative, relative)
		})
	}
}

func TestResolve__NoMount(t *testing.T) {
	table := vfs.New()
	_, _, err := table.Resolve("/x")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, table.Mount(newDevfsFilesystem(t), "/dev"))
	_, _, err = table.Resolve("/device")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = table.Open("/home/a.txt")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
