package fat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryEntry__Offsets(t *testing.T) {
	entry := DirectoryEntry{
		Name:              ToShortName("kernel.bin"),
		Attributes:        AttrArchive | AttrReadOnly,
		CreatedTimeTenths: 0x11,
		CreatedTime:       0x2233,
		CreatedDate:       0x4455,
		AccessedDate:      0x6677,
		FirstClusterHigh:  0x8899,
		ModifiedTime:      0xAABB,
		ModifiedDate:      0xCCDD,
		FirstClusterLow:   0xEEFF,
		Size:              0x01020304,
	}

	raw := entry.Bytes()
	require.Len(t, raw, DirentSize)

	assert.Equal(t, "KERNEL  BIN", string(raw[0:11]))
	assert.EqualValues(t, 0x21, raw[11])
	assert.EqualValues(t, 0x11, raw[13])
	assert.Equal(t, []byte{0x33, 0x22}, raw[14:16])
	assert.Equal(t, []byte{0x55, 0x44}, raw[16:18])
	assert.Equal(t, []byte{0x77, 0x66}, raw[18:20])
	assert.Equal(t, []byte{0x99, 0x88}, raw[20:22])
	assert.Equal(t, []byte{0xBB, 0xAA}, raw[22:24])
	assert.Equal(t, []byte{0xDD, 0xCC}, raw[24:26])
	assert.Equal(t, []byte{0xFF, 0xEE}, raw[26:28])
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, raw[28:32])

	decoded := ParseDirectoryEntry(raw)
	assert.Equal(t, entry, decoded)
	assert.EqualValues(t, 0x8899EEFF, decoded.FirstCluster())
}

func TestDirectoryEntry__SetFirstCluster(t *testing.T) {
	var entry DirectoryEntry
	entry.SetFirstCluster(0x0ABCDEF1)
	assert.EqualValues(t, 0xDEF1, entry.FirstClusterLow)
	assert.EqualValues(t, 0x0ABC, entry.FirstClusterHigh)
	assert.EqualValues(t, 0x0ABCDEF1, entry.FirstCluster())
}

func TestDirectoryEntry__Slot(t *testing.T) {
	var free DirectoryEntry
	assert.Equal(t, SlotFree, free.Slot())
	assert.True(t, SlotFree.IsReusable())

	deleted := DirectoryEntry{Name: ToShortName("gone.txt"), Attributes: AttrArchive}
	deleted.Name[0] = 0xE5
	assert.Equal(t, SlotDeleted, deleted.Slot())
	assert.True(t, SlotDeleted.IsReusable())

	longName := DirectoryEntry{Name: ToShortName("Ab"), Attributes: AttrLongName}
	assert.Equal(t, SlotLongName, longName.Slot())
	assert.False(t, SlotLongName.IsReusable())

	occupied := DirectoryEntry{Name: ToShortName("here.txt"), Attributes: AttrArchive}
	assert.Equal(t, SlotOccupied, occupied.Slot())
	assert.False(t, SlotOccupied.IsReusable())
}

func TestDirectoryEntry__Flags(t *testing.T) {
	dir := DirectoryEntry{Name: ToShortName("sub"), Attributes: AttrDirectory}
	assert.True(t, dir.IsDirectory())
	assert.False(t, dir.IsVolumeLabel())
	assert.False(t, dir.IsDotEntry())

	label := DirectoryEntry{Name: ToShortName("LABEL"), Attributes: AttrVolumeID}
	assert.True(t, label.IsVolumeLabel())

	dot := DirectoryEntry{Name: ToShortName("."), Attributes: AttrDirectory}
	dotDot := DirectoryEntry{Name: ToShortName(".."), Attributes: AttrDirectory}
	assert.True(t, dot.IsDotEntry())
	assert.True(t, dotDot.IsDotEntry())
}

func TestTimestamps__RoundTrip(t *testing.T) {
	original := time.Date(2023, time.November, 5, 13, 47, 31, 250*int(time.Millisecond), time.UTC)
	date, clock, tenths := TimestampToParts(original)

	decoded := TimestampFromParts(date, clock, tenths)
	assert.Equal(t, original.Truncate(10*time.Millisecond), decoded)
	assert.Equal(t, time.Date(2023, time.November, 5, 0, 0, 0, 0, time.UTC), DateFromInt(date))
}

func TestTimestamps__BeforeEpoch(t *testing.T) {
	date, clock, tenths := TimestampToParts(time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.EqualValues(t, 1<<5|1, date)
	assert.Zero(t, clock)
	assert.Zero(t, tenths)
	assert.Equal(t, fatEpoch, TimestampFromParts(0, 0, 0))
}

func TestDirectoryEntry__Stamp(t *testing.T) {
	now := time.Date(2001, time.February, 3, 4, 5, 6, 0, time.UTC)
	var entry DirectoryEntry
	entry.Stamp(now)
	assert.Equal(t, now, entry.CreatedAt())
	assert.Equal(t, now, entry.ModifiedAt())
}
