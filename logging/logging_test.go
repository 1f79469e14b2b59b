package logging

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level log.Level) *bytes.Buffer {
	buffer := &bytes.Buffer{}
	SetOutput(buffer)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(bytes.NewBuffer(nil))
		SetLevel(log.WarnLevel)
	})
	return buffer
}

func TestFormatter__InfoHasNoLevel(t *testing.T) {
	buffer := captureOutput(t, log.InfoLevel)
	For(FAT).Info("Mounted FAT16 volume")
	assert.Equal(t, "[FAT] Mounted FAT16 volume\n", buffer.String())
}

func TestFormatter__WarnHasLevel(t *testing.T) {
	buffer := captureOutput(t, log.InfoLevel)
	For(VFS).Warnf("Mount point %s already in use", "/data")
	assert.Equal(t, "[VFS] WARN: Mount point /data already in use\n", buffer.String())
}

func TestFormatter__ExtraFields(t *testing.T) {
	buffer := captureOutput(t, log.DebugLevel)
	For(FD).WithField("fd", 3).Debug("closed")
	assert.Equal(t, "[FD] DEBUG: closed fd=3\n", buffer.String())
}

func TestLevelFiltering(t *testing.T) {
	buffer := captureOutput(t, log.WarnLevel)
	For(DISK).Info("should not appear")
	For(DISK).Debug("should not appear either")
	assert.Empty(t, buffer.String())

	For(DISK).Error("read failed")
	assert.Equal(t, "[DISK] ERROR: read failed\n", buffer.String())
}

func TestSetLevelFromString(t *testing.T) {
	captureOutput(t, log.WarnLevel)
	require.NoError(t, SetLevelFromString("debug"))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
	assert.Error(t, SetLevelFromString("loud"))
}
