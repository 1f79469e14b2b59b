// Package logging provides the leveled, prefixed console loggers used by every
// subsystem. Lines look like the kernel's own console output:
//
//	[FAT] Mounted FAT16 volume
//	[VFS] WARN: Mount point /data already in use
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Subsystem prefixes.
const (
	FAT   = "FAT"
	VFS   = "VFS"
	FD    = "FD"
	DEVFS = "DEVFS"
	DISK  = "DISK"
	PART  = "PART"
	SCAN  = "FS"
)

const subsystemField = "subsystem"

var logger = newLogger(os.Stderr)

func newLogger(out io.Writer) *log.Logger {
	l := log.New()
	l.SetOutput(out)
	l.SetFormatter(new(prefixFormatter))
	l.SetLevel(log.WarnLevel)
	return l
}

// prefixFormatter renders entries the way the kernel console does: the
// subsystem tag in brackets, then the level for anything that isn't Info.
// Other fields are appended as key=value pairs.
type prefixFormatter struct{}

func (f *prefixFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder

	if subsystem, ok := entry.Data[subsystemField]; ok {
		fmt.Fprintf(&b, "[%v] ", subsystem)
	}
	if entry.Level != log.InfoLevel {
		b.WriteString(strings.ToUpper(levelName(entry.Level)))
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	for key, value := range entry.Data {
		if key == subsystemField {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", key, value)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func levelName(level log.Level) string {
	if level == log.WarnLevel {
		return "warn"
	}
	return level.String()
}

// For returns the logger for a subsystem.
func For(subsystem string) *log.Entry {
	return logger.WithField(subsystemField, subsystem)
}

// SetLevel sets the minimum level logged by every subsystem.
func SetLevel(level log.Level) {
	logger.SetLevel(level)
}

// SetLevelFromString parses a level name like "debug" or "warn" and applies it.
func SetLevelFromString(name string) error {
	level, err := log.ParseLevel(name)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

// SetOutput redirects every subsystem's log output.
func SetOutput(out io.Writer) {
	logger.SetOutput(out)
}
