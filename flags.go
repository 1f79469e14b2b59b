package kfs

// Access modes for open(2). These match the values the kernel's syscall layer
// passes through unchanged, which is why they aren't the os.O_* constants.
const (
	O_RDONLY  = 0x0000
	O_WRONLY  = 0x0001
	O_RDWR    = 0x0002
	O_ACCMODE = O_RDONLY | O_WRONLY | O_RDWR
)

// Behavior flags for open(2).
const (
	O_CREAT  = 0x0040
	O_TRUNC  = 0x0200
	O_APPEND = 0x0400
)

// Whence values for lseek(2).
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// IsReadable returns true if the access mode in `flags` permits reading. Only
// a set O_WRONLY bit makes a descriptor write-only.
func IsReadable(flags int) bool {
	return flags&O_WRONLY == 0
}

// IsWritable returns true if the access mode in `flags` permits writing.
func IsWritable(flags int) bool {
	return flags&(O_WRONLY|O_RDWR) != 0
}
