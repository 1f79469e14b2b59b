// Package common contains definitions of fundamental types used across
// multiple file system implementations.
package common

import "math"

// LogicalBlock is a sector number relative to the start of a volume.
type LogicalBlock uint32

const InvalidLogicalBlock = LogicalBlock(math.MaxUint32)
