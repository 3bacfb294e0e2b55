// Package common contains definitions of fundamental types shared by the block
// devices and the FAT12 reader.
package common

import "math"

// LogicalBlock is a zero-based sector index on a medium (an LBA).
type LogicalBlock uint32

const InvalidLogicalBlock = LogicalBlock(math.MaxUint32)

// CHSAddress is a cylinder/head/sector triple as used by legacy BIOS disk
// services. Sectors are numbered from 1; cylinders and heads from 0.
type CHSAddress struct {
	Cylinder uint
	Head     uint
	Sector   uint
}
