package bootfat

import (
	c "github.com/dargueta/bootfat/file_systems/common"
)

// BlockDevice is the only capability the FAT12 reader needs from a storage
// medium: the ability to read whole sectors addressed by LBA.
//
// Implementations must fill exactly `count * BytesPerSector()` bytes at the
// start of `out` or return an error. A short read is an error, never a partial
// success. Implementations must not cache; every call goes to the medium.
type BlockDevice interface {
	// BytesPerSector gives the size of a single sector on this device, in bytes.
	BytesPerSector() uint
	// ReadSectors reads `count` consecutive sectors starting at `lba` into `out`.
	// `count` must be at least 1 and `out` must hold at least
	// `count * BytesPerSector()` bytes.
	ReadSectors(lba c.LogicalBlock, count uint, out []byte) error
}
