package fat12

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/bootfat"
)

// ClusterID is a cluster number, which in FAT12 is also the index of the
// cluster's entry in the FAT.
type ClusterID uint16

// Special values of a FAT12 entry.
const (
	// FreeCluster marks an unallocated cluster. In a directory entry's first
	// cluster field it means the file has no data.
	FreeCluster = 0x000
	// ReservedCluster is never a valid link.
	ReservedCluster = 0x001
	// FirstDataCluster is the number of the first cluster in the data area.
	FirstDataCluster = 0x002
	// BadCluster marks a cluster with unusable sectors. 0xFF0 through 0xFF6
	// are reserved and treated the same way.
	BadCluster = 0xFF7
	// EndOfChain is the lowest of the values 0xFF8-0xFFF that terminate a
	// cluster chain.
	EndOfChain = 0xFF8
	// EntryMask covers the twelve meaningful bits of an entry.
	EntryMask = 0xFFF
)

// IsEndOfChain returns true if `value` terminates a cluster chain.
func IsEndOfChain(value ClusterID) bool {
	return value >= EndOfChain
}

// Table is an in-memory copy of a file allocation table: consecutive 12-bit
// entries packed little-endian, two entries to every three bytes. It is never
// modified after loading.
type Table struct {
	data []byte
}

// NewTable wraps raw FAT bytes. The slice is used directly, not copied.
func NewTable(data []byte) Table {
	return Table{data: data}
}

// Size returns the size of the table, in bytes.
func (t Table) Size() int {
	return len(t.data)
}

// EntryCount returns the number of complete entries the table holds.
func (t Table) EntryCount() uint {
	return uint(len(t.data)) * 2 / 3
}

// Entry decodes the FAT entry for `cluster`, i.e. the number of the cluster
// that follows it in its chain.
//
// Entry i lives in the 16-bit little-endian word at byte i*3/2. Even entries
// are the low 12 bits of that word, odd entries the high 12 bits.
func (t Table) Entry(cluster ClusterID) (ClusterID, error) {
	offset := uint(cluster) * 3 / 2
	if offset+1 >= uint(len(t.data)) {
		return 0, bootfat.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"cluster %d is past the end of the %d-byte FAT", cluster, len(t.data)))
	}

	word := binary.LittleEndian.Uint16(t.data[offset : offset+2])
	if cluster%2 == 0 {
		return ClusterID(word & EntryMask), nil
	}
	return ClusterID(word >> 4), nil
}
