// Package fat12 implements a read-only FAT12 driver for flat (root directory
// only) volumes such as 1.44 MB boot floppies.
//
// The same code serves a boot-time loader, where sectors come from BIOS disk
// services and the file lands in a fixed memory region, and hosted tools, where
// sectors come from an image file and the file lands in a growable buffer.
package fat12

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
)

// BootSectorSize is the size of the boot sector as read by the parser. Larger
// sectors are fine; everything past this is ignored.
const BootSectorSize = 512

// BootSignature is the value of the last two bytes of a bootable sector.
const BootSignature = 0xAA55

// ExtendedBootSignature marks the presence of the volume ID, label and system
// ID fields of the extended BPB.
const ExtendedBootSignature = 0x29

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// BootParameterBlock is the decoded contents of the first sector of a FAT12
// volume: the BIOS parameter block followed by the extended BPB.
type BootParameterBlock struct {
	JumpInstruction   [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntryCount    uint16
	TotalSectors      uint16
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	LargeSectorCount  uint32
	DriveNumber       uint8
	NTReserved        uint8
	ExBootSignature   uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	SystemID          [8]byte
	Signature         uint16
}

// ParseBootSector decodes the boot sector at the start of `raw`. Only the
// first [BootSectorSize] bytes are examined.
//
// The 0xAA55 signature is not checked here; see [BootParameterBlock.HasBootSignature].
// Decoding fails if the sector is too short or if the BPB describes a geometry
// that the rest of the driver can't do arithmetic with (zero sector size,
// cluster size or FAT size).
func ParseBootSector(raw []byte) (BootParameterBlock, error) {
	if len(raw) < BootSectorSize {
		return BootParameterBlock{}, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("boot sector must be %d bytes, got %d", BootSectorSize, len(raw)))
	}

	le := binary.LittleEndian
	bpb := BootParameterBlock{
		BytesPerSector:    le.Uint16(raw[11:13]),
		SectorsPerCluster: raw[13],
		ReservedSectors:   le.Uint16(raw[14:16]),
		FATCount:          raw[16],
		RootEntryCount:    le.Uint16(raw[17:19]),
		TotalSectors:      le.Uint16(raw[19:21]),
		MediaDescriptor:   raw[21],
		SectorsPerFAT:     le.Uint16(raw[22:24]),
		SectorsPerTrack:   le.Uint16(raw[24:26]),
		Heads:             le.Uint16(raw[26:28]),
		HiddenSectors:     le.Uint32(raw[28:32]),
		LargeSectorCount:  le.Uint32(raw[32:36]),
		DriveNumber:       raw[36],
		NTReserved:        raw[37],
		ExBootSignature:   raw[38],
		VolumeID:          le.Uint32(raw[39:43]),
		Signature:         le.Uint16(raw[510:512]),
	}
	copy(bpb.JumpInstruction[:], raw[0:3])
	copy(bpb.OEMName[:], raw[3:11])
	copy(bpb.VolumeLabel[:], raw[43:54])
	copy(bpb.SystemID[:], raw[54:62])

	if bpb.BytesPerSector == 0 {
		return bpb, bootfat.ErrInvalidFileSystem.WithMessage("BytesPerSector is 0")
	}
	if bpb.SectorsPerCluster == 0 {
		return bpb, bootfat.ErrInvalidFileSystem.WithMessage("SectorsPerCluster is 0")
	}
	if bpb.SectorsPerFAT == 0 {
		return bpb, bootfat.ErrInvalidFileSystem.WithMessage("SectorsPerFAT is 0")
	}
	return bpb, nil
}

// HasBootSignature returns true if the sector ended with 0x55 0xAA.
func (bpb *BootParameterBlock) HasBootSignature() bool {
	return bpb.Signature == BootSignature
}

// HasExtendedBPB returns true if the volume ID, label and system ID fields
// are meaningful.
func (bpb *BootParameterBlock) HasExtendedBPB() bool {
	return bpb.ExBootSignature == ExtendedBootSignature
}

// TotalSectorCount returns the number of sectors on the volume, falling back
// to the 32-bit count when the 16-bit field is 0.
func (bpb *BootParameterBlock) TotalSectorCount() uint {
	if bpb.TotalSectors != 0 {
		return uint(bpb.TotalSectors)
	}
	return uint(bpb.LargeSectorCount)
}

// Geometry is the volume layout derived from a [BootParameterBlock]. All LBAs
// are absolute sector indices on the medium.
type Geometry struct {
	BytesPerSector    uint
	SectorsPerCluster uint
	BytesPerCluster   uint
	// FATStart is the first sector of the first FAT. Only the first FAT is
	// ever read.
	FATStart      c.LogicalBlock
	SectorsPerFAT uint
	FATBytes      uint
	// RootDirStart is the first sector of the root directory, right after the
	// last copy of the FAT.
	RootDirStart   c.LogicalBlock
	RootDirSectors uint
	RootEntryCount uint
	// DataStart is the first sector of cluster 2.
	DataStart c.LogicalBlock
	// MaxCluster is the highest cluster number that can appear in a chain.
	MaxCluster ClusterID
}

// Geometry computes the volume layout. It never fails for a BPB returned by
// [ParseBootSector].
func (bpb *BootParameterBlock) Geometry() Geometry {
	bytesPerSector := uint(bpb.BytesPerSector)
	rootDirBytes := uint(bpb.RootEntryCount) * DirentSize

	// Round up on any remainder, but an exact fit doesn't get an extra sector.
	rootDirSectors := rootDirBytes / bytesPerSector
	if rootDirBytes%bytesPerSector != 0 {
		rootDirSectors++
	}

	fatStart := uint(bpb.ReservedSectors)
	rootDirStart := fatStart + uint(bpb.FATCount)*uint(bpb.SectorsPerFAT)
	dataStart := rootDirStart + rootDirSectors
	fatBytes := uint(bpb.SectorsPerFAT) * bytesPerSector

	// The highest cluster is limited both by the number of data sectors on the
	// volume and by the number of entries the FAT can hold.
	var dataClusters uint
	totalSectors := bpb.TotalSectorCount()
	if totalSectors > dataStart {
		dataClusters = (totalSectors - dataStart) / uint(bpb.SectorsPerCluster)
	}
	maxCluster := dataClusters + FirstDataCluster - 1
	fatEntries := fatBytes * 2 / 3
	if fatEntries < FirstDataCluster {
		maxCluster = FirstDataCluster - 1
	} else if maxCluster > fatEntries-1 {
		maxCluster = fatEntries - 1
	}
	if maxCluster >= BadCluster {
		maxCluster = BadCluster - 1
	}

	return Geometry{
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: uint(bpb.SectorsPerCluster),
		BytesPerCluster:   bytesPerSector * uint(bpb.SectorsPerCluster),
		FATStart:          c.LogicalBlock(fatStart),
		SectorsPerFAT:     uint(bpb.SectorsPerFAT),
		FATBytes:          fatBytes,
		RootDirStart:      c.LogicalBlock(rootDirStart),
		RootDirSectors:    rootDirSectors,
		RootEntryCount:    uint(bpb.RootEntryCount),
		DataStart:         c.LogicalBlock(dataStart),
		MaxCluster:        ClusterID(maxCluster),
	}
}

// ClusterToLBA returns the first sector of a data cluster. Cluster numbering
// starts at 2; clusters 0 and 1 have no data and are rejected.
func (g Geometry) ClusterToLBA(cluster ClusterID) (c.LogicalBlock, error) {
	if cluster < FirstDataCluster {
		return c.InvalidLogicalBlock, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cluster %d has no data sectors", cluster))
	}
	offset := (uint(cluster) - FirstDataCluster) * g.SectorsPerCluster
	return g.DataStart + c.LogicalBlock(offset), nil
}
