package testing

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"testing"

	"github.com/dargueta/bootfat/disks"
	"github.com/dargueta/bootfat/file_systems/common/blockdevice"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Create an image with the given number of blocks and bytes per block. It is
// guaranteed to either return a valid slice or fail the test and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// FAT12Image is a freshly formatted FAT12 volume held in memory. Tests add
// files to it and then mount it through one of the device constructors.
//
// The layout is computed here independently of the driver so that tests
// cross-check the driver's arithmetic rather than reuse it.
type FAT12Image struct {
	Geometry disks.DiskGeometry
	data     []byte
	t        *testing.T

	nextFreeCluster uint
	nextRootSlot    uint
}

type rawBootSector struct {
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
}

// RootEntry describes a directory entry to write with [FAT12Image.AddRootEntry].
// Name is the 11-byte on-disk form, e.g. "KERNEL  BIN".
type RootEntry struct {
	Name              string
	Attributes        uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	AccessedDate      uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	FirstCluster      uint16
	Size              uint32
}

type rawDirent struct {
	Name              [11]byte
	Attributes        uint8
	NTReserved        uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	AccessedDate      uint16
	FirstClusterHigh  uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	FirstCluster      uint16
	Size              uint32
}

// NewFAT12Image formats an empty volume using one of the predefined disk
// formats, e.g. "1440k".
func NewFAT12Image(t *testing.T, slug string) *FAT12Image {
	geometry, err := disks.GetPredefinedDiskGeometry(slug)
	require.NoError(t, err)
	return NewFAT12ImageFromGeometry(t, geometry)
}

// NewFAT12ImageFromGeometry formats an empty volume with a custom layout.
func NewFAT12ImageFromGeometry(t *testing.T, geometry disks.DiskGeometry) *FAT12Image {
	img := &FAT12Image{
		Geometry:        geometry,
		data:            make([]byte, geometry.TotalSizeBytes()),
		t:               t,
		nextFreeCluster: 2,
	}

	header := rawBootSector{
		JumpInstruction:   [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    uint16(geometry.BytesPerSector),
		SectorsPerCluster: uint8(geometry.SectorsPerCluster),
		ReservedSectors:   uint16(geometry.ReservedSectors),
		FATCount:          uint8(geometry.FATCount),
		RootEntryCount:    uint16(geometry.RootEntries),
		TotalSectors:      uint16(geometry.TotalSectors()),
		MediaDescriptor:   geometry.MediaDescriptor,
		SectorsPerFAT:     uint16(geometry.SectorsPerFAT),
		SectorsPerTrack:   uint16(geometry.SectorsPerTrack),
		Heads:             uint16(geometry.Heads),
		ExBootSignature:   0x29,
		VolumeID:          0x12345678,
	}
	copy(header.OEMName[:], "MSWIN4.1")
	copy(header.VolumeLabel[:], "NO NAME    ")
	copy(header.SystemID[:], "FAT12   ")

	writer := bytewriter.New(img.data[:geometry.BytesPerSector])
	err := binary.Write(writer, binary.LittleEndian, &header)
	require.NoError(t, err, "failed to write boot sector")
	img.SetBootSignature(true)

	img.SetFATEntry(0, 0xF00|uint(geometry.MediaDescriptor))
	img.SetFATEntry(1, 0xFFF)
	return img
}

// BytesPerCluster gives the size of one data cluster.
func (img *FAT12Image) BytesPerCluster() uint {
	return img.Geometry.BytesPerSector * img.Geometry.SectorsPerCluster
}

// RootDirStart gives the LBA of the first root directory sector.
func (img *FAT12Image) RootDirStart() uint {
	g := img.Geometry
	return g.ReservedSectors + g.FATCount*g.SectorsPerFAT
}

// RootDirSectors gives the size of the root directory, in sectors.
func (img *FAT12Image) RootDirSectors() uint {
	g := img.Geometry
	return (g.RootEntries*32 + g.BytesPerSector - 1) / g.BytesPerSector
}

// DataStart gives the LBA of cluster 2.
func (img *FAT12Image) DataStart() uint {
	return img.RootDirStart() + img.RootDirSectors()
}

// ClusterLBA gives the LBA of the first sector of `cluster`.
func (img *FAT12Image) ClusterLBA(cluster uint) uint {
	return img.DataStart() + (cluster-2)*img.Geometry.SectorsPerCluster
}

// SetBootSignature writes or clears the 0x55 0xAA marker at the end of the boot
// sector.
func (img *FAT12Image) SetBootSignature(present bool) {
	if present {
		img.data[510] = 0x55
		img.data[511] = 0xAA
	} else {
		img.data[510] = 0
		img.data[511] = 0
	}
}

// SetFATEntry writes a 12-bit value into every copy of the FAT, leaving the
// neighboring entry that shares a byte untouched.
func (img *FAT12Image) SetFATEntry(cluster, value uint) {
	g := img.Geometry
	for copyIndex := uint(0); copyIndex < g.FATCount; copyIndex++ {
		fatStart := (g.ReservedSectors + copyIndex*g.SectorsPerFAT) * g.BytesPerSector
		table := img.data[fatStart : fatStart+g.SectorsPerFAT*g.BytesPerSector]
		offset := cluster * 3 / 2

		require.Lessf(img.t, offset+1, uint(len(table)), "cluster %d is outside the FAT", cluster)
		if cluster%2 == 0 {
			table[offset] = byte(value)
			table[offset+1] = (table[offset+1] & 0xF0) | byte((value>>8)&0x0F)
		} else {
			table[offset] = (table[offset] & 0x0F) | byte((value&0x0F)<<4)
			table[offset+1] = byte(value >> 4)
		}
	}
}

// WriteCluster copies `contents` to the start of a data cluster.
func (img *FAT12Image) WriteCluster(cluster uint, contents []byte) {
	require.LessOrEqual(img.t, uint(len(contents)), img.BytesPerCluster(), "cluster overflow")
	start := img.ClusterLBA(cluster) * img.Geometry.BytesPerSector
	copy(img.data[start:start+img.BytesPerCluster()], contents)
}

// AddRootEntry writes `entry` into the next unused root directory slot and
// returns the slot index.
func (img *FAT12Image) AddRootEntry(entry RootEntry) uint {
	require.Lessf(
		img.t,
		img.nextRootSlot,
		img.Geometry.RootEntries,
		"root directory is full (%d entries)",
		img.Geometry.RootEntries)
	slot := img.nextRootSlot
	img.SetRootEntry(slot, entry)
	img.nextRootSlot++
	return slot
}

// SetRootEntry overwrites the root directory slot `slot`.
func (img *FAT12Image) SetRootEntry(slot uint, entry RootEntry) {
	require.Lenf(img.t, entry.Name, 11, "name %q isn't in 8.3 on-disk form", entry.Name)

	raw := rawDirent{
		Attributes:        entry.Attributes,
		CreatedTimeTenths: entry.CreatedTimeTenths,
		CreatedTime:       entry.CreatedTime,
		CreatedDate:       entry.CreatedDate,
		AccessedDate:      entry.AccessedDate,
		ModifiedTime:      entry.ModifiedTime,
		ModifiedDate:      entry.ModifiedDate,
		FirstCluster:      entry.FirstCluster,
		Size:              entry.Size,
	}
	copy(raw.Name[:], entry.Name)

	start := img.RootDirStart()*img.Geometry.BytesPerSector + slot*32
	writer := bytewriter.New(img.data[start : start+32])
	err := binary.Write(writer, binary.LittleEndian, &raw)
	require.NoError(img.t, err, "failed to write directory entry")
}

// AddFileWithChain stores `contents` in the given clusters, in order, links
// them in the FAT and adds a root directory entry for the file. The entry's
// size is len(contents).
func (img *FAT12Image) AddFileWithChain(name string, chain []uint, contents []byte) uint {
	bytesPerCluster := img.BytesPerCluster()
	require.GreaterOrEqualf(
		img.t,
		uint(len(chain))*bytesPerCluster,
		uint(len(contents)),
		"%d clusters can't hold %d bytes",
		len(chain),
		len(contents))

	for i, cluster := range chain {
		start := uint(i) * bytesPerCluster
		if start < uint(len(contents)) {
			end := start + bytesPerCluster
			if end > uint(len(contents)) {
				end = uint(len(contents))
			}
			img.WriteCluster(cluster, contents[start:end])
		}

		if i == len(chain)-1 {
			img.SetFATEntry(cluster, 0xFFF)
		} else {
			img.SetFATEntry(cluster, chain[i+1])
		}
		if cluster >= img.nextFreeCluster {
			img.nextFreeCluster = cluster + 1
		}
	}

	firstCluster := uint16(0)
	if len(chain) > 0 {
		firstCluster = uint16(chain[0])
	}
	return img.AddRootEntry(
		RootEntry{
			Name:         name,
			Attributes:   0x20,
			FirstCluster: firstCluster,
			Size:         uint32(len(contents)),
		})
}

// AddFile stores `contents` in consecutive free clusters and adds a root
// directory entry for it. Empty files get first cluster 0.
func (img *FAT12Image) AddFile(name string, contents []byte) uint {
	bytesPerCluster := img.BytesPerCluster()
	clusterCount := (uint(len(contents)) + bytesPerCluster - 1) / bytesPerCluster

	chain := make([]uint, clusterCount)
	for i := range chain {
		chain[i] = img.nextFreeCluster + uint(i)
	}
	return img.AddFileWithChain(name, chain, contents)
}

// Bytes returns the image itself. Changes to the slice change the image.
func (img *FAT12Image) Bytes() []byte {
	return img.data
}

// Stream returns a seekable stream over the image.
func (img *FAT12Image) Stream() io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(img.data)
}

// Device returns an LBA device reading from the image.
func (img *FAT12Image) Device() *blockdevice.StreamDevice {
	return blockdevice.NewStreamDevice(img.Stream(), img.Geometry.BytesPerSector, 0)
}

// CHSGeometry returns the track layout of the image for use with a CHS device.
func (img *FAT12Image) CHSGeometry() blockdevice.Geometry {
	return blockdevice.Geometry{
		BytesPerSector:  img.Geometry.BytesPerSector,
		SectorsPerTrack: img.Geometry.SectorsPerTrack,
		Heads:           img.Geometry.Heads,
	}
}

// Controller returns a simulated BIOS disk controller that serves the image as
// drive `drive`.
func (img *FAT12Image) Controller(drive uint8) *blockdevice.ImageController {
	return blockdevice.NewImageController(bytes.NewReader(img.data), drive, img.CHSGeometry())
}

// Sector returns a copy of one sector of the image.
func (img *FAT12Image) Sector(lba uint) []byte {
	bps := img.Geometry.BytesPerSector
	out := make([]byte, bps)
	copy(out, img.data[lba*bps:(lba+1)*bps])
	return out
}
