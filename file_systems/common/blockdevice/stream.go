// Package blockdevice provides the two sector I/O backends the FAT12 reader
// runs on: a flat disk image read through byte offsets, and a BIOS-style disk
// addressed by cylinder/head/sector with retries.
//
// All block indices begin at 0.
package blockdevice

import (
	"fmt"
	"io"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
)

// DefaultBytesPerSector is the sector size assumed before a boot sector has
// been read. Every FAT12 floppy format uses it.
const DefaultBytesPerSector = 512

// StreamDevice is an abstraction layer around a stream to make it look like a
// block device, e.g. a disk image file that can only be read in multiples of
// its fundamental unit, a "sector".
//
// The exposed fields are for informational purposes only and should never be
// changed.
type StreamDevice struct {
	// StartOffset is an offset from the beginning of the stream, in bytes, that
	// will be considered the beginning of sector 0 for the device. This is
	// useful for skipping over headers of wrapped image formats.
	StartOffset    int64
	bytesPerSector uint
	stream         io.ReadSeeker
}

// NewStreamDevice creates a file-backed device with the given sector size.
func NewStreamDevice(stream io.ReadSeeker, bytesPerSector uint, startOffset int64) *StreamDevice {
	return &StreamDevice{
		StartOffset:    startOffset,
		bytesPerSector: bytesPerSector,
		stream:         stream,
	}
}

// NewSectorDevice is a constructor that creates a new StreamDevice with
// 512-byte sectors starting from an offset of 0.
func NewSectorDevice(stream io.ReadSeeker) *StreamDevice {
	return NewStreamDevice(stream, DefaultBytesPerSector, 0)
}

// BytesPerSector returns the size of a single sector, in bytes.
func (device *StreamDevice) BytesPerSector() uint {
	return device.bytesPerSector
}

// SectorToFileOffset converts a sector index into a byte offset into the
// backing stream.
func (device *StreamDevice) SectorToFileOffset(lba c.LogicalBlock) int64 {
	return device.StartOffset + int64(lba)*int64(device.bytesPerSector)
}

// ReadSectors reads `count` whole sectors starting from `lba` into `out`. A
// short read is reported as an I/O error.
func (device *StreamDevice) ReadSectors(lba c.LogicalBlock, count uint, out []byte) error {
	readSize, err := checkReadArgs(device.bytesPerSector, count, out)
	if err != nil {
		return err
	}

	_, err = device.stream.Seek(device.SectorToFileOffset(lba), io.SeekStart)
	if err != nil {
		return bootfat.ErrIOFailed.Wrap(err).WithMessage(
			fmt.Sprintf("seek to sector %d failed", lba))
	}

	_, err = io.ReadFull(device.stream, out[:readSize])
	if err != nil {
		return bootfat.ErrIOFailed.Wrap(err).WithMessage(
			fmt.Sprintf("reading %d sectors from sector %d", count, lba))
	}
	return nil
}

// checkReadArgs validates the arguments common to every ReadSectors
// implementation and returns the number of bytes the read will produce.
func checkReadArgs(bytesPerSector, count uint, out []byte) (uint, error) {
	if count == 0 {
		return 0, bootfat.ErrInvalidArgument.WithMessage("sector count must be at least 1")
	}

	readSize := count * bytesPerSector
	if uint(len(out)) < readSize {
		return 0, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer too small: %d sectors of %d bytes need %d bytes, got %d",
				count,
				bytesPerSector,
				readSize,
				len(out)))
	}
	return readSize, nil
}
