package testing

import (
	"fmt"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
)

// ReadCall records one call to [CountingDevice.ReadSectors].
type ReadCall struct {
	LBA   c.LogicalBlock
	Count uint
}

// CountingDevice wraps a block device and records every read made through it.
// Reads touching a sector listed in FailSectors fail without reaching the
// wrapped device.
type CountingDevice struct {
	Device      bootfat.BlockDevice
	Calls       []ReadCall
	FailSectors map[c.LogicalBlock]bool
}

var _ bootfat.BlockDevice = (*CountingDevice)(nil)

func NewCountingDevice(device bootfat.BlockDevice) *CountingDevice {
	return &CountingDevice{
		Device:      device,
		Calls:       []ReadCall{},
		FailSectors: map[c.LogicalBlock]bool{},
	}
}

func (d *CountingDevice) BytesPerSector() uint {
	return d.Device.BytesPerSector()
}

func (d *CountingDevice) ReadSectors(lba c.LogicalBlock, count uint, out []byte) error {
	d.Calls = append(d.Calls, ReadCall{LBA: lba, Count: count})
	for i := uint(0); i < count; i++ {
		if d.FailSectors[lba+c.LogicalBlock(i)] {
			return bootfat.ErrIOFailed.WithMessage(
				fmt.Sprintf("injected failure at LBA %d", lba+c.LogicalBlock(i)))
		}
	}
	return d.Device.ReadSectors(lba, count, out)
}

// SectorsRead returns the total number of sectors requested so far.
func (d *CountingDevice) SectorsRead() uint {
	total := uint(0)
	for _, call := range d.Calls {
		total += call.Count
	}
	return total
}

// ResetCalls forgets all recorded reads.
func (d *CountingDevice) ResetCalls() {
	d.Calls = []ReadCall{}
}
