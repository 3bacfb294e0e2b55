package blockdevice

import (
	"fmt"
	"io"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
)

// ImageController emulates the BIOS disk services on top of a raw disk image,
// so the boot-time code path can run on a host. It serves a single drive.
type ImageController struct {
	// FailNextReads makes the next N calls to ReadCHS fail as if the drive
	// reported an error. It is decremented on every injected failure.
	FailNextReads int
	// Reads and Resets count calls to ReadCHS and Reset respectively.
	Reads  int
	Resets int

	drive    uint8
	geometry Geometry
	image    io.ReaderAt
}

// NewImageController creates a controller that answers for `drive` with the
// contents of `image`.
func NewImageController(image io.ReaderAt, drive uint8, geometry Geometry) *ImageController {
	return &ImageController{
		drive:    drive,
		geometry: geometry,
		image:    image,
	}
}

// CHSToLBA is the inverse of [Geometry.LBAToCHS]. It fails if the address is
// not valid for the geometry.
func (g Geometry) CHSToLBA(address c.CHSAddress) (c.LogicalBlock, error) {
	if address.Sector < 1 || address.Sector > g.SectorsPerTrack {
		return c.InvalidLogicalBlock, fmt.Errorf(
			"sector %d not in range [1, %d]", address.Sector, g.SectorsPerTrack)
	}
	if address.Head >= g.Heads {
		return c.InvalidLogicalBlock, fmt.Errorf(
			"head %d not in range [0, %d)", address.Head, g.Heads)
	}

	track := address.Cylinder*g.Heads + address.Head
	return c.LogicalBlock(track*g.SectorsPerTrack + address.Sector - 1), nil
}

// ReadCHS implements [DiskController].
func (ctl *ImageController) ReadCHS(
	drive uint8, address c.CHSAddress, count uint, out []byte,
) error {
	ctl.Reads++

	if drive != ctl.drive {
		return bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no such drive 0x%02x", drive))
	}
	if ctl.FailNextReads > 0 {
		ctl.FailNextReads--
		return bootfat.ErrIOFailed.WithMessage("drive reported a read error")
	}

	lba, err := ctl.geometry.CHSToLBA(address)
	if err != nil {
		return bootfat.ErrInvalidArgument.Wrap(err)
	}

	size := int(count * ctl.geometry.BytesPerSector)
	offset := int64(lba) * int64(ctl.geometry.BytesPerSector)
	n, err := ctl.image.ReadAt(out[:size], offset)
	if n < size {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return bootfat.ErrIOFailed.Wrap(err)
	}
	return nil
}

// Reset implements [DiskController].
func (ctl *ImageController) Reset(drive uint8) error {
	ctl.Resets++
	if drive != ctl.drive {
		return bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no such drive 0x%02x", drive))
	}
	return nil
}

// DriveParameters implements [DiskController].
func (ctl *ImageController) DriveParameters(drive uint8) (Geometry, error) {
	if drive != ctl.drive {
		return Geometry{}, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no such drive 0x%02x", drive))
	}
	return ctl.geometry, nil
}
