package blockdevice

import (
	"fmt"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// DefaultReadAttempts is how many times a BIOS read is tried before giving up.
const DefaultReadAttempts = 3

// DiskController stands in for the BIOS disk services (INT 13h). At boot time
// it is backed by real interrupts; everywhere else by an emulation such as
// [ImageController].
type DiskController interface {
	// ReadCHS reads `count` sectors starting at the given address into `out`
	// (INT 13h, AH=02h).
	ReadCHS(drive uint8, address c.CHSAddress, count uint, out []byte) error
	// Reset resets the disk controller for the drive (INT 13h, AH=00h).
	Reset(drive uint8) error
	// DriveParameters reports the geometry of the drive (INT 13h, AH=08h).
	DriveParameters(drive uint8) (Geometry, error)
}

// Geometry is the part of the BPB needed to translate LBAs for a BIOS disk.
type Geometry struct {
	BytesPerSector  uint
	SectorsPerTrack uint
	Heads           uint
}

// LBAToCHS converts a logical block address to the cylinder/head/sector triple
// a BIOS disk expects.
func (g Geometry) LBAToCHS(lba c.LogicalBlock) c.CHSAddress {
	track := uint(lba) / g.SectorsPerTrack
	return c.CHSAddress{
		Cylinder: track / g.Heads,
		Head:     track % g.Heads,
		Sector:   uint(lba)%g.SectorsPerTrack + 1,
	}
}

// CHSDevice is a block device backed by BIOS-style disk services.
type CHSDevice struct {
	// Attempts is the maximum number of times a read is tried. The controller
	// is reset after every failed attempt.
	Attempts   int
	drive      uint8
	geometry   Geometry
	controller DiskController
	logger     *zap.SugaredLogger
}

// NewCHSDevice creates a device reading from `drive` through `controller`.
// `logger` may be nil.
func NewCHSDevice(
	controller DiskController, drive uint8, geometry Geometry, logger *zap.SugaredLogger,
) (*CHSDevice, error) {
	if geometry.BytesPerSector == 0 || geometry.SectorsPerTrack == 0 || geometry.Heads == 0 {
		return nil, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("disk geometry has a zero field: %+v", geometry))
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &CHSDevice{
		Attempts:   DefaultReadAttempts,
		drive:      drive,
		geometry:   geometry,
		controller: controller,
		logger:     logger,
	}, nil
}

// BytesPerSector returns the size of a single sector, in bytes.
func (device *CHSDevice) BytesPerSector() uint {
	return device.geometry.BytesPerSector
}

// Drive returns the BIOS drive number this device reads from.
func (device *CHSDevice) Drive() uint8 {
	return device.drive
}

// ReadSectors translates `lba` to CHS and reads `count` sectors, retrying with
// a controller reset after every failure. The returned error carries every
// attempt's failure.
func (device *CHSDevice) ReadSectors(lba c.LogicalBlock, count uint, out []byte) error {
	readSize, err := checkReadArgs(device.geometry.BytesPerSector, count, out)
	if err != nil {
		return err
	}

	address := device.geometry.LBAToCHS(lba)
	attempts := device.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var attemptErrors *multierror.Error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = device.controller.ReadCHS(device.drive, address, count, out[:readSize])
		if err == nil {
			return nil
		}

		attemptErrors = multierror.Append(attemptErrors, err)
		device.logger.Warnw(
			"disk read failed, resetting controller",
			"drive", device.drive,
			"lba", lba,
			"cylinder", address.Cylinder,
			"head", address.Head,
			"sector", address.Sector,
			"attempt", attempt,
			"error", err,
		)

		resetErr := device.controller.Reset(device.drive)
		if resetErr != nil {
			attemptErrors = multierror.Append(attemptErrors, resetErr)
		}
	}

	return bootfat.ErrIOFailed.Wrap(attemptErrors.ErrorOrNil()).WithMessage(
		fmt.Sprintf(
			"reading %d sectors at LBA %d (C=%d H=%d S=%d) failed after %d attempts",
			count,
			lba,
			address.Cylinder,
			address.Head,
			address.Sector,
			attempts))
}
