package fat12

import (
	"errors"
	"fmt"
	"io"

	"github.com/dargueta/bootfat"
	"github.com/dargueta/bootfat/file_systems/common/blockdevice"
)

// Stage identifies a step of loading a file from a volume. Steps run in the
// order declared here and the first failure ends the load.
type Stage int

const (
	StageBootSector Stage = iota + 1
	StageFAT
	StageRootDirectory
	StageFindFile
	StageAllocate
	StageReadFile
)

func (s Stage) String() string {
	switch s {
	case StageBootSector:
		return "boot sector"
	case StageFAT:
		return "FAT"
	case StageRootDirectory:
		return "root directory"
	case StageFindFile:
		return "find file"
	case StageAllocate:
		return "allocate"
	case StageReadFile:
		return "read file"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// StageError records which step of a load failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage a load failed at, or 0 if `err` didn't come
// from a load.
func FailedStage(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return 0
}

func stageFailed(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Open mounts the volume on `device`: it parses the boot sector, then loads the
// FAT, then the root directory, stopping at the first failure. Errors are
// [*StageError].
func Open(device bootfat.BlockDevice, options Options) (*Filesystem, error) {
	fs, err := New(device, options)
	if err != nil {
		return nil, stageFailed(StageBootSector, err)
	}
	if err = fs.LoadFAT(); err != nil {
		return nil, stageFailed(StageFAT, err)
	}
	if err = fs.LoadRootDirectory(); err != nil {
		return nil, stageFailed(StageRootDirectory, err)
	}
	return fs, nil
}

// OpenImage mounts a flat disk image. The sector size is taken from the boot
// sector so images with sectors larger than 512 bytes work too.
func OpenImage(stream io.ReadSeeker, options Options) (*Filesystem, error) {
	probe := blockdevice.NewSectorDevice(stream)
	raw := make([]byte, BootSectorSize)
	if err := probe.ReadSectors(0, 1, raw); err != nil {
		return nil, stageFailed(StageBootSector, err)
	}

	bpb, err := ParseBootSector(raw)
	if err != nil {
		return nil, stageFailed(StageBootSector, err)
	}
	if bpb.BytesPerSector < BootSectorSize {
		return nil, stageFailed(
			StageBootSector,
			bootfat.ErrInvalidFileSystem.WithMessage(
				fmt.Sprintf("unsupported sector size %d", bpb.BytesPerSector)))
	}

	device := blockdevice.NewStreamDevice(stream, uint(bpb.BytesPerSector), 0)
	return Open(device, options)
}

// lookup finds `name` in the root directory or fails with ErrNotFound.
func (fs *Filesystem) lookup(name ShortName) (DirectoryEntry, error) {
	entry, ok := fs.FindFile(name)
	if !ok {
		return entry, stageFailed(
			StageFindFile, bootfat.ErrNotFound.WithMessage(fmt.Sprintf("%q", name.String())))
	}
	return entry, nil
}

// Load finds `name` in the root directory and reads it. The returned contents
// are exactly entry.Size bytes long: cluster slack is cut off, and if the chain
// ends before the size is reached the rest is zero-filled.
func (fs *Filesystem) Load(name ShortName) (DirectoryEntry, []byte, error) {
	entry, err := fs.lookup(name)
	if err != nil {
		return entry, nil, err
	}

	contents, err := fs.allocate(uint(entry.Size), "file "+name.String())
	if err != nil {
		return entry, nil, stageFailed(StageAllocate, err)
	}

	clusters, err := fs.ReadFile(entry)
	if err != nil {
		if errors.Is(err, bootfat.ErrNoMemory) {
			return entry, nil, stageFailed(StageAllocate, err)
		}
		return entry, nil, stageFailed(StageReadFile, err)
	}

	if uint(len(clusters)) < uint(entry.Size) {
		fs.logger.Warnw(
			"cluster chain is shorter than the file size",
			"file", name.String(),
			"size", entry.Size,
			"chainBytes", len(clusters),
		)
	}
	copy(contents, clusters)
	return entry, contents, nil
}

// LoadInto finds `name` in the root directory and reads its clusters into the
// caller-owned region `dest`. It returns the entry and the number of bytes
// written.
func (fs *Filesystem) LoadInto(name ShortName, dest []byte) (DirectoryEntry, int, error) {
	entry, err := fs.lookup(name)
	if err != nil {
		return entry, 0, err
	}

	n, err := fs.ReadFileInto(entry, dest)
	if err != nil {
		return entry, n, stageFailed(StageReadFile, err)
	}
	return entry, n, nil
}
