package fat12

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
	"github.com/noxer/bytewriter"
	"go.uber.org/zap"
)

// DefaultMaxAllocation caps the size of any single buffer the driver allocates.
// It's far larger than anything a FAT12 volume can hold.
const DefaultMaxAllocation = 16 * 1024 * 1024

// Options configures a [Filesystem]. The zero value is ready to use.
type Options struct {
	// MaxAllocation is the largest buffer, in bytes, the driver may allocate for
	// the FAT, the root directory or a file. Exceeding it fails with
	// [bootfat.ErrNoMemory]. 0 means [DefaultMaxAllocation].
	MaxAllocation uint
	// RequireSignature rejects media whose boot sector doesn't end in 0xAA55.
	RequireSignature bool
	// Logger receives debug and progress messages. nil disables logging.
	Logger *zap.SugaredLogger
}

func (o *Options) maxAllocation() uint {
	if o.MaxAllocation == 0 {
		return DefaultMaxAllocation
	}
	return o.MaxAllocation
}

// Filesystem is a mounted FAT12 volume. It owns a single snapshot of the boot
// sector, the first FAT and the root directory, none of which change after
// loading, so files may be read concurrently if the device allows it.
type Filesystem struct {
	device   bootfat.BlockDevice
	bpb      BootParameterBlock
	geometry Geometry
	fat      Table
	rootDir  []DirectoryEntry
	options  Options
	logger   *zap.SugaredLogger
}

// New reads and parses the boot sector of `device`. The FAT and root directory
// are not loaded; call [Filesystem.LoadFAT] and [Filesystem.LoadRootDirectory]
// or use [Open] to do everything at once.
func New(device bootfat.BlockDevice, options Options) (*Filesystem, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	sectorSize := device.BytesPerSector()
	if sectorSize < BootSectorSize {
		return nil, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("device sectors are %d bytes, need at least %d", sectorSize, BootSectorSize))
	}

	raw := make([]byte, sectorSize)
	err := device.ReadSectors(0, 1, raw)
	if err != nil {
		return nil, err
	}

	bpb, err := ParseBootSector(raw)
	if err != nil {
		return nil, err
	}
	if uint(bpb.BytesPerSector) != sectorSize {
		return nil, bootfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"boot sector says sectors are %d bytes but the device uses %d",
				bpb.BytesPerSector,
				sectorSize))
	}
	if options.RequireSignature && !bpb.HasBootSignature() {
		return nil, bootfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("boot signature is 0x%04x, expected 0x%04x", bpb.Signature, BootSignature))
	}

	geometry := bpb.Geometry()
	logger.Debugw(
		"parsed boot sector",
		"bytesPerSector", geometry.BytesPerSector,
		"sectorsPerCluster", geometry.SectorsPerCluster,
		"fatStart", geometry.FATStart,
		"rootDirStart", geometry.RootDirStart,
		"dataStart", geometry.DataStart,
		"maxCluster", geometry.MaxCluster,
	)

	return &Filesystem{
		device:   device,
		bpb:      bpb,
		geometry: geometry,
		options:  options,
		logger:   logger,
	}, nil
}

// BootSector returns the parsed boot sector.
func (fs *Filesystem) BootSector() BootParameterBlock {
	return fs.bpb
}

// Geometry returns the volume layout derived from the boot sector.
func (fs *Filesystem) Geometry() Geometry {
	return fs.geometry
}

// FAT returns the loaded allocation table. It's empty until LoadFAT succeeds.
func (fs *Filesystem) FAT() Table {
	return fs.fat
}

// RootDirectory returns every slot of the root directory, including free and
// deleted ones. It's empty until LoadRootDirectory succeeds. The returned slice
// must not be modified.
func (fs *Filesystem) RootDirectory() []DirectoryEntry {
	return fs.rootDir
}

// allocate returns a zeroed buffer of `size` bytes, or ErrNoMemory if that would
// exceed the configured limit.
func (fs *Filesystem) allocate(size uint, what string) ([]byte, error) {
	limit := fs.options.maxAllocation()
	if size > limit {
		return nil, bootfat.ErrNoMemory.WithMessage(
			fmt.Sprintf("%s needs %d bytes, limit is %d", what, size, limit))
	}
	return make([]byte, size), nil
}

// LoadFAT reads the first FAT into memory. Later copies are never read.
func (fs *Filesystem) LoadFAT() error {
	buffer, err := fs.allocate(fs.geometry.FATBytes, "FAT")
	if err != nil {
		return err
	}

	err = fs.device.ReadSectors(fs.geometry.FATStart, fs.geometry.SectorsPerFAT, buffer)
	if err != nil {
		return err
	}

	fs.fat = NewTable(buffer)
	fs.logger.Debugw("loaded FAT", "bytes", len(buffer), "entries", fs.fat.EntryCount())
	return nil
}

// LoadRootDirectory reads the fixed-size root directory into memory. Exactly
// RootEntryCount entries are decoded; padding at the end of the last sector is
// ignored no matter what it contains.
func (fs *Filesystem) LoadRootDirectory() error {
	g := fs.geometry
	if g.RootDirSectors == 0 {
		fs.rootDir = []DirectoryEntry{}
		return nil
	}

	buffer, err := fs.allocate(g.RootDirSectors*g.BytesPerSector, "root directory")
	if err != nil {
		return err
	}

	err = fs.device.ReadSectors(g.RootDirStart, g.RootDirSectors, buffer)
	if err != nil {
		return err
	}

	entries := make([]DirectoryEntry, g.RootEntryCount)
	for i := range entries {
		offset := i * DirentSize
		entries[i], err = ParseDirectoryEntry(buffer[offset : offset+DirentSize])
		if err != nil {
			return err
		}
	}

	fs.rootDir = entries
	fs.logger.Debugw("loaded root directory", "sectors", g.RootDirSectors, "entries", len(entries))
	return nil
}

// FindFile returns the first root directory entry whose name matches `name`
// byte for byte. The caller supplies the name exactly as stored: uppercase,
// space padded, no dot.
func (fs *Filesystem) FindFile(name ShortName) (DirectoryEntry, bool) {
	for _, entry := range fs.rootDir {
		if entry.Name == name {
			return entry, true
		}
	}
	return DirectoryEntry{}, false
}

// clusterVisitor is called once per cluster of a chain, in chain order.
type clusterVisitor func(cluster ClusterID, lba c.LogicalBlock) error

// walkChain follows the chain starting at `first` until an end-of-chain marker.
//
// A chain starting with an end-of-chain marker or with cluster 0 is empty and
// causes no I/O. Links to clusters outside [2, MaxCluster] are reported as
// corruption, and visiting a cluster twice as a cycle.
func (fs *Filesystem) walkChain(first ClusterID, visit clusterVisitor) error {
	if first == FreeCluster || IsEndOfChain(first) {
		return nil
	}
	if fs.fat.Size() == 0 {
		return bootfat.ErrInvalidArgument.WithMessage("FAT has not been loaded")
	}

	visited := bitmap.New(int(fs.geometry.MaxCluster) + 1)
	previous := ClusterID(FreeCluster)
	cluster := first
	index := 0

	for !IsEndOfChain(cluster) {
		if cluster < FirstDataCluster || cluster > fs.geometry.MaxCluster {
			return bootfat.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"cluster %d followed by invalid cluster 0x%03x at index %d in chain from %d",
					previous,
					cluster,
					index,
					first))
		}
		if visited.Get(int(cluster)) {
			return bootfat.ErrLinkCycleDetected.WithMessage(
				fmt.Sprintf(
					"cluster %d revisited at index %d in chain from %d", cluster, index, first))
		}
		visited.Set(int(cluster), true)

		lba, err := fs.geometry.ClusterToLBA(cluster)
		if err != nil {
			return err
		}

		fs.logger.Debugw("visiting cluster", "cluster", cluster, "lba", lba, "index", index)
		err = visit(cluster, lba)
		if err != nil {
			return err
		}

		next, err := fs.fat.Entry(cluster)
		if err != nil {
			return err
		}

		previous = cluster
		cluster = next
		index++
	}
	return nil
}

// Chain returns every cluster in the chain beginning at `first`, in order. The
// list is empty for files with no data.
func (fs *Filesystem) Chain(first ClusterID) ([]ClusterID, error) {
	chain := []ClusterID{}
	err := fs.walkChain(first, func(cluster ClusterID, _ c.LogicalBlock) error {
		chain = append(chain, cluster)
		return nil
	})
	return chain, err
}

// ReadFile reads every cluster of the file's chain and returns them
// concatenated in chain order.
//
// The result is always a whole number of clusters and is NOT truncated to
// entry.Size; callers that want the exact contents slice it themselves. The
// first failed read aborts the walk.
func (fs *Filesystem) ReadFile(entry DirectoryEntry) ([]byte, error) {
	g := fs.geometry
	expectedClusters := (uint(entry.Size) + g.BytesPerCluster - 1) / g.BytesPerCluster

	buffer, err := fs.allocate(expectedClusters*g.BytesPerCluster, "file "+entry.Name.String())
	if err != nil {
		return nil, err
	}

	used := uint(0)
	err = fs.walkChain(entry.FirstCluster, func(_ ClusterID, lba c.LogicalBlock) error {
		if used+g.BytesPerCluster > uint(len(buffer)) {
			// The chain is longer than the size in the directory entry says.
			grown, err := fs.allocate(used+g.BytesPerCluster, "file "+entry.Name.String())
			if err != nil {
				return err
			}
			copy(grown, buffer[:used])
			buffer = grown
		}

		err := fs.device.ReadSectors(lba, g.SectorsPerCluster, buffer[used:])
		if err != nil {
			return err
		}
		used += g.BytesPerCluster
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buffer[:used], nil
}

// ReadFileInto reads every cluster of the file's chain into `dest`, which is a
// caller-owned region such as the load address of a kernel. It returns the
// number of bytes written, which like [Filesystem.ReadFile] is a whole number of
// clusters.
//
// The caller is responsible for making `dest` large enough. If it isn't, the
// read stops before the cluster that doesn't fit and fails with
// [bootfat.ErrNoSpaceOnDevice]; nothing is written past the end of `dest`.
func (fs *Filesystem) ReadFileInto(entry DirectoryEntry, dest []byte) (int, error) {
	g := fs.geometry
	writer := bytewriter.New(dest)
	clusterBuffer := make([]byte, g.BytesPerCluster)
	written := 0

	err := fs.walkChain(entry.FirstCluster, func(cluster ClusterID, lba c.LogicalBlock) error {
		if len(dest)-written < len(clusterBuffer) {
			return bootfat.ErrNoSpaceOnDevice.WithMessage(
				fmt.Sprintf(
					"cluster %d doesn't fit: %d of %d bytes of the load region used",
					cluster,
					written,
					len(dest)))
		}

		err := fs.device.ReadSectors(lba, g.SectorsPerCluster, clusterBuffer)
		if err != nil {
			return err
		}

		n, err := writer.Write(clusterBuffer)
		written += n
		if err != nil {
			return bootfat.ErrNoSpaceOnDevice.Wrap(err)
		}
		return nil
	})
	return written, err
}
