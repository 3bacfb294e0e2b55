package fat12_test

import (
	"errors"
	"testing"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
	"github.com/dargueta/bootfat/file_systems/common/blockdevice"
	"github.com/dargueta/bootfat/file_systems/fat12"
	diskotest "github.com/dargueta/bootfat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad__EndToEnd(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.AddFile("README  TXT", []byte("not the kernel"))
	kernel := diskotest.CreateRandomImage(1000, 1, t)
	img.AddFileWithChain("KERNEL  BIN", []uint{10, 11, 7}, kernel)

	fs, err := fat12.OpenImage(img.Stream(), fat12.Options{})
	require.NoError(t, err)

	entry, contents, err := fs.Load(shortName(t, "KERNEL  BIN"))
	require.NoError(t, err)
	assert.EqualValues(t, 10, entry.FirstCluster)
	assert.EqualValues(t, 1000, entry.Size)
	assert.Equal(t, kernel, contents, "contents must be cut to the file size")
}

func TestLoad__EmptyFile(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.AddFile("EMPTY   TXT", nil)

	device := diskotest.NewCountingDevice(img.Device())
	fs := mount(t, device, fat12.Options{})
	device.ResetCalls()

	_, contents, err := fs.Load(shortName(t, "EMPTY   TXT"))
	require.NoError(t, err)
	assert.Empty(t, contents)
	assert.Empty(t, device.Calls)
}

func TestLoad__ShortChainIsZeroFilled(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	cluster := diskotest.CreateRandomImage(512, 1, t)
	img.AddFileWithChain("KERNEL  BIN", []uint{2}, cluster)
	img.SetRootEntry(0, diskotest.RootEntry{Name: "KERNEL  BIN", FirstCluster: 2, Size: 2000})

	fs := mount(t, img.Device(), fat12.Options{})
	_, contents, err := fs.Load(shortName(t, "KERNEL  BIN"))
	require.NoError(t, err)
	require.Len(t, contents, 2000)
	assert.Equal(t, cluster, contents[:512])
	assert.Equal(t, make([]byte, 1488), contents[512:])
}

func TestLoad__NotFound(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.AddFile("KERNEL  BIN", []byte("kernel"))
	fs := mount(t, img.Device(), fat12.Options{})

	_, _, err := fs.Load(shortName(t, "MISSING BIN"))
	assert.ErrorIs(t, err, bootfat.ErrNotFound)
	assert.Equal(t, fat12.StageFindFile, fat12.FailedStage(err))
}

func TestLoad__ChainErrorsAreReadFailures(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.AddRootEntry(diskotest.RootEntry{Name: "KERNEL  BIN", FirstCluster: 2, Size: 2048})
	img.SetFATEntry(2, 3)
	img.SetFATEntry(3, 2)
	img.AddRootEntry(diskotest.RootEntry{Name: "BROKEN  BIN", FirstCluster: 4, Size: 1024})
	img.SetFATEntry(4, 0xFF3)

	fs := mount(t, img.Device(), fat12.Options{})

	_, _, err := fs.Load(shortName(t, "KERNEL  BIN"))
	assert.ErrorIs(t, err, bootfat.ErrLinkCycleDetected)
	assert.Equal(t, fat12.StageReadFile, fat12.FailedStage(err))

	_, _, err = fs.Load(shortName(t, "BROKEN  BIN"))
	assert.ErrorIs(t, err, bootfat.ErrFileSystemCorrupted)
	assert.Equal(t, fat12.StageReadFile, fat12.FailedStage(err))
}

func TestLoad__AllocationFailure(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.AddFile("BIG     BIN", diskotest.CreateRandomImage(512, 20, t))

	fs := mount(t, img.Device(), fat12.Options{MaxAllocation: 8192})
	_, _, err := fs.Load(shortName(t, "BIG     BIN"))
	assert.ErrorIs(t, err, bootfat.ErrNoMemory)
	assert.Equal(t, fat12.StageAllocate, fat12.FailedStage(err))
}

func TestOpen__StageOfEachFailure(t *testing.T) {
	tests := []struct {
		name          string
		failLBA       c.LogicalBlock
		expectedStage fat12.Stage
	}{
		{"boot sector", 0, fat12.StageBootSector},
		{"FAT", 1, fat12.StageFAT},
		{"last FAT sector", 9, fat12.StageFAT},
		{"root directory", 19, fat12.StageRootDirectory},
		{"last root directory sector", 32, fat12.StageRootDirectory},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			img := diskotest.NewFAT12Image(t, "1440k")
			device := diskotest.NewCountingDevice(img.Device())
			device.FailSectors[test.failLBA] = true

			_, err := fat12.Open(device, fat12.Options{})
			assert.ErrorIs(t, err, bootfat.ErrIOFailed)
			assert.Equal(t, test.expectedStage, fat12.FailedStage(err))
		})
	}
}

func TestOpen__SecondFATIsNeverRead(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	device := diskotest.NewCountingDevice(img.Device())
	for lba := c.LogicalBlock(10); lba < 19; lba++ {
		device.FailSectors[lba] = true
	}

	_, err := fat12.Open(device, fat12.Options{})
	assert.NoError(t, err)
}

func TestOpen__FATTooLarge(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	_, err := fat12.Open(img.Device(), fat12.Options{MaxAllocation: 1024})
	assert.ErrorIs(t, err, bootfat.ErrNoMemory)
	assert.Equal(t, fat12.StageFAT, fat12.FailedStage(err))
}

func TestOpenImage__LargeSectors(t *testing.T) {
	geometry := smallRootGeometry(64)
	geometry.BytesPerSector = 1024
	geometry.TotalDataTracks = 40
	img := diskotest.NewFAT12ImageFromGeometry(t, geometry)
	contents := diskotest.CreateRandomImage(1024, 2, t)
	img.AddFile("KERNEL  BIN", contents)

	fs, err := fat12.OpenImage(img.Stream(), fat12.Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 1024, fs.Geometry().BytesPerSector)

	_, loaded, err := fs.Load(shortName(t, "KERNEL  BIN"))
	require.NoError(t, err)
	assert.Equal(t, contents, loaded)
}

func TestOpenImage__Garbage(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "160k")
	copy(img.Bytes(), make([]byte, 4096))
	_, err := fat12.OpenImage(img.Stream(), fat12.Options{})
	assert.ErrorIs(t, err, bootfat.ErrInvalidFileSystem)
	assert.Equal(t, fat12.StageBootSector, fat12.FailedStage(err))
}

func TestLoadInto__OverCHSWithRetries(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	kernel := diskotest.CreateRandomImage(512, 5, t)
	img.AddFileWithChain("KERNEL  BIN", []uint{40, 41, 42, 2000, 2001}, kernel)

	controller := img.Controller(0)
	device, err := blockdevice.NewCHSDevice(controller, 0, img.CHSGeometry(), nil)
	require.NoError(t, err)

	fs := mount(t, device, fat12.Options{})
	controller.FailNextReads = 2

	region := make([]byte, 64*1024)
	entry, n, err := fs.LoadInto(shortName(t, "KERNEL  BIN"), region)
	require.NoError(t, err)
	assert.EqualValues(t, len(kernel), entry.Size)
	assert.Equal(t, len(kernel), n)
	assert.Equal(t, kernel, region[:n])
	assert.Equal(t, 2, controller.Resets)
}

func TestLoadInto__RegionTooSmall(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.AddFile("KERNEL  BIN", diskotest.CreateRandomImage(512, 3, t))
	fs := mount(t, img.Device(), fat12.Options{})

	_, n, err := fs.LoadInto(shortName(t, "KERNEL  BIN"), make([]byte, 1024))
	assert.ErrorIs(t, err, bootfat.ErrNoSpaceOnDevice)
	assert.Equal(t, fat12.StageReadFile, fat12.FailedStage(err))
	assert.Equal(t, 1024, n)
}

func TestLoadInto__NotFound(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	fs := mount(t, img.Device(), fat12.Options{})

	_, n, err := fs.LoadInto(shortName(t, "KERNEL  BIN"), make([]byte, 1024))
	assert.ErrorIs(t, err, bootfat.ErrNotFound)
	assert.Equal(t, fat12.StageFindFile, fat12.FailedStage(err))
	assert.Zero(t, n)
}

func TestFailedStage__OtherErrors(t *testing.T) {
	assert.Equal(t, fat12.Stage(0), fat12.FailedStage(errors.New("unrelated")))
	assert.Equal(t, fat12.Stage(0), fat12.FailedStage(nil))
}

func TestStage__String(t *testing.T) {
	assert.Equal(t, "root directory", fat12.StageRootDirectory.String())
	assert.Equal(t, "Stage(99)", fat12.Stage(99).String())
}
