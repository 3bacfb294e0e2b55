package fat12_test

import (
	"testing"

	"github.com/dargueta/bootfat"
	c "github.com/dargueta/bootfat/file_systems/common"
	"github.com/dargueta/bootfat/disks"
	"github.com/dargueta/bootfat/file_systems/fat12"
	diskotest "github.com/dargueta/bootfat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallRootGeometry is a 1.44 MB floppy with a tiny root directory so that
// sector rounding is easy to exercise.
func smallRootGeometry(rootEntries uint) disks.DiskGeometry {
	return disks.DiskGeometry{
		Slug:              "test",
		BytesPerSector:    512,
		SectorsPerTrack:   18,
		TotalDataTracks:   80,
		Heads:             2,
		MediaDescriptor:   0xF0,
		ReservedSectors:   1,
		FATCount:          2,
		SectorsPerCluster: 1,
		RootEntries:       rootEntries,
		SectorsPerFAT:     9,
	}
}

func TestParseBootSector__144(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")

	bpb, err := fat12.ParseBootSector(img.Bytes())
	require.NoError(t, err)

	assert.EqualValues(t, 512, bpb.BytesPerSector)
	assert.EqualValues(t, 1, bpb.SectorsPerCluster)
	assert.EqualValues(t, 1, bpb.ReservedSectors)
	assert.EqualValues(t, 2, bpb.FATCount)
	assert.EqualValues(t, 224, bpb.RootEntryCount)
	assert.EqualValues(t, 2880, bpb.TotalSectors)
	assert.EqualValues(t, 0xF0, bpb.MediaDescriptor)
	assert.EqualValues(t, 9, bpb.SectorsPerFAT)
	assert.EqualValues(t, 18, bpb.SectorsPerTrack)
	assert.EqualValues(t, 2, bpb.Heads)
	assert.EqualValues(t, 0x12345678, bpb.VolumeID)
	assert.Equal(t, "MSWIN4.1", string(bpb.OEMName[:]))
	assert.Equal(t, "NO NAME    ", string(bpb.VolumeLabel[:]))
	assert.Equal(t, "FAT12   ", string(bpb.SystemID[:]))
	assert.True(t, bpb.HasBootSignature())
	assert.True(t, bpb.HasExtendedBPB())
	assert.EqualValues(t, 2880, bpb.TotalSectorCount())
}

func TestParseBootSector__LargeSectorCountFallback(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	raw := img.Bytes()
	// Move the sector count from the 16-bit field to the 32-bit one.
	raw[19], raw[20] = 0, 0
	raw[32], raw[33], raw[34], raw[35] = 0x40, 0x0B, 0, 0

	bpb, err := fat12.ParseBootSector(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 2880, bpb.TotalSectorCount())
}

func TestParseBootSector__MissingSignature(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	img.SetBootSignature(false)

	bpb, err := fat12.ParseBootSector(img.Bytes())
	require.NoError(t, err, "a missing signature must not prevent parsing")
	assert.False(t, bpb.HasBootSignature())
}

func TestParseBootSector__TooShort(t *testing.T) {
	_, err := fat12.ParseBootSector(make([]byte, 511))
	assert.ErrorIs(t, err, bootfat.ErrInvalidArgument)
}

func TestParseBootSector__ZeroFields(t *testing.T) {
	tests := []struct {
		name    string
		offsets []int
	}{
		{"BytesPerSector", []int{11, 12}},
		{"SectorsPerCluster", []int{13}},
		{"SectorsPerFAT", []int{22, 23}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			img := diskotest.NewFAT12Image(t, "1440k")
			raw := img.Bytes()
			for _, offset := range test.offsets {
				raw[offset] = 0
			}

			_, err := fat12.ParseBootSector(raw)
			assert.ErrorIs(t, err, bootfat.ErrInvalidFileSystem)
		})
	}
}

func TestGeometry__144(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	bpb, err := fat12.ParseBootSector(img.Bytes())
	require.NoError(t, err)

	g := bpb.Geometry()
	assert.EqualValues(t, 512, g.BytesPerCluster)
	assert.EqualValues(t, 1, g.FATStart)
	assert.EqualValues(t, 4608, g.FATBytes)
	assert.EqualValues(t, 19, g.RootDirStart)
	assert.EqualValues(t, 14, g.RootDirSectors)
	assert.EqualValues(t, 224, g.RootEntryCount)
	assert.EqualValues(t, 33, g.DataStart)
	assert.EqualValues(t, 2848, g.MaxCluster)

	// Cross-check against the image builder's independent arithmetic.
	assert.EqualValues(t, img.RootDirStart(), g.RootDirStart)
	assert.EqualValues(t, img.DataStart(), g.DataStart)
}

func TestGeometry__RootDirectoryRounding(t *testing.T) {
	tests := []struct {
		rootEntries     uint
		expectedSectors uint
	}{
		{16, 1},
		{17, 2},
		{32, 2},
		{224, 14},
		{225, 15},
	}

	for _, test := range tests {
		img := diskotest.NewFAT12ImageFromGeometry(t, smallRootGeometry(test.rootEntries))
		bpb, err := fat12.ParseBootSector(img.Bytes())
		require.NoError(t, err)

		g := bpb.Geometry()
		assert.EqualValuesf(
			t,
			test.expectedSectors,
			g.RootDirSectors,
			"wrong root directory size for %d entries",
			test.rootEntries)
		assert.EqualValues(t, 19+test.expectedSectors, g.DataStart)
	}
}

func TestGeometry__ClusterToLBA(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "1440k")
	bpb, err := fat12.ParseBootSector(img.Bytes())
	require.NoError(t, err)
	g := bpb.Geometry()

	lba, err := g.ClusterToLBA(2)
	require.NoError(t, err)
	assert.Equal(t, g.DataStart, lba, "cluster 2 must be the first data sector")

	lba, err = g.ClusterToLBA(3)
	require.NoError(t, err)
	assert.EqualValues(t, 34, lba)

	for _, cluster := range []fat12.ClusterID{0, 1} {
		lba, err = g.ClusterToLBA(cluster)
		assert.ErrorIsf(t, err, bootfat.ErrInvalidArgument, "cluster %d", cluster)
		assert.Equal(t, c.InvalidLogicalBlock, lba)
	}
}

func TestGeometry__ClusterToLBA__MultiSectorClusters(t *testing.T) {
	img := diskotest.NewFAT12Image(t, "720k")
	bpb, err := fat12.ParseBootSector(img.Bytes())
	require.NoError(t, err)
	g := bpb.Geometry()

	assert.EqualValues(t, 1024, g.BytesPerCluster)
	assert.EqualValues(t, 7, g.RootDirStart)
	assert.EqualValues(t, 14, g.DataStart)
	assert.EqualValues(t, 714, g.MaxCluster)

	lba, err := g.ClusterToLBA(5)
	require.NoError(t, err)
	assert.EqualValues(t, 20, lba)
	assert.EqualValues(t, img.ClusterLBA(5), lba)
}
