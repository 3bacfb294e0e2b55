package fat12_test

import (
	"testing"
	"time"

	"github.com/dargueta/bootfat"
	"github.com/dargueta/bootfat/file_systems/fat12"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRawDirent(name string, attributes uint8, firstCluster uint16, size uint32) []byte {
	raw := make([]byte, fat12.DirentSize)
	copy(raw, name)
	raw[11] = attributes
	raw[26] = byte(firstCluster)
	raw[27] = byte(firstCluster >> 8)
	raw[28] = byte(size)
	raw[29] = byte(size >> 8)
	raw[30] = byte(size >> 16)
	raw[31] = byte(size >> 24)
	return raw
}

func TestParseDirectoryEntry(t *testing.T) {
	raw := makeRawDirent("KERNEL  BIN", fat12.AttrArchived|fat12.AttrReadOnly, 0x123, 0x00012345)
	// Modified 2024-03-15 13:45:30
	raw[22], raw[23] = 0xAF, 0x6D
	raw[24], raw[25] = 0x6F, 0x58

	entry, err := fat12.ParseDirectoryEntry(raw)
	require.NoError(t, err)

	assert.Equal(t, "KERNEL  BIN", entry.Name.String())
	assert.Equal(t, "KERNEL.BIN", entry.DisplayName())
	assert.EqualValues(t, 0x123, entry.FirstCluster)
	assert.EqualValues(t, 0x12345, entry.Size)
	assert.Equal(t, "R----A", entry.AttributeString())
	assert.True(t, entry.IsFile())
	assert.Equal(t, time.Date(2024, time.March, 15, 13, 45, 30, 0, time.UTC), entry.ModifiedAt())
}

func TestParseDirectoryEntry__TooShort(t *testing.T) {
	_, err := fat12.ParseDirectoryEntry(make([]byte, 31))
	assert.ErrorIs(t, err, bootfat.ErrInvalidArgument)
}

func TestDirectoryEntry__Kinds(t *testing.T) {
	tests := []struct {
		name          string
		raw           []byte
		free, deleted bool
		dir, label    bool
		file          bool
	}{
		{"free", make([]byte, 32), true, false, false, false, false},
		{"deleted", makeRawDirent("\xe5ERNEL  BIN", 0, 2, 10), false, true, false, false, false},
		{"directory", makeRawDirent("BOOT       ", fat12.AttrDirectory, 5, 0), false, false, true, false, false},
		{"label", makeRawDirent("MY DISK    ", fat12.AttrVolumeLabel, 0, 0), false, false, false, true, false},
		{"long name", makeRawDirent("Ak\x00e\x00r\x00n\x00e\x00", fat12.AttrLongName, 0, 0), false, false, false, true, false},
		{"file", makeRawDirent("README     ", 0, 3, 100), false, false, false, false, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entry, err := fat12.ParseDirectoryEntry(test.raw)
			require.NoError(t, err)
			assert.Equal(t, test.free, entry.IsFree(), "IsFree")
			assert.Equal(t, test.deleted, entry.IsDeleted(), "IsDeleted")
			assert.Equal(t, test.dir, entry.IsDir(), "IsDir")
			assert.Equal(t, test.label, entry.IsVolumeLabel(), "IsVolumeLabel")
			assert.Equal(t, test.file, entry.IsFile(), "IsFile")
		})
	}
}

func TestTimestampFromParts(t *testing.T) {
	// 2024-03-15, 13:45:30 plus 150 hundredths.
	stamp := fat12.TimestampFromParts(0x586F, 0x6DAF, 150)
	assert.Equal(
		t,
		time.Date(2024, time.March, 15, 13, 45, 31, int(500*time.Millisecond), time.UTC),
		stamp)
}

func TestDateFromInt__Epoch(t *testing.T) {
	assert.Equal(t, time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC), fat12.DateFromInt(0x0021))
}

func TestFilenameToBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"kernel.bin", "KERNEL  BIN"},
		{"KERNEL.BIN", "KERNEL  BIN"},
		{"readme", "README     "},
		{"a.b", "A       B  "},
		{"12345678.123", "12345678123"},
	}

	for _, test := range tests {
		name, err := fat12.FilenameToBytes(test.input)
		require.NoErrorf(t, err, "%q", test.input)
		assert.Equalf(t, test.expected, name.String(), "wrong conversion of %q", test.input)
	}
}

func TestFilenameToBytes__Invalid(t *testing.T) {
	for _, input := range []string{"", ".bin", "toolongname.txt", "kernel.long"} {
		_, err := fat12.FilenameToBytes(input)
		assert.ErrorIsf(t, err, bootfat.ErrInvalidArgument, "%q should be rejected", input)
	}
}

func TestBytesToFilename(t *testing.T) {
	var name fat12.ShortName
	copy(name[:], "README     ")
	assert.Equal(t, "README", fat12.BytesToFilename(name))

	copy(name[:], "kernel  bin")
	assert.Equal(t, "kernel.bin", fat12.BytesToFilename(name), "case must be preserved")
}

func TestParseShortName(t *testing.T) {
	name, err := fat12.ParseShortName("KERNEL  BIN")
	require.NoError(t, err)
	assert.Equal(t, "KERNEL  BIN", name.String())

	name, err = fat12.ParseShortName("kernel  bin")
	require.NoError(t, err)
	assert.Equal(t, "kernel  bin", name.String(), "no case folding")

	_, err = fat12.ParseShortName("KERNEL.BIN")
	assert.ErrorIs(t, err, bootfat.ErrInvalidArgument)
}
