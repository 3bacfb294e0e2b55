package fat12

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/dargueta/bootfat"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings.
	AttrHidden = 2

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system and must not be moved because a boot loader may have hard-coded
	// pointers to the file.
	AttrSystem = 4

	// AttrVolumeLabel is an attribute flag that marks a directory entry as holding the
	// volume label. It must reside in the root directory, and there must be only one.
	AttrVolumeLabel = 8

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	// Subdirectories are listed but never entered by this driver.
	AttrDirectory = 16

	// AttrArchived is an attribute flag set whenever the directory entry is created or
	// modified. Backup tools use it to decide what needs saving.
	AttrArchived = 32

	// AttrLongName is the combination of flags that marks a VFAT long file name
	// fragment. These entries are never matched as 8.3 names.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// DeletedMarker is the first byte of the name of a deleted directory entry.
const DeletedMarker = 0xE5

// NameLength is the length of an 8.3 name on disk: eight bytes of stem and three
// of extension, both padded with spaces.
const NameLength = 11

// ShortName is the on-disk form of an 8.3 file name.
type ShortName [NameLength]byte

// String returns the name exactly as stored, padding included.
func (n ShortName) String() string {
	return string(n[:])
}

// DirectoryEntry is a decoded 32-byte root directory entry.
type DirectoryEntry struct {
	Name              ShortName
	Attributes        uint8
	NTReserved        uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	AccessedDate      uint16
	// FirstClusterHigh is only meaningful on FAT32. It is kept so entries can be
	// displayed faithfully but ignored when following chains.
	FirstClusterHigh uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	FirstCluster     ClusterID
	Size             uint32
}

// ParseDirectoryEntry decodes one directory entry from the first [DirentSize]
// bytes of `data`.
func ParseDirectoryEntry(data []byte) (DirectoryEntry, error) {
	if len(data) < DirentSize {
		return DirectoryEntry{}, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("directory entry must be %d bytes, got %d", DirentSize, len(data)))
	}

	le := binary.LittleEndian
	dirent := DirectoryEntry{
		Attributes:        data[11],
		NTReserved:        data[12],
		CreatedTimeTenths: data[13],
		CreatedTime:       le.Uint16(data[14:16]),
		CreatedDate:       le.Uint16(data[16:18]),
		AccessedDate:      le.Uint16(data[18:20]),
		FirstClusterHigh:  le.Uint16(data[20:22]),
		ModifiedTime:      le.Uint16(data[22:24]),
		ModifiedDate:      le.Uint16(data[24:26]),
		FirstCluster:      ClusterID(le.Uint16(data[26:28])),
		Size:              le.Uint32(data[28:32]),
	}
	copy(dirent.Name[:], data[:NameLength])
	return dirent, nil
}

// IsFree returns true if this slot and all slots after it are unused.
func (d *DirectoryEntry) IsFree() bool {
	return d.Name[0] == 0
}

// IsDeleted returns true if the entry once described a file that has since been
// deleted.
func (d *DirectoryEntry) IsDeleted() bool {
	return d.Name[0] == DeletedMarker
}

// IsDir returns true if the entry is a subdirectory.
func (d *DirectoryEntry) IsDir() bool {
	return d.Attributes&AttrDirectory != 0
}

// IsVolumeLabel returns true if the entry holds the volume label rather than a
// file. Long file name fragments also carry this flag.
func (d *DirectoryEntry) IsVolumeLabel() bool {
	return d.Attributes&AttrVolumeLabel != 0
}

// IsFile returns true if the entry is an ordinary live file.
func (d *DirectoryEntry) IsFile() bool {
	return !d.IsFree() && !d.IsDeleted() && !d.IsDir() && !d.IsVolumeLabel()
}

// DisplayName returns the user-friendly form of the entry's name, e.g.
// "KERNEL  BIN" becomes "KERNEL.BIN".
func (d *DirectoryEntry) DisplayName() string {
	return BytesToFilename(d.Name)
}

// ModifiedAt returns the last modification timestamp.
func (d *DirectoryEntry) ModifiedAt() time.Time {
	return TimestampFromParts(d.ModifiedDate, d.ModifiedTime, 0)
}

// CreatedAt returns the creation timestamp, including the 10 ms resolution field.
func (d *DirectoryEntry) CreatedAt() time.Time {
	return TimestampFromParts(d.CreatedDate, d.CreatedTime, d.CreatedTimeTenths)
}

// AttributeString renders the attribute flags the way DOS `attrib` does, one
// letter per flag and a dash for each flag that isn't set.
func (d *DirectoryEntry) AttributeString() string {
	flags := []struct {
		mask   uint8
		letter byte
	}{
		{AttrReadOnly, 'R'},
		{AttrHidden, 'H'},
		{AttrSystem, 'S'},
		{AttrVolumeLabel, 'V'},
		{AttrDirectory, 'D'},
		{AttrArchived, 'A'},
	}

	out := make([]byte, len(flags))
	for i, flag := range flags {
		if d.Attributes&flag.mask != 0 {
			out[i] = flag.letter
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// DateFromInt converts the FAT on-disk representation of a date into a Go time.Time
// object. Bits 0-4 are the day, 5-8 the month and 9-15 the years since 1980.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts converts a FAT timestamp into a time.Time object. datePart is
// required; timePart and hundredths should be 0 if they're not present in the source
// field(s).
func TimestampFromParts(datePart uint16, timePart uint16, hundredths uint8) time.Time {
	date := DateFromInt(datePart)

	seconds := int(timePart&0x001f) * 2
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}

	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(hundredths) * int(10*time.Millisecond)

	return time.Date(
		date.Year(), date.Month(), date.Day(), hours, minutes, seconds, nanoseconds, time.UTC)
}

// FilenameToBytes converts a filename string such as "kernel.bin" to its on-disk
// representation, "KERNEL  BIN". The returned name is normalized to uppercase.
func FilenameToBytes(name string) (ShortName, error) {
	var shortName ShortName
	parts := strings.SplitN(name, ".", 2)

	if len(parts[0]) == 0 {
		return shortName, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("filename has no stem: %q", name))
	} else if len(parts[0]) > 8 {
		return shortName, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("filename stem can be at most eight characters: %q", parts[0]))
	}

	var paddedName string
	if len(parts) == 2 {
		if len(parts[1]) > 3 {
			return shortName, bootfat.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("filename extension can be at most three characters: %q", parts[1]))
		}
		paddedName = fmt.Sprintf("%-8s%-3s", parts[0], parts[1])
	} else {
		// Filename has no extension.
		paddedName = fmt.Sprintf("%-11s", parts[0])
	}

	copy(shortName[:], strings.ToUpper(paddedName))
	return shortName, nil
}

// BytesToFilename converts the on-disk representation of a filename into its
// user-friendly form. Case is preserved as stored.
func BytesToFilename(rawName ShortName) string {
	stem := bytes.TrimRight(rawName[:8], " ")
	extension := bytes.TrimRight(rawName[8:], " ")

	if len(extension) > 0 {
		return string(stem) + "." + string(extension)
	}
	return string(stem)
}

// ParseShortName accepts an 11-byte name exactly as it is stored on disk, with
// no case folding or padding.
func ParseShortName(raw string) (ShortName, error) {
	var shortName ShortName
	if len(raw) != NameLength {
		return shortName, bootfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("8.3 name must be exactly %d bytes, got %d: %q", NameLength, len(raw), raw))
	}
	copy(shortName[:], raw)
	return shortName, nil
}
