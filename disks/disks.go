// Package disks holds the table of predefined FAT12 floppy formats.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// DiskGeometry describes a standard floppy format: its physical geometry and
// the FAT12 layout DOS put on it.
type DiskGeometry struct {
	Name               string `csv:"name"`
	Slug               string `csv:"slug"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`

	BytesPerSector  uint `csv:"bytes_per_sector"`
	SectorsPerTrack uint `csv:"sectors_per_track"`
	// TotalDataTracks gives the number of data tracks per head, i.e. the number
	// of cylinders.
	TotalDataTracks uint `csv:"total_data_tracks"`
	// Heads gives the number of heads in the device.
	Heads uint `csv:"heads"`

	MediaDescriptor   uint8 `csv:"media_descriptor"`
	ReservedSectors   uint  `csv:"reserved_sectors"`
	FATCount          uint  `csv:"fat_count"`
	SectorsPerCluster uint  `csv:"sectors_per_cluster"`
	RootEntries       uint  `csv:"root_entries"`
	SectorsPerFAT     uint  `csv:"sectors_per_fat"`

	Notes string `csv:"notes"`
}

// TotalSectors gives the number of sectors on the disk.
func (g *DiskGeometry) TotalSectors() uint {
	return g.SectorsPerTrack * g.TotalDataTracks * g.Heads
}

// TotalSizeBytes gives the size of the disk, which is also the size of a raw
// image of it.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	return int64(g.TotalSectors()) * int64(g.BytesPerSector)
}

////////////////////////////////////////////////////////////////////////////////

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries []DiskGeometry

// GetPredefinedDiskGeometry returns the format with the given slug, e.g. "1440k".
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	for _, geometry := range diskGeometries {
		if geometry.Slug == slug {
			return geometry, nil
		}
	}

	err := fmt.Errorf("no predefined disk geometry exists with slug %q", slug)
	return DiskGeometry{}, err
}

// FindByLayout returns the predefined format with the given total sector count
// and track geometry, if there is one.
func FindByLayout(totalSectors, sectorsPerTrack, heads uint) (DiskGeometry, bool) {
	for _, geometry := range diskGeometries {
		if geometry.TotalSectors() == totalSectors &&
			geometry.SectorsPerTrack == sectorsPerTrack &&
			geometry.Heads == heads {
			return geometry, true
		}
	}
	return DiskGeometry{}, false
}

// All returns every predefined format, smallest first.
func All() []DiskGeometry {
	out := make([]DiskGeometry, len(diskGeometries))
	copy(out, diskGeometries)
	return out
}

func init() {
	reader := strings.NewReader(diskGeometriesRawCSV)
	csvReader := csv.NewReader(reader)
	csvReader.Comma = '|'
	// Names contain bare double quotes for inches.
	csvReader.LazyQuotes = true

	var rows []DiskGeometry
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		panic(fmt.Errorf("failed to decode disk geometries: %w", err))
	}

	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		if previous, exists := seen[row.Slug]; exists {
			panic(
				fmt.Errorf(
					"duplicate definition for disk %q found on rows %d and %d",
					row.Slug,
					previous+1,
					i+1))
		}
		seen[row.Slug] = i
	}
	diskGeometries = rows
}
