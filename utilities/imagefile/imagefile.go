// Package imagefile opens disk images from a filesystem, transparently
// expanding images that were distributed compressed.
package imagefile

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dargueta/bootfat"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
	"github.com/xaionaro-go/bytesextra"
)

// DefaultMaxImageSize caps the size of a decompressed image. The largest FAT12
// volume is well under this.
const DefaultMaxImageSize = 256 * 1024 * 1024

type Format int

const (
	FormatRaw Format = iota
	FormatGzip
	FormatZstd
	FormatXZ
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatGzip:
		return "gzip"
	case FormatZstd:
		return "zstd"
	case FormatXZ:
		return "xz"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

var (
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
)

// DetectFormat guesses the compression of an image from its first few bytes.
// Anything unrecognized is assumed to be a raw image.
func DetectFormat(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case bytes.HasPrefix(header, zstdMagic):
		return FormatZstd
	case bytes.HasPrefix(header, xzMagic):
		return FormatXZ
	default:
		return FormatRaw
	}
}

// Image is an opened disk image. Compressed images are expanded into memory;
// raw images are read straight from the file.
type Image struct {
	io.ReadSeeker
	Format Format
	file   afero.File
}

// Close releases the underlying file.
func (img *Image) Close() error {
	return img.file.Close()
}

// Open opens the image at `path`. A compressed image that expands to more than
// `maxSize` bytes fails with [bootfat.ErrNoMemory]; 0 means
// [DefaultMaxImageSize].
func Open(fs afero.Fs, path string, maxSize int64) (*Image, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, len(xzMagic))
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		file.Close()
		return nil, bootfat.ErrIOFailed.Wrap(err)
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, bootfat.ErrIOFailed.Wrap(err)
	}

	format := DetectFormat(header[:n])
	if format == FormatRaw {
		return &Image{ReadSeeker: file, Format: format, file: file}, nil
	}

	data, err := decompress(file, format, maxSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Image{
		ReadSeeker: bytesextra.NewReadWriteSeeker(data),
		Format:     format,
		file:       file,
	}, nil
}

// ReadFile returns the entire contents of the image at `path`, decompressed if
// necessary.
func ReadFile(fs afero.Fs, path string, maxSize int64) ([]byte, Format, error) {
	img, err := Open(fs, path, maxSize)
	if err != nil {
		return nil, FormatRaw, err
	}
	defer img.Close()

	data, err := io.ReadAll(img)
	if err != nil {
		return nil, img.Format, bootfat.ErrIOFailed.Wrap(err)
	}
	return data, img.Format, nil
}

func decompress(input io.Reader, format Format, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}

	var reader io.Reader
	switch format {
	case FormatGzip:
		gzReader, err := gzip.NewReader(input)
		if err != nil {
			return nil, bootfat.ErrInvalidArgument.Wrap(err)
		}
		defer gzReader.Close()
		reader = gzReader
	case FormatZstd:
		zstdReader, err := zstd.NewReader(input)
		if err != nil {
			return nil, bootfat.ErrInvalidArgument.Wrap(err)
		}
		defer zstdReader.Close()
		reader = zstdReader
	case FormatXZ:
		xzReader, err := xz.NewReader(input)
		if err != nil {
			return nil, bootfat.ErrInvalidArgument.Wrap(err)
		}
		reader = xzReader
	default:
		return nil, bootfat.ErrNotSupported.WithMessage(format.String())
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		return nil, bootfat.ErrIOFailed.Wrap(err).WithMessage(
			fmt.Sprintf("decompressing %s image", format))
	}
	if int64(len(data)) > maxSize {
		return nil, bootfat.ErrNoMemory.WithMessage(
			fmt.Sprintf("%s image expands to more than %d bytes", format, maxSize))
	}
	return data, nil
}
