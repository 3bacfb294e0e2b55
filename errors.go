package bootfat

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseDriverError string

const rootError = baseDriverError("")

var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrInvalidFileSystem = rootError.WithMessage("Wrong medium type")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrLinkCycleDetected = rootError.WithMessage("Cluster chain cycle detected")
var ErrNoMemory = rootError.WithMessage("Cannot allocate memory")
var ErrNoSpaceOnDevice = rootError.WithMessage("No space left on device")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrNotSupported = rootError.WithMessage("Operation not supported")

func (e baseDriverError) Error() string {
	return string(e)
}

func (e baseDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message,
		originalError: e,
	}
}

func (e baseDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
