// Package boot is the second stage of the boot chain: it finds the kernel on
// the boot floppy through the BIOS disk services, copies it to its load address
// and jumps to it.
package boot

import (
	"fmt"

	"github.com/dargueta/bootfat/file_systems/common/blockdevice"
	"github.com/dargueta/bootfat/file_systems/fat12"
	"go.uber.org/zap"
)

// DefaultKernelName is the 8.3 name of the kernel in the root directory.
const DefaultKernelName = "KERNEL  BIN"

// DefaultLoadAddress is the physical address the kernel is loaded at.
const DefaultLoadAddress = 0x30000

// DefaultLoadRegionSize is the amount of memory available for the kernel at
// [DefaultLoadAddress], up to the start of the extended BIOS data area.
const DefaultLoadRegionSize = 0x80000 - DefaultLoadAddress

// Machine is the hardware the loader hands control to.
type Machine interface {
	// Jump transfers control to the loaded kernel, passing the boot drive.
	// On real hardware it doesn't return.
	Jump(entry uint32, bootDrive uint8)
	// Reboot waits for a key press and restarts the machine.
	Reboot()
}

// Result describes a successful load.
type Result struct {
	Kernel      fat12.DirectoryEntry
	BytesLoaded int
	EntryPoint  uint32
}

// Stage2 loads the kernel from the boot drive.
type Stage2 struct {
	Controller blockdevice.DiskController
	BootDrive  uint8
	// Memory is the load region. Its first byte lives at LoadAddress.
	Memory      []byte
	LoadAddress uint32
	// KernelName is the on-disk 8.3 name of the file to load. The zero value
	// means [DefaultKernelName].
	KernelName fat12.ShortName
	Console    Console
	Machine    Machine
	Options    fat12.Options
}

func (s *Stage2) kernelName() fat12.ShortName {
	if s.KernelName == (fat12.ShortName{}) {
		name, _ := fat12.ParseShortName(DefaultKernelName)
		return name
	}
	return s.KernelName
}

func (s *Stage2) logger() *zap.SugaredLogger {
	if s.Options.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Options.Logger
}

// Run loads the kernel and jumps to it. Any failure is printed to the console,
// after which the machine is rebooted; the error is also returned for hosts
// whose Reboot returns.
func (s *Stage2) Run() (Result, error) {
	name := s.kernelName()
	Printf(s.Console, "Loading %s from drive 0x%02x\n", fat12.BytesToFilename(name), s.BootDrive)

	result, err := s.load(name)
	if err != nil {
		Printf(s.Console, "Boot failed: %s\n", err)
		Puts(s.Console, "Press any key to reboot...\n")
		s.logger().Errorw("boot failed", "stage", fat12.FailedStage(err), "error", err)
		s.Machine.Reboot()
		return result, err
	}

	Printf(
		s.Console,
		"Loaded %d bytes at 0x%05x\n",
		result.BytesLoaded,
		result.EntryPoint)
	s.logger().Infow(
		"jumping to kernel",
		"entry", fmt.Sprintf("0x%05x", result.EntryPoint),
		"bytes", result.BytesLoaded)
	s.Machine.Jump(result.EntryPoint, s.BootDrive)
	return result, nil
}

func (s *Stage2) load(name fat12.ShortName) (Result, error) {
	geometry, err := s.Controller.DriveParameters(s.BootDrive)
	if err != nil {
		return Result{}, &fat12.StageError{Stage: fat12.StageBootSector, Err: err}
	}

	device, err := blockdevice.NewCHSDevice(s.Controller, s.BootDrive, geometry, s.Options.Logger)
	if err != nil {
		return Result{}, &fat12.StageError{Stage: fat12.StageBootSector, Err: err}
	}

	fs, err := fat12.Open(device, s.Options)
	if err != nil {
		return Result{}, err
	}

	entry, n, err := fs.LoadInto(name, s.Memory)
	result := Result{Kernel: entry, BytesLoaded: n, EntryPoint: s.LoadAddress}
	return result, err
}
