package main

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dargueta/bootfat/boot"
	"github.com/dargueta/bootfat/disks"
	"github.com/dargueta/bootfat/file_systems/common/blockdevice"
	"github.com/dargueta/bootfat/file_systems/fat12"
	"github.com/dargueta/bootfat/utilities/hexescape"
	"github.com/dargueta/bootfat/utilities/imagefile"
	"github.com/urfave/cli/v2"
)

func usageError(ctx *cli.Context, message string) error {
	return cli.Exit(
		fmt.Sprintf("Usage: %s %s\n%s", ctx.App.Name, ctx.Command.ArgsUsage, message),
		exitBadArguments)
}

// parseName converts the NAME argument to its on-disk form. With --name it's a
// regular file name, otherwise it must already be in on-disk form.
func parseName(raw string, humanName bool) (fat12.ShortName, error) {
	if humanName {
		return fat12.FilenameToBytes(raw)
	}
	return fat12.ParseShortName(raw)
}

func (app *application) catFile(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return cli.Exit(
			fmt.Sprintf("Usage: %s <disk_image> <filename_8.3>", ctx.App.Name),
			exitBadArguments)
	}

	imagePath := ctx.Args().Get(0)
	rawName := ctx.Args().Get(1)
	name, err := parseName(rawName, ctx.Bool("name"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %s", err), exitBadArguments)
	}

	fs, closeImage, err := app.openImage(ctx, imagePath)
	if err != nil {
		return err
	}
	defer closeImage()

	_, contents, err := fs.Load(name)
	if err != nil {
		return loadFailure(err, rawName)
	}

	if ctx.Bool("raw") {
		_, err = app.stdout.Write(contents)
		return err
	}

	writer := hexescape.NewWriter(app.stdout)
	if _, err = writer.Write(contents); err != nil {
		return err
	}
	if err = writer.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintln(app.stdout)
	return err
}

func (app *application) listDirectory(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return usageError(ctx, "list takes exactly one argument")
	}

	fs, closeImage, err := app.openImage(ctx, ctx.Args().First())
	if err != nil {
		return err
	}
	defer closeImage()

	showAll := ctx.Bool("all")
	showChains := ctx.Bool("chains")

	table := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	header := "NAME\tRAW NAME\tATTR\tSIZE\tCLUSTER\tMODIFIED"
	if showChains {
		header += "\tCHAIN"
	}
	fmt.Fprintln(table, header)

	for _, entry := range fs.RootDirectory() {
		if entry.IsFree() {
			continue
		}
		if !showAll && (entry.IsDeleted() || entry.IsVolumeLabel()) {
			continue
		}

		line := fmt.Sprintf(
			"%s\t%s\t%s\t%d\t%d\t%s",
			hexescape.Escape([]byte(entry.DisplayName())),
			hexescape.Escape(entry.Name[:]),
			entry.AttributeString(),
			entry.Size,
			entry.FirstCluster,
			entry.ModifiedAt().Format("2006-01-02 15:04:05"))

		if showChains {
			line += "\t" + app.describeChain(fs, entry)
		}
		fmt.Fprintln(table, line)
	}
	return table.Flush()
}

func (app *application) describeChain(fs *fat12.Filesystem, entry fat12.DirectoryEntry) string {
	if entry.IsDeleted() || entry.IsVolumeLabel() {
		return "-"
	}

	chain, err := fs.Chain(entry.FirstCluster)
	parts := make([]string, len(chain))
	for i, cluster := range chain {
		parts[i] = fmt.Sprintf("%d", cluster)
	}
	description := strings.Join(parts, ",")
	if err != nil {
		app.logger.Warnw("bad cluster chain", "file", entry.Name.String(), "error", err)
		description += " (" + err.Error() + ")"
	}
	if description == "" {
		return "-"
	}
	return description
}

type infoRow struct {
	label string
	value any
}

func (app *application) showInfo(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return usageError(ctx, "info takes exactly one argument")
	}

	fs, closeImage, err := app.openImage(ctx, ctx.Args().First())
	if err != nil {
		return err
	}
	defer closeImage()

	bpb := fs.BootSector()
	g := fs.Geometry()

	table := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	rows := []infoRow{
		{"OEM name", hexescape.Escape(bpb.OEMName[:])},
		{"Bytes per sector", g.BytesPerSector},
		{"Sectors per cluster", g.SectorsPerCluster},
		{"Reserved sectors", bpb.ReservedSectors},
		{"FAT copies", bpb.FATCount},
		{"Sectors per FAT", g.SectorsPerFAT},
		{"Root directory entries", g.RootEntryCount},
		{"Total sectors", bpb.TotalSectorCount()},
		{"Media descriptor", fmt.Sprintf("0x%02X", bpb.MediaDescriptor)},
		{"Sectors per track", bpb.SectorsPerTrack},
		{"Heads", bpb.Heads},
		{"FAT start", g.FATStart},
		{"Root directory start", g.RootDirStart},
		{"Root directory sectors", g.RootDirSectors},
		{"Data start", g.DataStart},
		{"Highest cluster", g.MaxCluster},
		{"Boot signature", bpb.HasBootSignature()},
	}
	if bpb.HasExtendedBPB() {
		rows = append(
			rows,
			infoRow{"Volume ID", fmt.Sprintf("%04X-%04X", bpb.VolumeID>>16, bpb.VolumeID&0xFFFF)},
			infoRow{"Volume label", hexescape.Escape(bpb.VolumeLabel[:])},
			infoRow{"System ID", hexescape.Escape(bpb.SystemID[:])},
		)
	}

	format, ok := disks.FindByLayout(
		bpb.TotalSectorCount(), uint(bpb.SectorsPerTrack), uint(bpb.Heads))
	if ok {
		rows = append(
			rows,
			infoRow{"Disk format", format.Name})
	}

	for _, row := range rows {
		fmt.Fprintf(table, "%s:\t%v\n", row.label, row.value)
	}
	return table.Flush()
}

// hostMachine stands in for the CPU when the boot loader runs on a host: it
// records where control would have gone instead of going there.
type hostMachine struct {
	jumped    bool
	entry     uint32
	bootDrive uint8
	rebooted  bool
}

func (m *hostMachine) Jump(entry uint32, bootDrive uint8) {
	m.jumped = true
	m.entry = entry
	m.bootDrive = bootDrive
}

func (m *hostMachine) Reboot() {
	m.rebooted = true
}

func (app *application) bootImage(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return usageError(ctx, "boot takes exactly one argument")
	}

	imagePath := ctx.Args().First()
	kernelName, err := fat12.FilenameToBytes(ctx.String("kernel"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %s", err), exitBadArguments)
	}
	drive := ctx.Uint("drive")
	if drive > 0xFF {
		return cli.Exit(fmt.Sprintf("Error: drive number %d out of range", drive), exitBadArguments)
	}

	data, _, err := imagefile.ReadFile(app.fs, imagePath, 0)
	if err != nil {
		return cli.Exit(
			fmt.Sprintf("Error: Cannot open disk image '%s': %s", imagePath, err),
			exitCannotOpenImage)
	}

	// The BIOS knows the drive geometry before anything is read from it; an
	// emulated drive has to get it from the boot sector.
	bpb, err := fat12.ParseBootSector(data)
	if err != nil {
		return loadFailure(&fat12.StageError{Stage: fat12.StageBootSector, Err: err}, "")
	}
	geometry := blockdevice.Geometry{
		BytesPerSector:  uint(bpb.BytesPerSector),
		SectorsPerTrack: uint(bpb.SectorsPerTrack),
		Heads:           uint(bpb.Heads),
	}

	machine := &hostMachine{}
	stage2 := boot.Stage2{
		Controller:  blockdevice.NewImageController(bytes.NewReader(data), uint8(drive), geometry),
		BootDrive:   uint8(drive),
		Memory:      make([]byte, boot.DefaultLoadRegionSize),
		LoadAddress: boot.DefaultLoadAddress,
		KernelName:  kernelName,
		Console:     boot.WriterConsole{W: app.stderr},
		Machine:     machine,
		Options:     app.options(ctx),
	}

	result, err := stage2.Run()
	if err != nil {
		return loadFailure(err, ctx.String("kernel"))
	}

	fmt.Fprintf(
		app.stdout,
		"%s: %d bytes loaded at 0x%05X, entry point 0x%05X, boot drive 0x%02X\n",
		result.Kernel.DisplayName(),
		result.BytesLoaded,
		stage2.LoadAddress,
		machine.entry,
		machine.bootDrive)
	return nil
}
