package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/dargueta/bootfat/file_systems/fat12"
	"github.com/dargueta/bootfat/utilities/imagefile"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Process exit codes. Load failures map to the stage that failed.
const (
	exitOK              = 0
	exitBadArguments    = 1
	exitCannotOpenImage = 2
	exitBootSector      = 3
	exitFAT             = 4
	exitRootDirectory   = 5
	exitNotFound        = 6
	exitAllocation      = 7
	exitReadFile        = 8
)

var stageExitCodes = map[fat12.Stage]int{
	fat12.StageBootSector:    exitBootSector,
	fat12.StageFAT:           exitFAT,
	fat12.StageRootDirectory: exitRootDirectory,
	fat12.StageFindFile:      exitNotFound,
	fat12.StageAllocate:      exitAllocation,
	fat12.StageReadFile:      exitReadFile,
}

type application struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	logger *zap.SugaredLogger
}

func newLogger(out io.Writer, level string) (*zap.SugaredLogger, error) {
	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(out), parsedLevel)
	return zap.New(core).Sugar(), nil
}

func (app *application) before(ctx *cli.Context) error {
	logger, err := newLogger(app.stderr, ctx.String("log-level"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: invalid log level: %s", err), exitBadArguments)
	}
	app.logger = logger
	return nil
}

// options builds the driver options from the global flags.
func (app *application) options(ctx *cli.Context) fat12.Options {
	return fat12.Options{
		MaxAllocation:    ctx.Uint("max-alloc"),
		RequireSignature: ctx.Bool("strict"),
		Logger:           app.logger,
	}
}

// openImage mounts the image at `path`. The returned close function must be
// called when the filesystem is no longer needed.
func (app *application) openImage(ctx *cli.Context, path string) (*fat12.Filesystem, func(), error) {
	image, err := imagefile.Open(app.fs, path, 0)
	if err != nil {
		return nil, nil, cli.Exit(
			fmt.Sprintf("Error: Cannot open disk image '%s': %s", path, err),
			exitCannotOpenImage)
	}

	fs, err := fat12.OpenImage(image, app.options(ctx))
	if err != nil {
		image.Close()
		return nil, nil, loadFailure(err, "")
	}
	app.logger.Debugw("opened image", "path", path, "format", image.Format)
	return fs, func() { image.Close() }, nil
}

// loadFailure converts an error from the driver into a process exit. `name` is
// the file being loaded, if any.
func loadFailure(err error, name string) error {
	stage := fat12.FailedStage(err)
	code, ok := stageExitCodes[stage]
	if !ok {
		code = exitReadFile
	}

	var message string
	switch stage {
	case fat12.StageBootSector:
		message = "Could not read boot sector!"
	case fat12.StageFAT:
		message = "Could not read FAT!"
	case fat12.StageRootDirectory:
		message = "Could not read root directory!"
	case fat12.StageFindFile:
		message = fmt.Sprintf("Could not find file '%s'", name)
	case fat12.StageAllocate:
		message = "Could not allocate memory for file!"
	default:
		message = fmt.Sprintf("Could not read file '%s'", name)
	}
	return cli.Exit(fmt.Sprintf("Error: %s (%s)", message, err), code)
}

func (app *application) cliApp() *cli.App {
	return &cli.App{
		Name:      "fat12read",
		Usage:     "Read files from the root directory of a FAT12 disk image",
		ArgsUsage: "IMAGE NAME",
		Description: "Prints the contents of NAME, an 8.3 file name exactly as stored on\n" +
			"disk (e.g. \"KERNEL  BIN\"), to standard output. Printable ASCII is written\n" +
			"as-is and every other byte as <XX>.",
		Writer:    app.stdout,
		ErrWriter: app.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log messages at this level or above to stderr (debug, info, warn, error)",
				Value:   "warn",
				EnvVars: []string{"FAT12READ_LOG_LEVEL"},
			},
			&cli.UintFlag{
				Name:    "max-alloc",
				Usage:   "Largest buffer, in bytes, to allocate for the FAT, root directory or a file",
				Value:   fat12.DefaultMaxAllocation,
				EnvVars: []string{"FAT12READ_MAX_ALLOC"},
			},
			&cli.BoolFlag{
				Name:    "strict",
				Usage:   "Reject images whose boot sector lacks the 0xAA55 signature",
				EnvVars: []string{"FAT12READ_STRICT"},
			},
			&cli.BoolFlag{
				Name:  "name",
				Usage: "Treat NAME as a regular file name such as kernel.bin",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Write the file's bytes unescaped and without a trailing newline",
			},
		},
		Before:   app.before,
		Action:   app.catFile,
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the root directory",
				ArgsUsage: "IMAGE",
				Action:    app.listDirectory,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include deleted entries and volume labels",
					},
					&cli.BoolFlag{
						Name:  "chains",
						Usage: "Print the cluster chain of each file",
					},
				},
			},
			{
				Name:      "info",
				Usage:     "Show the boot sector and volume layout",
				ArgsUsage: "IMAGE",
				Action:    app.showInfo,
			},
			{
				Name:      "boot",
				Usage:     "Load a kernel the way the boot loader does, through emulated BIOS disk services",
				ArgsUsage: "IMAGE",
				Action:    app.bootImage,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kernel",
						Usage: "File name of the kernel",
						Value: "kernel.bin",
					},
					&cli.UintFlag{
						Name:  "drive",
						Usage: "BIOS drive number to boot from",
						Value: 0,
					},
				},
			},
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// run executes the command line `args` and returns the process exit code.
func run(args []string, stdout, stderr io.Writer, fs afero.Fs) int {
	app := &application{
		fs:     fs,
		stdout: stdout,
		stderr: stderr,
		logger: zap.NewNop().Sugar(),
	}

	err := app.cliApp().Run(args)
	_ = app.logger.Sync()
	if err == nil {
		return exitOK
	}

	fmt.Fprintln(stderr, err.Error())
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return exitBadArguments
}
