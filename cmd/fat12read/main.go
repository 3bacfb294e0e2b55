package main

import (
	"os"

	"github.com/spf13/afero"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr, afero.NewOsFs()))
}
