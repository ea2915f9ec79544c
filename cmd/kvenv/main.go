package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/systmms/kvenv/cmd/kvenv/commands"
	kverrors "github.com/systmms/kvenv/internal/errors"
)

func main() {
	code := run()
	// Wipe any remaining memguard enclaves before the process goes away.
	memguard.Purge()
	os.Exit(code)
}

func run() int {
	if err := commands.NewRootCommand().Execute(); err != nil {
		// A child's own nonzero exit has already spoken for itself.
		if !kverrors.Silent(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", kverrors.Presentable(err))
		}
		return kverrors.ExitCode(err)
	}
	return 0
}
