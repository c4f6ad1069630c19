package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bit2swaz/sfg-rotate/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		var exitErr commands.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
