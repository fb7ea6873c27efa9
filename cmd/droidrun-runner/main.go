package main

import (
	"fmt"
	"os"

	"github.com/droidrun-stack/droidrun-runner/cmd/droidrun-runner/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
