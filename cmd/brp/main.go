// Command brp serves a live world over the remote protocol.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/brp/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "brp:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
