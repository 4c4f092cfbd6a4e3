// Command irts harvests bibliographic metadata into a versioned fact store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/irts/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
