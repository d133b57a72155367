// Command alloclower lowers the create operators of compilation units and
// manages stored runs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/alloclower/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "alloclower:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
