// Command courselink keeps parent courses in step with the courses linked
// into them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/courselink/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
