// Command gatesync keeps HikCentral access control in step with the worker
// registry.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/gatesync/internal/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "gatesync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
