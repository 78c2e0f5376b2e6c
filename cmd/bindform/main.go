// Command bindform runs binding scenarios, validates binding configs,
// inspects persisted form history and serves bound forms over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bindform/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
