// Command webdsl parses and serves a declarative web application
// configuration.
package main

import (
	"fmt"
	"os"

	"github.com/williamcotton/webdsl/cmd/webdsl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
