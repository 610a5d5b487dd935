// Command uitest runs the demo UI test catalog against the testbed host.
package main

import (
	"os"

	"github.com/go-drift/testengine/cmd/uitest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
