// Command amux is the CLI client against amuxd's Unix-socket RPC surface.
//
// Adapted from the teacher's cmd/agtmux/main.go (a thin main delegating to
// a Runner); amux delegates to internal/clicmd's cobra command tree instead
// of the teacher's stdlib-flag Runner.
package main

import (
	"fmt"
	"os"

	"github.com/amux-dev/amux/internal/clicmd"
)

func main() {
	if err := clicmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "amux:", err)
		os.Exit(1)
	}
}
