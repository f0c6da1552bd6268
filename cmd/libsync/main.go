// libsync watches local libraries, rebuilds them on change, and mirrors their
// build output into the applications that depend on them.
package main

import (
	"os"

	"github.com/hupe1980/libsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
