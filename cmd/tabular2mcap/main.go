// Command tabular2mcap converts a directory of tables, images, attachments and
// metadata files into one MCAP file as described by a mapping config.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
