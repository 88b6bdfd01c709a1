// ClamUI - desktop antivirus frontend for ClamAV.
//
// The main binary hosts the CLI and the long-running desktop application;
// the tray indicator lives in a separate binary (cmd/clamui-tray) that this
// process spawns and supervises.
//
// Build:
//
//	go build .
//	go build ./cmd/clamui-tray
package main

import (
	"os"

	"github.com/slaythrax/clamui-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
