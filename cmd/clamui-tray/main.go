// ClamUI Tray Companion - the system tray indicator subprocess.
//
// This binary is spawned by the main clamui process, not run directly. The
// two processes speak newline-delimited JSON: commands arrive on stdin,
// events leave on stdout, so stdout must never carry anything else. Logs go
// to stderr.
//
// Build:
//
//	go build ./cmd/clamui-tray
package main

func main() {
	runTray()
}
