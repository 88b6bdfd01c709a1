// Package progress reports scan progress to whoever is watching: a terminal
// bar for CLI scans, nothing for silent background ones.
package progress

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives scan progress. The scanner calls Start once with the
// file count, Update per scanned file and Finish when the scan ends.
type Reporter interface {
	Start(totalFiles int, description string)
	Update(filesScanned int, currentPath string)
	Finish()
}

// CLIProgress renders a terminal progress bar.
type CLIProgress struct {
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a CLI progress reporter.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{}
}

// Start initializes the bar with the number of files to scan.
func (p *CLIProgress) Start(totalFiles int, description string) {
	p.bar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update advances the bar.
func (p *CLIProgress) Update(filesScanned int, currentPath string) {
	if p.bar != nil {
		_ = p.bar.Set(filesScanned)
	}
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// NoOpProgress discards all progress, for silent background scans.
type NoOpProgress struct{}

func (NoOpProgress) Start(totalFiles int, description string)    {}
func (NoOpProgress) Update(filesScanned int, currentPath string) {}
func (NoOpProgress) Finish()                                     {}
