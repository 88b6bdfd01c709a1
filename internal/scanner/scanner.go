// Package scanner runs clamscan and turns its line output into findings,
// progress and a summary. It shells out rather than linking libclamav, so a
// stock ClamAV installation is the only requirement.
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/events"
	"github.com/slaythrax/clamui-sub000/internal/progress"
)

// clamscan exit codes: 0 clean, 1 threats found, anything else is a real
// failure.
const exitThreatsFound = 1

// ErrNoPaths means the profile resolved to nothing scannable.
var ErrNoPaths = errors.New("scanner: no paths to scan")

// Summary is the outcome of one scan.
type Summary struct {
	ProfileID    string
	FilesScanned int
	Findings     []Finding
	Duration     time.Duration
}

// Options configures a Scanner.
type Options struct {
	// BinPath is the clamscan executable, resolved via $PATH if bare.
	BinPath string
	Logger  zerolog.Logger
	Bus     *events.Bus

	// DatabaseDir, when set, is passed to clamscan as --database so scans
	// use the definitions the updater maintains.
	DatabaseDir string

	// Progress receives per-file progress. Nil means no reporting.
	Progress progress.Reporter
}

// Scanner invokes clamscan. Safe for sequential use; the app serializes
// scans so two never run at once.
type Scanner struct {
	bin   string
	log   zerolog.Logger
	bus   *events.Bus
	dbDir string
	prog  progress.Reporter
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	bin := opts.BinPath
	if bin == "" {
		bin = "clamscan"
	}
	prog := opts.Progress
	if prog == nil {
		prog = progress.NoOpProgress{}
	}
	return &Scanner{
		bin:   bin,
		log:   opts.Logger,
		bus:   opts.Bus,
		dbDir: opts.DatabaseDir,
		prog:  prog,
	}
}

// Scan walks the given paths with clamscan. Threats are published on the bus
// as they stream in; the summary comes back when the process exits. A threat
// being found is a successful scan, not an error. Cancelling ctx kills the
// scan.
func (s *Scanner) Scan(ctx context.Context, profileID string, paths []string) (*Summary, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	total := countFiles(paths)
	start := time.Now()

	s.publish(&events.ScanStartedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventScanStarted, Time: start},
		ProfileID: profileID,
		Paths:     paths,
	})

	args := []string{"--recursive", "--stdout", "--no-summary"}
	if s.dbDir != "" {
		args = append(args, "--database="+s.dbDir)
	}
	args = append(args, paths...)

	cmd := exec.CommandContext(ctx, s.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("scanner stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.bin, err)
	}

	s.log.Info().
		Str("profile", profileID).
		Strs("paths", paths).
		Int("files", total).
		Msg("scan started")

	summary := &Summary{ProfileID: profileID}
	lastPct := -1
	s.prog.Start(total, "Scanning")

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()

		if finding, ok := ParseLine(line); ok {
			summary.Findings = append(summary.Findings, finding)
			s.log.Warn().
				Str("path", finding.Path).
				Str("signature", finding.Signature).
				Msg("threat found")
			if s.bus != nil {
				s.bus.PublishThreat(finding.Path, finding.Signature)
			}
		}

		if scannedFile(line) {
			summary.FilesScanned++
			s.prog.Update(summary.FilesScanned, resultPath(line))
			pct := 0
			if total > 0 {
				pct = summary.FilesScanned * 100 / total
				if pct > 100 {
					pct = 100
				}
			}
			if pct != lastPct {
				lastPct = pct
				if s.bus != nil {
					s.bus.PublishProgress(profileID, pct, summary.FilesScanned, resultPath(line))
				}
			}
		}
	}
	scanErr := sc.Err()

	err = cmd.Wait()
	summary.Duration = time.Since(start)
	s.prog.Finish()

	if scanErr != nil {
		err = scanErr
	} else if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitThreatsFound {
			err = nil
		} else if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%s: %w", s.bin, err)
		}
	}

	s.publish(&events.ScanCompletedEvent{
		BaseEvent:    events.BaseEvent{EventType: events.EventScanCompleted, Time: time.Now()},
		ProfileID:    profileID,
		FilesScanned: summary.FilesScanned,
		ThreatsFound: len(summary.Findings),
		Duration:     summary.Duration,
		Err:          err,
	})

	if err != nil {
		return summary, err
	}

	s.log.Info().
		Str("profile", profileID).
		Int("scanned", summary.FilesScanned).
		Int("threats", len(summary.Findings)).
		Dur("duration", summary.Duration).
		Msg("scan finished")
	return summary, nil
}

func (s *Scanner) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// countFiles sizes the scan up front so progress can be a percentage.
// Unreadable subtrees count as zero; progress then tops out early, which is
// harmless.
func countFiles(paths []string) int {
	total := 0
	for _, root := range paths {
		_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				total++
			}
			return nil
		})
	}
	return total
}

// resultPath pulls the file path out of a per-file result line.
func resultPath(line string) string {
	for _, suffix := range []string{" FOUND", ": OK", ": ERROR"} {
		if idx := len(line) - len(suffix); idx > 0 && line[idx:] == suffix {
			body := line[:idx]
			if suffix == " FOUND" {
				if i := lastSep(body); i >= 0 {
					return body[:i]
				}
			}
			return body
		}
	}
	return ""
}

func lastSep(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] == ':' && s[i+1] == ' ' {
			return i
		}
	}
	return -1
}
