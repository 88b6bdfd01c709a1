package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/slaythrax/clamui-sub000/internal/events"
)

// writeStub creates an executable standing in for clamscan.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clamscan-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// scanTree creates a directory with n regular files for countFiles to find.
func scanTree(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestScanReportsFindings(t *testing.T) {
	// Exit code 1 is clamscan for "threats found", not a failure.
	stub := writeStub(t, `printf '/x/ok.txt: OK\n'
printf '/x/bad.exe: Eicar-Test-Signature FOUND\n'
exit 1`)
	dir := scanTree(t, 2)

	bus := events.NewBus(16)
	defer bus.Close()
	threats := bus.Subscribe(events.EventThreatFound)
	completed := bus.Subscribe(events.EventScanCompleted)

	s := New(Options{BinPath: stub, Logger: zerolog.Nop(), Bus: bus})
	summary, err := s.Scan(context.Background(), "quick", []string{dir})
	if err != nil {
		t.Fatalf("Scan error = %v", err)
	}

	if summary.FilesScanned != 2 {
		t.Errorf("files scanned = %d, want 2", summary.FilesScanned)
	}
	if len(summary.Findings) != 1 {
		t.Fatalf("findings = %+v, want one", summary.Findings)
	}
	if summary.Findings[0].Signature != "Eicar-Test-Signature" {
		t.Errorf("signature = %q", summary.Findings[0].Signature)
	}

	select {
	case ev := <-threats:
		threat := ev.(*events.ThreatFoundEvent)
		if threat.Path != "/x/bad.exe" {
			t.Errorf("threat path = %q", threat.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("no threat event published")
	}

	select {
	case ev := <-completed:
		done := ev.(*events.ScanCompletedEvent)
		if done.ThreatsFound != 1 || done.FilesScanned != 2 {
			t.Errorf("completed event = %+v", done)
		}
		if done.Err != nil {
			t.Errorf("completed event error = %v", done.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("no completed event published")
	}
}

func TestScanCleanRun(t *testing.T) {
	stub := writeStub(t, `printf '/x/a.txt: OK\n'
exit 0`)
	dir := scanTree(t, 1)

	s := New(Options{BinPath: stub, Logger: zerolog.Nop()})
	summary, err := s.Scan(context.Background(), "quick", []string{dir})
	if err != nil {
		t.Fatalf("Scan error = %v", err)
	}
	if len(summary.Findings) != 0 || summary.FilesScanned != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestScanFailureExitCode(t *testing.T) {
	stub := writeStub(t, `exit 2`)
	dir := scanTree(t, 1)

	s := New(Options{BinPath: stub, Logger: zerolog.Nop()})
	if _, err := s.Scan(context.Background(), "quick", []string{dir}); err == nil {
		t.Fatal("expected error for exit code 2")
	}
}

func TestScanMissingBinary(t *testing.T) {
	s := New(Options{BinPath: "/nonexistent/clamscan", Logger: zerolog.Nop()})
	if _, err := s.Scan(context.Background(), "quick", []string{t.TempDir()}); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestScanNoPaths(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	if _, err := s.Scan(context.Background(), "quick", nil); !errors.Is(err, ErrNoPaths) {
		t.Fatalf("error = %v, want ErrNoPaths", err)
	}
}

// recordReporter captures progress calls for assertions.
type recordReporter struct {
	startedTotal int
	updates      []int
	finished     bool
}

func (r *recordReporter) Start(totalFiles int, description string) { r.startedTotal = totalFiles }
func (r *recordReporter) Update(filesScanned int, currentPath string) {
	r.updates = append(r.updates, filesScanned)
}
func (r *recordReporter) Finish() { r.finished = true }

func TestScanDrivesReporter(t *testing.T) {
	stub := writeStub(t, `printf '/x/a.txt: OK\n'
printf '/x/b.txt: OK\n'
exit 0`)
	dir := scanTree(t, 2)

	rep := &recordReporter{}
	s := New(Options{BinPath: stub, Logger: zerolog.Nop(), Progress: rep})
	if _, err := s.Scan(context.Background(), "quick", []string{dir}); err != nil {
		t.Fatalf("Scan error = %v", err)
	}

	if rep.startedTotal != 2 {
		t.Errorf("Start total = %d, want 2", rep.startedTotal)
	}
	if len(rep.updates) != 2 || rep.updates[len(rep.updates)-1] != 2 {
		t.Errorf("updates = %v, want [1 2]", rep.updates)
	}
	if !rep.finished {
		t.Error("Finish never called")
	}
}

func TestScanCancelled(t *testing.T) {
	stub := writeStub(t, `sleep 30`)
	dir := scanTree(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	s := New(Options{BinPath: stub, Logger: zerolog.Nop()})
	_, err := s.Scan(ctx, "quick", []string{dir})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
